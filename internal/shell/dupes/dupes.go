// Package dupes finds duplicate files with a two-pass scan: group by size,
// then hash only files whose size collides. Hashes are cached in the store so
// unchanged files are not rehashed on later runs.
package dupes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/artpar/mediaforge/internal/core/format"
	"github.com/artpar/mediaforge/internal/core/progress"
)

// defaultBlockSize is the hashing read size.
const defaultBlockSize = 2 * 1024 * 1024

// =============================================================================
// Interfaces / Options
// =============================================================================

// HashCache persists file digests between runs. Implemented by store.Store.
type HashCache interface {
	CachedHash(ctx context.Context, path string, size, mtime int64) (string, bool, error)
	SaveHash(ctx context.Context, path string, size, mtime int64, digest string) error
}

// Options configures one run.
type Options struct {
	// Delete removes duplicates instead of just reporting them.
	Delete bool

	// BlockSize is the hashing read size. Defaults to 2 MiB.
	BlockSize int
}

// Report summarizes one run.
type Report struct {
	FilesSeen   int
	FilesHashed int
	Groups      [][]string // each group: original first, then duplicates
	WastedBytes int64
	Deleted     int
	Elapsed     time.Duration
}

// =============================================================================
// Finder
// =============================================================================

// Finder locates duplicate files under one root.
type Finder struct {
	cache   HashCache // nil disables caching
	opts    Options
	logger  *slog.Logger
	out     io.Writer
	printer *progress.Printer
}

// New creates a finder writing progress to out. cache may be nil.
func New(cache HashCache, opts Options, logger *slog.Logger, out io.Writer) *Finder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaultBlockSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		cache:   cache,
		opts:    opts,
		logger:  logger.With("component", "dupes"),
		out:     out,
		printer: progress.NewPrinter(out, 20),
	}
}

// Run scans root and reports (or deletes) duplicates.
func (f *Finder) Run(ctx context.Context, root string) (*Report, error) {
	start := time.Now()

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("invalid directory: %s", root)
	}

	fmt.Fprintf(f.out, "Scanning: %s\n", root)

	// Pass 1: group by file size. Only size collisions can be duplicates.
	sizeGroups, seen, err := f.groupBySize(root)
	if err != nil {
		return nil, err
	}

	var candidates [][]string
	total := 0
	for _, group := range sizeGroups {
		if len(group) > 1 {
			candidates = append(candidates, group)
			total += len(group)
		}
	}

	report := &Report{FilesSeen: seen}
	if total == 0 {
		fmt.Fprintln(f.out, "No duplicates found.")
		report.Elapsed = time.Since(start)
		return report, nil
	}

	// Pass 2: hash candidates only.
	hashGroups := map[string][]string{}
	var order []string
	processed := 0
	for _, group := range candidates {
		for _, path := range group {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			processed++
			f.updateProgress(path, processed, total, time.Since(start))

			digest, err := f.hashFile(ctx, path)
			if err != nil {
				f.logger.Error("read failed", "path", path, "error", err)
				continue
			}
			if _, ok := hashGroups[digest]; !ok {
				order = append(order, digest)
			}
			hashGroups[digest] = append(hashGroups[digest], path)
			report.FilesHashed++
		}
	}
	fmt.Fprintln(f.out)

	// Handle duplicates: first seen is the original.
	for _, digest := range order {
		files := hashGroups[digest]
		if len(files) < 2 {
			continue
		}
		report.Groups = append(report.Groups, files)
		for _, dup := range files[1:] {
			info, err := os.Stat(dup)
			if err != nil {
				f.logger.Error("stat failed", "path", dup, "error", err)
				continue
			}
			report.WastedBytes += info.Size()

			if f.opts.Delete {
				if err := os.Remove(dup); err != nil {
					f.logger.Error("delete failed", "path", dup, "error", err)
					continue
				}
				report.Deleted++
				fmt.Fprintf(f.out, "DELETED: %s (%s)\n", dup, format.Bytes(info.Size()))
			} else {
				fmt.Fprintf(f.out, "DUPLICATE: %s (%s)\n", dup, format.Bytes(info.Size()))
			}
		}
	}

	report.Elapsed = time.Since(start)
	f.printSummary(report)
	return report, nil
}

// groupBySize walks the tree and maps size → paths, in walk order. Symlinks
// are never followed; unreadable entries are skipped.
func (f *Finder) groupBySize(root string) (map[int64][]string, int, error) {
	groups := map[int64][]string{}
	seen := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		seen++
		groups[info.Size()] = append(groups[info.Size()], path)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return groups, seen, nil
}

// hashFile returns a file's SHA-256 hex digest, consulting the cache first.
func (f *Finder) hashFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	size := info.Size()
	mtime := info.ModTime().Unix()

	if f.cache != nil {
		if digest, ok, err := f.cache.CachedHash(ctx, path, size, mtime); err == nil && ok {
			return digest, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	buf := make([]byte, f.opts.BlockSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", err
	}
	digest := hex.EncodeToString(h.Sum(nil))

	if f.cache != nil {
		if err := f.cache.SaveHash(ctx, path, size, mtime, digest); err != nil {
			f.logger.Warn("hash cache write failed", "path", path, "error", err)
		}
	}
	return digest, nil
}

func (f *Finder) updateProgress(path string, done, total int, elapsed time.Duration) {
	eta := progress.ETA(done, total, elapsed)
	f.printer.Line(fmt.Sprintf("%s (%d/%d) ETA %s  %s",
		progress.Bar(float64(done), float64(total), 20),
		done, total, format.Duration(eta), filepath.Base(path)))
}

func (f *Finder) printSummary(r *Report) {
	mode := "DRY RUN"
	if f.opts.Delete {
		mode = "DELETE"
	}
	fmt.Fprintf(f.out, "\nSummary\n")
	fmt.Fprintf(f.out, "  Files Hashed : %d\n", r.FilesHashed)
	fmt.Fprintf(f.out, "  Wasted Space : %s\n", format.Bytes(r.WastedBytes))
	fmt.Fprintf(f.out, "  Mode         : %s\n", mode)
	fmt.Fprintf(f.out, "  Elapsed      : %s\n", format.Duration(r.Elapsed))
}
