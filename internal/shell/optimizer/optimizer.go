// Package optimizer re-encodes videos in a folder tree, keeping the smaller
// result and tagging processed files so reruns skip them.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/artpar/mediaforge/internal/core/format"
	"github.com/artpar/mediaforge/internal/core/progress"
	"github.com/artpar/mediaforge/internal/core/scan"
	"github.com/artpar/mediaforge/internal/shell/ffmpeg"
)

// nameWidth is the fixed width file names are padded to on progress lines.
const nameWidth = 35

// probeTimeout bounds each metadata probe during the scan pass.
const probeTimeout = 5 * time.Second

// =============================================================================
// Interfaces
// =============================================================================

// Prober reads media metadata. Implemented by ffmpeg.Runner.
type Prober interface {
	ProbeTag(ctx context.Context, path, key string) (string, error)
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Encoder re-encodes media. Implemented by ffmpeg.Runner.
type Encoder interface {
	Transcode(ctx context.Context, spec ffmpeg.TranscodeSpec, onProgress func(time.Duration)) error
	CopyWithTag(ctx context.Context, input, output, key, value string) error
}

// =============================================================================
// Options / Summary
// =============================================================================

// Options configures codec parameters and scan behavior.
type Options struct {
	VideoCodec   string
	Preset       string
	CRF          string
	AudioCodec   string
	AudioBitrate string

	// TagKey/TagValue mark already-processed files in container metadata.
	TagKey   string
	TagValue string

	// Extensions limits which files are considered. Defaults to the known
	// video extensions.
	Extensions []string

	// Workers bounds the concurrent scan pass. Defaults to NumCPU.
	Workers int

	// SniffContent drops candidates whose detected content type is not
	// video, regardless of extension.
	SniffContent bool
}

func (o *Options) applyDefaults() {
	if o.VideoCodec == "" {
		o.VideoCodec = "libx264"
	}
	if o.Preset == "" {
		o.Preset = "medium"
	}
	if o.CRF == "" {
		o.CRF = "28"
	}
	if o.AudioCodec == "" {
		o.AudioCodec = "aac"
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = "128k"
	}
	if o.TagKey == "" {
		o.TagKey = "comment"
	}
	if o.TagValue == "" {
		o.TagValue = "mediaforge_v2"
	}
	if len(o.Extensions) == 0 {
		o.Extensions = scan.DefaultExtensions
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
}

// Summary reports what a run did.
type Summary struct {
	Scanned    int
	Candidates int
	Converted  int
	Skipped    int
	Failed     int
	SavedBytes int64
	Elapsed    time.Duration
}

// =============================================================================
// Optimizer
// =============================================================================

// Optimizer runs the scan and convert passes over one folder tree.
type Optimizer struct {
	prober  Prober
	encoder Encoder
	opts    Options
	logger  *slog.Logger
	out     io.Writer
	printer *progress.Printer

	mu sync.Mutex // guards printer during the concurrent scan pass
}

// New creates an optimizer writing progress to out.
func New(prober Prober, encoder Encoder, opts Options, logger *slog.Logger, out io.Writer) *Optimizer {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		prober:  prober,
		encoder: encoder,
		opts:    opts,
		logger:  logger.With("component", "optimizer"),
		out:     out,
		printer: progress.NewPrinter(out, 20),
	}
}

// Run scans dir for videos needing optimization and converts them one at a
// time. The scan pass probes files concurrently; conversion is sequential
// because ffmpeg already saturates the machine.
func (o *Optimizer) Run(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	videos, err := scan.Videos(dir, scan.ExtensionSet(o.opts.Extensions))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	summary.Scanned = len(videos)

	if len(videos) == 0 {
		fmt.Fprintf(o.out, "No videos found in %s\n", dir)
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	fmt.Fprintf(o.out, "Scanning %d files\n", len(videos))
	toProcess := o.scanPass(ctx, videos)
	summary.Candidates = len(toProcess)
	o.printer.Finish(fmt.Sprintf("Found %d videos to optimize", len(toProcess)))

	for i, video := range toProcess {
		if ctx.Err() != nil {
			summary.Elapsed = time.Since(start)
			return summary, ctx.Err()
		}
		o.convert(ctx, video, i+1, len(toProcess), summary)
	}

	summary.Elapsed = time.Since(start)
	fmt.Fprintf(o.out, "\nSummary\n")
	fmt.Fprintf(o.out, "  Saved   : %s\n", format.Bytes(summary.SavedBytes))
	fmt.Fprintf(o.out, "  Skipped : %d\n", summary.Skipped)
	fmt.Fprintf(o.out, "  Failed  : %d\n", summary.Failed)
	fmt.Fprintf(o.out, "  Elapsed : %s\n", format.Duration(summary.Elapsed))
	return summary, nil
}

// scanPass probes candidates concurrently and returns, in input order, the
// files that still need processing.
func (o *Optimizer) scanPass(ctx context.Context, videos []string) []string {
	needed := make([]bool, len(videos))
	jobs := make(chan int)

	var done int
	var wg sync.WaitGroup
	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				needed[i] = o.needsWork(ctx, videos[i])

				o.mu.Lock()
				done++
				o.printer.Update("Scanning", float64(done), float64(len(videos)))
				o.mu.Unlock()
			}
		}()
	}

	for i := range videos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var toProcess []string
	for i, ok := range needed {
		if ok {
			toProcess = append(toProcess, videos[i])
		}
	}
	return toProcess
}

// needsWork reports whether a file should be re-encoded. Probe failures count
// as needing work; the convert pass surfaces the real error.
func (o *Optimizer) needsWork(ctx context.Context, path string) bool {
	if o.opts.SniffContent {
		if mtype, err := mimetype.DetectFile(path); err == nil {
			if !strings.HasPrefix(mtype.String(), "video/") && mtype.String() != "application/ogg" {
				o.logger.Debug("skipping non-video content", "path", path, "type", mtype.String())
				return false
			}
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	tag, err := o.prober.ProbeTag(probeCtx, path, o.opts.TagKey)
	if err != nil {
		return true
	}
	return tag != o.opts.TagValue
}

// convert re-encodes one file to a short-named temp in the same directory and
// keeps whichever of the two is smaller. Long source names stay untouched;
// the temp name avoids "file name too long" failures on deep trees.
func (o *Optimizer) convert(ctx context.Context, path string, index, total int, summary *Summary) {
	prefix := fmt.Sprintf("[%d/%d] %s", index, total, format.TruncateName(filepath.Base(path), nameWidth))

	duration, err := o.prober.ProbeDuration(ctx, path)
	if err != nil {
		o.printer.Finish(prefix + " | FAIL (no duration)")
		o.logger.Warn("duration probe failed", "path", path, "error", err)
		summary.Failed++
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		o.printer.Finish(prefix + " | FAIL (stat)")
		summary.Failed++
		return
	}
	originalSize := info.Size()

	temp := filepath.Join(filepath.Dir(path), fmt.Sprintf("temp_proc_%d.mp4", index))
	defer os.Remove(temp)

	spec := ffmpeg.TranscodeSpec{
		Input:        path,
		Output:       temp,
		VideoCodec:   o.opts.VideoCodec,
		Preset:       o.opts.Preset,
		CRF:          o.opts.CRF,
		AudioCodec:   o.opts.AudioCodec,
		AudioBitrate: o.opts.AudioBitrate,
		TagKey:       o.opts.TagKey,
		TagValue:     o.opts.TagValue,
	}
	err = o.encoder.Transcode(ctx, spec, func(t time.Duration) {
		o.printer.Update(prefix, t.Seconds(), duration.Seconds())
	})
	if err != nil {
		o.printer.Finish(prefix + " | FAIL")
		o.logger.Warn("transcode failed", "path", path, "error", err)
		summary.Failed++
		return
	}

	newInfo, err := os.Stat(temp)
	if err != nil {
		o.printer.Finish(prefix + " | FAIL (no output)")
		summary.Failed++
		return
	}
	newSize := newInfo.Size()

	if newSize < originalSize {
		if err := replace(path, temp); err != nil {
			o.printer.Finish(prefix + " | FAIL (swap)")
			o.logger.Warn("swap failed", "path", path, "error", err)
			summary.Failed++
			return
		}
		summary.Converted++
		summary.SavedBytes += originalSize - newSize
		o.printer.Finish(fmt.Sprintf("%s | DONE (%s -> %s)", prefix, format.Bytes(originalSize), format.Bytes(newSize)))
		return
	}

	// Re-encode did not shrink the file. Keep the original and only rewrite
	// its tag so the next scan skips it.
	os.Remove(temp)
	if err := o.tagOnly(ctx, path); err != nil {
		o.logger.Warn("tag rewrite failed", "path", path, "error", err)
	}
	summary.Skipped++
	o.printer.Finish(fmt.Sprintf("%s | SKIP (%s -> %s)", prefix, format.Bytes(originalSize), format.Bytes(newSize)))
}

// replace swaps the converted temp file in under the original name, keeping a
// backup until the rename chain completes.
func replace(original, temp string) error {
	backup := original + ".bak"
	if err := os.Rename(original, backup); err != nil {
		return err
	}
	if err := os.Rename(temp, original); err != nil {
		// Put the original back so the user never loses the source.
		if restoreErr := os.Rename(backup, original); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	return os.Remove(backup)
}

// tagOnly rewrites just the metadata tag via stream copy.
func (o *Optimizer) tagOnly(ctx context.Context, path string) error {
	temp := path + ".meta.mp4"
	if err := o.encoder.CopyWithTag(ctx, path, temp, o.opts.TagKey, o.opts.TagValue); err != nil {
		os.Remove(temp)
		return err
	}
	return os.Rename(temp, path)
}
