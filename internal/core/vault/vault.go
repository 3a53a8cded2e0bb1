// Package vault implements a password-protected encrypted file container.
//
// A vault is a single JSON file holding a salt, a password verification
// ciphertext, and a map of encrypted entries. Entry payloads are encrypted
// with AES-256-GCM under a PBKDF2-derived key; binary fields are base64 in
// the JSON envelope. Saves are atomic (temp file + rename).
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/mediaforge/internal/core/crypto"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrBadPassword is returned when the password verification fails on open.
	ErrBadPassword = errors.New("authentication failed: incorrect password")

	// ErrNotFound is returned when an entry or prefix matches nothing.
	ErrNotFound = errors.New("no matching entries")

	// ErrNothingStaged is returned by Commit when the staging area is empty.
	ErrNothingStaged = errors.New("nothing staged")
)

// verifyPlaintext is the fixed payload of the password verification entry.
var verifyPlaintext = []byte("verify")

// =============================================================================
// Envelope
// =============================================================================

// box holds one encrypted payload. The ciphertext embeds its nonce, in the
// crypto package's format.
type box struct {
	Data []byte `json:"data"`
}

// meta holds per-entry metadata kept outside the ciphertext.
type meta struct {
	Size int64 `json:"size"`
}

// envelope is the on-disk vault format.
type envelope struct {
	Version    int             `json:"version"`
	Salt       []byte          `json:"salt"`
	Iterations int             `json:"iterations"`
	Verify     box             `json:"verify"`
	Files      map[string]box  `json:"files"`
	Meta       map[string]meta `json:"meta"`
}

// =============================================================================
// Vault
// =============================================================================

// Entry describes one stored file.
type Entry struct {
	Name string
	Size int64
}

// Vault is an open, authenticated vault.
type Vault struct {
	path   string
	key    []byte
	env    *envelope
	staged []string
}

// Create initializes a new vault file with the given password. The file must
// not already exist.
func Create(path, password string, iterations int) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("vault file already exists: %s", path)
	}
	if iterations <= 0 {
		iterations = crypto.DefaultIterations
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	key := crypto.DeriveKey(password, salt, iterations)

	verify, err := crypto.Encrypt(verifyPlaintext, key)
	if err != nil {
		return fmt.Errorf("seal verification tag: %w", err)
	}

	env := &envelope{
		Version:    1,
		Salt:       salt,
		Iterations: iterations,
		Verify:     box{Data: verify},
		Files:      map[string]box{},
		Meta:       map[string]meta{},
	}
	return save(path, env)
}

// Open reads a vault file and verifies the password against the verification
// ciphertext. A wrong password yields ErrBadPassword with no partial access.
func Open(path, password string) (*Vault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	if env.Files == nil {
		env.Files = map[string]box{}
	}
	if env.Meta == nil {
		env.Meta = map[string]meta{}
	}

	key := crypto.DeriveKey(password, env.Salt, env.Iterations)
	if _, err := crypto.Decrypt(env.Verify.Data, key); err != nil {
		return nil, ErrBadPassword
	}

	return &Vault{path: path, key: key, env: &env}, nil
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.path
}

// List returns stored entries sorted by name.
func (v *Vault) List() []Entry {
	entries := make([]Entry, 0, len(v.env.Files))
	for name := range v.env.Files {
		entries = append(entries, Entry{Name: name, Size: v.env.Meta[name].Size})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Staged returns the paths currently staged for the next Commit.
func (v *Vault) Staged() []string {
	return append([]string(nil), v.staged...)
}

// Stage queues a file or directory for encryption on the next Commit.
func (v *Vault) Stage(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path not found: %s", path)
	}
	v.staged = append(v.staged, path)
	return nil
}

// Unstage drops staged paths whose base name matches.
func (v *Vault) Unstage(name string) {
	kept := v.staged[:0]
	for _, p := range v.staged {
		if filepath.Base(p) != name {
			kept = append(kept, p)
		}
	}
	v.staged = kept
}

// Commit encrypts every staged path into the vault and saves it. Directories
// are stored file-by-file under paths relative to the directory's parent, so
// "photos/a.jpg" stays addressable by its folder prefix.
func (v *Vault) Commit() error {
	if len(v.staged) == 0 {
		return ErrNothingStaged
	}

	for _, path := range v.staged {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat staged path: %w", err)
		}

		if info.IsDir() {
			parent := filepath.Dir(path)
			err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				rel, err := filepath.Rel(parent, p)
				if err != nil {
					return err
				}
				return v.store(p, filepath.ToSlash(rel))
			})
			if err != nil {
				return fmt.Errorf("walk staged dir %s: %w", path, err)
			}
		} else {
			if err := v.store(path, filepath.Base(path)); err != nil {
				return err
			}
		}
	}

	if err := save(v.path, v.env); err != nil {
		return err
	}
	v.staged = nil
	return nil
}

// store encrypts one file on disk into the vault under the given entry name.
func (v *Vault) store(diskPath, name string) error {
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", diskPath, err)
	}
	ciphertext, err := crypto.Encrypt(data, v.key)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", name, err)
	}
	v.env.Files[name] = box{Data: ciphertext}
	v.env.Meta[name] = meta{Size: int64(len(data))}
	return nil
}

// match returns the entry names selected by a pattern: an exact entry name,
// or everything under "<pattern>/".
func (v *Vault) match(pattern string) []string {
	var names []string
	prefix := pattern + "/"
	for name := range v.env.Files {
		if name == pattern || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Extract decrypts entries matching the pattern into destDir, recreating
// relative paths. Returns the extracted entry names.
func (v *Vault) Extract(pattern, destDir string) ([]string, error) {
	names := v.match(pattern)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pattern)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	for _, name := range names {
		plaintext, err := crypto.Decrypt(v.env.Files[name].Data, v.key)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", name, err)
		}
		target := filepath.Join(destDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, plaintext, 0600); err != nil {
			return nil, fmt.Errorf("write %s: %w", target, err)
		}
	}
	return names, nil
}

// Delete removes entries matching the pattern (and any staged path with the
// same base name) and saves the vault. Returns the removed entry names.
func (v *Vault) Delete(pattern string) ([]string, error) {
	v.Unstage(pattern)

	names := v.match(pattern)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pattern)
	}

	for _, name := range names {
		delete(v.env.Files, name)
		delete(v.env.Meta, name)
	}
	if err := save(v.path, v.env); err != nil {
		return nil, err
	}
	return names, nil
}

// save writes the envelope atomically: marshal to a sibling temp file, then
// rename over the vault path.
func save(path string, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace vault: %w", err)
	}
	return nil
}
