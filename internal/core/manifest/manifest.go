// Package manifest defines the build manifest for the pack pipeline: the
// dependency lists, entry point, and artifact/output locations a build needs.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEntrypointMissing is returned when the entry-point file does not exist.
	ErrEntrypointMissing = errors.New("entry-point file not found")

	// ErrOutputMissing is returned when the output directory does not exist.
	ErrOutputMissing = errors.New("output directory not found")

	// ErrOutputNotWritable is returned when the output directory cannot be written.
	ErrOutputNotWritable = errors.New("output directory not writable")
)

// =============================================================================
// Manifest
// =============================================================================

// Manifest describes one build: which image to provision, which dependencies
// to install, which entry-point script to bundle, and where the resulting
// artifact lands on the host.
type Manifest struct {
	// Name is the artifact name. Defaults to the entry-point base name.
	Name string `yaml:"name"`

	// Image is the build image, e.g. "python:3.12-slim".
	Image string `yaml:"image"`

	// Workdir is the working directory inside the build container.
	Workdir string `yaml:"workdir"`

	// OSInstaller selects the OS package manager: "apt" or "apk".
	OSInstaller string `yaml:"os_installer"`

	// OSPackages are installed first (codecs, media tooling).
	OSPackages []string `yaml:"os_packages"`

	// Packages are interpreter-level packages installed with pip.
	Packages []string `yaml:"packages"`

	// Commands are optional extra steps run after installs, before packaging.
	Commands []string `yaml:"commands"`

	// Entrypoint is the script to bundle, relative to the context directory.
	Entrypoint string `yaml:"entrypoint"`

	// PackageCommand overrides the packaging invocation. The default bundles
	// the entry point with "pyinstaller --onefile".
	PackageCommand string `yaml:"package_command"`

	// Context is the host directory copied into the container. Defaults to
	// the directory containing the manifest file.
	Context string `yaml:"context"`

	// Artifact is the produced executable's path inside the container.
	// Defaults to "dist/<name>".
	Artifact string `yaml:"artifact"`

	// Output is the host directory the artifact is copied to. It must exist
	// before the build starts.
	Output string `yaml:"output"`
}

// Load reads and parses a manifest file, resolving relative paths against the
// manifest's directory and applying defaults.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve manifest dir: %w", err)
	}
	m.applyDefaults(base)

	return &m, nil
}

func (m *Manifest) applyDefaults(base string) {
	if m.Name == "" && m.Entrypoint != "" {
		name := filepath.Base(m.Entrypoint)
		m.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if m.Workdir == "" {
		m.Workdir = "/build"
	}
	if m.OSInstaller == "" {
		m.OSInstaller = "apt"
	}
	if m.Context == "" {
		m.Context = base
	} else if !filepath.IsAbs(m.Context) {
		m.Context = filepath.Join(base, m.Context)
	}
	if m.Artifact == "" && m.Name != "" {
		m.Artifact = "dist/" + m.Name
	}
	if m.Output == "" {
		m.Output = base
	} else if !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(base, m.Output)
	}
}

// Validate checks the manifest invariants that must hold before any container
// work starts: the entry point exists and the output directory is a writable
// directory. Validation failures abort the build up front.
func (m *Manifest) Validate() error {
	if m.Image == "" {
		return fmt.Errorf("manifest: image is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("manifest: entrypoint is required")
	}
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}

	entry := m.EntrypointHostPath()
	if info, err := os.Stat(entry); err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrEntrypointMissing, entry)
	}

	info, err := os.Stat(m.Output)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputMissing, m.Output)
	}
	if err := checkWritable(m.Output); err != nil {
		return fmt.Errorf("%w: %s", ErrOutputNotWritable, m.Output)
	}

	return nil
}

// EntrypointHostPath returns the entry point's absolute path on the host.
func (m *Manifest) EntrypointHostPath() string {
	if filepath.IsAbs(m.Entrypoint) {
		return m.Entrypoint
	}
	return filepath.Join(m.Context, m.Entrypoint)
}

// ArtifactPath returns the artifact's absolute path inside the container.
func (m *Manifest) ArtifactPath() string {
	if strings.HasPrefix(m.Artifact, "/") {
		return m.Artifact
	}
	return m.Workdir + "/" + m.Artifact
}

// OutputPath returns the host path the artifact is copied to.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Output, m.Name)
}

// checkWritable probes a directory for writability by creating and removing
// a scratch file. Permission bits alone are not reliable across mounts.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".mediaforge-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
