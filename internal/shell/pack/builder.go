// Package pack turns a build manifest into a host-side executable: it
// provisions a throwaway container, installs the manifest's dependencies,
// bundles the entry point, and copies the artifact back out.
package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/mediaforge/internal/core/manifest"
	"github.com/artpar/mediaforge/internal/shell/docker"
	"github.com/artpar/mediaforge/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrStepFailed is returned when a build step exits non-zero.
	ErrStepFailed = errors.New("build step failed")

	// ErrArtifactMissing is returned when the packaging step succeeded but
	// the artifact is not at its declared path.
	ErrArtifactMissing = errors.New("artifact not found in container")
)

// StepError carries the failing step's identity and output tail.
type StepError struct {
	Step     string
	ExitCode int
	Output   string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q exited with code %d: %s", e.Step, e.ExitCode, e.Output)
}

func (e *StepError) Unwrap() error {
	return ErrStepFailed
}

// =============================================================================
// Builder
// =============================================================================

// Result summarizes a completed build.
type Result struct {
	BuildID      string
	ArtifactPath string
	Steps        int
	Elapsed      time.Duration
}

// Builder runs build manifests against a container runtime. The store is
// optional; when present each build is recorded in history.
type Builder struct {
	docker docker.Client
	store  *store.Store
	logger *slog.Logger
}

// NewBuilder creates a builder. st may be nil to skip build history.
func NewBuilder(cli docker.Client, st *store.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		docker: cli,
		store:  st,
		logger: logger.With("component", "builder"),
	}
}

// Build runs one manifest end to end. Validation failures abort before any
// container is created. The build container is always removed, succeed or
// fail.
func (b *Builder) Build(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	start := time.Now()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	refID := b.recordStart(ctx, m)
	res, err := b.build(ctx, m, refID)
	b.recordFinish(ctx, refID, err)
	if err != nil {
		return nil, err
	}

	res.BuildID = refID
	res.Elapsed = time.Since(start)
	return res, nil
}

func (b *Builder) build(ctx context.Context, m *manifest.Manifest, refID string) (*Result, error) {
	log := b.logger.With("build", refID, "name", m.Name)

	log.Info("ensuring image", "image", m.Image)
	if err := b.docker.EnsureImage(ctx, m.Image); err != nil {
		return nil, err
	}

	spec := docker.ContainerSpec{
		Name:       "mediaforge-build-" + uuid.New().String()[:8],
		Image:      m.Image,
		Command:    []string{"sleep", "infinity"},
		WorkingDir: m.Workdir,
		Labels:     map[string]string{"io.mediaforge.build": refID},
	}
	containerID, err := b.docker.CreateContainer(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Removal uses its own context so cleanup still runs after cancel.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.docker.RemoveContainer(rmCtx, containerID, docker.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			log.Warn("failed to remove build container", "container", containerID, "error", err)
		}
	}()

	if err := b.docker.StartContainer(ctx, containerID); err != nil {
		return nil, err
	}
	log.Debug("build container started", "container", spec.Name)

	srcTar, err := tarDirectory(m.Context)
	if err != nil {
		return nil, err
	}
	if err := b.docker.CopyTo(ctx, containerID, m.Workdir, srcTar); err != nil {
		return nil, err
	}

	steps := Plan(m)
	for i, step := range steps {
		log.Info("running step", "step", step.Name, "index", i+1, "total", len(steps))
		res, err := b.docker.Exec(ctx, containerID, step.Cmd())
		if err != nil {
			return nil, err
		}
		if res.Stdout != "" {
			log.Debug("step output", "step", step.Name, "stdout", tail(res.Stdout, 20))
		}
		if res.ExitCode != 0 {
			out := res.Stderr
			if out == "" {
				out = res.Stdout
			}
			return nil, &StepError{Step: step.Name, ExitCode: res.ExitCode, Output: tail(out, 10)}
		}
	}

	reader, err := b.docker.CopyFrom(ctx, containerID, m.ArtifactPath())
	if err != nil {
		if errors.Is(err, docker.ErrPathNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, m.ArtifactPath())
		}
		return nil, err
	}
	defer reader.Close()

	dest := m.OutputPath()
	if err := extractFile(reader, dest); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", dest, err)
	}
	log.Info("artifact written", "path", dest)

	return &Result{ArtifactPath: dest, Steps: len(steps)}, nil
}

func (b *Builder) recordStart(ctx context.Context, m *manifest.Manifest) string {
	if b.store == nil {
		return "bld-" + uuid.New().String()[:8]
	}
	refID, err := b.store.CreateBuild(ctx, m.Name, m.Image, m.Entrypoint, m.ArtifactPath())
	if err != nil {
		b.logger.Warn("failed to record build start", "error", err)
		return "bld-" + uuid.New().String()[:8]
	}
	return refID
}

func (b *Builder) recordFinish(ctx context.Context, refID string, buildErr error) {
	if b.store == nil {
		return
	}
	status, msg := store.BuildStatusSucceeded, ""
	if buildErr != nil {
		status, msg = store.BuildStatusFailed, buildErr.Error()
	}
	if err := b.store.FinishBuild(ctx, refID, status, msg); err != nil {
		b.logger.Warn("failed to record build finish", "build", refID, "error", err)
	}
}

// tail returns the last n lines of s, trimmed.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
