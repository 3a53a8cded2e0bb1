// Package docker provides a Docker client for build-container lifecycle
// management: create, exec build steps, copy files in and out, remove.
package docker

import (
	"context"
	"io"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a build container.
type ContainerSpec struct {
	Name       string
	Image      string
	Command    []string
	Entrypoint []string
	Env        map[string]string
	Labels     map[string]string
	WorkingDir string
}

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ExecResult is the outcome of running one command in a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// =============================================================================
// Client Interface
// =============================================================================

// Client is the container operations surface the build pipeline needs.
type Client interface {
	// Image operations
	ImageExists(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	EnsureImage(ctx context.Context, image string) error

	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	Exec(ctx context.Context, containerID string, cmd []string) (*ExecResult, error)
	CopyTo(ctx context.Context, containerID, destPath string, tarball io.Reader) error
	CopyFrom(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
