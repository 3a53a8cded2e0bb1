package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func cleanupContainer(t *testing.T, cli Client, containerID string) {
	t.Helper()
	cli.RemoveContainer(context.Background(), containerID, RemoveOptions{Force: true, RemoveVolumes: true})
}

// Test container name prefix to identify test containers
const testPrefix = "mediaforge-test-"

// =============================================================================
// Connection Tests
// =============================================================================

func TestNewDockerClient_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NotNil(t, cli)
}

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

// =============================================================================
// Image Tests
// =============================================================================

func TestImageExists_UnknownImage(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	exists, err := cli.ImageExists(context.Background(), "mediaforge/does-not-exist:never")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnsureImage_PullsOnce(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.EnsureImage(ctx, "alpine:latest"))

	exists, err := cli.ImageExists(ctx, "alpine:latest")
	require.NoError(t, err)
	assert.True(t, exists)

	// Second call is a no-op.
	assert.NoError(t, cli.EnsureImage(ctx, "alpine:latest"))
}

// =============================================================================
// Container Lifecycle Tests
// =============================================================================

func TestExec_ReportsExitCode(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.EnsureImage(ctx, "alpine:latest"))

	id, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + "exec",
		Image:   "alpine:latest",
		Command: []string{"sleep", "60"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)
	require.NoError(t, cli.StartContainer(ctx, id))

	res, err := cli.Exec(ctx, id, []string{"sh", "-c", "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hello")

	res, err = cli.Exec(ctx, id, []string{"sh", "-c", "echo oops >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "oops")
}

func TestCopyToAndFrom_Roundtrip(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.EnsureImage(ctx, "alpine:latest"))

	id, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + "copy",
		Image:   "alpine:latest",
		Command: []string{"sleep", "60"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)
	require.NoError(t, cli.StartContainer(ctx, id))

	// Tar one file and copy it in.
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("copied payload")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "payload.txt", Mode: 0644, Size: int64(len(content))}))
	_, err = tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, cli.CopyTo(ctx, id, "/tmp", &buf))

	// Copy it back out and find it in the tar stream.
	reader, err := cli.CopyFrom(ctx, id, "/tmp/payload.txt")
	require.NoError(t, err)
	defer reader.Close()

	tr := tar.NewReader(reader)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "payload.txt", hdr.Name)

	data, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestCopyFrom_MissingPath(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.EnsureImage(ctx, "alpine:latest"))

	id, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + "missing",
		Image:   "alpine:latest",
		Command: []string{"sleep", "60"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, id)

	_, err = cli.CopyFrom(ctx, id, "/no/such/path")
	assert.ErrorIs(t, err, ErrPathNotFound)
}
