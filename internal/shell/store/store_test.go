package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// Build Tests
// =============================================================================

func TestCreateAndGetBuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	refID, err := s.CreateBuild(ctx, "optimise-video", "python:3.12-slim", "src/optimise_video.py", "dist/optimise-video")
	require.NoError(t, err)
	assert.Contains(t, refID, "bld-")

	b, err := s.GetBuild(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, "optimise-video", b.Name)
	assert.Equal(t, BuildStatusRunning, b.Status)
	assert.NotEmpty(t, b.StartedAt)
	assert.Empty(t, b.FinishedAt)
}

func TestFinishBuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	refID, err := s.CreateBuild(ctx, "tool", "alpine", "main.py", "dist/tool")
	require.NoError(t, err)

	require.NoError(t, s.FinishBuild(ctx, refID, BuildStatusFailed, "step 2 exited 1"))

	b, err := s.GetBuild(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, BuildStatusFailed, b.Status)
	assert.Equal(t, "step 2 exited 1", b.Error)
	assert.NotEmpty(t, b.FinishedAt)
}

func TestFinishBuild_Unknown(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishBuild(context.Background(), "bld-missing", BuildStatusSucceeded, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBuild_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBuild(context.Background(), "bld-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBuilds_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateBuild(ctx, "one", "alpine", "a.py", "")
	require.NoError(t, err)
	second, err := s.CreateBuild(ctx, "two", "alpine", "b.py", "")
	require.NoError(t, err)

	builds, err := s.ListBuilds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, second, builds[0].ReferenceID)
	assert.Equal(t, first, builds[1].ReferenceID)
}

// =============================================================================
// Hash Cache Tests
// =============================================================================

func TestHashCache_MissThenHit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.CachedHash(ctx, "/videos/a.mp4", 100, 111)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveHash(ctx, "/videos/a.mp4", 100, 111, "deadbeef"))

	digest, ok, err := s.CachedHash(ctx, "/videos/a.mp4", 100, 111)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)
}

func TestHashCache_StaleMetadataMisses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHash(ctx, "/videos/a.mp4", 100, 111, "deadbeef"))

	// Changed size or mtime invalidates the cache entry.
	_, ok, err := s.CachedHash(ctx, "/videos/a.mp4", 200, 111)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.CachedHash(ctx, "/videos/a.mp4", 100, 222)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCache_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHash(ctx, "/videos/a.mp4", 100, 111, "old"))
	require.NoError(t, s.SaveHash(ctx, "/videos/a.mp4", 150, 222, "new"))

	digest, ok, err := s.CachedHash(ctx, "/videos/a.mp4", 150, 222)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", digest)
}

// =============================================================================
// Scan Run Tests
// =============================================================================

func TestRecordScanRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	refID, err := s.RecordScanRun(ctx, ScanRun{
		Root:        "/videos",
		FilesHashed: 42,
		Duplicates:  3,
		WastedBytes: 1 << 20,
		Deleted:     1,
	})
	require.NoError(t, err)
	assert.Contains(t, refID, "scn-")

	runs, err := s.ListScanRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(42), runs[0].FilesHashed)
	assert.Equal(t, int64(1<<20), runs[0].WastedBytes)
	assert.NotEmpty(t, runs[0].StartedAt)
}
