package optimizer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/mediaforge/internal/shell/ffmpeg"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeProber struct {
	tags      map[string]string // path → tag value
	durations map[string]time.Duration
	probeErr  error
}

func (f *fakeProber) ProbeTag(_ context.Context, path, _ string) (string, error) {
	if f.probeErr != nil {
		return "", f.probeErr
	}
	return f.tags[path], nil
}

func (f *fakeProber) ProbeDuration(_ context.Context, path string) (time.Duration, error) {
	d, ok := f.durations[path]
	if !ok || d == 0 {
		return 0, ffmpeg.ErrNoDuration
	}
	return d, nil
}

type fakeEncoder struct {
	outputSize   int
	transcodeErr error
	tagged       []string
}

func (f *fakeEncoder) Transcode(_ context.Context, spec ffmpeg.TranscodeSpec, onProgress func(time.Duration)) error {
	if f.transcodeErr != nil {
		return f.transcodeErr
	}
	if onProgress != nil {
		onProgress(time.Second)
	}
	return os.WriteFile(spec.Output, bytes.Repeat([]byte("e"), f.outputSize), 0644)
}

func (f *fakeEncoder) CopyWithTag(_ context.Context, input, output, _, _ string) error {
	f.tagged = append(f.tagged, input)
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

func writeVideo(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("v"), size), 0644))
}

func newTestOptimizer(prober Prober, encoder Encoder) (*Optimizer, *bytes.Buffer) {
	var out bytes.Buffer
	o := New(prober, encoder, Options{Workers: 2}, nil, &out)
	return o, &out
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_EmptyFolder(t *testing.T) {
	o, out := newTestOptimizer(&fakeProber{}, &fakeEncoder{})

	summary, err := o.Run(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Scanned)
	assert.Contains(t, out.String(), "No videos found")
}

func TestRun_TaggedFilesAreSkippedInScan(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, "fresh.mp4")
	done := filepath.Join(dir, "done.mp4")
	writeVideo(t, fresh, 100)
	writeVideo(t, done, 100)

	prober := &fakeProber{
		tags:      map[string]string{done: "mediaforge_v2"},
		durations: map[string]time.Duration{fresh: 10 * time.Second},
	}
	encoder := &fakeEncoder{outputSize: 40}
	o, _ := newTestOptimizer(prober, encoder)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Converted)
}

func TestRun_SmallerOutputReplacesOriginal(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	writeVideo(t, video, 100)

	prober := &fakeProber{durations: map[string]time.Duration{video: 10 * time.Second}}
	encoder := &fakeEncoder{outputSize: 40}
	o, out := newTestOptimizer(prober, encoder)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Converted)
	assert.Equal(t, int64(60), summary.SavedBytes)
	assert.Contains(t, out.String(), "DONE")

	// The original name now holds the encoded (smaller) content.
	data, err := os.ReadFile(video)
	require.NoError(t, err)
	assert.Len(t, data, 40)

	// No temp or backup files remain.
	leftovers, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{video}, leftovers)
}

func TestRun_LargerOutputKeepsOriginalAndTags(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	writeVideo(t, video, 100)

	prober := &fakeProber{durations: map[string]time.Duration{video: 10 * time.Second}}
	encoder := &fakeEncoder{outputSize: 150}
	o, out := newTestOptimizer(prober, encoder)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, int64(0), summary.SavedBytes)
	assert.Contains(t, out.String(), "SKIP")
	assert.Equal(t, []string{video}, encoder.tagged)

	// Original content survives.
	data, err := os.ReadFile(video)
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestRun_NoDurationFails(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, filepath.Join(dir, "broken.mp4"), 100)

	prober := &fakeProber{} // no durations known
	o, out := newTestOptimizer(prober, &fakeEncoder{outputSize: 40})

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, out.String(), "FAIL (no duration)")
}

func TestRun_TranscodeErrorCleansTemp(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	writeVideo(t, video, 100)

	prober := &fakeProber{durations: map[string]time.Duration{video: 10 * time.Second}}
	encoder := &fakeEncoder{transcodeErr: errors.New("encoder exploded")}
	o, _ := newTestOptimizer(prober, encoder)

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	leftovers, err := filepath.Glob(filepath.Join(dir, "temp_proc_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRun_ProbeErrorStillProcesses(t *testing.T) {
	// A file whose tag probe fails is treated as needing work.
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	writeVideo(t, video, 100)

	prober := &fakeProber{
		probeErr:  errors.New("probe timed out"),
		durations: map[string]time.Duration{video: 10 * time.Second},
	}
	o, _ := newTestOptimizer(prober, &fakeEncoder{outputSize: 10})

	summary, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, filepath.Join(dir, "a.mp4"), 100)
	writeVideo(t, filepath.Join(dir, "b.mp4"), 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{durations: map[string]time.Duration{}}
	o, _ := newTestOptimizer(prober, &fakeEncoder{outputSize: 10})

	_, err := o.Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	assert.Equal(t, "libx264", opts.VideoCodec)
	assert.Equal(t, "medium", opts.Preset)
	assert.Equal(t, "28", opts.CRF)
	assert.Equal(t, "aac", opts.AudioCodec)
	assert.Equal(t, "128k", opts.AudioBitrate)
	assert.Equal(t, "comment", opts.TagKey)
	assert.Equal(t, "mediaforge_v2", opts.TagValue)
	assert.NotEmpty(t, opts.Extensions)
	assert.Greater(t, opts.Workers, 0)
	assert.True(t, strings.HasPrefix(opts.Extensions[0], "."))
}
