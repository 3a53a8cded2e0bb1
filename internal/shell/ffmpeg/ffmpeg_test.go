package ffmpeg

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoFFmpeg(t *testing.T) *Runner {
	t.Helper()
	r := NewRunner()
	if err := r.Available(); err != nil {
		t.Skip("ffmpeg not available:", err)
	}
	return r
}

// =============================================================================
// Progress Parsing Tests
// =============================================================================

func TestParseProgress_StatusLine(t *testing.T) {
	line := "frame=  120 fps= 24 q=28.0 size=    1024KiB time=00:01:30.50 bitrate= 92.8kbits/s speed=1.2x"
	d, ok := ParseProgress(line)
	require.True(t, ok)
	assert.Equal(t, 90500*time.Millisecond, d)
}

func TestParseProgress_NoTimeField(t *testing.T) {
	_, ok := ParseProgress("Stream mapping: 0:0 -> 0:0 (h264 -> libx264)")
	assert.False(t, ok)
}

func TestParseProgress_MalformedClock(t *testing.T) {
	d, ok := ParseProgress("time=N/A bitrate=N/A")
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestScanStatusLines_SplitsCarriageReturns(t *testing.T) {
	input := "line one\rline two\nline three"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanStatusLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{"line one", "line two", "line three"}, lines)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "final error", lastLine([]byte("noise\nmore noise\nfinal error\n")))
	assert.Equal(t, "", lastLine([]byte("  \n \n")))
}

// =============================================================================
// Probe Tests (require ffmpeg)
// =============================================================================

func TestProbeTag_MissingFile(t *testing.T) {
	r := skipIfNoFFmpeg(t)

	_, err := r.ProbeTag(t.Context(), "/nonexistent/video.mp4", "comment")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbeDuration_MissingFile(t *testing.T) {
	r := skipIfNoFFmpeg(t)

	_, err := r.ProbeDuration(t.Context(), "/nonexistent/video.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)
}
