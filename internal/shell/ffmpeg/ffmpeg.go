// Package ffmpeg wraps the ffmpeg and ffprobe binaries for probing and
// re-encoding media files.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/mediaforge/internal/core/format"
)

// =============================================================================
// Runner
// =============================================================================

// Runner executes ffmpeg/ffprobe subprocesses.
type Runner struct {
	ffmpeg  string
	ffprobe string
}

// NewRunner creates a runner using ffmpeg/ffprobe from PATH.
func NewRunner() *Runner {
	return &Runner{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// Available checks that both binaries are installed.
func (r *Runner) Available() error {
	for _, bin := range []string{r.ffmpeg, r.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return NewToolError("Available", "", bin+" not found in PATH", ErrNotInstalled)
		}
	}
	return nil
}

// =============================================================================
// Probing
// =============================================================================

// ProbeTag reads a single format-level metadata tag from a media file.
// Missing tags return an empty string, not an error.
func (r *Runner) ProbeTag(ctx context.Context, path, key string) (string, error) {
	out, err := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-show_entries", "format_tags="+key,
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return "", NewToolError("ProbeTag", path, err.Error(), ErrProbeFailed)
	}
	return strings.TrimSpace(string(out)), nil
}

// ProbeDuration reads a media file's container duration.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, r.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return 0, NewToolError("ProbeDuration", path, err.Error(), ErrProbeFailed)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds <= 0 {
		return 0, NewToolError("ProbeDuration", path, "duration missing or zero", ErrNoDuration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// =============================================================================
// Encoding
// =============================================================================

// TranscodeSpec defines one re-encode: input/output paths, codec parameters,
// and the metadata tag written into the output.
type TranscodeSpec struct {
	Input        string
	Output       string
	VideoCodec   string
	Preset       string
	CRF          string
	AudioCodec   string
	AudioBitrate string
	TagKey       string
	TagValue     string
}

// Transcode re-encodes input into output. Progress is reported through
// onProgress as the output timestamp ffmpeg has reached, parsed from its
// stderr stream.
func (r *Runner) Transcode(ctx context.Context, spec TranscodeSpec, onProgress func(time.Duration)) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg,
		"-hide_banner",
		"-i", spec.Input,
		"-c:v", spec.VideoCodec,
		"-preset", spec.Preset,
		"-crf", spec.CRF,
		"-c:a", spec.AudioCodec,
		"-b:a", spec.AudioBitrate,
		"-movflags", "+faststart",
		"-metadata", spec.TagKey+"="+spec.TagValue,
		"-y", spec.Output,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return NewToolError("Transcode", spec.Input, err.Error(), ErrTranscodeFailed)
	}
	if err := cmd.Start(); err != nil {
		return NewToolError("Transcode", spec.Input, err.Error(), ErrTranscodeFailed)
	}

	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := scanner.Text()
		if t, ok := ParseProgress(line); ok {
			if onProgress != nil {
				onProgress(t)
			}
			continue
		}
		// Keep a short tail of non-progress output for error reporting.
		tail = append(tail, line)
		if len(tail) > 5 {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		msg := err.Error()
		if len(tail) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.Join(tail, " | "))
		}
		return NewToolError("Transcode", spec.Input, msg, ErrTranscodeFailed)
	}
	return nil
}

// CopyWithTag rewrites a file's container with stream copy, setting only the
// metadata tag. Used to mark files whose re-encode was not worth keeping.
func (r *Runner) CopyWithTag(ctx context.Context, input, output, key, value string) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg,
		"-hide_banner",
		"-y",
		"-i", input,
		"-c", "copy",
		"-metadata", key+"="+value,
		output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := err.Error()
		if len(out) > 0 {
			msg = lastLine(out)
		}
		return NewToolError("CopyWithTag", input, msg, ErrTranscodeFailed)
	}
	return nil
}

// =============================================================================
// Progress Parsing
// =============================================================================

// ParseProgress extracts the "time=" field from an ffmpeg status line.
func ParseProgress(line string) (time.Duration, bool) {
	if !strings.Contains(line, "time=") {
		return 0, false
	}
	for _, field := range strings.Fields(line) {
		if clock, ok := strings.CutPrefix(field, "time="); ok {
			return format.ParseClock(clock), true
		}
	}
	return 0, false
}

// scanStatusLines splits on both \n and \r, because ffmpeg rewrites its
// status line in place with carriage returns.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lastLine returns the last non-empty line of command output.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
