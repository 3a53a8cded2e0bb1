// Package format provides display formatting helpers for sizes, durations,
// and file names. This is part of the Functional Core - all functions are
// pure with no I/O.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// Bytes renders a byte count using 1024-based units, e.g. "1.25 GB".
// Negative and zero counts render as "0 B".
func Bytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", size, byteUnits[unit])
}

// Duration renders an elapsed duration as "3m 12s" (or "1h 3m" past an hour).
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// TruncateName shortens a file name to max runes (ellipsis-terminated) and
// pads short names to the same width so progress lines stay aligned.
func TruncateName(name string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(name)
	if len(runes) > max {
		return string(runes[:max-3]) + "..."
	}
	return name + strings.Repeat(" ", max-len(runes))
}

// ParseClock parses an ffmpeg-style "HH:MM:SS.ss" timestamp into a duration.
// Malformed input yields zero, matching how progress parsing treats it.
func ParseClock(clock string) time.Duration {
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return time.Duration((h*3600 + m*60 + s) * float64(time.Second))
}
