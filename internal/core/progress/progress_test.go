package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBar_Empty(t *testing.T) {
	got := Bar(0, 100, 10)
	assert.Equal(t, "|----------| 0.0%", got)
}

func TestBar_Half(t *testing.T) {
	got := Bar(50, 100, 10)
	assert.Equal(t, "|█████-----| 50.0%", got)
}

func TestBar_Full(t *testing.T) {
	got := Bar(100, 100, 10)
	assert.Equal(t, "|██████████| 100.0%", got)
}

func TestBar_Overflow_Clamped(t *testing.T) {
	got := Bar(150, 100, 10)
	assert.Equal(t, "|██████████| 100.0%", got)
}

func TestBar_ZeroTotal(t *testing.T) {
	// Empty work sets report as complete rather than dividing by zero.
	got := Bar(0, 0, 10)
	assert.Equal(t, "|██████████| 100.0%", got)
}

func TestETA(t *testing.T) {
	// 10 of 100 done in 10s → 90s remaining.
	assert.Equal(t, 90*time.Second, ETA(10, 100, 10*time.Second))
	assert.Equal(t, time.Duration(0), ETA(0, 100, 10*time.Second))
	assert.Equal(t, time.Duration(0), ETA(100, 100, 10*time.Second))
}

func TestPrinter_Update(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 10)
	p.Update("scan", 5, 10)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\r"))
	assert.Contains(t, out, "scan |█████-----| 50.0%")
}

func TestPrinter_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 10)
	p.Finish("done")
	assert.True(t, strings.HasSuffix(buf.String(), "done\n"))
}
