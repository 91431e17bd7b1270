package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func TestLogLevels(t *testing.T) {
	prevWriter := pterm.DefaultLogger.Writer
	prevLevel := pterm.DefaultLogger.Level
	t.Cleanup(func() {
		SetLogOutput(prevWriter)
		pterm.DefaultLogger.Level = prevLevel
	})

	var buf bytes.Buffer
	SetLogOutput(&buf)
	pterm.DefaultLogger.Level = pterm.LogLevelInfo

	if DebugEnabled() {
		t.Fatalf("DebugEnabled() = true at info level")
	}
	LogDebug("hidden %d", 1)
	LogWarning("careful %s", "now")
	if strings.Contains(buf.String(), "hidden 1") {
		t.Errorf("debug line printed at info level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "careful now") {
		t.Errorf("warning missing from output: %q", buf.String())
	}

	EnableDebug()
	if !DebugEnabled() {
		t.Fatalf("DebugEnabled() = false after EnableDebug")
	}
	LogDebug("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("debug line missing after EnableDebug: %q", buf.String())
	}
}
