// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" warn ", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("unknown level String() = %q", LogLevel(42).String())
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Debugf("Test: hidden %d", 1)
	Infof("Test: hidden %d", 2)
	Warnf("Test: shown %d", 3)
	Errorf("Test: shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below level were written:\n%s", out)
	}
	if !strings.Contains(out, "Test: shown 3") || !strings.Contains(out, "Test: shown 4") {
		t.Errorf("expected warn and error messages, got:\n%s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "ERROR") {
		t.Errorf("expected level names in output, got:\n%s", out)
	}
}

func TestSetLevelAtRuntime(t *testing.T) {
	buf := captureOutput(t)

	SetLevel(LevelError)
	if Enabled(LevelInfo) {
		t.Error("info enabled at error level")
	}
	Infof("Test: before")

	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("GetLevel() = %v, want DEBUG", GetLevel())
	}
	Debugf("Test: after")

	out := buf.String()
	if strings.Contains(out, "before") || !strings.Contains(out, "Test: after") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
