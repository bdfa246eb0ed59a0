package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.pid")

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile() error = %v", err)
	}
	if got := readPIDFile(path); got != os.Getpid() {
		t.Errorf("readPIDFile() = %d, want %d", got, os.Getpid())
	}
}

func TestWritePIDFileEmptyPath(t *testing.T) {
	if err := writePIDFile(""); err != nil {
		t.Errorf("writePIDFile(\"\") error = %v, want nil", err)
	}
}

func TestReadPIDFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"garbage", "not-a-pid"},
		{"negative", "-5"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gate.pid")
			if tt.name != "missing file" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("write fixture: %v", err)
				}
			}
			if got := readPIDFile(path); got != 0 {
				t.Errorf("readPIDFile() = %d, want 0", got)
			}
		})
	}
}

func TestReadPIDFileTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.pid")
	if err := os.WriteFile(path, []byte("  "+strconv.Itoa(1234)+"\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if got := readPIDFile(path); got != 1234 {
		t.Errorf("readPIDFile() = %d, want 1234", got)
	}
}

func TestProcessAliveSelf(t *testing.T) {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess() error = %v", err)
	}
	if !processAlive(proc) {
		t.Error("processAlive(self) = false, want true")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		if logger := newLogger(level); logger == nil {
			t.Errorf("newLogger(%q) = nil", level)
		}
	}
}
