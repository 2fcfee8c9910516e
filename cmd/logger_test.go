package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dhcgn/imap-otp/config"
)

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true},
		{level: "info", wantInfo: true},
		{level: "warn"},
		{level: "", wantInfo: true},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, cleanup, err := SetupLogger(config.Config{LogLevel: tt.level}, &buf)
			if err != nil {
				t.Fatalf("SetupLogger() error = %v", err)
			}
			defer cleanup()

			logger.Debug("debug record")
			logger.Info("info record")
			logger.Warn("warn record")

			out := buf.String()
			if got := strings.Contains(out, "debug record"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v\n%s", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info record"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v\n%s", got, tt.wantInfo, out)
			}
			if !strings.Contains(out, "warn record") {
				t.Errorf("warn record missing\n%s", out)
			}
		})
	}
}

func TestSetupLogger_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer

	logger, cleanup, err := SetupLogger(config.Config{LogLevel: "info", LogDir: dir}, &buf)
	if err != nil {
		t.Fatalf("SetupLogger() error = %v", err)
	}
	logger.Info("searching mailbox", "sender", "no-reply@example.com")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() error = %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "imap-otp-*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}
	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "searching mailbox") {
		t.Errorf("log file = %q", content)
	}
	if !strings.Contains(buf.String(), "searching mailbox") {
		t.Errorf("writer output = %q", buf.String())
	}
}
