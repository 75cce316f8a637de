package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{in: "debug", want: DebugLevel},
		{in: "INFO", want: InfoLevel},
		{in: " warn ", want: WarnLevel},
		{in: "error", want: ErrorLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("err = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	prev := GetLogLevel()
	t.Cleanup(func() {
		SetLogLevel(prev)
	})

	SetLogLevel(WarnLevel)
	LogInfo("hidden %d", 1)
	LogWarn("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden 1") {
		t.Errorf("info line leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("warn line missing: %q", out)
	}
}
