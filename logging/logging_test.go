package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	openpayments "github.com/ilpay/openpayments-go"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", openpayments.LevelTrace, false},
		{"TRACE", openpayments.LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(&buf, "json", "trace")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	logger.Log(context.Background(), openpayments.LevelTrace, "http request", "method", "POST")
	out := buf.String()
	if !strings.Contains(out, `"level":"TRACE"`) || !strings.Contains(out, `"method":"POST"`) {
		t.Errorf("output = %s", out)
	}

	buf.Reset()
	logger, err = NewWriter(&buf, "text", "info")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %s", buf.String())
	}

	if _, err := NewWriter(&buf, "xml", "info"); !errors.Is(err, openpayments.ErrInvalidConfig) {
		t.Errorf("NewWriter(xml) error = %v, want ErrInvalidConfig", err)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Discard() logger enabled at warn")
	}
}
