package contextutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Error("LoggerFromContext() without a logger should return slog.Default()")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Error("LoggerFromContext() should return the stored logger")
	}

	ctx = WithAttrs(ctx, "entry_date", "2024-01-15")
	LoggerFromContext(ctx).Info("ingested")
	if !strings.Contains(buf.String(), "entry_date=2024-01-15") {
		t.Errorf("log output %q should carry the attribute", buf.String())
	}
}
