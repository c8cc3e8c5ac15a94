package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug level", logLevel: "debug"},
		{name: "info level", logLevel: "info"},
		{name: "warn level", logLevel: "warn"},
		{name: "error level", logLevel: "error"},
		{name: "mixed case level", logLevel: "DEBUG"},
		{name: "invalid level falls back to info", logLevel: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := Setup(tt.logLevel)
			require.NotNil(t, logger)
			assert.Equal(t, logger, slog.Default())
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	t.Run("returns attached logger", func(t *testing.T) {
		t.Parallel()

		attached := slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx := WithLogger(context.Background(), attached)

		assert.Same(t, attached, FromContext(ctx))
	})

	t.Run("returns default logger when none attached", func(t *testing.T) {
		t.Parallel()

		got := FromContext(context.Background())
		require.NotNil(t, got)
		assert.Equal(t, slog.Default(), got)
	})
}
