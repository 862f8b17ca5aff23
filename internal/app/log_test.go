package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "deploy planned",
			want:    "2025-06-15T14:30:45Z\tINFO\trun-123\tdeploy planned\n",
		},
		{
			name:    "warning",
			runID:   "run-456",
			level:   slog.LevelWarn,
			message: "cdn refresh failed",
			want:    "2025-06-15T14:30:45Z\tWARN\trun-456\tcdn refresh failed\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "deploy applied",
			attrs:   []slog.Attr{slog.Int("uploaded", 3), slog.String("key", "site/a.js")},
			want:    "2025-06-15T14:30:45Z\tINFO\trun-789\tdeploy applied\tuploaded=3\tkey=site/a.js\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &runHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			require.NoError(t, h.Handle(context.Background(), r))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRunHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &runHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("store", "qiniu")}).(*runHandler)
	assert.Len(t, h.attrs, 1)
	assert.Len(t, h2.attrs, 2)

	r := slog.NewRecord(time.Unix(0, 0), slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))
	require.NoError(t, h2.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), "\ta=1\tstore=qiniu\tkey=abc\n")
}

func TestRunHandler_Enabled(t *testing.T) {
	ctx := context.Background()

	h := &runHandler{}
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))

	h = &runHandler{level: slog.LevelDebug}
	assert.True(t, h.Enabled(ctx, slog.LevelDebug))

	h = &runHandler{level: slog.LevelError}
	assert.False(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "run-test", "info")
	require.NoError(t, err)
	defer f.Close()

	logger.Debug("hidden")
	logger.Info("shown", "n", 1)

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "\tINFO\trun-test\tshown\tn=1\n")

	_, _, err = newLogger(dir, "run-test", "verbose")
	assert.Error(t, err)
}
