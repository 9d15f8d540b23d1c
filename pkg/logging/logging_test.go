package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeeHandlerWritesBothDestinations(t *testing.T) {
	var file, stderr bytes.Buffer
	h := teeHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}
	l := slog.New(h)

	l.Info("processing started", slog.Int("frames", 10))
	assert.Contains(t, file.String(), `"msg":"processing started"`)
	assert.Contains(t, stderr.String(), "processing started")

	// Below both handler levels: reaches neither destination.
	l.Debug("per-frame noise")
	assert.NotContains(t, file.String(), "per-frame noise")
	assert.NotContains(t, stderr.String(), "per-frame noise")
}

func TestTeeHandlerRespectsPerHandlerLevels(t *testing.T) {
	var file, stderr bytes.Buffer
	h := teeHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	l := slog.New(h)

	l.Debug("mask built")
	assert.Contains(t, file.String(), "mask built")
	assert.NotContains(t, stderr.String(), "mask built")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Debugf("frame %d", 1)
	l.Infof("frame %d", 2)
	assert.Nil(t, l.With("session", "abc"))
}
