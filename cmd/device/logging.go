package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// logOutput lets the console take over the log output after every
// component already holds its logger.
type logOutput struct {
	lock sync.RWMutex
	w    io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.w.Write(p)
}

func (o *logOutput) Redirect(w io.Writer) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.w = w
}

func newLogger(config *Config, out io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(config.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(config.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, options))
	}
	return slog.New(slog.NewTextHandler(out, options))
}
