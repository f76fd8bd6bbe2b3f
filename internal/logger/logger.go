// Package logger wraps github.com/cenkalti/log with a single global handler
// shared by every component of the sync engine.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/log"
)

var (
	mHandler sync.RWMutex
	handler  log.Handler
)

func init() {
	SetHandler(log.NewFileHandler(os.Stderr))
}

// SetHandler changes the global logging handler.
// Loggers created before the call keep writing to the previous handler.
func SetHandler(h log.Handler) {
	h.SetFormatter(logFormatter{})
	mHandler.Lock()
	handler = h
	mHandler.Unlock()
}

// SetLevel sets the logging level on the global handler.
func SetLevel(l log.Level) {
	mHandler.RLock()
	handler.SetLevel(l)
	mHandler.RUnlock()
}

// ParseLevel converts a level name from the config file into a log.Level.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warning", "warn":
		return log.WARNING, nil
	case "error":
		return log.ERROR, nil
	}
	return log.INFO, fmt.Errorf("unknown log level: %q", s)
}

// Logger is for logging messages from inside of the program in various logging levels.
type Logger log.Logger

// New returns a new Logger with a name.
// Log messages are prefixed with this name by the default Handler.
func New(name string) Logger {
	logger := log.NewLogger(name)
	logger.SetLevel(log.DEBUG) // forward all messages to handler
	mHandler.RLock()
	logger.SetHandler(handler)
	mHandler.RUnlock()
	return logger
}

type logFormatter struct{}

// Format outputs a message like "2014-02-28 18:15:57 INFO     [session] worker.go:120  torrent added"
func (f logFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %-14s %s",
		fmt.Sprint(rec.Time)[:19],
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename)+":"+strconv.Itoa(rec.Line),
		rec.Message)
}
