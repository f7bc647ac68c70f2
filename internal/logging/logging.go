// Package logging configures the process logger and exposes the small
// key-value Logger interface the rest of the tool depends on.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger provides structured logging with key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Redactor is implemented by loggers that can scrub secrets from output.
type Redactor interface {
	Redact(secret string)
}

// Options configures New.
type Options struct {
	Level  string
	Output io.Writer
	JSON   bool
}

// Log is a logrus logger with a redaction hook installed.
type Log struct {
	*logrus.Logger
	hook *redactHook
}

// New creates a logger writing to opts.Output (stderr by default).
func New(opts Options) (*Log, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
	}

	hook := &redactHook{}
	l.AddHook(hook)

	return &Log{Logger: l, hook: hook}, nil
}

// Redact registers a secret that must never appear in log output.
func (l *Log) Redact(secret string) {
	l.hook.add(secret)
}

// Adapter returns the Logger view of l.
func (l *Log) Adapter() Logger {
	return &adapter{entry: logrus.NewEntry(l.Logger), redactor: l}
}

// FromLogrus wraps any logrus logger or entry.
func FromLogrus(fl logrus.FieldLogger) Logger {
	return &adapter{entry: fl}
}

// Redact scrubs secret from l's output when l supports it.
func Redact(l Logger, secret string) {
	if r, ok := l.(Redactor); ok && secret != "" {
		r.Redact(secret)
	}
}

type adapter struct {
	entry    logrus.FieldLogger
	redactor Redactor
}

func (a *adapter) Debug(msg string, kv ...interface{}) { a.entry.WithFields(fields(kv)).Debug(msg) }
func (a *adapter) Info(msg string, kv ...interface{})  { a.entry.WithFields(fields(kv)).Info(msg) }
func (a *adapter) Warn(msg string, kv ...interface{})  { a.entry.WithFields(fields(kv)).Warn(msg) }
func (a *adapter) Error(msg string, kv ...interface{}) { a.entry.WithFields(fields(kv)).Error(msg) }

func (a *adapter) Redact(secret string) {
	if a.redactor != nil {
		a.redactor.Redact(secret)
	}
}

// fields converts alternating key-value pairs into logrus fields.
// A trailing key without a value is kept under "!BADKEY".
func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			f["!BADKEY"] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

const redacted = "[REDACTED]"

// redactHook rewrites entries before they are formatted.
type redactHook struct {
	mu      sync.RWMutex
	secrets []string
}

func (h *redactHook) add(secret string) {
	if secret == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.secrets {
		if s == secret {
			return
		}
	}
	h.secrets = append(h.secrets, secret)
}

func (h *redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *redactHook) Fire(entry *logrus.Entry) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.secrets) == 0 {
		return nil
	}

	entry.Message = h.scrub(entry.Message)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			entry.Data[k] = h.scrub(val)
		case error:
			entry.Data[k] = h.scrub(val.Error())
		case fmt.Stringer:
			entry.Data[k] = h.scrub(val.String())
		}
	}
	return nil
}

func (h *redactHook) scrub(s string) string {
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}
