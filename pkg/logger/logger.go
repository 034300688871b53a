// Package logger provides structured logging shared by every core component.
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context-carried logging fields.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	UserIDKey  ContextKey = "user_id"
	RoleKey    ContextKey = "role"
)

// Logger wraps logrus.Logger with the fields every component attaches.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger for the given component name.
func New(component, level, format string) *Logger {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL / LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext attaches trace/user/role fields carried on ctx, when present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(UserIDKey); v != nil {
		entry = entry.WithField("user_id", v)
	}
	if v := ctx.Value(RoleKey); v != nil {
		entry = entry.WithField("role", v)
	}
	return entry
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// LogUpstreamCall records one upstream operation invocation outcome.
func (l *Logger) LogUpstreamCall(operation string, cacheHit bool, durationMs int64, err error) {
	entry := l.WithFields(logrus.Fields{
		"operation":   operation,
		"cache_hit":   cacheHit,
		"duration_ms": durationMs,
	})
	if err != nil {
		entry.WithError(err).Warn("upstream call failed")
		return
	}
	entry.Debug("upstream call completed")
}

// LogSettlement records one settlement outcome.
func (l *Logger) LogSettlement(wagerNumber int64, settlementType string, amount string, err error) {
	entry := l.WithFields(logrus.Fields{
		"wager_number":    wagerNumber,
		"settlement_type": settlementType,
		"amount":          amount,
	})
	if err != nil {
		entry.WithError(err).Warn("settlement failed")
		return
	}
	entry.Info("settlement applied")
}

// LogMatch records a matching pass outcome for one pairing.
func (l *Logger) LogMatch(matchID, withdrawalID, depositID string, score int) {
	l.WithFields(logrus.Fields{
		"match_id":      matchID,
		"withdrawal_id": withdrawalID,
		"deposit_id":    depositID,
		"score":         score,
	}).Info("queue items matched")
}
