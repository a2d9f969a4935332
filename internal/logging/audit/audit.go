// Package audit records medium lock changes as structured log events.
package audit

import (
	"github.com/rs/zerolog"

	"github.com/cea-hpc/phobos/internal/dss"
)

// Lock actions.
const (
	ActionLock     = "lock"
	ActionRefresh  = "refresh"
	ActionRollback = "rollback"
	ActionRelease  = "release" // manual release by an operator
)

// Results.
const (
	ResultOK     = "ok"
	ResultRace   = "race"
	ResultFailed = "failed"
)

// Logger provides structured audit logging of lock ownership changes.
// A nil *Logger discards everything.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// LogLock logs a lock operation.
// action: one of the Action constants
// host: the host the lock is (or would be) held by
// result: one of the Result constants
// err: the store error for races and failures, nil otherwise
func (l *Logger) LogLock(action string, medium dss.MediumID, host, result string, err error) {
	if l == nil {
		return
	}
	level := zerolog.InfoLevel
	if result == ResultFailed {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "medium_lock").
		Str("action", action).
		Str("medium", medium.String()).
		Str("host", host).
		Str("result", result)

	if err != nil {
		event = event.Str("details", err.Error())
	}

	event.Msg("Medium lock event")
}

// LogLocate logs the outcome of a locate call.
// object: the located object id
// focusHost: the host the call was made for
// host: the selected host, empty on failure
// newLeases: locks taken by the call
// err: the call error, nil on success
func (l *Logger) LogLocate(object, focusHost, host string, newLeases int, err error) {
	if l == nil {
		return
	}
	level := zerolog.InfoLevel
	result := ResultOK
	if err != nil {
		level = zerolog.WarnLevel
		result = ResultFailed
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "locate").
		Str("object", object).
		Str("focus_host", focusHost).
		Str("result", result).
		Int("new_leases", newLeases)

	if host != "" {
		event = event.Str("host", host)
	}
	if err != nil {
		event = event.Str("details", err.Error())
	}

	event.Msg("Locate event")
}
