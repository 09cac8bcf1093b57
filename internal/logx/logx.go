// Package logx provides keyed, correlation-id-scoped logging for the
// control plane, adapted from the teacher's log package: a go-kit/log
// logger cached per correlation id (Request, ProcessingItem or jobId) so
// every line for that id carries its context without re-building it.
package logx

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache = cache.New(6*time.Hour, 10*time.Minute)

// Log emits a keyed log line scoped to correlationID.
func Log(correlationID, message string, keyvals ...any) {
	_ = kitlog.With(getLogger(correlationID), "msg", message).Log(keyvals...)
}

// LogError emits a keyed log line with an attached error, scoped to
// correlationID.
func LogError(correlationID, message string, err error, keyvals ...any) {
	l := kitlog.With(getLogger(correlationID), "msg", message, "err", err.Error())
	_ = l.Log(keyvals...)
}

// LogNoID logs without a correlation id. Used sparingly, for process-level
// events that predate any request/item existing.
func LogNoID(message string, keyvals ...any) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

func getLogger(correlationID string) kitlog.Logger {
	if v, ok := loggerCache.Get(correlationID); ok {
		return v.(kitlog.Logger)
	}
	l := kitlog.With(newLogger(), "correlation_id", correlationID)
	_ = loggerCache.Add(correlationID, l, cache.DefaultExpiration)
	return l
}

// AddContext permanently attaches keyvals to every future log line for
// correlationID (e.g. once a ProcessingItem's requestID is known).
func AddContext(correlationID string, keyvals ...any) {
	l := kitlog.With(getLogger(correlationID), keyvals...)
	_ = loggerCache.Replace(correlationID, l, cache.DefaultExpiration)
}

func newLogger() kitlog.Logger {
	return kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
}
