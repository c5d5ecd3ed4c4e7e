// Package log provides a job-scoped structured logger. Every stage of the
// pipeline, the broker client, and the worker supervisor log through here so
// that a single job's output can be grepped by its job ID.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/go-kit/log"
	kitlog "github.com/go-kit/log"
)

var (
	loggerMu sync.RWMutex
	loggers  = map[string]kitlog.Logger{}

	// logDestination is swapped out in tests to capture log output.
	logDestination io.Writer = os.Stderr
)

// AddContext permanently attaches keyvals to the logger for jobID. Future
// calls to Log/LogError for this job ID will include them.
func AddContext(jobID string, keyvals ...interface{}) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	loggers[jobID] = kitlog.With(getLoggerLocked(jobID), keyvals...)
}

func Log(jobID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(jobID), "msg", message).Log(keyvals...)
}

// LogNoRequestID logs without a job correlation ID. Used sparingly, for
// supervisor-level events that precede any claimed job.
func LogNoRequestID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(jobID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(keyvals...)
}

// Forget drops the cached logger for jobID. Called once a job reaches a
// terminal state, so the map doesn't grow without bound across a worker's
// lifetime.
func Forget(jobID string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	delete(loggers, jobID)
}

func getLogger(jobID string) kitlog.Logger {
	loggerMu.RLock()
	l, found := loggers[jobID]
	loggerMu.RUnlock()
	if found {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	return getLoggerLocked(jobID)
}

func getLoggerLocked(jobID string) kitlog.Logger {
	if l, found := loggers[jobID]; found {
		return l
	}
	l := kitlog.With(newLogger(), "job_id", jobID)
	loggers[jobID] = l
	return l
}

func newLogger() kitlog.Logger {
	l := kitlog.NewLogfmtLogger(log.NewSyncWriter(logDestination))
	return kitlog.With(l, "ts", kitlog.DefaultTimestampUTC)
}
