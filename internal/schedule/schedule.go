// Package schedule wraps robfig/cron for the daemon's periodic jobs: session
// health checks and cache sweeps.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// every is a fixed-interval schedule. Unlike cron.Every it is not rounded
// to whole seconds.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Every returns a schedule firing every d. d must be positive.
func Every(d time.Duration) cron.Schedule {
	if d <= 0 {
		d = time.Second
	}
	return every(d)
}

// New returns a cron runner whose jobs skip a run while the previous one is
// still in flight and recover panics. Recover sits inside the skip guard so
// a panicking run releases it.
func New(logger *zap.Logger) *cron.Cron {
	l := Logger(logger)
	return cron.New(cron.WithLogger(l), cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)))
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Logger adapts a zap logger to cron.Logger. Info messages are logged at debug.
func Logger(logger *zap.Logger) cron.Logger {
	return zapLogger{s: logger.Named("cron").Sugar()}
}

func (l zapLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
