package relay

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

// Observer is told about every state transition and every rejected event.
// Calls happen on the Hub goroutine, so implementations must not block.
type Observer interface {
	Transition(event, connID string, attrs ...any)
	Rejected(err *Error, connID string)
}

// LogObserver writes transitions at debug level and rejections at info.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Transition(event, connID string, attrs ...any) {
	o.logger.Debug(event, append([]any{"connId", connID}, attrs...)...)
}

func (o *LogObserver) Rejected(err *Error, connID string) {
	if errors.Is(err, errDuplicateMessage) {
		o.logger.Debug("duplicate message dropped", "connId", connID, "details", err.Details)
		return
	}
	f := err.Failure()
	attrs := []any{"connId", connID, "event", err.Event, "code", f.Code}
	if err.Details != "" {
		attrs = append(attrs, "details", err.Details)
	}
	o.logger.Info("event rejected", attrs...)
}

// Counters tallies router activity for the stats endpoint. It is read from
// HTTP handlers while the hub writes it, hence the atomics.
type Counters struct {
	events     atomic.Int64
	failures   atomic.Int64
	duplicates atomic.Int64
}

func (c *Counters) Transition(event, connID string, attrs ...any) {
	c.events.Add(1)
}

func (c *Counters) Rejected(err *Error, connID string) {
	if errors.Is(err, errDuplicateMessage) {
		c.duplicates.Add(1)
		return
	}
	c.failures.Add(1)
}

func (c *Counters) Events() int64     { return c.events.Load() }
func (c *Counters) Failures() int64   { return c.failures.Load() }
func (c *Counters) Duplicates() int64 { return c.duplicates.Load() }

type multiObserver []Observer

// MultiObserver fans every call out to each of observers in order.
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}

func (m multiObserver) Transition(event, connID string, attrs ...any) {
	for _, o := range m {
		o.Transition(event, connID, attrs...)
	}
}

func (m multiObserver) Rejected(err *Error, connID string) {
	for _, o := range m {
		o.Rejected(err, connID)
	}
}
