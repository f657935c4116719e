package logging

import (
	"log/slog"
	"sync/atomic"
)

// ProgressLogger logs a progress line every N completed items. It is used
// when stderr is not a terminal and a progress bar would only add noise.
// Safe for concurrent use.
type ProgressLogger struct {
	logger *slog.Logger
	every  int64
	msg    string
	last   atomic.Int64
}

// NewProgressLogger emits msg every n items (default 100)
func NewProgressLogger(logger *slog.Logger, msg string, n int) *ProgressLogger {
	if n <= 0 {
		n = 100
	}
	if logger == nil {
		logger = Discard()
	}
	return &ProgressLogger{logger: logger, every: int64(n), msg: msg}
}

// Update records that done of total items are finished. It reports whether
// a line was logged.
func (p *ProgressLogger) Update(done, total int) bool {
	d := int64(done)
	if d%p.every != 0 && done != total {
		return false
	}
	// Only the first caller to reach a milestone logs it
	for {
		last := p.last.Load()
		if d <= last {
			return false
		}
		if p.last.CompareAndSwap(last, d) {
			break
		}
	}
	p.logger.Info(p.msg, "done", done, "total", total)
	return true
}
