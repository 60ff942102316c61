// Package bus carries synthesized requests from long-lived socket
// drivers to the dispatch loop.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"botkit/internal/domain"
)

const publishTimeout = 10 * time.Second

// RequestBus is a Go-channel based queue for in-process delivery.
type RequestBus struct {
	requests chan *domain.Request
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a RequestBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *RequestBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestBus{
		requests: make(chan *domain.Request, bufferSize),
		logger:   logger,
	}
}

// Publish enqueues a request. Blocks up to 10 seconds if the bus is full
// instead of dropping.
func (b *RequestBus) Publish(req *domain.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.requests <- req:
	default:
		b.logger.Warn("request bus full, waiting...")
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.requests <- req:
			b.logger.Info("request delivered after wait")
		case <-timer.C:
			b.logger.Error("request dropped: bus full for 10s")
		}
	}
}

// Subscribe returns the receive side consumed by the dispatch loop.
func (b *RequestBus) Subscribe() <-chan *domain.Request {
	return b.requests
}

func (b *RequestBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.requests)
	}
}
