package bus

import (
	"log/slog"
	"sync"
	"time"

	"wabridge/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based event bus carrying inbound session events
// to the single dispatcher. Ordering is the channel's FIFO ordering.
type InMemoryBus struct {
	inbound chan domain.InboundEvent
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundEvent, bufferSize),
		logger:  logger,
	}
}

// Publish never blocks the protocol event handler for more than
// publishTimeout; a full bus past that point drops the event with a log line.
func (b *InMemoryBus) Publish(evt domain.InboundEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- evt:
	default:
		b.logger.Warn("inbound bus full, waiting...", "kind", evt.Kind, "sender", evt.RawSender)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- evt:
			b.logger.Info("event delivered after wait", "kind", evt.Kind)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"kind", evt.Kind,
				"sender", evt.RawSender,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
