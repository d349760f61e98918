package relay

import (
	"context"
	"log/slog"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/resolve"
)

// Dispatcher is the single consumer of the inbound event bus. It resolves
// sender identity and hands the event to the forwarder, keeping ordering and
// error isolation in one place instead of scattered per-event callbacks.
type Dispatcher struct {
	events    <-chan domain.InboundEvent
	resolver  *resolve.Resolver
	forwarder *Forwarder
	logger    *slog.Logger
}

func NewDispatcher(events <-chan domain.InboundEvent, resolver *resolve.Resolver, forwarder *Forwarder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		events:    events,
		resolver:  resolver,
		forwarder: forwarder,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-d.events:
			if !ok {
				return
			}
			d.handle(ctx, evt)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic", "panic", r, "message_id", evt.MessageID)
		}
	}()

	evt = d.resolver.Resolve(ctx, evt)
	if evt.Kind == domain.EventPollVote {
		metrics.PollVotes.Inc()
	}
	d.logger.Info("inbound event",
		"kind", evt.Kind,
		"phone", evt.Phone,
		"unresolved", evt.Unresolved,
		"message_id", evt.MessageID,
	)
	d.forwarder.Forward(ctx, evt)
}
