package resolve

import (
	"context"
	"log/slog"

	"wabridge/internal/domain"
)

// Directory answers contact and registration questions about raw identifiers.
// The session client implements it; tests use a stub.
type Directory interface {
	// ContactPhone returns the registered number from the contact profile
	// for the given raw identifier, or "" if unknown.
	ContactPhone(ctx context.Context, rawJID string) string

	// LookupPhone resolves the raw identifier through the platform
	// directory, or "" if the lookup fails.
	LookupPhone(ctx context.Context, rawJID string) string
}

// Strategy is one extraction attempt. It returns a candidate identifier and
// whether it produced anything; the resolver decides if the candidate is
// canonical. Strategies never return errors; a failed lookup is just (_, false).
type Strategy struct {
	Name string
	Fn   func(ctx context.Context, evt domain.InboundEvent) (string, bool)
}

// Resolver runs an ordered strategy chain, first canonical match wins.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// New builds the standard chain. Order matters: cheap syntactic extraction
// first, directory round-trips last.
func New(dir Directory, logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		strategies: []Strategy{
			{"sender_id", func(_ context.Context, evt domain.InboundEvent) (string, bool) {
				return UserPart(evt.RawSender), evt.RawSender != ""
			}},
			{"contact_profile", func(ctx context.Context, evt domain.InboundEvent) (string, bool) {
				p := dir.ContactPhone(ctx, evt.RawSender)
				return Digits(p), p != ""
			}},
			{"chat_id", func(_ context.Context, evt domain.InboundEvent) (string, bool) {
				return UserPart(evt.ChatJID), evt.ChatJID != ""
			}},
			{"peer_metadata", func(_ context.Context, evt domain.InboundEvent) (string, bool) {
				return UserPart(evt.Peer), evt.Peer != ""
			}},
			{"author", func(_ context.Context, evt domain.InboundEvent) (string, bool) {
				if evt.Author == "" || evt.Author == evt.RawSender {
					return "", false
				}
				return UserPart(evt.Author), true
			}},
			{"directory_lookup", func(ctx context.Context, evt domain.InboundEvent) (string, bool) {
				p := dir.LookupPhone(ctx, evt.RawSender)
				return Digits(p), p != ""
			}},
		},
	}
}

// NewWithStrategies builds a resolver over an explicit chain.
func NewWithStrategies(strategies []Strategy, logger *slog.Logger) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve fills evt.Phone with the first canonical number any strategy
// produces. When every strategy fails the raw identifier is carried verbatim
// and the event is flagged unresolved; such events are forwarded for
// diagnostics but never addressed by number.
func (r *Resolver) Resolve(ctx context.Context, evt domain.InboundEvent) domain.InboundEvent {
	for _, s := range r.strategies {
		candidate, ok := s.Fn(ctx, evt)
		if !ok {
			continue
		}
		if IsCanonical(candidate) {
			evt.Phone = candidate
			evt.Unresolved = false
			r.logger.Debug("sender resolved", "strategy", s.Name, "phone", candidate)
			return evt
		}
	}
	evt.Phone = evt.RawSender
	evt.Unresolved = true
	r.logger.Warn("sender unresolved, carrying raw identifier", "raw", evt.RawSender)
	return evt
}
