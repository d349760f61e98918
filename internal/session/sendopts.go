package session

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/time/rate"

	"wabridge/internal/domain"
)

// SendFunc delivers one protocol message. Decorators wrap it to add
// rate limiting and retries without touching the delivery path itself.
type SendFunc func(ctx context.Context, to types.JID, msg *waE2E.Message) (domain.SendResult, error)

func WithRateLimit(lim *rate.Limiter, next SendFunc) SendFunc {
	return func(ctx context.Context, to types.JID, msg *waE2E.Message) (domain.SendResult, error) {
		if err := lim.Wait(ctx); err != nil {
			return domain.SendResult{}, err
		}
		return next(ctx, to, msg)
	}
}

func WithRetry(attempts int, delay time.Duration, next SendFunc) SendFunc {
	return func(ctx context.Context, to types.JID, msg *waE2E.Message) (domain.SendResult, error) {
		var res domain.SendResult
		var err error
		d := delay
		for i := 0; i < attempts; i++ {
			res, err = next(ctx, to, msg)
			if err == nil {
				return res, nil
			}
			if i == attempts-1 {
				break
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return domain.SendResult{}, ctx.Err()
			}
			if d < 5*time.Second {
				d *= 2
			}
		}
		return domain.SendResult{}, err
	}
}
