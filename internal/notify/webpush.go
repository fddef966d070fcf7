package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/store"
)

// WebPush sends VAPID-signed notifications to subscribers held in the store.
type WebPush struct {
	store   store.Store
	opts    webpush.Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWebPush creates a notifier backed by s.
func NewWebPush(cfg model.PushConfig, s store.Store, logger *zap.Logger) *WebPush {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &WebPush{
		store: s,
		opts: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             cfg.TTL,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("webpush"),
	}
}

// Subscribers lists stored subscriptions of the given kind.
func (w *WebPush) Subscribers(
	ctx context.Context,
	kind model.SubscriptionKind,
) ([]model.Subscriber, error) {
	return w.store.Subscribers(ctx, kind)
}

// Send pushes payload to one subscriber. A 404 or 410 answer yields an
// error wrapping ErrGone.
func (w *WebPush) Send(ctx context.Context, sub model.Subscriber, payload []byte) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	opts := w.opts
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &opts)
	if err != nil {
		return fmt.Errorf("sending push to %s: %w", sub.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &GoneError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 300:
		return fmt.Errorf("push service answered HTTP %d for %s", resp.StatusCode, sub.ID)
	}

	w.logger.Debug("push delivered",
		zap.String("subscriber", sub.ID),
		zap.Int("status", resp.StatusCode))
	return nil
}

// RemoveSubscriber deletes a subscription from the store.
func (w *WebPush) RemoveSubscriber(ctx context.Context, id string) error {
	return w.store.DeleteSubscriber(ctx, id)
}
