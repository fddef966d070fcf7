// Package notify delivers push notifications to subscribers, one recipient
// at a time, and cleans up subscriptions the push service reports as gone.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
)

// ErrGone marks a subscription the push service no longer knows (HTTP 404/410).
var ErrGone = errors.New("push subscription gone")

// Notifier is the narrow capability classifiers need to alert subscribers.
type Notifier interface {
	Subscribers(ctx context.Context, kind model.SubscriptionKind) ([]model.Subscriber, error)
	Send(ctx context.Context, sub model.Subscriber, payload []byte) error
}

// Remover is implemented by notifiers that can drop a dead subscription.
type Remover interface {
	RemoveSubscriber(ctx context.Context, id string) error
}

// Outcome counts per-recipient results of one Deliver call.
type Outcome struct {
	Recipients int
	Sent       int
	Failed     int
	Gone       int
}

// removeTimeout bounds the asynchronous cleanup of a gone subscription.
const removeTimeout = 10 * time.Second

// Deliver pushes n to every subscriber of kind. A failure for one recipient
// never prevents delivery to the others. Gone subscriptions are removed in
// the background when the notifier supports it.
func Deliver(
	ctx context.Context,
	notifier Notifier,
	kind model.SubscriptionKind,
	n model.Notification,
	logger *zap.Logger,
) Outcome {
	subs, err := notifier.Subscribers(ctx, kind)
	if err != nil {
		logger.Error("loading push subscribers failed",
			zap.String("kind", string(kind)), zap.Error(err))
		return Outcome{}
	}
	if len(subs) == 0 {
		logger.Debug("no push subscribers", zap.String("kind", string(kind)))
		return Outcome{}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		logger.Error("encoding notification failed", zap.Error(err))
		return Outcome{Recipients: len(subs), Failed: len(subs)}
	}

	remover, canRemove := notifier.(Remover)

	var sent, failed, gone atomic.Int64
	var wg conc.WaitGroup
	for _, sub := range subs {
		wg.Go(func() {
			err := notifier.Send(ctx, sub, payload)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, ErrGone):
				gone.Add(1)
				logger.Info("push subscription gone",
					zap.String("subscriber", sub.ID))
				if canRemove {
					go removeSubscriber(remover, sub.ID, logger)
				}
			default:
				failed.Add(1)
				logger.Warn("push delivery failed",
					zap.String("subscriber", sub.ID), zap.Error(err))
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		logger.Error("push delivery panicked", zap.Error(r.AsError()))
	}

	out := Outcome{
		Recipients: len(subs),
		Sent:       int(sent.Load()),
		Failed:     int(failed.Load()),
		Gone:       int(gone.Load()),
	}
	logger.Info("notification dispatched",
		zap.String("kind", string(kind)),
		zap.String("title", n.Title),
		zap.Int("recipients", out.Recipients),
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed),
		zap.Int("gone", out.Gone),
	)
	return out
}

func removeSubscriber(r Remover, id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := r.RemoveSubscriber(ctx, id); err != nil {
		logger.Warn("removing gone subscriber failed",
			zap.String("subscriber", id), zap.Error(err))
		return
	}
	logger.Debug("removed gone subscriber", zap.String("subscriber", id))
}

// GoneError wraps ErrGone with the HTTP status the push service returned.
type GoneError struct {
	StatusCode int
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("push subscription gone (HTTP %d)", e.StatusCode)
}

func (e *GoneError) Unwrap() error { return ErrGone }
