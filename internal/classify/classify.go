// Package classify turns parsed inbox messages into power-backup and
// radio-network events, keeps a bounded history of each, and pushes a
// notification the first time a message is seen.
package classify

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/notify"
)

// Notification subscribers for inbox events register under this kind.
const subscriptionKind = model.SubscriptionEmail

// safeExtract runs fn and logs instead of propagating a panic. Fields fn
// already set are kept.
func safeExtract(logger *zap.Logger, id string, fn func()) {
	if r := panics.Try(fn); r != nil {
		logger.Error("field extraction failed",
			zap.String("id", id), zap.Error(r.AsError()))
	}
}

func dispatch(ctx context.Context, notifier notify.Notifier, n model.Notification, logger *zap.Logger) {
	if notifier == nil {
		return
	}
	notify.Deliver(ctx, notifier, subscriptionKind, n, logger)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func joinNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}

func numberLabel(n string) string {
	if n == "" {
		return ""
	}
	return fmt.Sprintf(" n°%s", n)
}
