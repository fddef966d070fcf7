package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdis/opsdash/internal/model"
)

// UpsertSubscriber registers a push subscription. Re-registering the same
// endpoint for the same kind refreshes its keys and keeps the original ID.
func (s *SQLiteStore) UpsertSubscriber(
	ctx context.Context,
	sub model.Subscriber,
) (model.Subscriber, error) {
	if sub.Endpoint == "" {
		return model.Subscriber{}, fmt.Errorf("subscriber endpoint is required")
	}
	if !sub.Kind.Valid() {
		return model.Subscriber{}, fmt.Errorf("invalid subscription kind %q", sub.Kind)
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, kind, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (endpoint, kind) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth   = excluded.auth`,
		sub.ID, string(sub.Kind), sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt,
	)
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("upserting subscriber %s: %w", sub.Endpoint, err)
	}

	var stored model.Subscriber
	err = s.db.GetContext(ctx, &stored, `
		SELECT id, kind, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE endpoint = ? AND kind = ?`, sub.Endpoint, string(sub.Kind))
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("reloading subscriber %s: %w", sub.Endpoint, err)
	}

	return stored, nil
}

// Subscribers returns every subscription of the given kind, oldest first.
func (s *SQLiteStore) Subscribers(
	ctx context.Context,
	kind model.SubscriptionKind,
) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, kind, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE kind = ?
		ORDER BY created_at, id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying %s subscribers: %w", kind, err)
	}
	return subs, nil
}

// DeleteSubscriber removes a subscription by ID.
func (s *SQLiteStore) DeleteSubscriber(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting subscriber %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSubscriberByEndpoint removes every subscription registered for the
// endpoint, whatever its kind.
func (s *SQLiteStore) DeleteSubscriberByEndpoint(ctx context.Context, endpoint string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	if err != nil {
		return fmt.Errorf("deleting subscriber %s: %w", endpoint, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("subscriber %s: %w", endpoint, ErrNotFound)
	}
	return nil
}
