package store

import (
	"context"
	"errors"

	"github.com/sdis/opsdash/internal/model"
)

// ErrNotFound is returned when a lookup or delete matches no row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for push subscribers.
type Store interface {
	UpsertSubscriber(ctx context.Context, sub model.Subscriber) (model.Subscriber, error)
	Subscribers(ctx context.Context, kind model.SubscriptionKind) ([]model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	DeleteSubscriberByEndpoint(ctx context.Context, endpoint string) error
	Close() error
}
