package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/store"
	"github.com/sdis/opsdash/tests/testutil"
)

func TestUpsertSubscriberKeepsIDOnReRegister(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertSubscriber(ctx, model.Subscriber{
		Kind:     model.SubscriptionEmail,
		Endpoint: "https://push.example/abc",
		P256dh:   "key-1",
		Auth:     "auth-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := s.UpsertSubscriber(ctx, model.Subscriber{
		Kind:     model.SubscriptionEmail,
		Endpoint: "https://push.example/abc",
		P256dh:   "key-2",
		Auth:     "auth-2",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "key-2", second.P256dh)

	subs, err := s.Subscribers(ctx, model.SubscriptionEmail)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestSubscribersFiltersByKind(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, sub := range []model.Subscriber{
		{Kind: model.SubscriptionEmail, Endpoint: "https://push.example/1"},
		{Kind: model.SubscriptionTicket, Endpoint: "https://push.example/1"},
		{Kind: model.SubscriptionEmail, Endpoint: "https://push.example/2"},
	} {
		_, err := s.UpsertSubscriber(ctx, sub)
		require.NoError(t, err)
	}

	email, err := s.Subscribers(ctx, model.SubscriptionEmail)
	require.NoError(t, err)
	assert.Len(t, email, 2)

	ticket, err := s.Subscribers(ctx, model.SubscriptionTicket)
	require.NoError(t, err)
	require.Len(t, ticket, 1)
	assert.Equal(t, "https://push.example/1", ticket[0].Endpoint)
}

func TestUpsertSubscriberRejectsInvalidInput(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSubscriber(ctx, model.Subscriber{Kind: model.SubscriptionEmail})
	assert.Error(t, err)

	_, err = s.UpsertSubscriber(ctx, model.Subscriber{Kind: "fax", Endpoint: "https://push.example/x"})
	assert.Error(t, err)
}

func TestDeleteSubscriber(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, model.Subscriber{
		Kind:     model.SubscriptionEmail,
		Endpoint: "https://push.example/gone",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSubscriber(ctx, sub.ID))

	err = s.DeleteSubscriber(ctx, sub.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	subs, err := s.Subscribers(ctx, model.SubscriptionEmail)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestDeleteSubscriberByEndpointRemovesAllKinds(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, kind := range []model.SubscriptionKind{model.SubscriptionEmail, model.SubscriptionTicket} {
		_, err := s.UpsertSubscriber(ctx, model.Subscriber{Kind: kind, Endpoint: "https://push.example/z"})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteSubscriberByEndpoint(ctx, "https://push.example/z"))

	for _, kind := range []model.SubscriptionKind{model.SubscriptionEmail, model.SubscriptionTicket} {
		subs, err := s.Subscribers(ctx, kind)
		require.NoError(t, err)
		assert.Empty(t, subs)
	}
}
