package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/tests/testutil"
)

type fakeNotifier struct {
	mu       sync.Mutex
	subs     []model.Subscriber
	results  map[string]error
	payloads map[string][]byte
	removed  chan string
}

func (f *fakeNotifier) Subscribers(context.Context, model.SubscriptionKind) ([]model.Subscriber, error) {
	return f.subs, nil
}

func (f *fakeNotifier) Send(_ context.Context, sub model.Subscriber, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]byte)
	}
	f.payloads[sub.ID] = payload
	return f.results[sub.ID]
}

func (f *fakeNotifier) RemoveSubscriber(_ context.Context, id string) error {
	f.removed <- id
	return nil
}

func TestDeliverIsolatesRecipients(t *testing.T) {
	f := &fakeNotifier{
		subs: []model.Subscriber{{ID: "ok-1"}, {ID: "broken"}, {ID: "gone"}, {ID: "ok-2"}},
		results: map[string]error{
			"broken": errors.New("connection reset"),
			"gone":   &GoneError{StatusCode: http.StatusGone},
		},
		removed: make(chan string, 1),
	}

	n := model.Notification{
		Title: "Alerte onduleur",
		Body:  "Coupure secteur",
		Data:  model.NotificationData{EmailType: model.EmailTypePower, ID: "abc@ups"},
	}
	out := Deliver(context.Background(), f, model.SubscriptionEmail, n, zap.NewNop())

	assert.Equal(t, Outcome{Recipients: 4, Sent: 2, Failed: 1, Gone: 1}, out)
	assert.Len(t, f.payloads, 4)

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(f.payloads["ok-1"], &decoded))
	assert.Equal(t, n, decoded)

	select {
	case id := <-f.removed:
		assert.Equal(t, "gone", id)
	case <-time.After(2 * time.Second):
		t.Fatal("gone subscriber was not removed")
	}
}

func TestDeliverWithoutSubscribers(t *testing.T) {
	f := &fakeNotifier{}
	out := Deliver(context.Background(), f, model.SubscriptionEmail, model.Notification{}, zap.NewNop())
	assert.Equal(t, Outcome{}, out)
}

func TestGoneErrorUnwraps(t *testing.T) {
	var err error = &GoneError{StatusCode: http.StatusNotFound}
	assert.True(t, errors.Is(err, ErrGone))
	assert.Contains(t, err.Error(), "404")
}

func newBrowserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func TestWebPushSendMapsStatus(t *testing.T) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	cases := []struct {
		name    string
		status  int
		wantErr error
		anyErr  bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: ErrGone},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrGone},
		{name: "server error", status: http.StatusInternalServerError, anyErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			s := testutil.NewTestStore(t)
			wp := NewWebPush(model.PushConfig{
				VAPIDPublicKey:  pub,
				VAPIDPrivateKey: priv,
				Subscriber:      "mailto:test@example.com",
				TTL:             60,
			}, s, zap.NewNop())

			p256dh, auth := newBrowserKeys(t)
			err := wp.Send(context.Background(), model.Subscriber{
				ID:       "sub-1",
				Endpoint: srv.URL,
				P256dh:   p256dh,
				Auth:     auth,
			}, []byte(`{"title":"t"}`))

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrGone)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebPushRemoveSubscriber(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	sub, err := s.UpsertSubscriber(ctx, model.Subscriber{
		Kind:     model.SubscriptionEmail,
		Endpoint: "https://push.example/1",
	})
	require.NoError(t, err)

	wp := NewWebPush(model.PushConfig{}, s, zap.NewNop())
	subs, err := wp.Subscribers(ctx, model.SubscriptionEmail)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, wp.RemoveSubscriber(ctx, sub.ID))

	subs, err = wp.Subscribers(ctx, model.SubscriptionEmail)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
