package classify

import (
	"context"
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/sdis/opsdash/internal/model"
)

type recordingNotifier struct {
	mu   gosync.Mutex
	subs []model.Subscriber
	sent []model.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		subs: []model.Subscriber{{ID: "sub-1", Kind: model.SubscriptionEmail, Endpoint: "https://push.example/1"}},
	}
}

func (r *recordingNotifier) Subscribers(context.Context, model.SubscriptionKind) ([]model.Subscriber, error) {
	return r.subs, nil
}

func (r *recordingNotifier) Send(_ context.Context, _ model.Subscriber, payload []byte) error {
	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) notifications() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.sent...)
}

// mailEvent builds a bus payload. An empty id yields a synthesized one.
func mailEvent(seq uint32, id, from, subject, text string, date time.Time) model.MailEvent {
	email := model.Email{
		SeqNum:    seq,
		MessageID: id,
		From:      from,
		Subject:   subject,
		Text:      text,
		Date:      date,
	}
	if id == "" {
		email.MessageID = model.SynthesizedID(seq)
		email.Synthesized = true
	}
	return model.NewMailEvent(email)
}

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 9, 0, 0, 0, time.UTC)
}
