package classify

import (
	"context"
	"strings"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/notify"
)

// PowerClassifier recognizes mails from the UPS supervisor.
type PowerClassifier struct {
	cfg      model.PowerConfig
	senders  map[string]struct{}
	notifier notify.Notifier
	logger   *zap.Logger

	mu       gosync.Mutex
	history  *history[model.PowerEvent]
	notified notifiedSet
}

// NewPowerClassifier creates a classifier with an empty history. notifier
// may be nil, in which case events are recorded but never pushed.
func NewPowerClassifier(cfg model.PowerConfig, notifier notify.Notifier, logger *zap.Logger) *PowerClassifier {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	senders := make(map[string]struct{}, len(cfg.Senders))
	for _, s := range cfg.Senders {
		senders[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &PowerClassifier{
		cfg:      cfg,
		senders:  senders,
		notifier: notifier,
		logger:   logger.Named("power"),
		history:  newHistory[model.PowerEvent](cfg.Capacity),
		notified: make(notifiedSet),
	}
}

// Relevant reports whether msg comes from an allowed sender with the
// trigger subject.
func (c *PowerClassifier) Relevant(msg model.ParsedMessage) bool {
	if _, ok := c.senders[strings.ToLower(strings.TrimSpace(msg.From))]; !ok {
		return false
	}
	return msg.Subject == c.cfg.Subject
}

// Handle classifies one parsed message. It is a bus handler and never
// returns an error for irrelevant or partially extracted messages.
func (c *PowerClassifier) Handle(ctx context.Context, ev model.MailEvent) error {
	msg := ev.ParsedMessage
	if !c.Relevant(msg) {
		return nil
	}

	id, stable := ev.ID()
	event := model.PowerEvent{
		ID:          id,
		Type:        model.PowerAlert,
		From:        msg.From,
		Subject:     msg.Subject,
		Date:        msg.Date,
		Synthesized: !stable,
	}
	safeExtract(c.logger, id, func() {
		if IsAdministrative(msg.Text, c.cfg.AdministrativeMarker) {
			event.Type = model.PowerAdministrative
		}
		f := ExtractPowerFields(msg.Text)
		event.Message = f.Message
		event.Event = f.Event
		event.Timestamp = f.Timestamp
	})

	c.mu.Lock()
	replaced := c.history.upsert(event)
	send := c.notified.claim(id, !stable)
	c.mu.Unlock()

	c.logger.Debug("power event recorded",
		zap.String("id", id),
		zap.String("type", string(event.Type)),
		zap.Bool("replaced", replaced),
		zap.Bool("notify", send))

	if send {
		dispatch(ctx, c.notifier, powerNotification(event), c.logger)
	}
	return nil
}

// ListEvents returns a copy of the history, newest first.
func (c *PowerClassifier) ListEvents() []model.PowerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.snapshot()
}

// Notified reports whether a notification was already sent for id.
func (c *PowerClassifier) Notified(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified.has(id)
}

func powerNotification(e model.PowerEvent) model.Notification {
	title := "Alerte onduleur"
	if e.Type == model.PowerAdministrative {
		title = "Onduleur : message administratif"
	}
	return model.Notification{
		Title: title,
		Body:  orDefault(joinNonEmpty(" - ", e.Event, e.Message), e.Subject),
		Data: model.NotificationData{
			EmailType: model.EmailTypePower,
			ID:        e.ID,
		},
	}
}
