package classify

import (
	"context"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/notify"
)

// OperationClassifier recognizes radio-network operation and incident
// notices and correlates them by operation number.
type OperationClassifier struct {
	notifier notify.Notifier
	logger   *zap.Logger

	mu       gosync.Mutex
	history  *history[model.OperationEvent]
	notified notifiedSet
}

// NewOperationClassifier creates a classifier with an empty history.
func NewOperationClassifier(cfg model.OperationConfig, notifier notify.Notifier, logger *zap.Logger) *OperationClassifier {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 200
	}
	return &OperationClassifier{
		notifier: notifier,
		logger:   logger.Named("operation"),
		history:  newHistory[model.OperationEvent](cfg.Capacity),
		notified: make(notifiedSet),
	}
}

// Handle classifies one parsed message.
func (c *OperationClassifier) Handle(ctx context.Context, ev model.MailEvent) error {
	msg := ev.ParsedMessage
	text := msg.Subject + "\n" + msg.Text

	kind, ok := MatchOperationKind(text)
	if !ok {
		return nil
	}

	id, stable := ev.ID()
	event := model.OperationEvent{
		ID:          id,
		Kind:        kind,
		From:        msg.From,
		Subject:     msg.Subject,
		Date:        msg.Date,
		Body:        msg.Text,
		Synthesized: !stable,
	}
	safeExtract(c.logger, id, func() {
		var f OperationFields
		if kind == model.KindOperation {
			f = ExtractOperationFields(text)
		} else {
			f = ExtractIncidentFields(text)
		}
		event.OperationNumber = f.Number
		event.Site = f.Site
		event.DateTime = f.DateTime
	})

	c.mu.Lock()
	event = c.applyLocked(event)
	send := c.notified.claim(id, !stable)
	c.mu.Unlock()

	c.logger.Debug("operation event recorded",
		zap.String("id", id),
		zap.String("kind", string(kind)),
		zap.String("operation", event.Number()),
		zap.String("status", string(event.Status)),
		zap.Bool("notify", send))

	if send {
		dispatch(ctx, c.notifier, operationNotification(event), c.logger)
	}
	return nil
}

// applyLocked upserts ev and recomputes the status of every operation it
// correlates with. It returns ev as stored.
func (c *OperationClassifier) applyLocked(ev model.OperationEvent) model.OperationEvent {
	number := ev.Number()

	switch ev.Kind {
	case model.KindOperation:
		ev.Status = c.inferLocked(number)
		// A re-delivered announcement keeps whatever status it already
		// reached, including a resolution by the expiry sweep.
		if prev, ok := c.history.get(ev.ID); ok {
			ev.Status = prev.Status.Max(ev.Status)
		}
		c.history.upsert(ev)

	case model.KindIncidentStart:
		ev.Status = model.StatusInProgress
		c.history.upsert(ev)
		c.advanceLocked(number, model.StatusInProgress)

	case model.KindIncidentEnd:
		ev.Status = model.StatusResolved
		c.history.upsert(ev)
		c.advanceLocked(number, model.StatusResolved)
	}
	return ev
}

// inferLocked derives an operation's status from the incidents recorded
// for its number.
func (c *OperationClassifier) inferLocked(number string) model.OperationStatus {
	if number == "" {
		return model.StatusPending
	}
	status := model.StatusPending
	c.history.each(func(e model.OperationEvent) {
		if e.Number() != number {
			return
		}
		switch e.Kind {
		case model.KindIncidentEnd:
			status = model.StatusResolved
		case model.KindIncidentStart:
			status = status.Max(model.StatusInProgress)
		}
	})
	return status
}

// advanceLocked moves every operation with number to at least status.
func (c *OperationClassifier) advanceLocked(number string, status model.OperationStatus) {
	if number == "" {
		return
	}
	n := c.history.update(func(e *model.OperationEvent) bool {
		if e.Kind != model.KindOperation || e.Number() != number {
			return false
		}
		next := e.Status.Max(status)
		if next == e.Status {
			return false
		}
		e.Status = next
		return true
	})
	if n > 0 {
		c.logger.Info("operation status advanced",
			zap.String("operation", number),
			zap.String("status", string(status)))
	}
}

// ResolveWhere marks every pending or in-progress operation for which
// expired returns true as resolved, and returns their ids. expired runs
// under the classifier lock and must not call back into the classifier.
func (c *OperationClassifier) ResolveWhere(expired func(model.OperationEvent) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resolved []string
	c.history.update(func(e *model.OperationEvent) bool {
		if e.Kind != model.KindOperation || e.Status == model.StatusResolved {
			return false
		}
		if !expired(*e) {
			return false
		}
		e.Status = model.StatusResolved
		resolved = append(resolved, e.ID)
		return true
	})
	return resolved
}

// ListEvents returns a copy of the history, newest first.
func (c *OperationClassifier) ListEvents() []model.OperationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.snapshot()
}

// Notified reports whether a notification was already sent for id.
func (c *OperationClassifier) Notified(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notified.has(id)
}

func operationNotification(e model.OperationEvent) model.Notification {
	var title string
	switch e.Kind {
	case model.KindIncidentStart:
		title = "Début d'incident INPT" + numberLabel(e.Number())
	case model.KindIncidentEnd:
		title = "Fin d'incident INPT" + numberLabel(e.Number())
	default:
		title = "Opération INPT programmée" + numberLabel(e.Number())
	}
	return model.Notification{
		Title: title,
		Body:  orDefault(joinNonEmpty(" - ", deref(e.Site), deref(e.DateTime)), e.Subject),
		Data: model.NotificationData{
			EmailType: model.EmailTypeOperation,
			ID:        e.ID,
		},
	}
}
