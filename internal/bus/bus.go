// Package bus is an in-process broadcast channel: every handler subscribed
// to a topic receives each published event on its own goroutine.
package bus

import (
	"context"
	gosync "sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
)

// Handler processes one mail event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, ev model.MailEvent) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus fans mail events out to named subscribers.
type Bus struct {
	mu     gosync.RWMutex
	topics map[string][]subscriber
	logger *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		topics: make(map[string][]subscriber),
		logger: logger.Named("bus"),
	}
}

// Subscribe registers h under name for topic.
func (b *Bus) Subscribe(topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.topics[topic] = append(b.topics[topic], subscriber{name: name, handler: h})
}

// Delivery tracks the handlers started by one Publish call.
type Delivery struct {
	wg conc.WaitGroup
}

// Wait blocks until every handler of the publish has returned.
func (d *Delivery) Wait() {
	d.wg.Wait()
}

// Publish starts every handler of topic and returns immediately. Handler
// errors and panics are logged and never reach the publisher or the other
// handlers.
func (b *Bus) Publish(ctx context.Context, topic string, ev model.MailEvent) *Delivery {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	d := &Delivery{}
	for _, s := range subs {
		d.wg.Go(func() {
			b.deliver(ctx, topic, s, ev)
		})
	}
	return d
}

func (b *Bus) deliver(ctx context.Context, topic string, s subscriber, ev model.MailEvent) {
	var pc panics.Catcher
	pc.Try(func() {
		if err := s.handler(ctx, ev); err != nil {
			b.logger.Error("subscriber failed",
				zap.String("topic", topic),
				zap.String("subscriber", s.name),
				zap.Uint32("seq", ev.SequenceNumber),
				zap.Error(err))
		}
	})
	if r := pc.Recovered(); r != nil {
		b.logger.Error("subscriber panicked",
			zap.String("topic", topic),
			zap.String("subscriber", s.name),
			zap.Uint32("seq", ev.SequenceNumber),
			zap.Error(r.AsError()))
	}
}
