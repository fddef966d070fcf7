// Package expiry resolves announced radio-network operations whose window
// has ended without an incident notice closing them.
package expiry

import (
	"time"

	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
)

// Resolver is the operation history the sweeper acts on. The predicate is
// called under the history's lock for each pending or in-progress operation.
type Resolver interface {
	ResolveWhere(expired func(model.OperationEvent) bool) []string
}

// Sweeper marks operations resolved once their announced window is over.
// It never sends notifications.
type Sweeper struct {
	history Resolver
	loc     *time.Location
	logger  *zap.Logger
}

// NewSweeper creates a sweeper reading windows in cfg's timezone.
func NewSweeper(history Resolver, cfg model.OperationConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		history: history,
		loc:     cfg.Location(),
		logger:  logger.Named("expiry"),
	}
}

// Sweep resolves every operation whose window ended strictly before now
// and returns the ids it resolved. Operations without a readable window
// are left alone.
func (s *Sweeper) Sweep(now time.Time) []string {
	resolved := s.history.ResolveWhere(func(ev model.OperationEvent) bool {
		if ev.DateTime == nil {
			s.logger.Debug("operation has no window", zap.String("id", ev.ID))
			return false
		}
		end, err := WindowEnd(*ev.DateTime, s.loc)
		if err != nil {
			s.logger.Debug("operation window unreadable",
				zap.String("id", ev.ID), zap.Error(err))
			return false
		}
		return end.Before(now)
	})

	if len(resolved) > 0 {
		s.logger.Info("expired operations resolved",
			zap.Int("count", len(resolved)),
			zap.Strings("ids", resolved))
	}
	return resolved
}
