package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/api"
	"github.com/sdis/opsdash/internal/bus"
	"github.com/sdis/opsdash/internal/classify"
	"github.com/sdis/opsdash/internal/credential"
	"github.com/sdis/opsdash/internal/expiry"
	"github.com/sdis/opsdash/internal/logging"
	"github.com/sdis/opsdash/internal/mailbox"
	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/notify"
	"github.com/sdis/opsdash/internal/store"
	"github.com/sdis/opsdash/internal/sync"
)

// BuildContainer creates and configures a dependency injection container
// for the configuration file at configPath.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		// Configuration and logging
		func() (*model.AppConfig, error) {
			cfg, err := model.LoadConfig(configPath)
			if err != nil {
				return nil, err
			}
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid configuration: %w", err)
			}
			return cfg, nil
		},
		logging.FromAppConfig,

		// Persistence and delivery
		store.OpenFromConfig,
		func(s *store.SQLiteStore) store.Store { return s },
		func(cfg *model.AppConfig, s store.Store, logger *zap.Logger) notify.Notifier {
			return notify.NewWebPush(cfg.Push, s, logger)
		},

		// Mail pipeline
		newSession,
		func(cfg *model.AppConfig, n notify.Notifier, logger *zap.Logger) *classify.PowerClassifier {
			return classify.NewPowerClassifier(cfg.Power, n, logger)
		},
		func(cfg *model.AppConfig, n notify.Notifier, logger *zap.Logger) *classify.OperationClassifier {
			return classify.NewOperationClassifier(cfg.Operation, n, logger)
		},
		newBus,
		func(cfg *model.AppConfig, c *classify.OperationClassifier, logger *zap.Logger) *expiry.Sweeper {
			return expiry.NewSweeper(c, cfg.Operation, logger)
		},
		func(
			cfg *model.AppConfig,
			s *mailbox.Session,
			b *bus.Bus,
			sw *expiry.Sweeper,
			logger *zap.Logger,
		) *sync.Poller {
			return sync.New(s, b, sw, cfg.Poller, cfg.Mailbox.Lookback, logger)
		},

		// HTTP
		newServer,
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}

	return container, nil
}

// newSession resolves the mailbox password from the keyring when the
// configuration only names a key.
func newSession(cfg *model.AppConfig, logger *zap.Logger) (*mailbox.Session, error) {
	mbCfg := cfg.Mailbox
	if mbCfg.Password == "" && mbCfg.PasswordKey != "" {
		creds, err := credential.Open()
		if err != nil {
			return nil, err
		}
		if err := credential.ResolveMailboxPassword(&mbCfg, creds); err != nil {
			return nil, err
		}
	}
	return mailbox.NewSession(mbCfg, logger), nil
}

// newBus subscribes both classifiers to parsed mail.
func newBus(
	power *classify.PowerClassifier,
	operations *classify.OperationClassifier,
	logger *zap.Logger,
) *bus.Bus {
	b := bus.New(logger)
	b.Subscribe(model.TopicMailParsed, "power", power.Handle)
	b.Subscribe(model.TopicMailParsed, "operation", operations.Handle)
	return b
}

func newServer(
	cfg *model.AppConfig,
	power *classify.PowerClassifier,
	operations *classify.OperationClassifier,
	poller *sync.Poller,
	s store.Store,
	logger *zap.Logger,
) *api.Server {
	return api.NewServer(cfg.HTTP, api.Deps{
		Power:          power,
		Operations:     operations,
		Scheduler:      poller,
		Subscriptions:  s,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
	}, logger)
}
