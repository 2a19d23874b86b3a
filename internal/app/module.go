// Package app composes the console: engine, push link and TUI, wired
// through fx so startup order and shutdown mirror each other.
package app

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/config"
	"github.com/relaydesk/relay/internal/link"
	"github.com/relaydesk/relay/internal/lock"
	"github.com/relaydesk/relay/internal/logging"
	"github.com/relaydesk/relay/internal/merger"
	"github.com/relaydesk/relay/internal/outbox"
	"github.com/relaydesk/relay/internal/pager"
	"github.com/relaydesk/relay/internal/profile"
	"github.com/relaydesk/relay/internal/push"
	"github.com/relaydesk/relay/internal/roster"
	"github.com/relaydesk/relay/internal/tui"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	ConfigPath string // optional override; empty = ~/.relay/config.toml
}

// Module returns the fx module for the console, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("relay",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLinkMachine,
			provideLock,
			provideCache,
			provideRoster,
			provideClient,
			providePager,
			provideSender,
			provideMerger,
			providePush,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("no config file, using defaults", zap.String("path", path))
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLinkMachine(b *bus.Bus) *link.Machine {
	return link.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(cfg *config.Config) (*chat.Cache, error) {
	return chat.NewCache(cfg.Inbox.CacheCapacity)
}

func provideRoster(cfg *config.Config) *roster.Projector {
	return roster.New(cfg.Inbox.ListPageSize)
}

func provideClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.API.BaseURL, cfg.API.Token,
		api.WithTimeout(cfg.APITimeout()))
}

func providePager(client *api.Client, cache *chat.Cache, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *pager.Controller {
	return pager.New(client, cache, b, logger, cfg.Inbox.PageSize, cfg.OlderDebounce())
}

func provideSender(client *api.Client, cache *chat.Cache, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *outbox.Sender {
	return outbox.New(client, cache, b, logger, cfg.SendTimeout())
}

func provideMerger(b *bus.Bus, cache *chat.Cache, r *roster.Projector, p *pager.Controller, logger *zap.Logger) *merger.Merger {
	return merger.New(b, cache, r, p, logger)
}

func providePush(cfg *config.Config, b *bus.Bus, machine *link.Machine, logger *zap.Logger) *push.Channel {
	return push.New(cfg.Push.URL, cfg.API.Token, b, machine, logger)
}

func provideApp(p Params, b *bus.Bus, r *roster.Projector, pg *pager.Controller, s *outbox.Sender, client *api.Client, machine *link.Machine, logger *zap.Logger) *tui.App {
	return tui.NewApp(b, r, pg, s, client, machine, logger, p.Profile)
}

func registerLifecycle(lc fx.Lifecycle, m *merger.Merger, ch *push.Channel, lk *lock.Lock, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Merger first so no push frame slips past unobserved.
			if err := m.Start(context.Background()); err != nil {
				return err
			}
			if cfg.Push.URL != "" {
				if err := ch.Start(context.Background()); err != nil {
					return err
				}
			} else {
				logger.Warn("no push url configured, running without live updates")
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			if cfg.Push.URL != "" {
				ch.Stop()
			}
			m.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("console stopped")
			return nil
		},
	})
}
