package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/proxy"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/app/worker"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/accounts"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/statlog"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

type App struct {
	cfg     config.Settings
	profile config.GameProfile
}

func New(cfg config.Settings) *App {
	return &App{cfg: cfg, profile: config.Qlyuker}
}

// Run starts one worker goroutine per account and blocks until all of them
// return. A dead session stops only its own worker; the group is torn down
// by context cancellation.
func (app *App) Run(ctx context.Context) error {
	store, err := accounts.NewStore(app.cfg.AccountsPath)
	if err != nil {
		return err
	}
	names, err := store.Names(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no accounts in %s", app.cfg.AccountsPath)
	}

	stats, err := statlog.NewStore("data/qlyuker.db")
	if err != nil {
		return err
	}
	defer stats.Close()

	appLog := logger.NewNamed("Orchestrator", nil)

	var resolver *proxy.Resolver
	if app.cfg.UseProxy {
		resolver, err = proxy.NewResolver(store, app.cfg.ProxiesPath, appLog)
		if err != nil {
			return err
		}
		all, err := store.Load(ctx)
		if err != nil {
			return err
		}
		for _, acc := range all {
			resolver.MarkUsed(acc.Proxy)
		}
	}

	appLog.JustLog(fmt.Sprintf("Starting %d workers", len(names)))

	g, gctx := errgroup.WithContext(ctx)
	for idx, name := range names {
		idx, name := idx, name
		g.Go(func() error {
			if app.cfg.SessionStartDelayMax > 0 && idx > 0 {
				delay := utils.RandDuration(1, float64(app.cfg.SessionStartDelayMax))
				t := time.NewTimer(delay)
				select {
				case <-gctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}

			err := worker.Run(gctx, name, idx, app.cfg, app.profile, store, resolver, stats)
			if err != nil && !errors.Is(err, model.ErrInvalidSession) {
				appLog.JustLog(fmt.Sprintf("Worker %s stopped: %v", name, err))
			}
			// one account failing must not take the others down
			return nil
		})
	}
	return g.Wait()
}
