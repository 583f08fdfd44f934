package worker

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/gameapi"
	adhttp "github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/http"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/proxy"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/telegram"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/ui"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/accounts"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/statlog"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

// Run drives one account from setup to shutdown. It returns nil when the
// context is cancelled and an error only for failures worth surfacing to
// the orchestrator (the loop itself retries transient ones internally).
func Run(ctx context.Context, name string, index int, cfg config.Settings, profile config.GameProfile, store *accounts.Store, resolver *proxy.Resolver, stats *statlog.Store) error {
	session := model.NewSession(name, index)
	log := logger.NewNamed(fmt.Sprintf("Worker - %s", name), session)

	all, err := store.Load(ctx)
	if err != nil {
		return err
	}
	acc, ok := all[name]
	if !ok {
		return fmt.Errorf("account %s missing from accounts file", name)
	}

	if acc.UserAgent == "" {
		acc.UserAgent = utils.RandomUserAgent()
		if err := store.Update(ctx, name, func(a *accounts.Account) {
			a.UserAgent = acc.UserAgent
		}); err != nil {
			log.Log(fmt.Sprintf("Could not persist user agent: %v", err))
		}
	}

	proxyURL := ""
	if cfg.UseProxy {
		proxyURL, err = resolver.Resolve(ctx, name, acc.Proxy)
		if err != nil {
			log.Log(fmt.Sprintf("FATAL: No usable proxy: %v", err))
			return err
		}
	}
	session.SetProxy(proxyURL)

	cookieFile := cookieFilePath(name)
	if err := os.MkdirAll(filepath.Dir(cookieFile), 0o755); err != nil {
		log.Log(fmt.Sprintf("FATAL: Could not prepare cookie directory: %v", err))
		return err
	}

	httpClient, err := adhttp.NewClient(proxyURL, cookieFile, acc.UserAgent, nil, log)
	if err != nil {
		log.Log(fmt.Sprintf("FATAL: Could not initialize API client: %v", err))
		return err
	}
	if httpClient.HasCookies() {
		log.JustLog("Resuming persisted session cookies")
	}

	tgClient, err := telegram.New(telegram.Config{
		AppID:         cfg.APIID,
		AppHash:       cfg.APIHash,
		StringSession: acc.Session,
		Proxy:         proxyURL,
		BotUsername:   profile.BotUsername,
		AppShortName:  profile.AppShortName,
		StartParam:    profile.RefIDFor(name, cfg.RefID),
	}, log)
	if err != nil {
		log.Log(fmt.Sprintf("FATAL: Could not create telegram client: %v", err))
		return err
	}
	defer tgClient.Close()

	api := gameapi.NewClient(httpClient, profile, log)
	loop := NewGameLoop(session, cfg, profile, api, tgClient, stats, log)

	err = loop.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ui.SetSpinnerSuccess(session.Snapshot(), "Stopped")
		return nil
	case errors.Is(err, model.ErrInvalidSession):
		log.Log("Session revoked or banned, worker stopped")
		ui.SetSpinnerError(session.Snapshot(), "Session invalid")
		return err
	default:
		ui.SetSpinnerError(session.Snapshot(), "Stopped with error")
		return err
	}
}

func cookieFilePath(sessionName string) string {
	hash := sha1.Sum([]byte(sessionName))
	return filepath.Join("data", "cookies", hex.EncodeToString(hash[:])+".json")
}
