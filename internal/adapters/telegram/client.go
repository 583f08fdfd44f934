package telegram

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/amarnathcjd/gogram/telegram"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

type Config struct {
	AppID         int32
	AppHash       string
	StringSession string
	Proxy         string
	BotUsername   string
	AppShortName  string
	StartParam    string
}

// Client wraps a gogram MTProto session and exposes the two things the game
// loop needs from Telegram: a fresh webview token and channel joins for
// subscription tasks.
type Client struct {
	cfg Config
	log *logger.ClassLogger

	tg        *telegram.Client
	connected bool
}

func New(cfg Config, log *logger.ClassLogger) (*Client, error) {
	if cfg.StringSession == "" {
		return nil, fmt.Errorf("%w: empty session string", model.ErrInvalidSession)
	}

	clientCfg := telegram.ClientConfig{
		AppID:         cfg.AppID,
		AppHash:       cfg.AppHash,
		StringSession: cfg.StringSession,
		MemorySession: true,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		clientCfg.Proxy = proxyURL
	}

	tg, err := telegram.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return &Client{cfg: cfg, log: log, tg: tg}, nil
}

func (c *Client) connect() error {
	if c.connected {
		return nil
	}
	if err := c.tg.Connect(); err != nil {
		return fmt.Errorf("telegram connect failed: %w", err)
	}
	authed, err := c.tg.IsAuthorized()
	if err != nil {
		return fmt.Errorf("telegram authorization check failed: %w", err)
	}
	if !authed {
		return fmt.Errorf("%w: telegram session not authorized", model.ErrInvalidSession)
	}
	c.connected = true
	return nil
}

func (c *Client) Close() {
	if c.connected {
		c.tg.Stop()
		c.connected = false
	}
}

type startAppParams struct {
	StartApp string `url:"startapp"`
}

// WebviewToken opens the game's web app and extracts the tgWebAppData blob
// that the game API accepts as its login credential.
func (c *Client) WebviewToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.connect(); err != nil {
		return "", err
	}

	peer, err := c.tg.ResolvePeer(c.cfg.BotUsername)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve bot %s: %v", model.ErrInvalidSession, c.cfg.BotUsername, err)
	}
	botUser, ok := peer.(*telegram.InputPeerUser)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a bot peer", model.ErrInvalidSession, c.cfg.BotUsername)
	}

	params, err := utils.EncodeURLParams(startAppParams{StartApp: c.cfg.StartParam})
	if err != nil {
		return "", err
	}
	appURL := fmt.Sprintf("https://t.me/%s/%s?%s", c.cfg.BotUsername, c.cfg.AppShortName, params)

	webview, err := c.tg.MessagesRequestWebView(&telegram.MessagesRequestWebViewParams{
		Peer:        peer,
		Bot:         &telegram.InputUserObj{UserID: botUser.UserID, AccessHash: botUser.AccessHash},
		URL:         appURL,
		StartParam:  c.cfg.StartParam,
		Platform:    "ios",
		FromBotMenu: false,
	})
	if err != nil {
		return "", fmt.Errorf("webview request failed: %w", err)
	}
	if webview == nil || webview.URL == "" {
		return "", fmt.Errorf("%w: empty webview url", model.ErrInvalidSession)
	}

	token, err := extractWebAppData(webview.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidSession, err)
	}

	if c.log != nil {
		c.log.JustLog("Obtained fresh webview token")
	}
	return token, nil
}

// JoinChannel joins the team's broadcast channel. Best effort: the caller
// logs failures and moves on.
func (c *Client) JoinChannel(link string) error {
	if err := c.connect(); err != nil {
		return err
	}
	if _, err := c.tg.JoinChannel(link); err != nil {
		return fmt.Errorf("failed to join channel %s: %w", link, err)
	}
	return nil
}

// extractWebAppData pulls the URL-encoded tgWebAppData section out of the
// webview URL fragment.
func extractWebAppData(webviewURL string) (string, error) {
	const marker = "tgWebAppData="
	idx := strings.Index(webviewURL, marker)
	if idx < 0 {
		return "", fmt.Errorf("webview url carries no tgWebAppData")
	}
	data := webviewURL[idx+len(marker):]
	if end := strings.Index(data, "&tgWebAppVersion"); end >= 0 {
		data = data[:end]
	} else if end := strings.IndexByte(data, '&'); end >= 0 {
		data = data[:end]
	}
	decoded, err := url.QueryUnescape(data)
	if err != nil {
		return "", fmt.Errorf("cannot decode tgWebAppData: %w", err)
	}
	if decoded == "" {
		return "", fmt.Errorf("empty tgWebAppData")
	}
	return decoded, nil
}
