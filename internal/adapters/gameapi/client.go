package gameapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	adhttp "github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/http"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
)

// AuthError wraps an authentication failure. Unrecoverable auth errors mean
// the credentials were rejected outright and the account must stop.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("authentication failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Unrecoverable reports whether the server rejected the credentials
// themselves rather than this particular attempt.
func (e *AuthError) Unrecoverable() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Onboarding header values the server expects at each stage of account setup.
const (
	OnboardingNone     = "null"
	OnboardingStarted  = "0"
	OnboardingTeam     = "1"
	OnboardingComplete = "2"
)

// Client translates typed game intents into authenticated HTTP calls. It
// holds no decision logic: business rejections come back as nil results and
// transport faults as errors for the loop to handle.
type Client struct {
	http    *adhttp.Client
	profile config.GameProfile
	log     *logger.ClassLogger

	onboardingStage string
}

func NewClient(httpClient *adhttp.Client, profile config.GameProfile, log *logger.ClassLogger) *Client {
	return &Client{
		http:            httpClient,
		profile:         profile,
		log:             log,
		onboardingStage: OnboardingNone,
	}
}

// SetOnboardingStage records how far account setup has progressed; the value
// is sent as the Onboarding header on every call.
func (c *Client) SetOnboardingStage(stage string) {
	c.onboardingStage = stage
}

func (c *Client) endpoint(path string) string {
	return c.profile.BaseURL + path
}

func (c *Client) headers(extra map[string]string) map[string]string {
	h := map[string]string{
		"Origin":     c.profile.Origin,
		"Referer":    c.profile.Referer,
		"Onboarding": c.onboardingStage,
	}
	for k, v := range c.profile.ExtraHeaders {
		h[k] = v
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (c *Client) post(ctx context.Context, path string, body interface{}, extraHeaders map[string]string, out interface{}) error {
	raw, err := c.http.Fetch(ctx, c.endpoint(path), &adhttp.FetchOptions{
		Method:            http.MethodPost,
		Body:              body,
		AdditionalHeaders: c.headers(extraHeaders),
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &adhttp.RequestError{Err: fmt.Errorf("malformed response for %s: %w", path, err)}
	}
	return nil
}

// Authenticate posts the webview token and returns the full game snapshot.
// The snapshot is the source of truth: callers rebuild their state from it.
func (c *Client) Authenticate(ctx context.Context, startData string) (*model.AuthSnapshot, error) {
	var snap model.AuthSnapshot
	payload := map[string]string{"startData": startData}
	if err := c.post(ctx, c.profile.AuthStartPath, payload, nil, &snap); err != nil {
		authErr := &AuthError{Err: err}
		var reqErr *adhttp.RequestError
		if errors.As(err, &reqErr) {
			authErr.StatusCode = reqErr.StatusCode
		}
		if authErr.Unrecoverable() {
			// a rejected credential means the persisted cookies are dead too
			_ = c.http.ClearCookies()
		}
		return nil, authErr
	}
	if snap.Token != "" {
		c.http.SetAuthToken(snap.Token)
	}
	return &snap, nil
}

// Sync reports taps accumulated since the last sync along with the
// client-observed energy; the server answers with authoritative state.
func (c *Client) Sync(ctx context.Context, taps, currentEnergy int) (*model.SyncResult, error) {
	if taps < 0 {
		return nil, fmt.Errorf("taps must be >= 0, got %d", taps)
	}
	payload := map[string]interface{}{
		"taps":          taps,
		"currentEnergy": currentEnergy,
		"clientTime":    time.Now().Unix(),
	}
	var res model.SyncResult
	if err := c.post(ctx, c.profile.SyncPath, payload, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BuyUpgrade attempts a purchase. A nil result with nil error is a business
// rejection (cooldown, insufficient funds, locked), not a fault.
func (c *Client) BuyUpgrade(ctx context.Context, upgradeID string) (*model.PurchaseResult, error) {
	payload := map[string]string{"upgradeId": upgradeID}
	headers := map[string]string{"Referer": c.profile.UpgradeReferer}
	var res model.PurchaseResult
	if err := c.post(ctx, c.profile.UpgradeBuyPath, payload, headers, &res); err != nil {
		return nil, c.rejectionOrError(err, fmt.Sprintf("upgrade %s not purchased", upgradeID))
	}
	return &res, nil
}

// CheckTask asks the server to verify a task. Nil result means rejected.
func (c *Client) CheckTask(ctx context.Context, taskID string) (*model.TaskCheckResult, error) {
	payload := map[string]string{"taskId": taskID}
	var res model.TaskCheckResult
	if err := c.post(ctx, c.profile.TaskCheckPath, payload, nil, &res); err != nil {
		return nil, c.rejectionOrError(err, fmt.Sprintf("task %s check rejected", taskID))
	}
	return &res, nil
}

// ClaimDaily claims the daily login reward. Nil result means not eligible.
func (c *Client) ClaimDaily(ctx context.Context) (*model.DailyClaimResult, error) {
	var res model.DailyClaimResult
	if err := c.post(ctx, c.profile.DailyClaimPath, map[string]string{}, nil, &res); err != nil {
		return nil, c.rejectionOrError(err, "daily reward not claimed")
	}
	return &res, nil
}

// BuyTicket buys one raffle ticket. Nil result means rejected.
func (c *Client) BuyTicket(ctx context.Context) (*model.TicketResult, error) {
	var res model.TicketResult
	if err := c.post(ctx, c.profile.RaffleBuyPath, map[string]string{}, nil, &res); err != nil {
		return nil, c.rejectionOrError(err, "raffle ticket not bought")
	}
	return &res, nil
}

type resultResponse struct {
	Result json.RawMessage `json:"result"`
}

// CompleteOnboarding accepts the given onboarding tier.
func (c *Client) CompleteOnboarding(ctx context.Context, tier int) error {
	var res resultResponse
	if err := c.post(ctx, c.profile.OnboardingPath, map[string]int{"tier": tier}, nil, &res); err != nil {
		return err
	}
	if len(res.Result) == 0 || string(res.Result) == "null" {
		return fmt.Errorf("onboarding tier %d rejected", tier)
	}
	return nil
}

// JoinTeam joins the default team for the given region. The server answers a
// repeated join with an error; a GET confirms membership in that case.
func (c *Client) JoinTeam(ctx context.Context, regionID int) error {
	var res resultResponse
	err := c.post(ctx, c.profile.TeamPath, map[string]int{"regionId": regionID}, nil, &res)
	if err == nil && len(res.Result) > 0 {
		return nil
	}

	var reqErr *adhttp.RequestError
	if err != nil && !errors.As(err, &reqErr) {
		return err
	}

	raw, getErr := c.http.Fetch(ctx, c.endpoint(c.profile.TeamPath), &adhttp.FetchOptions{
		Method:            http.MethodGet,
		AdditionalHeaders: c.headers(nil),
	})
	if getErr != nil {
		if err != nil {
			return err
		}
		return getErr
	}
	var check resultResponse
	if jsonErr := json.Unmarshal(raw, &check); jsonErr != nil || len(check.Result) == 0 {
		return fmt.Errorf("team join not confirmed")
	}
	return nil
}

type subscribeResponse struct {
	Result struct {
		Subscribed bool `json:"subscribed"`
	} `json:"result"`
}

// ConfirmTeamSubscription tells the server to recheck the team channel
// subscription and reports the server's verdict.
func (c *Client) ConfirmTeamSubscription(ctx context.Context) (bool, error) {
	var res subscribeResponse
	if err := c.post(ctx, c.profile.SubscribeTeamPath, nil, nil, &res); err != nil {
		return false, err
	}
	return res.Result.Subscribed, nil
}

// rejectionOrError maps an HTTP-status fault to a business rejection (nil
// error) and keeps genuine transport faults as errors. 4xx logs at info, the
// rest at warning, but control flow is identical.
func (c *Client) rejectionOrError(err error, msg string) error {
	var reqErr *adhttp.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		if c.log != nil {
			if reqErr.ClientFault() {
				c.log.JustLog(fmt.Sprintf("%s: %s", msg, reqErr.Status))
			} else {
				c.log.Log(fmt.Sprintf("%s: %s", msg, reqErr.Status))
			}
		}
		return nil
	}
	return err
}
