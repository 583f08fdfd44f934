package gameapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adhttp "github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/http"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cookieFile := filepath.Join(t.TempDir(), "cookies.json")
	httpClient, err := adhttp.NewClient("", cookieFile, "test-agent", nil, nil)
	require.NoError(t, err)

	profile := config.Qlyuker
	profile.BaseURL = serverURL
	return NewClient(httpClient, profile, nil)
}

func TestAuthenticateSetsBearerToken(t *testing.T) {
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/start":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "tg-data", body["startData"])
			w.Write([]byte(`{"token":"tok-123","user":{"uid":7},"game":{"currentCoins":100}}`))
		case "/game/sync":
			authHeader = r.Header.Get("Authorization")
			w.Write([]byte(`{"currentEnergy":400}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	snap, err := c.Authenticate(context.Background(), "tg-data")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.User.UID)
	require.NotNil(t, snap.Game.CurrentCoins)
	assert.Equal(t, int64(100), *snap.Game.CurrentCoins)

	_, err = c.Sync(context.Background(), 10, 500)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", authHeader)
}

func TestAuthenticateUnauthorizedIsUnrecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "banned", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Authenticate(context.Background(), "tg-data")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Unrecoverable())
}

func TestAuthenticateServerErrorIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Authenticate(context.Background(), "tg-data")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Unrecoverable())
}

func TestBuyUpgradeBusinessRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"cooldown"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.BuyUpgrade(context.Background(), "minerSpeed")
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestBuyUpgradeNetworkFaultIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := newTestClient(t, srv.URL)

	_, err := c.BuyUpgrade(context.Background(), "minerSpeed")
	assert.Error(t, err)
}

func TestSyncRejectsNegativeTaps(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0")
	_, err := c.Sync(context.Background(), -1, 100)
	assert.Error(t, err)
}

func TestOnboardingHeaderProgression(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Onboarding"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, _ = c.Sync(context.Background(), 0, 100)
	c.SetOnboardingStage(OnboardingTeam)
	_, _ = c.Sync(context.Background(), 0, 100)
	c.SetOnboardingStage(OnboardingComplete)
	_, _ = c.Sync(context.Background(), 0, 100)

	assert.Equal(t, []string{"null", "1", "2"}, seen)
}

func TestCookiePersistenceAcrossClients(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session_id"); err == nil {
			gotCookie = c.Value
		}
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cookieFile := filepath.Join(t.TempDir(), "cookies.json")
	profile := config.Qlyuker
	profile.BaseURL = srv.URL

	first, err := adhttp.NewClient("", cookieFile, "test-agent", nil, nil)
	require.NoError(t, err)
	_, err = NewClient(first, profile, nil).Sync(context.Background(), 0, 100)
	require.NoError(t, err)

	// a fresh client reading the same jar file must resend the cookie
	second, err := adhttp.NewClient("", cookieFile, "test-agent", nil, nil)
	require.NoError(t, err)
	_, err = NewClient(second, profile, nil).Sync(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, "abc", gotCookie)
}
