package accounts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewStoreRequiresExistingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = NewStore("")
	assert.Error(t, err)
}

func TestLoadAndNames(t *testing.T) {
	path := writeAccountsFile(t, `{
		"beta":  {"session": "s2", "proxy": "socks5://10.0.0.1:1080"},
		"alpha": {"session": "s1", "user_agent": "ua-1"}
	}`)
	store, err := NewStore(path)
	require.NoError(t, err)

	all, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s1", all["alpha"].Session)
	assert.Equal(t, "socks5://10.0.0.1:1080", all["beta"].Proxy)

	names, err := store.Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestUpdatePersists(t *testing.T) {
	path := writeAccountsFile(t, `{"alpha": {"session": "s1"}}`)
	store, err := NewStore(path)
	require.NoError(t, err)

	err = store.Update(context.Background(), "alpha", func(a *Account) {
		a.UserAgent = "ua-new"
		a.Proxy = "http://1.2.3.4:8080"
	})
	require.NoError(t, err)

	// reopen to prove it hit the disk, not just memory
	reopened, err := NewStore(path)
	require.NoError(t, err)
	all, err := reopened.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ua-new", all["alpha"].UserAgent)
	assert.Equal(t, "http://1.2.3.4:8080", all["alpha"].Proxy)
	assert.Equal(t, "s1", all["alpha"].Session)
}

func TestUpdateConcurrent(t *testing.T) {
	path := writeAccountsFile(t, `{"alpha": {"session": "s1"}, "beta": {"session": "s2"}}`)
	store, err := NewStore(path)
	require.NoError(t, err)

	done := make(chan error, 2)
	for _, name := range []string{"alpha", "beta"} {
		name := name
		go func() {
			done <- store.Update(context.Background(), name, func(a *Account) {
				a.UserAgent = "ua-" + name
			})
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	all, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ua-alpha", all["alpha"].UserAgent)
	assert.Equal(t, "ua-beta", all["beta"].UserAgent)
}
