package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

// Account is one entry in the accounts file. The session string is a
// portable MTProto session export; proxy and user agent are sticky per
// account so the game sees a stable device.
type Account struct {
	Session   string `json:"session"`
	UserAgent string `json:"user_agent,omitempty"`
	Proxy     string `json:"proxy,omitempty"`
}

// Store reads and rewrites the shared accounts file. Multiple bot processes
// may point at the same file, so every write goes through an exclusive
// file lock.
type Store struct {
	path string
	lock *flock.Flock
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("accounts path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("accounts file %s: %w", path, err)
	}
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Load returns all accounts keyed by session name.
func (s *Store) Load(ctx context.Context) (map[string]Account, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()
	return s.read()
}

// Names returns the session names in stable order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Update applies fn to one account under the file lock and writes the
// result back. fn receives the current entry (zero value if absent).
func (s *Store) Update(ctx context.Context, name string, fn func(*Account)) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	acc := all[name]
	fn(&acc)
	all[name] = acc
	return s.write(all)
}

// acquire takes the exclusive lock with a jittered bounded wait so that
// concurrent workers updating different accounts do not stampede.
func (s *Store) acquire(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, utils.RandDuration(0.05, 0.2))
	if err != nil {
		return fmt.Errorf("accounts lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("accounts lock: timed out waiting for %s", s.lock.Path())
	}
	return nil
}

func (s *Store) read() (map[string]Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	all := map[string]Account{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &all); err != nil {
			return nil, fmt.Errorf("failed to parse accounts file %s: %w", s.path, err)
		}
	}
	return all, nil
}

func (s *Store) write(all map[string]Account) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write accounts file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace accounts file: %w", err)
	}
	return nil
}
