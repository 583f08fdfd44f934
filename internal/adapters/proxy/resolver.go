package proxy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/accounts"
)

const checkURL = "https://ifconfig.me/ip"

// Resolver hands each session a sticky proxy: the one recorded in the
// accounts file if it still works, otherwise a fresh one from the pool.
type Resolver struct {
	store *accounts.Store
	log   *logger.ClassLogger

	mu   sync.Mutex
	pool []string
	used map[string]bool
}

func NewResolver(store *accounts.Store, poolPath string, log *logger.ClassLogger) (*Resolver, error) {
	r := &Resolver{
		store: store,
		log:   log,
		used:  map[string]bool{},
	}
	if poolPath != "" {
		pool, err := loadPool(poolPath)
		if err != nil {
			return nil, err
		}
		r.pool = pool
	}
	return r, nil
}

func loadPool(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open proxy pool: %w", err)
	}
	defer f.Close()

	var pool []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pool = append(pool, line)
	}
	return pool, scanner.Err()
}

// MarkUsed records proxies already bound in the accounts file so they are
// not handed out twice.
func (r *Resolver) MarkUsed(proxy string) {
	if proxy == "" {
		return
	}
	r.mu.Lock()
	r.used[proxy] = true
	r.mu.Unlock()
}

// Resolve returns a working proxy for the session, rebinding and persisting
// a new one when the sticky proxy fails its liveness check.
func (r *Resolver) Resolve(ctx context.Context, sessionName, current string) (string, error) {
	if current != "" {
		if err := Validate(ctx, current); err == nil {
			r.MarkUsed(current)
			return current, nil
		}
		if r.log != nil {
			r.log.Log(fmt.Sprintf("Bound proxy for %s is dead, picking a new one", sessionName))
		}
	}

	next, err := r.nextAlive(ctx)
	if err != nil {
		return "", err
	}
	if err := r.store.Update(ctx, sessionName, func(acc *accounts.Account) {
		acc.Proxy = next
	}); err != nil {
		return "", err
	}
	return next, nil
}

func (r *Resolver) nextAlive(ctx context.Context) (string, error) {
	tried := map[string]bool{}
	for {
		p := r.reserve(tried)
		if p == "" {
			return "", fmt.Errorf("no working proxy left in the pool")
		}
		if err := Validate(ctx, p); err != nil {
			if r.log != nil {
				r.log.JustLog(fmt.Sprintf("Proxy %s failed check: %v", p, err))
			}
			tried[p] = true
			r.release(p)
			continue
		}
		return p, nil
	}
}

// reserve claims the next unused pool entry before it is validated, so two
// sessions resolving at once can never end up behind the same proxy.
func (r *Resolver) reserve(skip map[string]bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pool {
		if r.used[p] || skip[p] {
			continue
		}
		r.used[p] = true
		return p
	}
	return ""
}

func (r *Resolver) release(proxy string) {
	r.mu.Lock()
	delete(r.used, proxy)
	r.mu.Unlock()
}

// Validate probes the proxy with a short plain GET.
func Validate(ctx context.Context, proxyURL string) error {
	client := resty.New().
		SetProxy(proxyURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	resp, err := client.R().SetContext(ctx).Get(checkURL)
	if err != nil {
		return fmt.Errorf("proxy check failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("proxy check returned status %d", resp.StatusCode())
	}
	return nil
}
