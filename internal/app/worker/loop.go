package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/gameapi"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/storage/statlog"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

const (
	energyExitFloor    = 50
	energyRestoreLevel = 100
	tapBatchCushion    = 5

	sleepMin        = 60 * time.Second
	sleepMax        = 30 * time.Minute
	sleepSyncEvery  = 5 * time.Minute
	sleepWakeFactor = 0.8

	authBackoff     = 30 * time.Second
	authMaxAttempts = 3
	syncRetryPause  = 10 * time.Second
	maxSyncFailures = 3
)

type gameAPI interface {
	Authenticate(ctx context.Context, startData string) (*model.AuthSnapshot, error)
	Sync(ctx context.Context, taps, currentEnergy int) (*model.SyncResult, error)
	BuyUpgrade(ctx context.Context, upgradeID string) (*model.PurchaseResult, error)
	CheckTask(ctx context.Context, taskID string) (*model.TaskCheckResult, error)
	ClaimDaily(ctx context.Context) (*model.DailyClaimResult, error)
	BuyTicket(ctx context.Context) (*model.TicketResult, error)
	CompleteOnboarding(ctx context.Context, tier int) error
	JoinTeam(ctx context.Context, regionID int) error
	ConfirmTeamSubscription(ctx context.Context) (bool, error)
	SetOnboardingStage(stage string)
}

type tokenProvider interface {
	WebviewToken(ctx context.Context) (string, error)
	JoinChannel(link string) error
}

type statsStore interface {
	DayStats(session string, day time.Time) (statlog.DayStats, error)
	AddTaps(session string, day time.Time, taps int, coins int64) error
	IncrementUpgrades(session string, day time.Time) error
	IncrementRestores(session string, day time.Time) (int, error)
	IncrementRestoreFails(session string, day time.Time) (int, error)
	MarkDailyClaimed(session string, day time.Time) error
	DailyClaimed(session string, day time.Time) (bool, error)
	IncrementTickets(session string, day time.Time) error
}

// GameLoop drives one account through its phases until the context is
// cancelled or the session turns out to be dead. It owns its AccountState
// exclusively; nothing here is shared with other accounts.
type GameLoop struct {
	session *model.Session
	cfg     config.Settings
	profile config.GameProfile

	api    gameAPI
	tokens tokenProvider
	stats  statsStore
	log    *logger.ClassLogger

	planner *UpgradePlanner
	state   *model.AccountState

	teamLink      string
	lastRaffleBuy time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGameLoop(session *model.Session, cfg config.Settings, profile config.GameProfile, api gameAPI, tokens tokenProvider, stats statsStore, log *logger.ClassLogger) *GameLoop {
	return &GameLoop{
		session: session,
		cfg:     cfg,
		profile: profile,
		api:     api,
		tokens:  tokens,
		stats:   stats,
		log:     log,
		planner: NewUpgradePlanner(profile.ExcludedUpgrades),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes cycles forever. Transient failures cool the loop down for
// 60-120s; only a dead session or context cancellation ends it.
func (l *GameLoop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := l.runCycle(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, model.ErrInvalidSession) {
			l.session.SetPhase("dead")
			l.log.Log(fmt.Sprintf("Session is invalid, stopping: %v", err))
			return err
		}

		cooldown := utils.RandDuration(60, 120)
		l.log.Log(fmt.Sprintf("Cycle failed: %v. Cooling down for %s", err, cooldown.Round(time.Second)))
		if serr := l.log.Countdown(ctx, "Cooldown", cooldown); serr != nil {
			return serr
		}
	}
}

// runCycle contains a panicking phase so it takes the regular cooldown path
// instead of tearing down every worker in the process.
func (l *GameLoop) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return l.cycle(ctx)
}

func (l *GameLoop) cycle(ctx context.Context) error {
	if err := l.authenticate(ctx); err != nil {
		return err
	}
	if err := l.onboard(ctx); err != nil {
		return err
	}
	if l.cfg.EnableTaps {
		if err := l.tapPhase(ctx); err != nil {
			return err
		}
	}
	if l.cfg.EnableTasks {
		if err := l.taskPhase(ctx); err != nil {
			return err
		}
	}
	if l.cfg.EnableUpgrades {
		if err := l.upgradePhase(ctx); err != nil {
			return err
		}
	}
	if l.cfg.EnableDaily {
		if err := l.dailyPhase(ctx); err != nil {
			return err
		}
	}
	if l.cfg.RaffleEnabledFor(l.session.Name()) {
		if err := l.rafflePhase(ctx); err != nil {
			return err
		}
	}
	return l.sleepPhase(ctx)
}

func (l *GameLoop) authenticate(ctx context.Context) error {
	l.session.SetPhase("auth")

	var lastErr error
	for attempt := 1; attempt <= authMaxAttempts; attempt++ {
		token, err := l.tokens.WebviewToken(ctx)
		if err != nil {
			if errors.Is(err, model.ErrInvalidSession) {
				return err
			}
			lastErr = err
		} else {
			snap, err := l.api.Authenticate(ctx, token)
			if err == nil {
				l.applySnapshot(snap)
				l.log.Log(fmt.Sprintf("Authenticated. Coins: %d, Energy: %d/%d, Income: %d/h",
					l.state.Coins, l.state.Energy.Current, l.state.Energy.Max, l.state.IncomePerHour))
				l.log.LogObject("Account state after auth", l.state)
				return nil
			}
			var authErr *gameapi.AuthError
			if errors.As(err, &authErr) && authErr.Unrecoverable() {
				return fmt.Errorf("%w: %v", model.ErrInvalidSession, err)
			}
			lastErr = err
		}

		l.log.Log(fmt.Sprintf("Auth attempt %d/%d failed: %v", attempt, authMaxAttempts, lastErr))
		if attempt < authMaxAttempts {
			if err := l.sleep(ctx, authBackoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("authentication failed: %w", lastErr)
}

func (l *GameLoop) applySnapshot(snap *model.AuthSnapshot) {
	l.state = model.BuildAccountState(snap, l.now())
	if len(l.state.UpgradeDelays) == 0 {
		for level, delay := range l.profile.DefaultUpgradeDelay {
			l.state.UpgradeDelays[level] = delay
		}
	}
	l.teamLink = snap.TeamChannelLink(l.profile.DefaultRegionID)

	// a restart must not hand back restores already spent today
	if l.stats != nil {
		if st, err := l.stats.DayStats(l.session.Name(), l.now()); err == nil {
			if st.RestoresUsed > l.state.Restore.Used {
				l.state.Restore.Used = st.RestoresUsed
			}
		} else {
			l.log.JustLog(fmt.Sprintf("Stats read failed: %v", err))
		}
	}

	l.session.UpdateFromState(l.state)

	switch {
	case l.state.OnboardingTier >= 2:
		l.api.SetOnboardingStage(gameapi.OnboardingComplete)
	case l.state.OnboardingTier == 1:
		l.api.SetOnboardingStage(gameapi.OnboardingTeam)
	default:
		l.api.SetOnboardingStage(gameapi.OnboardingNone)
	}
}

func (l *GameLoop) onboard(ctx context.Context) error {
	if l.state.OnboardingTier >= 2 && l.state.TeamJoined {
		return nil
	}
	l.session.SetPhase("onboarding")

	if l.state.OnboardingTier < 1 {
		l.api.SetOnboardingStage(gameapi.OnboardingStarted)
		var err error
		for attempt := 0; attempt < 3; attempt++ {
			if err = l.api.CompleteOnboarding(ctx, 1); err == nil {
				break
			}
			l.log.Log(fmt.Sprintf("Onboarding step failed: %v", err))
			if serr := l.sleep(ctx, utils.RandDuration(3, 6)); serr != nil {
				return serr
			}
		}
		if err != nil {
			return fmt.Errorf("onboarding blocked: %w", err)
		}
		l.state.OnboardingTier = 1
		l.api.SetOnboardingStage(gameapi.OnboardingTeam)
		l.log.Log("Onboarding accepted")
	}

	if !l.state.TeamJoined {
		if err := l.api.JoinTeam(ctx, l.profile.DefaultRegionID); err != nil {
			l.log.Log(fmt.Sprintf("Team join failed: %v", err))
		}
		if l.teamLink != "" {
			if err := l.tokens.JoinChannel(l.teamLink); err != nil {
				l.log.JustLog(fmt.Sprintf("Team channel join failed: %v", err))
			}
			if serr := l.sleep(ctx, utils.RandDuration(2, 5)); serr != nil {
				return serr
			}
		}
		subscribed, err := l.api.ConfirmTeamSubscription(ctx)
		if err != nil {
			l.log.JustLog(fmt.Sprintf("Team subscription confirm failed: %v", err))
		}
		if subscribed {
			l.state.TeamJoined = true
			l.log.Log("Joined the team")
		}
	}

	if l.state.OnboardingTier < 2 {
		if err := l.api.CompleteOnboarding(ctx, 2); err != nil {
			l.log.JustLog(fmt.Sprintf("Onboarding finish failed: %v", err))
		} else {
			l.state.OnboardingTier = 2
		}
	}
	l.api.SetOnboardingStage(gameapi.OnboardingComplete)
	return nil
}

// tapBatch picks how many taps to send given the current energy. Bigger
// reserves allow bigger bursts; the batch never drains energy below the
// cushion.
func tapBatch(energy int) int {
	var taps int
	switch {
	case energy > 200:
		taps = utils.RandInt(35, 45)
	case energy > 100:
		taps = utils.RandInt(25, 35)
	default:
		taps = utils.RandInt(15, 25)
	}
	if max := energy - tapBatchCushion; taps > max {
		taps = max
	}
	return taps
}

func (l *GameLoop) tapPhase(ctx context.Context) error {
	l.session.SetPhase("tapping")
	failures := 0

	for l.state.Energy.Current > energyExitFloor {
		if err := ctx.Err(); err != nil {
			return err
		}

		taps := tapBatch(l.state.Energy.Current)
		if taps <= 0 {
			break
		}

		res, err := l.api.Sync(ctx, taps, l.state.Energy.Current)
		if err != nil {
			failures++
			if failures >= maxSyncFailures {
				return fmt.Errorf("sync kept failing: %w", err)
			}
			l.log.Log(fmt.Sprintf("Sync failed (%d/%d): %v", failures, maxSyncFailures, err))
			if serr := l.sleep(ctx, syncRetryPause); serr != nil {
				return serr
			}
			continue
		}
		failures = 0

		before := l.state.Coins
		l.state.ApplySync(res)
		l.session.AddTaps(taps)
		l.session.UpdateFromState(l.state)
		if l.stats != nil {
			earned := l.state.Coins - before
			if earned < 0 {
				earned = 0
			}
			if err := l.stats.AddTaps(l.session.Name(), l.now(), taps, earned); err != nil {
				l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
			}
		}

		if l.state.Energy.Current <= energyRestoreLevel {
			if restored, err := l.tryRestore(ctx); err != nil {
				return err
			} else if !restored && l.state.Energy.Current <= energyExitFloor {
				break
			}
		}

		if serr := l.sleep(ctx, utils.RandDuration(l.cfg.SleepBetweenTapsMin, l.cfg.SleepBetweenTapsMax)); serr != nil {
			return serr
		}
	}

	l.log.Log(fmt.Sprintf("Tapping done. Energy: %d/%d, Coins: %d",
		l.state.Energy.Current, l.state.Energy.Max, l.state.Coins))
	return nil
}

// tryRestore spends one daily energy restore if the budget allows. Two
// consecutive rejections burn the budget for the day without further
// network calls.
func (l *GameLoop) tryRestore(ctx context.Context) (bool, error) {
	l.state.Restore.ResetIfNewDay(l.now())
	if l.state.Restore.Exhausted() {
		return false, nil
	}

	res, err := l.api.BuyUpgrade(ctx, model.UpgradeRestoreEnergy)
	if err != nil {
		return false, err
	}
	if res == nil {
		l.state.Restore.FailedAttempts++
		l.log.Log(fmt.Sprintf("Energy restore rejected (%d failed attempts)", l.state.Restore.FailedAttempts))
		if l.stats != nil {
			if _, err := l.stats.IncrementRestoreFails(l.session.Name(), l.now()); err != nil {
				l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
			}
		}
		return false, nil
	}

	l.state.ApplyPurchase(model.UpgradeRestoreEnergy, res, l.now())
	l.session.UpdateFromState(l.state)
	l.log.Log(fmt.Sprintf("Energy restored: %d/%d (%d/%d used today)",
		l.state.Energy.Current, l.state.Energy.Max, l.state.Restore.Used, l.state.Restore.Max))
	if l.stats != nil {
		if _, err := l.stats.IncrementRestores(l.session.Name(), l.now()); err != nil {
			l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
		}
	}
	return true, nil
}

func (l *GameLoop) taskPhase(ctx context.Context) error {
	l.session.SetPhase("tasks")
	now := l.now()

	for _, task := range l.state.Tasks {
		if task.Completed || !l.supportedTask(task.Kind) {
			continue
		}
		if task.CheckDelay > 0 && !task.LastCheckTime.IsZero() && now.Sub(task.LastCheckTime) < task.CheckDelay {
			continue
		}

		if task.Kind == model.TaskSubscribeChannel && task.Link != "" && l.tokens != nil {
			if err := l.tokens.JoinChannel(task.Link); err != nil {
				l.log.JustLog(fmt.Sprintf("Channel join for task %s failed: %v", task.ID, err))
			}
			if serr := l.sleep(ctx, utils.RandDuration(2, 4)); serr != nil {
				return serr
			}
		}

		res, err := l.api.CheckTask(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("task %s check failed: %w", task.ID, err)
		}
		if res == nil {
			task.LastCheckTime = l.now()
		} else {
			if l.state.ApplyTaskCheck(task.ID, res, l.now()) {
				l.session.AddTaskDone()
				l.log.Log(fmt.Sprintf("Task %q completed, reward %d", task.Title, task.Reward))
			}
			l.session.UpdateFromState(l.state)
		}

		// pace every check the same way, rejected or not
		if serr := l.sleep(ctx, utils.RandDuration(float64(l.cfg.TaskDelayMin), float64(l.cfg.TaskDelayMax))); serr != nil {
			return serr
		}
	}
	return nil
}

func (l *GameLoop) supportedTask(kind model.TaskKind) bool {
	for _, k := range l.profile.SupportedTaskKinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}

func (l *GameLoop) upgradePhase(ctx context.Context) error {
	if l.state.Coins < l.cfg.MinCoinsForUpgrades {
		return nil
	}
	l.session.SetPhase("upgrades")

	for _, cand := range l.planner.Plan(l.state, l.now()) {
		if cand.Price > l.state.Coins {
			break
		}

		res, err := l.api.BuyUpgrade(ctx, cand.Upgrade.ID)
		if err != nil {
			return fmt.Errorf("upgrade %s purchase failed: %w", cand.Upgrade.ID, err)
		}
		if res == nil {
			// rejected server-side, push the cooldown and move on
			cand.Upgrade.LastPurchaseTime = l.now()
			continue
		}

		l.state.ApplyPurchase(cand.Upgrade.ID, res, l.now())
		l.session.AddUpgrade()
		l.session.UpdateFromState(l.state)
		l.log.Log(fmt.Sprintf("Bought upgrade %s (lvl %d). Coins left: %d",
			cand.Upgrade.ID, cand.Upgrade.Level, l.state.Coins))
		if l.stats != nil {
			if err := l.stats.IncrementUpgrades(l.session.Name(), l.now()); err != nil {
				l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
			}
		}

		if serr := l.sleep(ctx, l.cfg.UpgradePurchaseGap); serr != nil {
			return serr
		}
	}
	return nil
}

func (l *GameLoop) dailyPhase(ctx context.Context) error {
	if l.stats != nil {
		claimed, err := l.stats.DailyClaimed(l.session.Name(), l.now())
		if err != nil {
			l.log.JustLog(fmt.Sprintf("Stats read failed: %v", err))
		} else if claimed {
			return nil
		}
	}
	l.session.SetPhase("daily")

	res, err := l.api.ClaimDaily(ctx)
	if err != nil {
		return fmt.Errorf("daily claim failed: %w", err)
	}
	if res != nil {
		l.state.ApplySync(&res.SyncResult)
		l.session.UpdateFromState(l.state)
		if res.Reward != nil {
			l.log.Log(fmt.Sprintf("Daily reward claimed: %d", *res.Reward))
		} else {
			l.log.Log("Daily reward claimed")
		}
	}
	// a rejection means it was already claimed today
	if l.stats != nil {
		if err := l.stats.MarkDailyClaimed(l.session.Name(), l.now()); err != nil {
			l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
		}
	}
	return nil
}

func (l *GameLoop) rafflePhase(ctx context.Context) error {
	now := l.now()
	if !l.lastRaffleBuy.IsZero() && now.Sub(l.lastRaffleBuy) < l.cfg.RaffleBuyInterval {
		return nil
	}
	if l.state.Coins <= l.cfg.ReservedFor(l.session.Name()) {
		return nil
	}
	l.session.SetPhase("raffle")

	res, err := l.api.BuyTicket(ctx)
	if err != nil {
		return fmt.Errorf("raffle ticket purchase failed: %w", err)
	}
	l.lastRaffleBuy = now
	if res == nil {
		return nil
	}
	l.state.ApplySync(&res.SyncResult)
	l.session.UpdateFromState(l.state)
	if res.Tickets != nil {
		l.log.Log(fmt.Sprintf("Raffle ticket bought, %d total", *res.Tickets))
	} else {
		l.log.Log("Raffle ticket bought")
	}
	if l.stats != nil {
		if err := l.stats.IncrementTickets(l.session.Name(), now); err != nil {
			l.log.JustLog(fmt.Sprintf("Stats write failed: %v", err))
		}
	}
	return nil
}

// sleepDuration computes how long to wait for energy to refill to 80% of
// max. A non-positive regen rate falls back to the game default of 3/s.
func sleepDuration(current, max, ratePerSec int) time.Duration {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	deficit := sleepWakeFactor*float64(max) - float64(current)
	if deficit < 0 {
		deficit = 0
	}
	d := time.Duration(deficit / float64(ratePerSec) * float64(time.Second))
	if d < sleepMin {
		return sleepMin
	}
	if d > sleepMax {
		return sleepMax
	}
	return d
}

func (l *GameLoop) sleepPhase(ctx context.Context) error {
	l.session.SetPhase("sleeping")

	total := sleepDuration(l.state.Energy.Current, l.state.Energy.Max, l.state.EnergyPerSec)
	wakeAt := int(sleepWakeFactor * float64(l.state.Energy.Max))
	l.log.Log(fmt.Sprintf("Sleeping %s until energy recovers", total.Round(time.Second)))

	for total > 0 {
		chunk := total
		if chunk > sleepSyncEvery {
			chunk = sleepSyncEvery
		}
		if err := l.log.Countdown(ctx, "Sleeping", chunk); err != nil {
			return err
		}
		total -= chunk
		if total <= 0 {
			break
		}

		res, err := l.api.Sync(ctx, 0, l.state.Energy.Current)
		if err != nil {
			l.log.JustLog(fmt.Sprintf("Sleep sync failed: %v", err))
			continue
		}
		l.state.ApplySync(res)
		l.session.UpdateFromState(l.state)
		if l.state.Energy.Current >= wakeAt {
			l.log.Log("Energy recovered early, waking up")
			break
		}
	}
	return nil
}
