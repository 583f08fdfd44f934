package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/adapters/gameapi"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
)

// fakeAPI simulates the game server: taps drain energy one for one and a
// restore refills it to max.
type fakeAPI struct {
	energy      int
	maxEnergy   int
	coins       int64
	rejectBuys  bool
	rejectTasks bool

	syncCalls  int
	buyCalls   int
	taskChecks int
	refilled   int
	stages     []string
}

func (f *fakeAPI) Authenticate(ctx context.Context, startData string) (*model.AuthSnapshot, error) {
	return &model.AuthSnapshot{}, nil
}

func (f *fakeAPI) Sync(ctx context.Context, taps, currentEnergy int) (*model.SyncResult, error) {
	f.syncCalls++
	f.energy -= taps
	if f.energy < 0 {
		f.energy = 0
	}
	f.coins += int64(taps)
	energy := f.energy
	coins := f.coins
	return &model.SyncResult{CurrentEnergy: &energy, CurrentCoins: &coins}, nil
}

func (f *fakeAPI) BuyUpgrade(ctx context.Context, upgradeID string) (*model.PurchaseResult, error) {
	f.buyCalls++
	if f.rejectBuys {
		return nil, nil
	}
	f.refilled += f.maxEnergy - f.energy
	f.energy = f.maxEnergy
	energy := f.energy
	return &model.PurchaseResult{
		SyncResult: model.SyncResult{CurrentEnergy: &energy},
		Upgrade:    &model.UpgradeEcho{ID: upgradeID},
	}, nil
}

func (f *fakeAPI) CheckTask(ctx context.Context, taskID string) (*model.TaskCheckResult, error) {
	f.taskChecks++
	if f.rejectTasks {
		return nil, nil
	}
	return &model.TaskCheckResult{Success: true}, nil
}

func (f *fakeAPI) ClaimDaily(ctx context.Context) (*model.DailyClaimResult, error) {
	return &model.DailyClaimResult{}, nil
}

func (f *fakeAPI) BuyTicket(ctx context.Context) (*model.TicketResult, error) {
	return &model.TicketResult{}, nil
}

func (f *fakeAPI) CompleteOnboarding(ctx context.Context, tier int) error { return nil }
func (f *fakeAPI) JoinTeam(ctx context.Context, regionID int) error       { return nil }
func (f *fakeAPI) ConfirmTeamSubscription(ctx context.Context) (bool, error) {
	return true, nil
}
func (f *fakeAPI) SetOnboardingStage(stage string) {
	f.stages = append(f.stages, stage)
}

func testLoop(api gameAPI, energy, maxEnergy int) *GameLoop {
	session := model.NewSession("test", 0)
	cfg := config.Settings{
		EnableTaps:          true,
		SleepBetweenTapsMin: 0,
		SleepBetweenTapsMax: 0,
		MinCoinsForUpgrades: 500,
	}
	l := NewGameLoop(session, cfg, config.Qlyuker, api, nil, nil, logger.NewNamed("test", session))
	l.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	l.state = &model.AccountState{
		Energy:       model.Energy{Current: energy, Max: maxEnergy},
		CoinsPerTap:  1,
		EnergyPerSec: 3,
		Restore:      model.RestoreUsage{Max: 6},
	}
	return l
}

// (0.8*1000 - 100) / 3 seconds of energy recovery.
var midRangeSeconds = 700.0 / 3.0
var midRangeSleep = time.Duration(midRangeSeconds * float64(time.Second))

func TestSleepDuration(t *testing.T) {
	tests := []struct {
		name    string
		current int
		max     int
		rate    int
		want    time.Duration
	}{
		{name: "clipped to minimum", current: 390, max: 500, rate: 3, want: 60 * time.Second},
		{name: "mid range", current: 100, max: 1000, rate: 3, want: midRangeSleep},
		{name: "clipped to maximum", current: 0, max: 100000, rate: 3, want: 30 * time.Minute},
		{name: "no deficit", current: 500, max: 500, rate: 3, want: 60 * time.Second},
		{name: "zero rate falls back to default", current: 100, max: 1000, rate: 0, want: midRangeSleep},
		{name: "negative rate falls back to default", current: 390, max: 500, rate: -1, want: 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sleepDuration(tt.current, tt.max, tt.rate)
			assert.InDelta(t, float64(tt.want), float64(got), float64(time.Millisecond))
			assert.GreaterOrEqual(t, got, 60*time.Second)
			assert.LessOrEqual(t, got, 30*time.Minute)
		})
	}
}

func TestOnboardAdvancesStageHeader(t *testing.T) {
	api := &fakeAPI{energy: 500, maxEnergy: 500}
	l := testLoop(api, 500, 500)

	require.NoError(t, l.onboard(context.Background()))

	assert.Equal(t, []string{
		gameapi.OnboardingStarted,
		gameapi.OnboardingTeam,
		gameapi.OnboardingComplete,
	}, api.stages)
	assert.Equal(t, 2, l.state.OnboardingTier)
	assert.True(t, l.state.TeamJoined)
}

func TestTaskPhasePacesRejectedChecks(t *testing.T) {
	api := &fakeAPI{rejectTasks: true}
	l := testLoop(api, 500, 500)
	l.state.Tasks = map[string]*model.TaskRecord{
		"t1": {ID: "t1", Kind: model.TaskActionCheck},
		"t2": {ID: "t2", Kind: model.TaskActionCheck},
	}
	var sleeps int
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	require.NoError(t, l.taskPhase(context.Background()))

	assert.Equal(t, 2, api.taskChecks)
	assert.Equal(t, 2, sleeps, "rejected checks must be paced like successful ones")
	for _, task := range l.state.Tasks {
		assert.False(t, task.LastCheckTime.IsZero())
	}
}

type panickyAPI struct {
	fakeAPI
}

func (p *panickyAPI) Sync(ctx context.Context, taps, currentEnergy int) (*model.SyncResult, error) {
	panic("malformed sync payload")
}

func TestRunCycleTurnsPanicIntoError(t *testing.T) {
	api := &panickyAPI{fakeAPI{energy: 500, maxEnergy: 500}}
	l := testLoop(api, 500, 500)

	var err error
	require.NotPanics(t, func() { err = l.runCycle(context.Background()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestTapBatchTiers(t *testing.T) {
	for i := 0; i < 100; i++ {
		taps := tapBatch(300)
		assert.GreaterOrEqual(t, taps, 35)
		assert.LessOrEqual(t, taps, 45)

		taps = tapBatch(150)
		assert.GreaterOrEqual(t, taps, 25)
		assert.LessOrEqual(t, taps, 35)

		taps = tapBatch(80)
		assert.GreaterOrEqual(t, taps, 15)
		assert.LessOrEqual(t, taps, 25)
	}
}

func TestTapBatchNeverDrainsBelowCushion(t *testing.T) {
	for energy := 6; energy <= 60; energy++ {
		assert.LessOrEqual(t, tapBatch(energy), energy-tapBatchCushion)
	}
}

func TestTapPhaseAccountsForEveryTap(t *testing.T) {
	const initial = 400
	api := &fakeAPI{energy: initial, maxEnergy: 500}
	l := testLoop(api, initial, 500)
	l.state.Restore.FailedAttempts = 2 // no refills during this run

	require.NoError(t, l.tapPhase(context.Background()))

	final := l.state.Energy.Current
	sent := int(l.session.Snapshot().TapsSent)
	assert.Equal(t, initial-final, sent)
	assert.LessOrEqual(t, final, energyExitFloor+tapBatchCushion+45)
}

func TestTapPhaseRestoreRefillsBudgetedEnergy(t *testing.T) {
	const initial = 300
	const max = 300
	api := &fakeAPI{energy: initial, maxEnergy: max}
	l := testLoop(api, initial, max)
	l.state.Restore = model.RestoreUsage{Max: 1}

	require.NoError(t, l.tapPhase(context.Background()))

	// every tap drained one energy; the restore refilled back to max once
	sent := int(l.session.Snapshot().TapsSent)
	final := l.state.Energy.Current
	assert.Equal(t, 1, api.buyCalls)
	assert.Equal(t, initial+api.refilled-final, sent)
}

func TestTryRestoreStopsAfterTwoFailures(t *testing.T) {
	api := &fakeAPI{energy: 60, maxEnergy: 500, rejectBuys: true}
	l := testLoop(api, 60, 500)

	for i := 0; i < 2; i++ {
		restored, err := l.tryRestore(context.Background())
		require.NoError(t, err)
		assert.False(t, restored)
	}
	require.Equal(t, 2, api.buyCalls)

	// third attempt must not hit the network
	restored, err := l.tryRestore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, 2, api.buyCalls)
}

func TestTryRestoreRespectsDayBudget(t *testing.T) {
	api := &fakeAPI{energy: 60, maxEnergy: 500}
	l := testLoop(api, 60, 500)
	l.state.Restore = model.RestoreUsage{Used: 6, Max: 6}

	restored, err := l.tryRestore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Zero(t, api.buyCalls)
}

func TestUpgradePhaseSkippedBelowCoinFloor(t *testing.T) {
	api := &fakeAPI{}
	l := testLoop(api, 400, 500)
	l.state.Coins = 499
	l.state.Upgrades = map[string]*model.UpgradeRecord{
		"u": {ID: "u", Next: &model.UpgradeTier{Price: 10, Increment: 1}},
	}

	require.NoError(t, l.upgradePhase(context.Background()))
	assert.Zero(t, api.buyCalls)
}

func TestUpgradePhaseStopsAtFirstUnaffordable(t *testing.T) {
	api := &fakeAPI{}
	l := testLoop(api, 400, 500)
	l.state.Coins = 600
	l.state.IncomePerHour = 3600
	l.state.Upgrades = map[string]*model.UpgradeRecord{
		"cheap": {ID: "cheap", Next: &model.UpgradeTier{Price: 100, Increment: 100}},
		"dear":  {ID: "dear", Next: &model.UpgradeTier{Price: 5000, Increment: 10}},
	}

	require.NoError(t, l.upgradePhase(context.Background()))
	assert.Equal(t, 1, api.buyCalls)
}
