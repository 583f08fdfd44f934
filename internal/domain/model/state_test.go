package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestApplySyncClampsEnergy(t *testing.T) {
	tests := []struct {
		name    string
		current int
		max     int
		want    int
	}{
		{name: "above max", current: 900, max: 500, want: 500},
		{name: "negative", current: -20, max: 500, want: 0},
		{name: "within range", current: 300, max: 500, want: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &AccountState{Energy: Energy{Current: 100, Max: tt.max}}
			st.ApplySync(&SyncResult{CurrentEnergy: intPtr(tt.current)})
			assert.Equal(t, tt.want, st.Energy.Current)
		})
	}
}

func TestApplySyncIsIdempotent(t *testing.T) {
	st := &AccountState{Energy: Energy{Current: 400, Max: 500}, Coins: 10}
	res := &SyncResult{
		CurrentCoins:  int64Ptr(1234),
		CurrentEnergy: intPtr(250),
		MinePerHour:   int64Ptr(3600),
	}

	st.ApplySync(res)
	first := *st

	st.ApplySync(res)
	assert.Equal(t, first, *st)
}

func TestApplySyncKeepsAbsentFields(t *testing.T) {
	st := &AccountState{
		Energy:        Energy{Current: 400, Max: 500},
		Coins:         777,
		CoinsPerTap:   3,
		IncomePerHour: 7200,
	}

	st.ApplySync(&SyncResult{CurrentEnergy: intPtr(350)})

	assert.Equal(t, 350, st.Energy.Current)
	assert.Equal(t, int64(777), st.Coins)
	assert.Equal(t, 3, st.CoinsPerTap)
	assert.Equal(t, int64(7200), st.IncomePerHour)
}

func TestRestoreUsageDayRollover(t *testing.T) {
	r := RestoreUsage{Used: 6, Max: 6, FailedAttempts: 2, ResetDate: "2026-08-28"}
	require.True(t, r.Exhausted())

	now := time.Date(2026, 8, 29, 0, 5, 0, 0, time.UTC)
	assert.True(t, r.ResetIfNewDay(now))
	assert.False(t, r.Exhausted())
	assert.Equal(t, 0, r.Used)
	assert.Equal(t, 0, r.FailedAttempts)

	// same day again is a no-op
	assert.False(t, r.ResetIfNewDay(now.Add(time.Hour)))
}

func TestRestoreUsageExhausted(t *testing.T) {
	tests := []struct {
		name string
		r    RestoreUsage
		want bool
	}{
		{name: "budget spent", r: RestoreUsage{Used: 6, Max: 6}, want: true},
		{name: "two failures", r: RestoreUsage{Used: 1, Max: 6, FailedAttempts: 2}, want: true},
		{name: "one failure", r: RestoreUsage{Used: 1, Max: 6, FailedAttempts: 1}, want: false},
		{name: "fresh", r: RestoreUsage{Max: 6}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Exhausted())
		})
	}
}

func TestApplyPurchaseUpdatesUpgradeAndRestore(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	st := &AccountState{
		Energy:  Energy{Current: 40, Max: 500},
		Restore: RestoreUsage{Max: 6, ResetDate: now.Format(dateLayout), FailedAttempts: 1},
		Upgrades: map[string]*UpgradeRecord{
			UpgradeRestoreEnergy: {ID: UpgradeRestoreEnergy, Level: 1, Next: &UpgradeTier{Price: 0}},
		},
	}

	lvl := 2
	st.ApplyPurchase(UpgradeRestoreEnergy, &PurchaseResult{
		SyncResult: SyncResult{CurrentEnergy: intPtr(500)},
		Upgrade:    &UpgradeEcho{ID: UpgradeRestoreEnergy, Level: &lvl},
	}, now)

	assert.Equal(t, 500, st.Energy.Current)
	assert.Equal(t, 2, st.Restore.Used)
	assert.Equal(t, 0, st.Restore.FailedAttempts)
	rec := st.Upgrades[UpgradeRestoreEnergy]
	assert.Equal(t, 2, rec.Level)
	assert.True(t, rec.MaxLevelReached)
	assert.Equal(t, now, rec.LastPurchaseTime)
}

func TestDayCapReached(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	u := &UpgradeRecord{DayLimitation: 2, PurchaseDay: now.Format(dateLayout), PurchasedToday: 2}
	assert.True(t, u.DayCapReached(now))

	// yesterday's purchases do not count
	u.PurchaseDay = "2026-08-28"
	assert.False(t, u.DayCapReached(now))

	// no limit configured
	free := &UpgradeRecord{PurchasedToday: 50, PurchaseDay: now.Format(dateLayout)}
	assert.False(t, free.DayCapReached(now))
}

func TestCooldownFor(t *testing.T) {
	st := &AccountState{UpgradeDelays: map[int]int{1: 10, 2: 10, 3: 300}}

	assert.Equal(t, 10*time.Second, st.CooldownFor(2))
	assert.Equal(t, 300*time.Second, st.CooldownFor(3))
	// unknown levels fall back to the largest configured delay
	assert.Equal(t, 300*time.Second, st.CooldownFor(9))

	empty := &AccountState{}
	assert.Equal(t, 10*time.Second, empty.CooldownFor(1))
}

func TestBuildAccountStateDefaults(t *testing.T) {
	snap := &AuthSnapshot{}
	snap.User.UID = 42

	st := BuildAccountState(snap, time.Now())

	assert.Equal(t, int64(42), st.UserID)
	assert.Equal(t, Energy{Current: 500, Max: 500}, st.Energy)
	assert.Equal(t, 1, st.CoinsPerTap)
	assert.Equal(t, 3, st.EnergyPerSec)
	assert.Equal(t, 6, st.Restore.Max)
}
