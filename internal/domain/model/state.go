package model

import "time"

// Upgrade ids the server treats specially. The restore upgrade refills energy
// instead of raising income and is limited per day.
const (
	UpgradeRestoreEnergy = "restoreEnergy"
	UpgradeCoinsPerTap   = "coinsPerTap"
)

const dateLayout = "2006-01-02"

type TaskKind string

const (
	TaskActionCheck       TaskKind = "actionCheck"
	TaskSubscribeChannel  TaskKind = "subscribeChannel"
	TaskCheckPlusBenefits TaskKind = "checkPlusBenefits"
)

type Energy struct {
	Current int
	Max     int
}

// UpgradeTier is the next purchasable level of an upgrade. A nil tier means
// the upgrade is maxed out or locked and must never be bought.
type UpgradeTier struct {
	Price     int64 `json:"price"`
	Increment int64 `json:"increment"`
}

type UpgradeRecord struct {
	ID               string
	Level            int
	Amount           int64
	Next             *UpgradeTier
	DayLimitation    int
	MaxLevelReached  bool
	LastPurchaseTime time.Time
	PurchasedToday   int
	PurchaseDay      string
}

// DayCapReached reports whether the per-day purchase limit is spent.
func (u *UpgradeRecord) DayCapReached(now time.Time) bool {
	if u.DayLimitation <= 0 {
		return false
	}
	if u.PurchaseDay != now.Format(dateLayout) {
		return false
	}
	return u.PurchasedToday >= u.DayLimitation
}

type TaskRecord struct {
	ID            string
	Kind          TaskKind
	Title         string
	Link          string
	Completed     bool
	LastCheckTime time.Time
	CheckDelay    time.Duration
	Reward        int64
}

// RestoreUsage tracks the per-day energy restore budget. FailedAttempts counts
// consecutive rejected restore purchases; after two the budget is considered
// spent for the rest of the day.
type RestoreUsage struct {
	Used           int
	Max            int
	ResetDate      string
	FailedAttempts int
}

func (r *RestoreUsage) ResetIfNewDay(now time.Time) bool {
	today := now.Format(dateLayout)
	if r.ResetDate != "" && r.ResetDate != today {
		r.Used = 0
		r.FailedAttempts = 0
		r.ResetDate = today
		return true
	}
	if r.ResetDate == "" {
		r.ResetDate = today
	}
	return false
}

func (r *RestoreUsage) Exhausted() bool {
	return r.Used >= r.Max || r.FailedAttempts >= 2
}

// AccountState is the in-memory snapshot of one account's game state. It is
// owned exclusively by that account's game loop and never shared across
// goroutines.
type AccountState struct {
	UserID         int64
	Energy         Energy
	Coins          int64
	TotalCoins     int64
	CoinsPerTap    int
	IncomePerHour  int64
	EnergyPerSec   int
	OnboardingTier int
	TeamJoined     bool

	Upgrades map[string]*UpgradeRecord
	Tasks    map[string]*TaskRecord

	// UpgradeDelays maps a target level to the minimum seconds between
	// purchases of the same upgrade. Replaced wholesale when the server
	// sends its own table.
	UpgradeDelays map[int]int

	Restore RestoreUsage
}

func (s *AccountState) IncomePerSecond() float64 {
	if s.IncomePerHour <= 0 {
		return 0
	}
	return float64(s.IncomePerHour) / 3600.0
}

func (s *AccountState) clampEnergy() {
	if s.Energy.Current < 0 {
		s.Energy.Current = 0
	}
	if s.Energy.Max > 0 && s.Energy.Current > s.Energy.Max {
		s.Energy.Current = s.Energy.Max
	}
}

// CooldownFor returns the purchase cooldown for buying into targetLevel.
// Falls back to the largest configured delay, then to 10s, mirroring the
// server's permissive default.
func (s *AccountState) CooldownFor(targetLevel int) time.Duration {
	if d, ok := s.UpgradeDelays[targetLevel]; ok {
		return time.Duration(d) * time.Second
	}
	max := 0
	for _, d := range s.UpgradeDelays {
		if d > max {
			max = d
		}
	}
	if max == 0 {
		max = 10
	}
	return time.Duration(max) * time.Second
}

// ApplySync patches the state with the fields the server returned. Absent
// fields keep their previous value; values are absolute, so applying the same
// result twice is a no-op.
func (s *AccountState) ApplySync(res *SyncResult) {
	if res == nil {
		return
	}
	if res.CurrentCoins != nil {
		s.Coins = *res.CurrentCoins
	}
	if res.TotalCoins != nil {
		s.TotalCoins = *res.TotalCoins
	}
	if res.CurrentEnergy != nil {
		s.Energy.Current = *res.CurrentEnergy
	}
	if res.MaxEnergy != nil {
		s.Energy.Max = *res.MaxEnergy
	}
	if res.CoinsPerTap != nil {
		s.CoinsPerTap = *res.CoinsPerTap
	}
	if res.MinePerHour != nil {
		s.IncomePerHour = *res.MinePerHour
	}
	if res.EnergyPerSec != nil {
		s.EnergyPerSec = *res.EnergyPerSec
	}
	s.clampEnergy()
}

// ApplyPurchase folds a successful upgrade purchase back into the state.
func (s *AccountState) ApplyPurchase(upgradeID string, res *PurchaseResult, now time.Time) {
	if res == nil {
		return
	}
	s.ApplySync(&res.SyncResult)

	if res.Upgrade != nil {
		id := res.Upgrade.ID
		if id == "" {
			id = upgradeID
		}
		rec, ok := s.Upgrades[id]
		if !ok {
			rec = &UpgradeRecord{ID: id}
			if s.Upgrades == nil {
				s.Upgrades = make(map[string]*UpgradeRecord)
			}
			s.Upgrades[id] = rec
		}
		if res.Upgrade.Level != nil {
			rec.Level = *res.Upgrade.Level
		}
		if res.Upgrade.Amount != nil {
			rec.Amount = *res.Upgrade.Amount
		}
		rec.Next = res.Next
		rec.MaxLevelReached = res.Next == nil
		rec.LastPurchaseTime = now
		if day := now.Format(dateLayout); rec.PurchaseDay == day {
			rec.PurchasedToday++
		} else {
			rec.PurchaseDay = day
			rec.PurchasedToday = 1
		}

		if id == UpgradeRestoreEnergy {
			if res.Upgrade.Level != nil {
				s.Restore.Used = *res.Upgrade.Level
			} else {
				s.Restore.Used++
			}
			s.Restore.FailedAttempts = 0
			s.Restore.ResetDate = now.Format(dateLayout)
		}
	} else if rec, ok := s.Upgrades[upgradeID]; ok {
		rec.LastPurchaseTime = now
	}
}

// ApplyTaskCheck folds a task check response back into the state. Returns
// true when the task is now completed.
func (s *AccountState) ApplyTaskCheck(taskID string, res *TaskCheckResult, now time.Time) bool {
	rec, ok := s.Tasks[taskID]
	if !ok || res == nil {
		return false
	}
	rec.LastCheckTime = now
	if res.CurrentCoins != nil {
		s.Coins = *res.CurrentCoins
	} else if res.Success && rec.Reward > 0 {
		s.Coins += rec.Reward
	}
	if res.Success {
		rec.Completed = true
	}
	return res.Success
}
