package model

import (
	"strconv"
	"time"
)

// Server responses are sparse: every field is optional and an absent field
// means "unchanged". Pointer fields keep absent distinguishable from zero.

type SyncResult struct {
	CurrentCoins  *int64 `json:"currentCoins"`
	TotalCoins    *int64 `json:"totalCoins"`
	CurrentEnergy *int   `json:"currentEnergy"`
	MaxEnergy     *int   `json:"maxEnergy"`
	CoinsPerTap   *int   `json:"coinsPerTap"`
	MinePerHour   *int64 `json:"minePerHour"`
	EnergyPerSec  *int   `json:"energyPerSec"`
	LastSync      *int64 `json:"lastSync"`
}

type UpgradeEcho struct {
	ID     string `json:"id"`
	Level  *int   `json:"level"`
	Amount *int64 `json:"amount"`
}

type PurchaseResult struct {
	SyncResult
	Upgrade *UpgradeEcho `json:"upgrade"`
	Next    *UpgradeTier `json:"next"`
}

type TaskCheckResult struct {
	Success      bool         `json:"success"`
	CurrentCoins *int64       `json:"currentCoins"`
	Reward       *int64       `json:"reward"`
	Time         *int64       `json:"time"`
	Task         *TaskPayload `json:"task"`
}

type DailyClaimResult struct {
	SyncResult
	Day    *int   `json:"day"`
	Reward *int64 `json:"reward"`
}

type TicketResult struct {
	SyncResult
	Tickets *int `json:"tickets"`
}

type TaskPayload struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Time      int64  `json:"time"`
	Meta      struct {
		Reward     int64  `json:"reward"`
		CheckDelay int64  `json:"checkDelay"`
		Link       string `json:"link"`
	} `json:"meta"`
}

type UpgradePayload struct {
	ID            string       `json:"id"`
	Level         int          `json:"level"`
	Amount        int64        `json:"amount"`
	Next          *UpgradeTier `json:"next"`
	DayLimitation int          `json:"dayLimitation"`
	UpgradedAt    int64        `json:"upgradedAt"`
}

// AuthSnapshot is the full game snapshot returned by auth-start. It is the
// source of truth: the loop rebuilds AccountState from it on every
// (re-)authentication.
type AuthSnapshot struct {
	Token string `json:"token"`
	User  struct {
		UID int64 `json:"uid"`
	} `json:"user"`
	App struct {
		Onboarding int `json:"onboarding"`
	} `json:"app"`
	Game struct {
		CurrentEnergy *int   `json:"currentEnergy"`
		MaxEnergy     *int   `json:"maxEnergy"`
		CurrentCoins  *int64 `json:"currentCoins"`
		TotalCoins    *int64 `json:"totalCoins"`
		CoinsPerTap   *int   `json:"coinsPerTap"`
		MinePerHour   *int64 `json:"minePerHour"`
		EnergyPerSec  *int   `json:"energyPerSec"`
	} `json:"game"`
	Upgrades struct {
		List []UpgradePayload `json:"list"`
	} `json:"upgrades"`
	Tasks []TaskPayload `json:"tasks"`
	Team  struct {
		Bonuses []any `json:"bonuses"`
	} `json:"team"`
	SharedConfig struct {
		UpgradeDelay map[string]int `json:"upgradeDelay"`
		TeamTelegram map[string]struct {
			ChannelLink string `json:"channelLink"`
		} `json:"teamTelegram"`
	} `json:"sharedConfig"`
}

func (a *AuthSnapshot) TeamChannelLink(regionID int) string {
	if team, ok := a.SharedConfig.TeamTelegram[strconv.Itoa(regionID)]; ok {
		return team.ChannelLink
	}
	return ""
}

// BuildAccountState converts an auth snapshot into a fresh AccountState,
// replacing whatever the loop held before.
func BuildAccountState(snap *AuthSnapshot, now time.Time) *AccountState {
	st := &AccountState{
		UserID:         snap.User.UID,
		Energy:         Energy{Current: 500, Max: 500},
		CoinsPerTap:    1,
		EnergyPerSec:   3,
		OnboardingTier: snap.App.Onboarding,
		TeamJoined:     len(snap.Team.Bonuses) > 0,
		Upgrades:       make(map[string]*UpgradeRecord, len(snap.Upgrades.List)),
		Tasks:          make(map[string]*TaskRecord, len(snap.Tasks)),
		UpgradeDelays:  make(map[int]int, len(snap.SharedConfig.UpgradeDelay)),
		Restore:        RestoreUsage{Max: 6, ResetDate: now.Format(dateLayout)},
	}

	g := snap.Game
	if g.CurrentEnergy != nil {
		st.Energy.Current = *g.CurrentEnergy
	}
	if g.MaxEnergy != nil {
		st.Energy.Max = *g.MaxEnergy
	}
	if g.CurrentCoins != nil {
		st.Coins = *g.CurrentCoins
	}
	if g.TotalCoins != nil {
		st.TotalCoins = *g.TotalCoins
	}
	if g.CoinsPerTap != nil {
		st.CoinsPerTap = *g.CoinsPerTap
	}
	if g.MinePerHour != nil {
		st.IncomePerHour = *g.MinePerHour
	}
	if g.EnergyPerSec != nil && *g.EnergyPerSec > 0 {
		st.EnergyPerSec = *g.EnergyPerSec
	}
	st.clampEnergy()

	for _, up := range snap.Upgrades.List {
		if up.ID == "" {
			continue
		}
		rec := &UpgradeRecord{
			ID:              up.ID,
			Level:           up.Level,
			Amount:          up.Amount,
			Next:            up.Next,
			DayLimitation:   up.DayLimitation,
			MaxLevelReached: up.Next == nil,
		}
		if up.UpgradedAt > 0 {
			rec.LastPurchaseTime = time.Unix(up.UpgradedAt, 0)
		}
		st.Upgrades[up.ID] = rec

		if up.ID == UpgradeRestoreEnergy {
			if up.DayLimitation > 0 {
				st.Restore.Max = up.DayLimitation
			}
			st.Restore.Used = up.Level
		}
	}

	for _, t := range snap.Tasks {
		if t.ID == "" {
			continue
		}
		rec := &TaskRecord{
			ID:         t.ID,
			Kind:       TaskKind(t.Kind),
			Title:      t.Title,
			Link:       t.Meta.Link,
			Completed:  t.Completed,
			CheckDelay: time.Duration(t.Meta.CheckDelay) * time.Second,
			Reward:     t.Meta.Reward,
		}
		if t.Time > 0 {
			rec.LastCheckTime = time.Unix(t.Time, 0)
		}
		st.Tasks[t.ID] = rec
	}

	for level, delay := range snap.SharedConfig.UpgradeDelay {
		if n, err := strconv.Atoi(level); err == nil {
			st.UpgradeDelays[n] = delay
		}
	}

	return st
}
