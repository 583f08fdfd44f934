package worker

import (
	"math"
	"sort"
	"time"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
)

// Candidate is one rankable upgrade with its scores attached. ROI is the
// primary key: seconds of passive income needed to earn the price back, per
// unit of income gained. Lower is better.
type Candidate struct {
	Upgrade    *model.UpgradeRecord
	Price      int64
	Increment  int64
	Efficiency float64
	ROI        float64
}

// UpgradePlanner ranks the account's purchasable upgrades. Upgrades on the
// exclusion list (energy restore, per-tap multiplier) are handled by their
// own phases and never ranked here.
type UpgradePlanner struct {
	excluded map[string]bool
}

func NewUpgradePlanner(excluded []string) *UpgradePlanner {
	m := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		m[id] = true
	}
	return &UpgradePlanner{excluded: m}
}

// Plan returns the eligible upgrades sorted best-first. Upgrades whose next
// tier adds no income are skipped outright; a negative price is treated as
// zero and a zero price ranks first. Zero passive income pushes everything
// to the bottom with efficiency deciding the order.
func (p *UpgradePlanner) Plan(st *model.AccountState, now time.Time) []Candidate {
	if st == nil || len(st.Upgrades) == 0 {
		return nil
	}

	income := st.IncomePerSecond()
	candidates := make([]Candidate, 0, len(st.Upgrades))
	for _, u := range st.Upgrades {
		if u.Next == nil || u.MaxLevelReached {
			continue
		}
		if u.Next.Increment <= 0 {
			continue
		}
		if p.excluded[u.ID] {
			continue
		}
		if u.DayCapReached(now) {
			continue
		}
		if !u.LastPurchaseTime.IsZero() {
			cooldown := st.CooldownFor(u.Level + 1)
			if now.Sub(u.LastPurchaseTime) < cooldown {
				continue
			}
		}

		price := u.Next.Price
		if price < 0 {
			price = 0
		}
		increment := u.Next.Increment

		candidates = append(candidates, Candidate{
			Upgrade:    u,
			Price:      price,
			Increment:  increment,
			Efficiency: ratio(float64(increment), float64(price)),
			ROI:        roi(price, increment, income),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ROI != candidates[j].ROI {
			return candidates[i].ROI < candidates[j].ROI
		}
		return candidates[i].Efficiency > candidates[j].Efficiency
	})
	return candidates
}

func roi(price, increment int64, incomePerSec float64) float64 {
	timeToAfford := ratio(float64(price), incomePerSec)
	return ratio(timeToAfford, float64(increment))
}

// ratio returns a/b with b == 0 mapping to +Inf, except that a zero
// numerator stays zero so free upgrades rank first.
func ratio(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	if b == 0 {
		return math.Inf(1)
	}
	return a / b
}
