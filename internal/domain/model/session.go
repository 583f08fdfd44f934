package model

import "sync"

// Session is the per-account status block consumed by the logger and the
// pterm dashboard. The game loop writes it, the UI goroutine reads snapshots,
// so all access goes through the mutex.
type Session struct {
	mu sync.Mutex

	name   string
	accIdx int

	userID        int64
	phase         string
	energy        int
	maxEnergy     int
	coins         int64
	totalCoins    int64
	incomePerHour int64
	tapsSent      int64
	upgrades      int
	tasksDone     int
	proxy         string
}

// SessionView is an immutable copy of a Session, safe to hand to the UI.
type SessionView struct {
	Name          string
	AccIdx        int
	UserID        int64
	Phase         string
	Energy        int
	MaxEnergy     int
	Coins         int64
	TotalCoins    int64
	IncomePerHour int64
	TapsSent      int64
	Upgrades      int
	TasksDone     int
	Proxy         string
}

func NewSession(name string, idx int) *Session {
	return &Session{name: name, accIdx: idx, phase: "starting"}
}

func (s *Session) Name() string { return s.name }
func (s *Session) AccIdx() int  { return s.accIdx }

func (s *Session) SetPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Session) UpdateFromState(st *AccountState) {
	if st == nil {
		return
	}
	s.mu.Lock()
	s.userID = st.UserID
	s.energy = st.Energy.Current
	s.maxEnergy = st.Energy.Max
	s.coins = st.Coins
	s.totalCoins = st.TotalCoins
	s.incomePerHour = st.IncomePerHour
	s.mu.Unlock()
}

func (s *Session) AddTaps(n int) {
	s.mu.Lock()
	s.tapsSent += int64(n)
	s.mu.Unlock()
}

func (s *Session) AddUpgrade() {
	s.mu.Lock()
	s.upgrades++
	s.mu.Unlock()
}

func (s *Session) AddTaskDone() {
	s.mu.Lock()
	s.tasksDone++
	s.mu.Unlock()
}

func (s *Session) SetProxy(proxy string) {
	s.mu.Lock()
	s.proxy = proxy
	s.mu.Unlock()
}

func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		Name:          s.name,
		AccIdx:        s.accIdx,
		UserID:        s.userID,
		Phase:         s.phase,
		Energy:        s.energy,
		MaxEnergy:     s.maxEnergy,
		Coins:         s.coins,
		TotalCoins:    s.totalCoins,
		IncomePerHour: s.incomePerHour,
		TapsSent:      s.tapsSent,
		Upgrades:      s.upgrades,
		TasksDone:     s.tasksDone,
		Proxy:         s.proxy,
	}
}
