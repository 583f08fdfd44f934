package statlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Store keeps per-session daily counters so restarts do not reset the
// restore and raffle budgets mid-day.
type Store struct {
	db *sql.DB
}

type DayStats struct {
	Taps           int
	CoinsEarned    int64
	UpgradesBought int
	RestoresUsed   int
	RestoreFails   int
	DailyClaimed   bool
	TicketsBought  int
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	createStmt := `CREATE TABLE IF NOT EXISTS daily_stats (
        session TEXT NOT NULL,
        stat_date TEXT NOT NULL,
        taps INTEGER NOT NULL DEFAULT 0,
        coins_earned INTEGER NOT NULL DEFAULT 0,
        upgrades_bought INTEGER NOT NULL DEFAULT 0,
        restores_used INTEGER NOT NULL DEFAULT 0,
        restore_fails INTEGER NOT NULL DEFAULT 0,
        daily_claimed INTEGER NOT NULL DEFAULT 0,
        tickets_bought INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY(session, stat_date)
    )`
	if _, err := s.db.Exec(createStmt); err != nil {
		return err
	}
	return s.ensureColumns()
}

func (s *Store) ensureColumns() error {
	columns := map[string]bool{}
	rows, err := s.db.Query(`PRAGMA table_info(daily_stats)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		columns[strings.ToLower(name)] = true
	}

	alterStatements := []string{}
	addColumn := func(name, definition string) {
		if !columns[name] {
			alterStatements = append(alterStatements, definition)
		}
	}

	addColumn("restore_fails", `ALTER TABLE daily_stats ADD COLUMN restore_fails INTEGER NOT NULL DEFAULT 0`)
	addColumn("daily_claimed", `ALTER TABLE daily_stats ADD COLUMN daily_claimed INTEGER NOT NULL DEFAULT 0`)
	addColumn("tickets_bought", `ALTER TABLE daily_stats ADD COLUMN tickets_bought INTEGER NOT NULL DEFAULT 0`)

	for _, stmt := range alterStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DayStats(session string, day time.Time) (DayStats, error) {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	var st DayStats
	var claimed int
	err := s.db.QueryRow(`SELECT taps, coins_earned, upgrades_bought, restores_used, restore_fails, daily_claimed, tickets_bought FROM daily_stats WHERE session = ? AND stat_date = ?`, name, dateStr).
		Scan(&st.Taps, &st.CoinsEarned, &st.UpgradesBought, &st.RestoresUsed, &st.RestoreFails, &claimed, &st.TicketsBought)
	if err == sql.ErrNoRows {
		return DayStats{}, nil
	}
	if err != nil {
		return DayStats{}, err
	}
	st.DailyClaimed = claimed == 1
	return st, nil
}

func (s *Store) AddTaps(session string, day time.Time, taps int, coins int64) error {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, taps, coins_earned)
    VALUES(?, ?, ?, ?)
    ON CONFLICT(session, stat_date) DO UPDATE SET
        taps = taps + excluded.taps,
        coins_earned = coins_earned + excluded.coins_earned`, name, dateStr, taps, coins)
	return err
}

func (s *Store) IncrementUpgrades(session string, day time.Time) error {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, upgrades_bought)
    VALUES(?, ?, 1)
    ON CONFLICT(session, stat_date) DO UPDATE SET upgrades_bought = upgrades_bought + 1`, name, dateStr)
	return err
}

func (s *Store) IncrementRestores(session string, day time.Time) (int, error) {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, restores_used)
    VALUES(?, ?, 1)
    ON CONFLICT(session, stat_date) DO UPDATE SET restores_used = restores_used + 1`, name, dateStr)
	if err != nil {
		return 0, err
	}
	var used int
	err = s.db.QueryRow(`SELECT restores_used FROM daily_stats WHERE session = ? AND stat_date = ?`, name, dateStr).Scan(&used)
	return used, err
}

func (s *Store) IncrementRestoreFails(session string, day time.Time) (int, error) {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, restore_fails)
    VALUES(?, ?, 1)
    ON CONFLICT(session, stat_date) DO UPDATE SET restore_fails = restore_fails + 1`, name, dateStr)
	if err != nil {
		return 0, err
	}
	var fails int
	err = s.db.QueryRow(`SELECT restore_fails FROM daily_stats WHERE session = ? AND stat_date = ?`, name, dateStr).Scan(&fails)
	return fails, err
}

func (s *Store) MarkDailyClaimed(session string, day time.Time) error {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, daily_claimed)
    VALUES(?, ?, 1)
    ON CONFLICT(session, stat_date) DO UPDATE SET daily_claimed = 1`, name, dateStr)
	return err
}

func (s *Store) DailyClaimed(session string, day time.Time) (bool, error) {
	st, err := s.DayStats(session, day)
	if err != nil {
		return false, err
	}
	return st.DailyClaimed, nil
}

func (s *Store) IncrementTickets(session string, day time.Time) error {
	name := normalizeSession(session)
	dateStr := day.UTC().Format(dateLayout)

	_, err := s.db.Exec(`INSERT INTO daily_stats(session, stat_date, tickets_bought)
    VALUES(?, ?, 1)
    ON CONFLICT(session, stat_date) DO UPDATE SET tickets_bought = tickets_bought + 1`, name, dateStr)
	return err
}

func normalizeSession(session string) string {
	return strings.ToLower(strings.TrimSpace(session))
}
