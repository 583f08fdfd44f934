package config

import (
	"errors"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Settings struct {
	APIID   int32
	APIHash string

	AccountsPath string
	ProxiesPath  string
	RefID        string

	UseProxy bool

	SessionStartDelayMax int

	SleepBetweenTapsMin float64
	SleepBetweenTapsMax float64
	TaskDelayMin        int
	TaskDelayMax        int
	UpgradePurchaseGap  time.Duration
	MinCoinsForUpgrades int64

	EnableTaps     bool
	EnableUpgrades bool
	EnableTasks    bool
	EnableDaily    bool
	EnableRaffle   bool

	RaffleBuyInterval time.Duration
	RaffleSessions    []string

	ReservedBalance map[string]int64
}

func Load() Settings {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default values")
	}

	return Settings{
		APIID:   int32(parseIntWithDefault(os.Getenv("API_ID"), 0)),
		APIHash: strings.TrimSpace(os.Getenv("API_HASH")),

		AccountsPath: withDefault(os.Getenv("ACCOUNTS_PATH"), "configs/accounts.json"),
		ProxiesPath:  withDefault(os.Getenv("PROXIES_PATH"), "configs/proxies.txt"),
		RefID:        withDefault(os.Getenv("REF_ID"), "bro-228618799"),

		UseProxy: parseBoolWithDefault(os.Getenv("USE_PROXY"), false),

		SessionStartDelayMax: parseIntWithDefault(os.Getenv("SESSION_START_DELAY"), 60),

		SleepBetweenTapsMin: parseFloatWithDefault(os.Getenv("SLEEP_BETWEEN_TAPS_MIN"), 1.5),
		SleepBetweenTapsMax: parseFloatWithDefault(os.Getenv("SLEEP_BETWEEN_TAPS_MAX"), 2.5),
		TaskDelayMin:        parseIntWithDefault(os.Getenv("DELAY_BETWEEN_TASKS_MIN"), 3),
		TaskDelayMax:        parseIntWithDefault(os.Getenv("DELAY_BETWEEN_TASKS_MAX"), 7),
		UpgradePurchaseGap:  time.Duration(parseIntWithDefault(os.Getenv("SLEEP_AFTER_UPGRADE"), 2)) * time.Second,
		MinCoinsForUpgrades: int64(parseIntWithDefault(os.Getenv("MIN_COINS_FOR_UPGRADES"), 500)),

		EnableTaps:     parseBoolWithDefault(os.Getenv("ENABLE_TAPS"), true),
		EnableUpgrades: parseBoolWithDefault(os.Getenv("ENABLE_UPGRADES"), true),
		EnableTasks:    parseBoolWithDefault(os.Getenv("ENABLE_TASKS"), true),
		EnableDaily:    parseBoolWithDefault(os.Getenv("ENABLE_DAILY"), true),
		EnableRaffle:   parseBoolWithDefault(os.Getenv("ENABLE_RAFFLE"), false),

		RaffleBuyInterval: time.Duration(parseIntWithDefault(os.Getenv("RAFFLE_BUY_INTERVAL"), 600)) * time.Second,
		RaffleSessions:    parseList(os.Getenv("RAFFLE_SESSIONS")),

		ReservedBalance: parseReservedBalance(os.Getenv("RESERVED_BALANCE")),
	}
}

func (s Settings) Validate() error {
	if s.APIID == 0 || s.APIHash == "" {
		return errors.New("API_ID and API_HASH are required (get them at https://my.telegram.org)")
	}
	return nil
}

func (s Settings) RaffleEnabledFor(session string) bool {
	if !s.EnableRaffle {
		return false
	}
	if len(s.RaffleSessions) == 0 {
		return true
	}
	for _, name := range s.RaffleSessions {
		if strings.EqualFold(name, session) {
			return true
		}
	}
	return false
}

// ReservedFor returns the coin balance that must never be spent for the given
// session. Configured as RESERVED_BALANCE="[session1:50000][session2:10000]".
func (s Settings) ReservedFor(session string) int64 {
	return s.ReservedBalance[session]
}

func withDefault(value, defaultVal string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	return value
}

func parseIntWithDefault(value string, defaultVal int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(value); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func parseFloatWithDefault(value string, defaultVal float64) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func parseBoolWithDefault(value string, defaultVal bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultVal
	}
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	return defaultVal
}

func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var reservedBalanceRe = regexp.MustCompile(`\[([^:\]]+):([^\]]+)\]`)

func parseReservedBalance(value string) map[string]int64 {
	out := make(map[string]int64)
	for _, m := range reservedBalanceRe.FindAllStringSubmatch(value, -1) {
		amount, err := strconv.ParseInt(strings.TrimSpace(m[2]), 10, 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(m[1])] = amount
	}
	return out
}
