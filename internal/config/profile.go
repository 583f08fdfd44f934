package config

import "hash/fnv"

// GameProfile pins everything that changed between revisions of the game API:
// endpoint paths, browser headers, cooldown defaults, which upgrades the
// planner must not rank and which task kinds the bot knows how to check.
// One canonical loop runs against any profile.
type GameProfile struct {
	Name string

	BaseURL           string
	AuthStartPath     string
	SyncPath          string
	UpgradeBuyPath    string
	TaskCheckPath     string
	OnboardingPath    string
	TeamPath          string
	SubscribeTeamPath string
	DailyClaimPath    string
	RaffleBuyPath     string

	Origin         string
	Referer        string
	UpgradeReferer string
	ExtraHeaders   map[string]string

	BotUsername  string
	AppShortName string
	RefCodes     []string

	DefaultRegionID int

	// ExcludedUpgrades are planned separately (energy restore, per-tap
	// multiplier) and must never appear in the general ranking.
	ExcludedUpgrades   []string
	SupportedTaskKinds []string

	// DefaultUpgradeDelay maps target level to cooldown seconds, used until
	// the server sends its own table.
	DefaultUpgradeDelay map[int]int
}

var Qlyuker = GameProfile{
	Name: "qlyuker",

	BaseURL:           "https://api.qlyuker.io",
	AuthStartPath:     "/auth/start",
	SyncPath:          "/game/sync",
	UpgradeBuyPath:    "/upgrades/buy",
	TaskCheckPath:     "/tasks/check",
	OnboardingPath:    "/game/onboarding",
	TeamPath:          "/game/team",
	SubscribeTeamPath: "/game/subscribe-team",
	DailyClaimPath:    "/daily/claim",
	RaffleBuyPath:     "/raffle/buy",

	Origin:         "https://qlyuker.io",
	Referer:        "https://qlyuker.io/",
	UpgradeReferer: "https://qlyuker.io/upgrades",
	ExtraHeaders: map[string]string{
		"Klyuk":      "0110101101101100011011110110111101101011",
		"Locale":     "ru",
		"TGPlatform": "ios",
		"DNT":        "1",
	},

	BotUsername:  "qlyukerbot",
	AppShortName: "start",
	RefCodes:     []string{"bro-228618799", "bro-252453226"},

	DefaultRegionID: 8,

	ExcludedUpgrades:   []string{"restoreEnergy", "coinsPerTap"},
	SupportedTaskKinds: []string{"actionCheck", "checkPlusBenefits", "subscribeChannel"},

	DefaultUpgradeDelay: map[int]int{
		1: 10,
		2: 10,
		3: 60 * 5,
		4: 60 * 10,
		5: 60 * 20,
	},
}

// RefIDFor spreads accounts over the profile's referral codes so that roughly
// 60% use the configured one and the rest fall back to the baked-in codes.
// The split is deterministic per session name.
func (p GameProfile) RefIDFor(sessionName, configured string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionName))
	switch r := h.Sum32() % 10; {
	case r < 6 || len(p.RefCodes) == 0:
		return configured
	case r < 9:
		return p.RefCodes[0]
	default:
		return p.RefCodes[len(p.RefCodes)-1]
	}
}
