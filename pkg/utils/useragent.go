package utils

import "fmt"

type uaTemplate struct {
	platform string
	format   string
}

var uaTemplates = []uaTemplate{
	{"android", "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Mobile Safari/537.36"},
	{"android", "Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Mobile Safari/537.36"},
	{"ios", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/%d.0.0.0 Mobile/15E148 Safari/604.1"},
}

const (
	uaChromeMinVersion = 110
	uaChromeMaxVersion = 129
)

// RandomUserAgent generates a mobile browser user agent with a randomized
// Chrome version. Generated once per account and persisted so the game sees
// a stable device.
func RandomUserAgent() string {
	tpl := uaTemplates[RandInt(0, len(uaTemplates)-1)]
	return fmt.Sprintf(tpl.format, RandInt(uaChromeMinVersion, uaChromeMaxVersion))
}
