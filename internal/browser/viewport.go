package browser

import "strings"

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type Viewport struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Mobile    bool   `json:"mobile"`
	UserAgent string `json:"-"`
}

var (
	Desktop = Viewport{Name: "desktop", Width: 1280, Height: 800, UserAgent: desktopUA}
	Mobile  = Viewport{Name: "mobile", Width: 390, Height: 844, Mobile: true, UserAgent: mobileUA}
)

// ViewportByName returns the named preset; matching ignores case.
func ViewportByName(name string) (Viewport, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Desktop.Name, "":
		return Desktop, true
	case Mobile.Name:
		return Mobile, true
	}
	return Viewport{}, false
}

// cookieSelectors match common consent banner accept buttons.
var cookieSelectors = []string{
	"[id*='cookie'] button[id*='accept']",
	"[class*='cookie'] button[class*='accept']",
	"button:has-text('Accept all')",
	"button:has-text('Accept All')",
	"button:has-text('Accept')",
	"button:has-text('Accetta tutti')",
	"button:has-text('Accetta')",
	"button:has-text('Agree')",
	"button:has-text('OK')",
	"#onetrust-accept-btn-handler",
	".cc-accept",
	".cc-btn.cc-allow",
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"[data-cookiefirst-action='accept']",
	"#didomi-notice-agree-button",
	".iubenda-cs-accept-btn",
	"#accept-cookie",
	".accept-cookies",
	".cookie-accept",
	"#cookie-accept",
	".gdpr-accept",
	"#gdpr-accept",
}
