package stealth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const initScriptTemplate = `(() => {
  const overrides = %s;
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  window.chrome = window.chrome || { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };
  const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
  if (originalQuery) {
    window.navigator.permissions.query = (parameters) => (
      parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery(parameters)
    );
  }
  Object.defineProperty(navigator, 'plugins', {
    get: () => [
      { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
      { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
      { name: 'Native Client', filename: 'internal-nacl-plugin' }
    ]
  });
  Object.defineProperty(navigator, 'languages', { get: () => overrides.languages });
  Object.defineProperty(navigator, 'platform', { get: () => overrides.platform });
  Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => overrides.hardwareConcurrency });
  Object.defineProperty(navigator, 'deviceMemory', { get: () => overrides.deviceMemory });
  Object.defineProperty(navigator, 'vendor', { get: () => overrides.vendor });
  Object.defineProperty(navigator, 'connection', {
    get: () => ({ effectiveType: '4g', rtt: 50, downlink: 10, saveData: false })
  });
})();`

// InitScript renders the script evaluated on every new document of a session.
func InitScript(p IdentityProfile) string {
	payload, err := json.Marshal(map[string]any{
		"languages":           p.Navigator.Languages,
		"platform":            p.Navigator.Platform,
		"hardwareConcurrency": p.Navigator.HardwareConcurrency,
		"deviceMemory":        p.Navigator.DeviceMemory,
		"vendor":              p.Navigator.Vendor,
	})
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf(initScriptTemplate, payload)
}

// CookieBannerSelectors are consent buttons clicked after navigation, in order.
var CookieBannerSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button#accept-cookies",
	".cookie-accept",
	".cc-accept",
	".cc-dismiss",
	".cc-allow",
	"[aria-label='Accept cookies']",
	"[aria-label='accept cookies']",
	"button[class*='cookie'][class*='accept']",
	"#cookie-consent button",
	".cookie-banner button",
	"#gdpr-consent-accept",
}

var challengeTitles = []string{
	"just a moment",
	"attention required",
	"access denied",
	"please verify you are a human",
	"checking your browser",
}

var challengeMarkers = []string{
	`id="cf-wrapper"`,
	`id="challenge-form"`,
	`id="challenge-running"`,
	"cf-turnstile",
	"cf-browser-verification",
	"g-recaptcha",
	"recaptcha/api",
	"hcaptcha.com",
	"h-captcha",
}

// DetectChallenge reports whether a response is an anti-bot interstitial rather
// than the requested content, along with the matched signal.
func DetectChallenge(status int, headers http.Header, html string) (bool, string) {
	if headers != nil && headers.Get("cf-mitigated") != "" &&
		(status == http.StatusForbidden || status == http.StatusServiceUnavailable) {
		return true, "cf-mitigated header"
	}
	lower := strings.ToLower(html)
	if title := pageTitle(lower); title != "" {
		for _, t := range challengeTitles {
			if strings.Contains(title, t) {
				return true, "title: " + t
			}
		}
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true, "marker: " + marker
		}
	}
	return false, ""
}

func pageTitle(lower string) string {
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	rest := lower[start:]
	open := strings.Index(rest, ">")
	if open < 0 {
		return ""
	}
	rest = rest[open+1:]
	end := strings.Index(rest, "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
