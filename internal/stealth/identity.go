// Package stealth builds the per-session browser identities used to reduce bot
// detection, plus the static tables the crawler consults while browsing.
package stealth

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int64
	Height int64
}

// NavigatorOverrides are the navigator properties patched by the init script.
type NavigatorOverrides struct {
	Platform            string
	Languages           []string
	HardwareConcurrency int
	DeviceMemory        int
	Vendor              string
}

// DelayProfile describes the human-like pause taken before an interaction.
type DelayProfile struct {
	Min time.Duration
	Max time.Duration
	// Jitter returns a value in [0,1). Nil falls back to math/rand.
	Jitter func() float64
}

// Sample returns a pause uniformly distributed in [Min, Max].
func (d DelayProfile) Sample() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	jitter := d.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	span := float64(d.Max - d.Min)
	return d.Min + time.Duration(jitter()*span)
}

// IdentityProfile is the immutable fingerprint a session presents for its lifetime.
type IdentityProfile struct {
	UserAgent      string
	AcceptLanguage string
	Viewport       Viewport
	Timezone       string
	Locale         string
	Navigator      NavigatorOverrides
	Delay          DelayProfile
}

// Headers returns the extra request headers sent with every navigation.
func (p IdentityProfile) Headers() map[string]string {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           p.AcceptLanguage,
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
	if p.AcceptLanguage == "" {
		headers["Accept-Language"] = "en-US,en;q=0.9"
	}
	return headers
}

type agent struct {
	userAgent string
	platform  string
	vendor    string
}

var userAgents = []agent{
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		platform:  "Win32",
		vendor:    "Google Inc.",
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		platform:  "Win32",
		vendor:    "Google Inc.",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		platform:  "MacIntel",
		vendor:    "Google Inc.",
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
		platform:  "Win32",
		vendor:    "",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
		platform:  "MacIntel",
		vendor:    "Apple Computer, Inc.",
	},
}

var viewports = []Viewport{
	{Width: 1280, Height: 900},
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
	{Width: 1920, Height: 1080},
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
}

var hardware = []int{4, 8, 8, 12, 16}

// Config tunes identity generation.
type Config struct {
	DelayMin time.Duration
	DelayMax time.Duration
	// Seed makes generation reproducible when non-zero.
	Seed uint64
}

// Generator produces identities. It is safe for concurrent use.
type Generator struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a Generator.
func NewGenerator(cfg Config) *Generator {
	if cfg.DelayMin <= 0 && cfg.DelayMax <= 0 {
		cfg.DelayMin = 1500 * time.Millisecond
		cfg.DelayMax = 3 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NewIdentity draws a coherent identity: the user agent, platform and vendor are
// chosen together so the navigator overrides never contradict the UA string.
func (g *Generator) NewIdentity() IdentityProfile {
	g.mu.Lock()
	a := userAgents[g.rng.IntN(len(userAgents))]
	vp := viewports[g.rng.IntN(len(viewports))]
	tz := timezones[g.rng.IntN(len(timezones))]
	cores := hardware[g.rng.IntN(len(hardware))]
	delaySeed := g.rng.Uint64()
	g.mu.Unlock()

	delayRNG := rand.New(rand.NewPCG(delaySeed, delaySeed>>1))
	var delayMu sync.Mutex
	return IdentityProfile{
		UserAgent:      a.userAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Viewport:       vp,
		Timezone:       tz,
		Locale:         "en-US",
		Navigator: NavigatorOverrides{
			Platform:            a.platform,
			Languages:           []string{"en-US", "en"},
			HardwareConcurrency: cores,
			DeviceMemory:        8,
			Vendor:              a.vendor,
		},
		Delay: DelayProfile{
			Min: g.cfg.DelayMin,
			Max: g.cfg.DelayMax,
			Jitter: func() float64 {
				delayMu.Lock()
				defer delayMu.Unlock()
				return delayRNG.Float64()
			},
		},
	}
}
