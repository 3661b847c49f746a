// Package intel defines the records that flow through the dealership pipeline.
package intel

import (
	"net/http"
	"time"
)

// Source identifies where a contact candidate was observed.
type Source string

// Contact sources.
const (
	SourceCrawl    Source = "crawl"
	SourceFallback Source = "fallback"
)

// Status is the terminal processing status of a target.
type Status string

// Target statuses.
const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// CrawlState is a node in the per-target crawl state machine.
type CrawlState string

// Crawl states.
const (
	StatePending     CrawlState = "pending"
	StateDiscovering CrawlState = "discovering-pages"
	StateExtracting  CrawlState = "extracting"
	StateDone        CrawlState = "done"
	StateFailed      CrawlState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s CrawlState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Target is one dealership website to process.
type Target struct {
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Domain returns the bare, normalised host of the target or "" when the URL is unusable.
func (t Target) Domain() string {
	return DomainOf(t.URL)
}

// BaseURL returns the https origin used for crawling.
func (t Target) BaseURL() string {
	domain := t.Domain()
	if domain == "" {
		return ""
	}
	return "https://" + domain
}

// Page is a rendered document returned by a browser session.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	HTML       string
	Elapsed    time.Duration
}

// ContactCandidate is a possible staff contact from one source.
type ContactCandidate struct {
	Name          string   `json:"name"`
	Title         string   `json:"title,omitempty"`
	Email         string   `json:"email,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	LinkedInURL   string   `json:"linkedin_url,omitempty"`
	PhotoURL      string   `json:"photo_url,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	Source        Source   `json:"source"`
	Sources       []Source `json:"sources,omitempty"`
	RawConfidence float64  `json:"raw_confidence"`
}

// PopulatedFields counts the identifying and descriptive fields that carry a value.
func (c ContactCandidate) PopulatedFields() int {
	n := 0
	for _, v := range []string{c.Name, c.Title, c.Email, c.Phone, c.LinkedInURL, c.PhotoURL} {
		if v != "" {
			n++
		}
	}
	return n
}

// PageErrorKind classifies a page-level failure.
type PageErrorKind string

// Page error kinds.
const (
	PageErrorNavigation PageErrorKind = "navigation"
	PageErrorStatus     PageErrorKind = "status"
	PageErrorChallenge  PageErrorKind = "challenge"
	PageErrorCrash      PageErrorKind = "crash"
	PageErrorTimeout    PageErrorKind = "timeout"
)

// PageError records a page that could not be used.
type PageError struct {
	URL     string        `json:"url"`
	Kind    PageErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// Platform describes the detected website platform.
type Platform struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// PlatformUnknown is reported when no signature matches.
const PlatformUnknown = "unknown"

// InventoryCount is a vehicle count and the page it came from.
type InventoryCount struct {
	Count int    `json:"count"`
	URL   string `json:"url"`
}

// Review is a rating summary from one review source.
type Review struct {
	Rating float64 `json:"rating"`
	Count  int     `json:"count,omitempty"`
	URL    string  `json:"url,omitempty"`
}

// CrawlResult accumulates everything the crawl learned about a target.
type CrawlResult struct {
	State         CrawlState         `json:"state"`
	Contacts      []ContactCandidate `json:"contacts"`
	Platform      Platform           `json:"platform"`
	InventoryNew  *InventoryCount    `json:"inventory_new,omitempty"`
	InventoryUsed *InventoryCount    `json:"inventory_used,omitempty"`
	SocialLinks   map[string]string  `json:"social_links,omitempty"`
	Reviews       map[string]Review  `json:"reviews,omitempty"`
	PagesVisited  int                `json:"pages_visited"`
	Errors        []PageError        `json:"errors,omitempty"`
}

// NewCrawlResult returns an empty result in the pending state.
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{
		State:       StatePending,
		Platform:    Platform{Name: PlatformUnknown},
		SocialLinks: map[string]string{},
		Reviews:     map[string]Review{},
	}
}

// Strategy names a fallback search strategy.
type Strategy string

// Fallback strategies in their default priority order.
const (
	StrategyDomain      Strategy = "domain"
	StrategyCompanyName Strategy = "company_name"
	StrategyBroadened   Strategy = "broadened"
)

// Organization carries company metadata returned by the fallback API.
type Organization struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Employees   int    `json:"employees,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// FallbackResult is the outcome of querying the enrichment API.
type FallbackResult struct {
	Contacts     []ContactCandidate `json:"contacts"`
	StrategyUsed Strategy           `json:"strategy_used,omitempty"`
	APICallsMade int                `json:"api_calls_made"`
	Organization *Organization      `json:"organization,omitempty"`
}

// Outcome is a tri-state check result. The zero value is Unknown.
type Outcome int

// Check outcomes.
const (
	Unknown Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name; anything unrecognised is Unknown.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pass":
		*o = Pass
	case "fail":
		*o = Fail
	default:
		*o = Unknown
	}
	return nil
}

// Check is a single validation step applied to a contact.
type Check struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// ValidationStatus summarises the checks of a contact.
type ValidationStatus string

// Validation statuses.
const (
	ValidationValid      ValidationStatus = "valid"
	ValidationInvalid    ValidationStatus = "invalid"
	ValidationUnverified ValidationStatus = "unverified"
)

// ScoreBreakdown exposes the weighted components behind a score.
type ScoreBreakdown struct {
	Completeness float64 `json:"completeness"`
	DomainMatch  float64 `json:"domain_match"`
	TitleQuality float64 `json:"title_quality"`
	Seed         float64 `json:"seed"`
	Validation   float64 `json:"validation"`
}

// ScoredContact is a merged contact after validation and scoring.
type ScoredContact struct {
	ContactCandidate
	NormalizedPhone string           `json:"normalized_phone,omitempty"`
	Seniority       string           `json:"seniority,omitempty"`
	Category        string           `json:"category,omitempty"`
	Validation      ValidationStatus `json:"validation"`
	Checks          []Check          `json:"checks"`
	Score           float64          `json:"score"`
	Breakdown       ScoreBreakdown   `json:"breakdown"`
}

// FallbackUsage records whether and how the fallback API contributed.
type FallbackUsage struct {
	Needed   bool     `json:"needed"`
	Invoked  bool     `json:"invoked"`
	Strategy Strategy `json:"strategy,omitempty"`
	APICalls int      `json:"api_calls"`
	Error    string   `json:"error,omitempty"`
}

// DealershipIntel is the terminal record produced for every target.
type DealershipIntel struct {
	ID            string            `json:"id"`
	RunID         string            `json:"run_id"`
	Target        Target            `json:"target"`
	Domain        string            `json:"domain"`
	CompanyName   string            `json:"company_name"`
	Status        Status            `json:"status"`
	Platform      Platform          `json:"platform"`
	InventoryNew  *InventoryCount   `json:"inventory_new,omitempty"`
	InventoryUsed *InventoryCount   `json:"inventory_used,omitempty"`
	SocialLinks   map[string]string `json:"social_links,omitempty"`
	Reviews       map[string]Review `json:"reviews,omitempty"`
	Organization  *Organization     `json:"organization,omitempty"`
	Contacts      []ScoredContact   `json:"contacts"`
	PagesVisited  int               `json:"pages_visited"`
	Fallback      FallbackUsage     `json:"fallback"`
	Errors        []string          `json:"errors,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}
