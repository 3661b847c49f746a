// Package scoring turns a validated contact into a deterministic 0-100
// confidence score.
package scoring

import (
	"math"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/roles"
	"github.com/savvydealer-adam/dealership-intel/internal/validate"
)

// Weights are the maximum points of each score component.
type Weights struct {
	Completeness float64 `mapstructure:"completeness"`
	DomainMatch  float64 `mapstructure:"domain_match"`
	TitleQuality float64 `mapstructure:"title_quality"`
	Seed         float64 `mapstructure:"seed"`
	Validation   float64 `mapstructure:"validation"`
}

// Config is the scoring table: component weights and the points each failed
// check removes from the validation component, keyed by check name.
type Config struct {
	Weights   Weights            `mapstructure:"weights"`
	Penalties map[string]float64 `mapstructure:"penalties"`
}

// Domain-match values.
const (
	sameDomain      = 1.0
	otherCorporate  = 0.25
	personalOrEmpty = 0.0
)

// DefaultConfig returns the default table; its weights sum to 100.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Completeness: 30,
			DomainMatch:  20,
			TitleQuality: 20,
			Seed:         10,
			Validation:   20,
		},
		Penalties: map[string]float64{
			validate.CheckEmailSyntax:  20,
			validate.CheckEmailDomain:  8,
			validate.CheckEmailMX:      10,
			validate.CheckEmailMailbox: 10,
			validate.CheckPhone:        5,
			validate.CheckName:         12,
			validate.CheckNameEmail:    3,
		},
	}
}

// Scorer applies a scoring table. It is immutable and safe for concurrent use.
type Scorer struct {
	cfg        Config
	classifier *roles.Classifier
}

// New builds a Scorer. A nil classifier gets the built-in taxonomy.
func New(cfg Config, classifier *roles.Classifier) *Scorer {
	if classifier == nil {
		classifier = roles.NewClassifier()
	}
	penalties := make(map[string]float64, len(cfg.Penalties))
	for k, v := range cfg.Penalties {
		penalties[k] = v
	}
	cfg.Penalties = penalties
	return &Scorer{cfg: cfg, classifier: classifier}
}

// Score returns the clamped total rounded to one decimal and the weighted
// points of every component. Unknown checks carry no penalty.
func (s *Scorer) Score(c intel.ContactCandidate, targetDomain string, role roles.Classification, checks []intel.Check) (float64, intel.ScoreBreakdown) {
	w := s.cfg.Weights
	b := intel.ScoreBreakdown{
		Completeness: w.Completeness * Completeness(c),
		DomainMatch:  w.DomainMatch * DomainMatch(c.Email, targetDomain),
		Seed:         w.Seed * clamp01(c.RawConfidence),
	}
	if c.Title != "" {
		b.TitleQuality = w.TitleQuality * clamp01(role.TitleQuality())
	}
	points := w.Validation
	for _, ch := range checks {
		if ch.Outcome == intel.Fail {
			points -= s.cfg.Penalties[ch.Name]
		}
	}
	b.Validation = math.Max(0, points)

	total := b.Completeness + b.DomainMatch + b.TitleQuality + b.Seed + b.Validation
	total = math.Max(0, math.Min(100, total))
	return round1(total), b
}

// Build classifies, scores and assembles the final contact record.
func (s *Scorer) Build(c intel.ContactCandidate, targetDomain, company string, v validate.Result) intel.ScoredContact {
	role := s.classifier.Classify(c.Title, company)
	score, breakdown := s.Score(c, targetDomain, role, v.Checks)
	out := intel.ScoredContact{
		ContactCandidate: c,
		NormalizedPhone:  v.NormalizedPhone,
		Validation:       v.Status,
		Checks:           v.Checks,
		Score:            score,
		Breakdown:        breakdown,
	}
	if v.NormalizedEmail != "" {
		out.Email = v.NormalizedEmail
	}
	if c.Title != "" {
		out.Seniority = string(role.Seniority)
		out.Category = string(role.Category)
	}
	return out
}

// Completeness is the populated share of name, title, email and phone.
func Completeness(c intel.ContactCandidate) float64 {
	n := 0
	for _, v := range []string{c.Name, c.Title, c.Email, c.Phone} {
		if v != "" {
			n++
		}
	}
	return float64(n) / 4
}

// DomainMatch rates how closely the email domain ties the contact to the
// target: the target domain or one of its subdomains, another corporate
// domain, or a free-mail or missing address.
func DomainMatch(email, targetDomain string) float64 {
	domain := intel.EmailDomain(intel.NormalizeEmail(email))
	switch {
	case domain == "" || validate.IsPersonalDomain(domain):
		return personalOrEmpty
	case intel.SameOrSubdomain(domain, intel.NormalizeDomain(targetDomain)):
		return sameDomain
	default:
		return otherCorporate
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
