// Package chain decides when the enrichment API is needed and merges its
// contacts with the crawled ones.
package chain

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// DefaultThreshold is the deduplicated crawl contact count below which the
// fallback runs.
const DefaultThreshold = 2

// Searcher runs the fallback strategies for a target.
type Searcher interface {
	SearchAll(ctx context.Context, target intel.Target) (intel.FallbackResult, error)
}

// Config controls the fallback decision.
type Config struct {
	Enabled   bool
	Threshold int
}

// Outcome is the merged contact set of one target and how it was obtained.
type Outcome struct {
	Contacts     []intel.ContactCandidate
	Organization *intel.Organization
	Usage        intel.FallbackUsage
	// Err is the fallback failure, if any. The crawl contacts are still merged.
	Err error
}

// Controller applies the fallback decision and merge.
type Controller struct {
	cfg      Config
	searcher Searcher
	logger   *zap.Logger
}

// New builds a Controller. A nil searcher behaves as a disabled fallback.
func New(cfg Config, searcher Searcher, logger *zap.Logger) *Controller {
	if cfg.Threshold < 0 {
		cfg.Threshold = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, searcher: searcher, logger: logger}
}

// ShouldFallback reports whether the crawl contacts, once deduplicated, are
// fewer than threshold.
func ShouldFallback(crawled []intel.ContactCandidate, threshold int) bool {
	return len(Dedup(crawled)) < threshold
}

// Resolve reads the finished crawl result, calls the fallback when needed and
// returns the merged contacts.
func (c *Controller) Resolve(ctx context.Context, target intel.Target, crawled *intel.CrawlResult) Outcome {
	var contacts []intel.ContactCandidate
	if crawled != nil {
		contacts = Dedup(crawled.Contacts)
	}
	out := Outcome{Contacts: contacts}
	out.Usage.Needed = len(contacts) < c.cfg.Threshold
	if !out.Usage.Needed {
		return out
	}
	if !c.cfg.Enabled || c.searcher == nil {
		c.logger.Debug("fallback needed but disabled",
			zap.String("target", target.URL),
			zap.Int("contacts", len(contacts)),
		)
		return out
	}

	out.Usage.Invoked = true
	res, err := c.searcher.SearchAll(ctx, target)
	out.Usage.Strategy = res.StrategyUsed
	out.Usage.APICalls = res.APICallsMade
	out.Organization = res.Organization
	if err != nil {
		out.Err = err
		out.Usage.Error = err.Error()
		level := c.logger.Warn
		if errors.Is(err, context.Canceled) {
			level = c.logger.Debug
		}
		level("fallback search failed",
			zap.String("target", target.URL),
			zap.String("domain", target.Domain()),
			zap.Error(err),
		)
	}
	out.Contacts = Merge(contacts, res.Contacts)
	c.logger.Debug("contacts merged",
		zap.String("target", target.URL),
		zap.String("strategy", string(res.StrategyUsed)),
		zap.Int("crawl", len(contacts)),
		zap.Int("fallback", len(res.Contacts)),
		zap.Int("merged", len(out.Contacts)),
	)
	return out
}

// Dedup collapses candidates sharing an identity key.
func Dedup(cands []intel.ContactCandidate) []intel.ContactCandidate {
	return Merge(cands, nil)
}

// Merge unions crawl and fallback candidates and collapses each identity-key
// group into one contact. The member with the most populated fields wins, crawl
// beating fallback on a tie; its empty fields are filled from the others and it
// keeps the highest RawConfidence. Groups keep the order of their first member.
func Merge(crawled, fallback []intel.ContactCandidate) []intel.ContactCandidate {
	all := make([]intel.ContactCandidate, 0, len(crawled)+len(fallback))
	all = append(all, crawled...)
	all = append(all, fallback...)
	if len(all) == 0 {
		return nil
	}

	groups := make(map[string][]intel.ContactCandidate, len(all))
	var order []string
	for _, cand := range all {
		key := intel.IdentityKey(cand)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], cand)
	}

	out := make([]intel.ContactCandidate, 0, len(order))
	for _, key := range order {
		out = append(out, mergeGroup(groups[key]))
	}
	return out
}

func mergeGroup(members []intel.ContactCandidate) intel.ContactCandidate {
	ranked := slices.Clone(members)
	// Stable sort keeps first-seen order among equals.
	slices.SortStableFunc(ranked, func(a, b intel.ContactCandidate) int {
		if d := b.PopulatedFields() - a.PopulatedFields(); d != 0 {
			return d
		}
		return sourceRank(a.Source) - sourceRank(b.Source)
	})

	merged := ranked[0]
	merged.Sources = nil
	seen := map[intel.Source]bool{}
	for _, m := range ranked {
		fill(&merged.Name, m.Name)
		fill(&merged.Title, m.Title)
		fill(&merged.Email, m.Email)
		fill(&merged.Phone, m.Phone)
		fill(&merged.LinkedInURL, m.LinkedInURL)
		fill(&merged.PhotoURL, m.PhotoURL)
		fill(&merged.SourceURL, m.SourceURL)
		if m.RawConfidence > merged.RawConfidence {
			merged.RawConfidence = m.RawConfidence
		}
		for _, s := range provenance(m) {
			seen[s] = true
		}
	}
	for s := range seen {
		merged.Sources = append(merged.Sources, s)
	}
	slices.SortFunc(merged.Sources, func(a, b intel.Source) int {
		if d := sourceRank(a) - sourceRank(b); d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return merged
}

func fill(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func provenance(c intel.ContactCandidate) []intel.Source {
	if len(c.Sources) > 0 {
		return c.Sources
	}
	if c.Source == "" {
		return nil
	}
	return []intel.Source{c.Source}
}

func sourceRank(s intel.Source) int {
	switch s {
	case intel.SourceCrawl:
		return 0
	case intel.SourceFallback:
		return 1
	default:
		return 2
	}
}
