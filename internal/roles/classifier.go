// Package roles classifies dealership job titles by seniority and function.
package roles

import (
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// minMatchScore is the score a pattern must beat to classify a title.
	minMatchScore = 0.3
	// fuzzyFloor is the Jaro-Winkler similarity above which a misspelt title
	// still counts as a pattern match.
	fuzzyFloor = 0.9
	// overlapCeiling keeps partial word overlaps below substring matches.
	overlapCeiling = 0.85
	dealerBonus    = 0.1
)

// Classification is the outcome of classifying one title.
type Classification struct {
	Seniority          Seniority `json:"seniority"`
	Category           Category  `json:"category"`
	Confidence         float64   `json:"confidence"`
	Role               string    `json:"role,omitempty"`
	Keywords           []string  `json:"keywords,omitempty"`
	DealershipSpecific bool      `json:"dealership_specific"`
}

// TitleQuality is the seniority rank weighted by the classification confidence.
func (c Classification) TitleQuality() float64 {
	return c.Seniority.Rank() * c.Confidence
}

type pattern struct {
	text  string
	words []string
	set   map[string]bool
}

type compiledRole struct {
	name     string
	patterns []pattern
}

type compiledTier struct {
	seniority Seniority
	roles     []compiledRole
}

// Classifier matches titles against the seniority taxonomy. It is immutable
// and safe for concurrent use.
type Classifier struct {
	tiers []compiledTier
}

// NewClassifier compiles the built-in taxonomy.
func NewClassifier() *Classifier {
	c := &Classifier{}
	for _, t := range tiers {
		ct := compiledTier{seniority: t.seniority}
		for _, r := range t.roles {
			cr := compiledRole{name: r.name}
			for _, p := range r.patterns {
				words := normalize(p)
				if len(words) == 0 {
					continue
				}
				cr.patterns = append(cr.patterns, pattern{
					text:  strings.Join(words, " "),
					words: words,
					set:   wordSet(words),
				})
			}
			ct.roles = append(ct.roles, cr)
		}
		c.tiers = append(c.tiers, ct)
	}
	return c
}

// Classify places a title in the taxonomy. company, when it looks like a
// dealership name, adds the dealership bonus.
func (c *Classifier) Classify(title, company string) Classification {
	words := normalize(title)
	if len(words) == 0 {
		return Classification{Seniority: SeniorityOther, Category: CategoryOther}
	}
	for _, w := range words {
		if negativeWords[w] {
			return Classification{Seniority: SeniorityOther, Category: CategoryOther, Confidence: 0.2}
		}
	}

	norm := strings.Join(words, " ")
	set := wordSet(words)
	dealer := dealershipTitle(words) || dealershipCompany(company)

	var (
		best      float64
		bestTier  Seniority
		bestRole  string
		bestWords []string
	)
	for _, t := range c.tiers {
		for _, r := range t.roles {
			for _, p := range r.patterns {
				s := matchScore(norm, words, set, p)
				if s > best {
					best, bestTier, bestRole, bestWords = s, t.seniority, r.name, p.words
				}
			}
		}
	}

	if best <= minMatchScore {
		conf := 0.2
		if dealer {
			conf = 0.3
		}
		return Classification{
			Seniority:          SeniorityOther,
			Category:           categoryFromWords(norm),
			Confidence:         conf,
			DealershipSpecific: dealer,
		}
	}
	if dealer {
		best = math.Min(1, best+dealerBonus)
	}
	return Classification{
		Seniority:          bestTier,
		Category:           categoryOf(bestRole, bestTier),
		Confidence:         best,
		Role:               bestRole,
		Keywords:           append([]string(nil), bestWords...),
		DealershipSpecific: dealer,
	}
}

// matchScore rates how well a normalised title matches a pattern: 1 for an
// exact match, 0.8-0.9 for a whole-word substring (longer patterns score
// higher), otherwise a penalised word overlap or a fuzzy match, both capped
// below the substring range.
func matchScore(title string, words []string, set map[string]bool, p pattern) float64 {
	if title == p.text {
		return 1
	}
	if strings.Contains(" "+title+" ", " "+p.text+" ") {
		return 0.8 + 0.1*float64(len(p.words))/float64(len(words))
	}

	var shared int
	var bonus float64
	for w := range p.set {
		if set[w] {
			shared++
			if keyWords[w] {
				bonus += 0.1
			}
		}
	}
	var extra int
	for w := range set {
		if !p.set[w] {
			extra++
		}
	}
	score := float64(shared)/float64(len(p.set)) + bonus - 0.05*float64(extra)
	score = math.Max(0, math.Min(overlapCeiling, score))

	if sim := matchr.JaroWinkler(title, p.text, false); sim >= fuzzyFloor {
		score = math.Max(score, sim*overlapCeiling)
	}
	return score
}

func categoryOf(role string, s Seniority) Category {
	for _, k := range []string{"owner", "principal", "partner"} {
		if strings.Contains(role, k) {
			return CategoryOwnership
		}
	}
	if s == SeniorityCSuite || s == SenioritySeniorExec {
		return CategorySeniorLeadership
	}
	switch s {
	case SeniorityDirector:
		return CategoryDepartmentHead
	case SeniorityManager:
		return CategoryManagement
	case SenioritySpecialist:
		return CategorySpecialist
	}
	return functionalCategory(role)
}

func functionalCategory(role string) Category {
	for _, m := range []struct {
		key string
		cat Category
	}{
		{"sales", CategorySales},
		{"service", CategoryService},
		{"parts", CategoryService},
		{"finance", CategoryFinance},
		{"marketing", CategoryMarketing},
		{"operations", CategoryOperations},
		{"hr_", CategoryHRAdmin},
		{"it_", CategoryIT},
		{"customer", CategorySales},
	} {
		if strings.HasPrefix(role, m.key) || strings.Contains(role, "_"+m.key) {
			return m.cat
		}
	}
	return CategoryOther
}

func categoryFromWords(title string) Category {
	switch {
	case strings.Contains(title, "sales") || strings.Contains(title, "sell"):
		return CategorySales
	case strings.Contains(title, "service") || strings.Contains(title, "repair") || strings.Contains(title, "maintenance"):
		return CategoryService
	case strings.Contains(title, "finance") || strings.Contains(title, "accounting") || strings.Contains(title, "credit"):
		return CategoryFinance
	}
	return CategoryOther
}

func dealershipTitle(words []string) bool {
	for _, w := range words {
		if dealershipWords[w] {
			return true
		}
	}
	return false
}

func dealershipCompany(company string) bool {
	company = strings.ToLower(company)
	if company == "" {
		return false
	}
	for _, hint := range dealershipCompanyHints {
		if strings.Contains(company, hint) {
			return true
		}
	}
	return false
}

// normalize lower-cases a title, strips punctuation, drops filler words and
// expands abbreviations.
func normalize(title string) []string {
	var out []string
	for _, raw := range strings.Fields(strings.ToLower(title)) {
		w := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, raw)
		if w == "" || noiseWords[w] {
			continue
		}
		if exp, ok := abbreviations[w]; ok {
			out = append(out, strings.Fields(exp)...)
			continue
		}
		out = append(out, w)
	}
	return out
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
