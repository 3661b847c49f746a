package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

const (
	minVehicleCount = 1
	maxVehicleCount = 10000
	minVehicleCards = 2
)

var defaultCountPatterns = compileAll(
	`(\d+)\s+(?:vehicle|car|result|match)s?\s+(?:found|available|in stock)`,
	`(?:showing|displaying)\s+\d+\s*-\s*\d+\s+of\s+(\d+)`,
	`(\d+)\s+(?:new|used|pre-owned)\s+(?:vehicle|car)s?\s+(?:for sale|available|in stock)`,
	`total[:\s]+(\d+)`,
	`(\d+)\s+results?`,
)

var vehicleCardSelectors = []string{
	"[class*='vehicle-card']",
	"[class*='inventory-item']",
	"[class*='vehicle-listing']",
	"[class*='srp-listing']",
	"[class*='vehicle_card']",
	"[class*='listing-item']",
	"[data-vehicle-id]",
	".vehicle",
	".inventory-listing",
}

// Inventory counts the vehicles on a new or used listing page.
type Inventory struct {
	Condition string
	Platform  string
}

// Name implements Extractor.
func (i Inventory) Name() string { return "inventory-" + i.Condition }

// TryExtract implements Extractor.
func (i Inventory) TryExtract(doc *Document) (Partial, bool) {
	count, ok := i.Count(doc)
	if !ok {
		return nil, false
	}
	return InventoryPartial{
		Condition: i.Condition,
		Count:     intel.InventoryCount{Count: count, URL: doc.URL},
	}, true
}

// Count reads the vehicle count from, in order: result-count text, platform
// count elements, then the number of vehicle cards.
func (i Inventory) Count(doc *Document) (int, bool) {
	info, hasPlatform := LookupPlatform(i.Platform)
	text := doc.Text()

	patterns := defaultCountPatterns
	if hasPlatform {
		patterns = append(compileAll(info.CountPatterns...), defaultCountPatterns...)
	}
	for _, re := range patterns {
		if n, ok := firstSaneCount(re, text); ok {
			return n, true
		}
	}

	if hasPlatform {
		for _, sel := range info.CountSelectors {
			if n, ok := countFromElement(doc.Doc.Find(sel).First()); ok {
				return n, true
			}
		}
	}

	for _, sel := range vehicleCardSelectors {
		if n := doc.Doc.Find(sel).Length(); n >= minVehicleCards {
			return n, true
		}
	}
	return 0, false
}

func firstSaneCount(re *regexp.Regexp, text string) (int, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= minVehicleCount && n <= maxVehicleCount {
			return n, true
		}
	}
	return 0, false
}

func countFromElement(s *goquery.Selection) (int, bool) {
	if s.Length() == 0 {
		return 0, false
	}
	for _, attr := range []string{"data-total", "data-count"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= minVehicleCount && n <= maxVehicleCount {
				return n, true
			}
		}
	}
	digits := strings.Fields(strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, s.Text()))
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits[0])
	if err != nil || n < minVehicleCount || n > maxVehicleCount {
		return 0, false
	}
	return n, true
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}
