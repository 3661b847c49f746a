// Package extract turns rendered dealership pages into partial crawl records.
//
// Every extractor implements Extractor. Absence of data is reported as a
// NoMatch (false) rather than an error, and malformed markup never panics.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Document is a parsed page shared by all extractors run against it.
type Document struct {
	URL    string
	Status int
	HTML   string
	Doc    *goquery.Document

	lower string
	text  string
	base  *url.URL
}

// Parse builds a Document from a rendered page.
func Parse(page intel.Page) *Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = page.URL
	}
	base, _ := url.Parse(pageURL)
	return &Document{
		URL:    pageURL,
		Status: page.StatusCode,
		HTML:   page.HTML,
		Doc:    doc,
		base:   base,
	}
}

// ParseHTML is a convenience for tests and static inputs.
func ParseHTML(pageURL, body string) *Document {
	return Parse(intel.Page{URL: pageURL, FinalURL: pageURL, StatusCode: 200, HTML: body})
}

// Lower returns the lower-cased raw HTML.
func (d *Document) Lower() string {
	if d.lower == "" && d.HTML != "" {
		d.lower = strings.ToLower(d.HTML)
	}
	return d.lower
}

// Text returns the visible text of the document with collapsed whitespace.
func (d *Document) Text() string {
	if d.text == "" {
		d.text = collapse(d.Doc.Text())
	}
	return d.text
}

// Resolve makes href absolute against the document URL.
func (d *Document) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if d.base == nil {
		return ref.String()
	}
	return d.base.ResolveReference(ref).String()
}

// Partial is a fragment of a crawl result produced by one extractor.
type Partial interface {
	Apply(result *intel.CrawlResult)
}

// Extractor is the capability every page extractor implements.
type Extractor interface {
	Name() string
	// TryExtract returns false when the page holds nothing this extractor recognises.
	TryExtract(doc *Document) (Partial, bool)
}

// Run applies each extractor to doc and merges the matches into result. It
// returns the names of the extractors that matched.
func Run(doc *Document, result *intel.CrawlResult, extractors ...Extractor) []string {
	var matched []string
	for _, ex := range extractors {
		partial, ok := safeExtract(ex, doc)
		if !ok || partial == nil {
			continue
		}
		partial.Apply(result)
		matched = append(matched, ex.Name())
	}
	return matched
}

func safeExtract(ex Extractor, doc *Document) (partial Partial, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			partial, ok = nil, false
		}
	}()
	return ex.TryExtract(doc)
}

// ContactsPartial carries contacts found on a page.
type ContactsPartial struct {
	Contacts []intel.ContactCandidate
}

// Apply appends contacts whose identity key is not already present.
func (p ContactsPartial) Apply(result *intel.CrawlResult) {
	seen := make(map[string]struct{}, len(result.Contacts))
	for _, c := range result.Contacts {
		seen[intel.IdentityKey(c)] = struct{}{}
	}
	for _, c := range p.Contacts {
		key := intel.IdentityKey(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result.Contacts = append(result.Contacts, c)
	}
}

// PlatformPartial carries a detected platform.
type PlatformPartial struct {
	Platform intel.Platform
}

// Apply keeps the most confident detection.
func (p PlatformPartial) Apply(result *intel.CrawlResult) {
	if result.Platform.Name == "" || result.Platform.Name == intel.PlatformUnknown ||
		p.Platform.Confidence > result.Platform.Confidence {
		result.Platform = p.Platform
	}
}

// Inventory conditions.
const (
	ConditionNew  = "new"
	ConditionUsed = "used"
)

// InventoryPartial carries a vehicle count for one condition.
type InventoryPartial struct {
	Condition string
	Count     intel.InventoryCount
}

// Apply sets the count for the condition if it is still unknown.
func (p InventoryPartial) Apply(result *intel.CrawlResult) {
	count := p.Count
	switch p.Condition {
	case ConditionNew:
		if result.InventoryNew == nil {
			result.InventoryNew = &count
		}
	case ConditionUsed:
		if result.InventoryUsed == nil {
			result.InventoryUsed = &count
		}
	}
}

// SocialPartial maps networks to profile URLs.
type SocialPartial struct {
	Links map[string]string
}

// Apply keeps the first link seen per network.
func (p SocialPartial) Apply(result *intel.CrawlResult) {
	if result.SocialLinks == nil {
		result.SocialLinks = map[string]string{}
	}
	for network, link := range p.Links {
		if _, ok := result.SocialLinks[network]; !ok {
			result.SocialLinks[network] = link
		}
	}
}

// ReviewPartial carries the rating summary of one review source.
type ReviewPartial struct {
	Source string
	Review intel.Review
}

// Apply records the review unless the source already has one.
func (p ReviewPartial) Apply(result *intel.CrawlResult) {
	if result.Reviews == nil {
		result.Reviews = map[string]intel.Review{}
	}
	if _, ok := result.Reviews[p.Source]; !ok {
		result.Reviews[p.Source] = p.Review
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
