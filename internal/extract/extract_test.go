package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) TryExtract(*Document) (Partial, bool) { panic("boom") }

type fixedContacts struct{ contacts []intel.ContactCandidate }

func (fixedContacts) Name() string { return "fixed" }

func (f fixedContacts) TryExtract(*Document) (Partial, bool) {
	return ContactsPartial{Contacts: f.contacts}, true
}

func TestRunRecoversPanicsAndMerges(t *testing.T) {
	t.Parallel()

	result := intel.NewCrawlResult()
	result.Contacts = []intel.ContactCandidate{{Name: "Jane Doe", Email: "JANE@example-motors.com"}}

	doc := ParseHTML("https://example-motors.com/", "<html></html>")
	matched := Run(doc, result,
		panicky{},
		fixedContacts{contacts: []intel.ContactCandidate{
			{Name: "Jane D.", Email: "jane@example-motors.com"},
			{Name: "Tom Lee", Phone: "555-123-4567"},
			{Name: "tom  lee", Phone: "(555) 123-4567"},
		}},
	)

	require.Equal(t, []string{"fixed"}, matched)
	require.Len(t, result.Contacts, 2)
	assert.Equal(t, "Jane Doe", result.Contacts[0].Name)
	assert.Equal(t, "Tom Lee", result.Contacts[1].Name)
}

func TestPartialsKeepFirstValue(t *testing.T) {
	t.Parallel()

	result := intel.NewCrawlResult()
	InventoryPartial{Condition: ConditionNew, Count: intel.InventoryCount{Count: 10}}.Apply(result)
	InventoryPartial{Condition: ConditionNew, Count: intel.InventoryCount{Count: 99}}.Apply(result)
	InventoryPartial{Condition: ConditionUsed, Count: intel.InventoryCount{Count: 5}}.Apply(result)
	require.NotNil(t, result.InventoryNew)
	require.NotNil(t, result.InventoryUsed)
	assert.Equal(t, 10, result.InventoryNew.Count)
	assert.Equal(t, 5, result.InventoryUsed.Count)

	SocialPartial{Links: map[string]string{"facebook": "a"}}.Apply(result)
	SocialPartial{Links: map[string]string{"facebook": "b", "youtube": "c"}}.Apply(result)
	assert.Equal(t, map[string]string{"facebook": "a", "youtube": "c"}, result.SocialLinks)

	ReviewPartial{Source: ReviewYelp, Review: intel.Review{Rating: 4}}.Apply(result)
	ReviewPartial{Source: ReviewYelp, Review: intel.Review{Rating: 1}}.Apply(result)
	assert.InDelta(t, 4.0, result.Reviews[ReviewYelp].Rating, 1e-9)

	PlatformPartial{Platform: intel.Platform{Name: "WordPress", Confidence: 0.7}}.Apply(result)
	PlatformPartial{Platform: intel.Platform{Name: "Dealer.com", Confidence: 0.95}}.Apply(result)
	PlatformPartial{Platform: intel.Platform{Name: "Wix", Confidence: 0.7}}.Apply(result)
	assert.Equal(t, "Dealer.com", result.Platform.Name)
}

func TestDocumentResolveAndText(t *testing.T) {
	t.Parallel()

	doc := ParseHTML("https://www.example-motors.com/about/", "<p>  Hello \n\n world </p>")
	assert.Equal(t, "Hello world", doc.Text())
	assert.Equal(t, "https://www.example-motors.com/about/team", doc.Resolve("team"))
	assert.Equal(t, "https://www.example-motors.com/staff", doc.Resolve("/staff"))
	assert.Empty(t, doc.Resolve("   "))
}

func TestPlatformDetect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		html       string
		want       string
		method     string
		confidence float64
		ok         bool
	}{
		{
			name:       "generator",
			html:       `<html><head><meta name="generator" content="Dealer.com Web Platform"></head></html>`,
			want:       "Dealer.com",
			method:     "meta_generator",
			confidence: confidenceGenerator,
			ok:         true,
		},
		{
			name:       "signature",
			html:       `<html><body><img src="https://cdn.dealeron.com/logo.png"></body></html>`,
			want:       "DealerOn",
			method:     "signature:dealeron.com",
			confidence: confidenceSignature,
			ok:         true,
		},
		{
			name:       "cms",
			html:       `<html><head><link rel="stylesheet" href="/wp-content/themes/x/style.css"></head></html>`,
			want:       "WordPress",
			method:     "cms_pattern",
			confidence: confidenceCMS,
			ok:         true,
		},
		{
			name:   "unknown",
			html:   `<html><body><p>Family owned since 1962.</p></body></html>`,
			want:   intel.PlatformUnknown,
			method: "none",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := PlatformDetector{}.Detect(ParseHTML("https://example-motors.com/", tc.html))
			require.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got.Name)
			assert.Equal(t, tc.method, got.Method)
			assert.InDelta(t, tc.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestInventoryCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		platform string
		html     string
		want     int
		ok       bool
	}{
		{
			name: "result text",
			html: `<html><body><div>Showing 1 - 25 of 142 vehicles</div></body></html>`,
			want: 142,
			ok:   true,
		},
		{
			name: "vehicle cards",
			html: `<html><body>
<div class="vehicle-card">A</div><div class="vehicle-card">B</div><div class="vehicle-card">C</div>
</body></html>`,
			want: 3,
			ok:   true,
		},
		{
			name:     "platform count element",
			platform: "Dealer.com",
			html:     `<html><body><span class="totalCount" data-total="87"></span></body></html>`,
			want:     87,
			ok:       true,
		},
		{
			name: "zero is not a count",
			html: `<html><body><p>0 vehicles found</p></body></html>`,
		},
		{
			name: "nothing",
			html: `<html><body><p>Call us today</p></body></html>`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			inv := Inventory{Condition: ConditionNew, Platform: tc.platform}
			partial, ok := inv.TryExtract(ParseHTML("https://example-motors.com/new-inventory", tc.html))
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			p, isInv := partial.(InventoryPartial)
			require.True(t, isInv)
			assert.Equal(t, ConditionNew, p.Condition)
			assert.Equal(t, tc.want, p.Count.Count)
			assert.Equal(t, "https://example-motors.com/new-inventory", p.Count.URL)
		})
	}
}

func TestSocialLinks(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<div class="content">
  <a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
  <a href="https://www.facebook.com/SomeoneElse">Partner</a>
  <a href="https://twitter.com/intent/tweet?text=hi">Tweet</a>
  <a href="https://www.instagram.com/">Instagram home</a>
</div>
<footer>
  <a href="https://www.facebook.com/ExampleMotors">Facebook</a>
  <a href="https://x.com/examplemotors">X</a>
  <a href="https://www.youtube.com/@examplemotors">YouTube</a>
</footer>
</body></html>`

	links := Social{}.Links(ParseHTML("https://example-motors.com/", page))
	assert.Equal(t, map[string]string{
		"facebook": "https://www.facebook.com/ExampleMotors",
		"twitter":  "https://x.com/examplemotors",
		"youtube":  "https://www.youtube.com/@examplemotors",
	}, links)

	_, ok := Social{}.TryExtract(ParseHTML("https://example-motors.com/", "<p>none</p>"))
	require.False(t, ok)
}

func TestReviews(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		source string
		html   string
		rating float64
		count  int
		ok     bool
	}{
		{
			name:   "google",
			source: ReviewGoogle,
			html:   `<html><body><div>Example Motors</div><span>4.6 stars</span><span>1,234 Google reviews</span></body></html>`,
			rating: 4.6,
			count:  1234,
			ok:     true,
		},
		{
			name:   "dealerrater",
			source: ReviewDealerRater,
			html:   `<html><body><div class="rating-static">4.8</div><p>Read 512 reviews</p></body></html>`,
			rating: 4.8,
			count:  512,
			ok:     true,
		},
		{
			name:   "yelp",
			source: ReviewYelp,
			html:   `<html><body><div aria-label="4.0 star rating"></div><span>87 reviews</span></body></html>`,
			rating: 4.0,
			count:  87,
			ok:     true,
		},
		{
			name:   "google without rating",
			source: ReviewGoogle,
			html:   `<html><body><p>No results</p></body></html>`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			partial, ok := Review{Source: tc.source}.TryExtract(ParseHTML("https://reviews.test/search", tc.html))
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			p, isReview := partial.(ReviewPartial)
			require.True(t, isReview)
			assert.Equal(t, tc.source, p.Source)
			assert.InDelta(t, tc.rating, p.Review.Rating, 1e-9)
			assert.Equal(t, tc.count, p.Review.Count)
			assert.Equal(t, "https://reviews.test/search", p.Review.URL)
		})
	}
}

func TestReviewSearchURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://www.google.com/search?q=Example+Motors+Austin+reviews",
		ReviewSearchURL(ReviewGoogle, "Example Motors", "Austin"))
	assert.Equal(t, "https://www.dealerrater.com/dealer/search?q=Example+Motors",
		ReviewSearchURL(ReviewDealerRater, " Example Motors ", ""))
	assert.Equal(t, "https://www.yelp.com/search?find_desc=Example+Motors&find_loc=",
		ReviewSearchURL(ReviewYelp, "Example Motors", ""))
	assert.Empty(t, ReviewSearchURL("myspace", "Example Motors", ""))
}

func TestCandidatePaths(t *testing.T) {
	t.Parallel()

	paths := StaffCandidatePaths("Dealer.com")
	require.Equal(t, "/staff", paths[0])
	require.Equal(t, "/dealership/staff.htm", paths[1])
	seen := map[string]int{}
	for _, p := range paths {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, p)
	}

	assert.Equal(t, StaffPaths, StaffCandidatePaths(""))
	assert.Equal(t, ContactPaths, ContactCandidatePaths("nope"))
	assert.Equal(t, "/used-inventory", InventoryCandidatePaths("", ConditionUsed)[0])
}
