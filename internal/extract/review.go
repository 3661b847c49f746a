package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Review sources.
const (
	ReviewGoogle      = "google"
	ReviewDealerRater = "dealerrater"
	ReviewYelp        = "yelp"
)

// ReviewSources lists the supported sources in their crawl order.
var ReviewSources = []string{ReviewGoogle, ReviewDealerRater, ReviewYelp}

var (
	googleRatingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d\.\d)\s*(?:out of 5|stars?)`),
		regexp.MustCompile(`(?i)Rated\s*(\d\.\d)`),
	}
	googleCountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:google\s+)?reviews?`),
		regexp.MustCompile(`(?i)Based on\s*(\d[\d,]*)\s*reviews?`),
	}
	decimalRating      = regexp.MustCompile(`(\d\.\d)`)
	yelpRatingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d\.\d)\s*star`),
		regexp.MustCompile(`(?i)aria-label="(\d\.?\d?)\s*star`),
	}
	reviewCountPattern = regexp.MustCompile(`(?i)(\d[\d,]*)\s*reviews?`)
)

// ReviewSearchURL builds the search page for a dealership on a review source.
func ReviewSearchURL(source, name, location string) string {
	switch source {
	case ReviewGoogle:
		q := strings.TrimSpace(strings.Join(strings.Fields(name+" "+location+" reviews"), " "))
		return "https://www.google.com/search?q=" + url.QueryEscape(q)
	case ReviewDealerRater:
		return "https://www.dealerrater.com/dealer/search?q=" + url.QueryEscape(strings.TrimSpace(name))
	case ReviewYelp:
		desc := strings.TrimSpace(strings.Join(strings.Fields(name+" "+location), " "))
		return "https://www.yelp.com/search?find_desc=" + url.QueryEscape(desc) +
			"&find_loc=" + url.QueryEscape(strings.TrimSpace(location))
	default:
		return ""
	}
}

// Review reads the rating summary of one review source's search page.
type Review struct {
	Source string
}

// Name implements Extractor.
func (r Review) Name() string { return "review-" + r.Source }

// TryExtract implements Extractor.
func (r Review) TryExtract(doc *Document) (Partial, bool) {
	var (
		review intel.Review
		ok     bool
	)
	switch r.Source {
	case ReviewGoogle:
		review, ok = googleReview(doc)
	case ReviewDealerRater:
		review, ok = dealerRaterReview(doc)
	case ReviewYelp:
		review, ok = yelpReview(doc)
	}
	if !ok {
		return nil, false
	}
	review.URL = doc.URL
	return ReviewPartial{Source: r.Source, Review: review}, true
}

func googleReview(doc *Document) (intel.Review, bool) {
	text := doc.Text()
	rating, ok := firstRating(googleRatingPatterns, text)
	if !ok {
		return intel.Review{}, false
	}
	count, _ := firstCount(googleCountPatterns, text)
	return intel.Review{Rating: rating, Count: count}, true
}

func dealerRaterReview(doc *Document) (intel.Review, bool) {
	el := doc.Doc.Find("[class*='rating'], [class*='score'], [class*='stars']").First()
	if el.Length() == 0 {
		return intel.Review{}, false
	}
	rating, ok := firstRating([]*regexp.Regexp{decimalRating}, collapse(el.Text()))
	if !ok {
		return intel.Review{}, false
	}
	count, _ := firstCount([]*regexp.Regexp{reviewCountPattern}, doc.Text())
	return intel.Review{Rating: rating, Count: count}, true
}

func yelpReview(doc *Document) (intel.Review, bool) {
	rating, ok := firstRating(yelpRatingPatterns, doc.HTML)
	if !ok {
		return intel.Review{}, false
	}
	count, _ := firstCount([]*regexp.Regexp{reviewCountPattern}, doc.HTML)
	return intel.Review{Rating: rating, Count: count}, true
}

func firstRating(patterns []*regexp.Regexp, text string) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v >= 0 && v <= 5 {
			return v, true
		}
	}
	return 0, false
}

func firstCount(patterns []*regexp.Regexp, text string) (int, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
