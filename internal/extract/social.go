package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

type socialNetwork struct {
	name    string
	domains []string
}

// Networks are checked in this order for each link.
var socialNetworks = []socialNetwork{
	{name: "facebook", domains: []string{"facebook.com", "fb.com"}},
	{name: "instagram", domains: []string{"instagram.com"}},
	{name: "twitter", domains: []string{"twitter.com", "x.com"}},
	{name: "youtube", domains: []string{"youtube.com", "youtu.be"}},
	{name: "linkedin", domains: []string{"linkedin.com"}},
	{name: "tiktok", domains: []string{"tiktok.com"}},
}

var sharePatterns = []string{"/sharer", "/share", "/dialog", "/intent/tweet", "/pin/create", "/sharearticle"}

// Social finds the dealership's social profiles. Links in footers, headers and
// social widgets take precedence over links elsewhere on the page.
type Social struct{}

// Name implements Extractor.
func (Social) Name() string { return "social" }

// TryExtract implements Extractor.
func (s Social) TryExtract(doc *Document) (Partial, bool) {
	links := s.Links(doc)
	if len(links) == 0 {
		return nil, false
	}
	return SocialPartial{Links: links}, true
}

// Links maps network name to the first profile URL found.
func (Social) Links(doc *Document) map[string]string {
	links := map[string]string{}
	visit := func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		network, profile := classifySocial(doc.Resolve(href))
		if network == "" {
			return
		}
		if _, ok := links[network]; !ok {
			links[network] = profile
		}
	}
	doc.Doc.Find("footer, header, [class*='social'], [id*='social'], aside").Find("a[href]").Each(visit)
	doc.Doc.Find("a[href]").Each(visit)
	return links
}

func classifySocial(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "#" || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return "", ""
	}
	lower := strings.ToLower(raw)
	for _, p := range sharePatterns {
		if strings.Contains(lower, p) {
			return "", ""
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(u.Path, "/")
	if len(path) <= 1 {
		return "", ""
	}
	for _, n := range socialNetworks {
		for _, d := range n.domains {
			if intel.SameOrSubdomain(host, d) {
				return n.name, raw
			}
		}
	}
	return "", ""
}
