package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Detection confidences by method.
const (
	confidenceGenerator = 0.95
	confidenceSignature = 0.85
	confidenceAsset     = 0.75
	confidenceCMS       = 0.7
)

type cmsPattern struct {
	name     string
	patterns []*regexp.Regexp
}

var cmsPatterns = []cmsPattern{
	{name: "WordPress", patterns: []*regexp.Regexp{
		regexp.MustCompile(`wp-content`), regexp.MustCompile(`wp-includes`), regexp.MustCompile(`wordpress`),
	}},
	{name: "Drupal", patterns: []*regexp.Regexp{
		regexp.MustCompile(`drupal\.js`), regexp.MustCompile(`/sites/default/files`),
	}},
	{name: "Squarespace", patterns: []*regexp.Regexp{
		regexp.MustCompile(`squarespace\.com`), regexp.MustCompile(`sqsp\.com`),
	}},
	{name: "Wix", patterns: []*regexp.Regexp{
		regexp.MustCompile(`wix\.com`), regexp.MustCompile(`parastorage\.com`),
	}},
}

// PlatformDetector identifies the website provider behind a page. The checks
// run in a fixed order: meta generator, markup signatures, asset URLs, generic
// CMS patterns. The first hit wins.
type PlatformDetector struct{}

// Name implements Extractor.
func (PlatformDetector) Name() string { return "platform" }

// TryExtract implements Extractor.
func (d PlatformDetector) TryExtract(doc *Document) (Partial, bool) {
	platform, ok := d.Detect(doc)
	if !ok {
		return nil, false
	}
	return PlatformPartial{Platform: platform}, true
}

// Detect returns the detected platform, or unknown with false.
func (PlatformDetector) Detect(doc *Document) (intel.Platform, bool) {
	if name := generatorPlatform(doc); name != "" {
		return intel.Platform{Name: name, Confidence: confidenceGenerator, Method: "meta_generator"}, true
	}

	lower := doc.Lower()
	for _, p := range Platforms {
		for _, sig := range p.Signatures {
			if strings.Contains(lower, strings.ToLower(sig)) {
				return intel.Platform{Name: p.Name, Confidence: confidenceSignature, Method: "signature:" + sig}, true
			}
		}
	}

	if name := assetPlatform(doc); name != "" {
		return intel.Platform{Name: name, Confidence: confidenceAsset, Method: "asset_url"}, true
	}

	for _, cms := range cmsPatterns {
		for _, re := range cms.patterns {
			if re.MatchString(lower) {
				return intel.Platform{Name: cms.name, Confidence: confidenceCMS, Method: "cms_pattern"}, true
			}
		}
	}
	return intel.Platform{Name: intel.PlatformUnknown, Method: "none"}, false
}

func generatorPlatform(doc *Document) string {
	content, ok := doc.Doc.Find("meta[name='generator']").First().Attr("content")
	if !ok || content == "" {
		return ""
	}
	content = strings.ToLower(content)
	for _, p := range Platforms {
		if strings.Contains(content, strings.ToLower(p.Name)) {
			return p.Name
		}
	}
	switch {
	case strings.Contains(content, "wordpress"):
		return "WordPress"
	case strings.Contains(content, "drupal"):
		return "Drupal"
	}
	return ""
}

func assetPlatform(doc *Document) string {
	var urls []string
	doc.Doc.Find("script[src], link[href]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			urls = append(urls, strings.ToLower(doc.Resolve(src)))
		}
		if href, ok := s.Attr("href"); ok {
			urls = append(urls, strings.ToLower(doc.Resolve(href)))
		}
	})
	all := strings.Join(urls, " ")
	for _, p := range Platforms {
		for _, sig := range p.Signatures {
			if strings.Contains(all, strings.ToLower(sig)) {
				return p.Name
			}
		}
	}
	return ""
}
