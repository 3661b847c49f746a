package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Seed confidences by how a contact was found.
const (
	confidenceProviderCard = 0.8
	confidenceGenericCard  = 0.7
	confidenceFlat         = 0.5
	maxFlatContacts        = 10
)

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	obfuscatedPattern = regexp.MustCompile(`(?i)([a-z0-9._%+\-]+)(?:\s*[\[\(]\s*at\s*[\]\)]\s*|\s+at\s+)([a-z0-9\-]+(?:\.[a-z0-9\-]+)*)(?:\s*[\[\(]\s*dot\s*[\]\)]\s*|\s+dot\s+)([a-z]{2,})`)
	phonePattern      = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
)

var excludedLocalParts = map[string]struct{}{
	"noreply": {}, "no-reply": {}, "donotreply": {}, "webmaster": {}, "postmaster": {},
	"admin": {}, "info": {}, "support": {}, "contact": {}, "sales": {}, "service": {},
	"help": {}, "feedback": {}, "marketing": {}, "press": {}, "media": {}, "hr": {},
}

var excludedEmailDomains = map[string]struct{}{
	"example.com": {}, "test.com": {}, "sentry.io": {}, "google.com": {}, "facebook.com": {},
	"twitter.com": {}, "instagram.com": {}, "googleapis.com": {}, "gstatic.com": {}, "cloudflare.com": {},
}

var genericCardSelectors = []string{
	"[class*='staff']",
	"[class*='team-member']",
	"[class*='employee']",
	"[class*='person']",
	"[class*='bio']",
	"[class*='profile']",
	"[class*='card'][class*='contact']",
	"[itemtype='http://schema.org/Person']",
	"[itemtype='https://schema.org/Person']",
	".vcard",
}

var genericNameSelectors = []string{"h2", "h3", "h4", "h5", "strong", ".name", "[class*='name']", "[itemprop='name']"}

var genericTitleSelectors = []string{
	"[class*='title']",
	"[class*='position']",
	"[class*='role']",
	"[class*='job']",
	"[itemprop='jobTitle']",
	".title",
	"p",
	"span",
}

var genericHeadings = map[string]struct{}{
	"learn more": {}, "read more": {}, "view profile": {}, "contact us": {}, "our team": {},
	"meet our team": {}, "click here": {}, "more info": {}, "managers": {}, "management": {},
	"sales": {}, "sales and finance": {}, "sales & finance": {}, "finance": {}, "service": {},
	"parts": {}, "office": {}, "administration": {}, "body shop": {}, "internet": {},
	"internet sales": {}, "staff": {}, "our staff": {}, "meet our staff": {}, "leadership": {},
	"team": {},
}

var titleOnlyWords = map[string]struct{}{
	"general": {}, "manager": {}, "sales": {}, "service": {}, "finance": {}, "director": {}, "president": {},
}

var titleKeywords = []string{
	"manager", "director", "president", "owner", "partner", "specialist", "advisor",
	"consultant", "assistant", "sales", "service", "finance", "parts", "general", "vp",
	"vice", "chief", "officer", "head",
}

var staffIndicators = []string{
	"staff", "team member", "our team", "meet the team", "management", "leadership", "employees", "our people",
}

// Staff extracts contact cards from staff, team and contact pages. Provider
// selectors are tried first, then generic card heuristics, then a flat pass
// pairing emails with nearby names.
type Staff struct {
	// Domain restricts emails to the dealership domain and its subdomains.
	Domain string
	// Platform selects provider-specific card selectors when known.
	Platform string
}

// Name implements Extractor.
func (Staff) Name() string { return "staff" }

// TryExtract implements Extractor.
func (s Staff) TryExtract(doc *Document) (Partial, bool) {
	contacts := s.Contacts(doc)
	if len(contacts) == 0 {
		return nil, false
	}
	return ContactsPartial{Contacts: contacts}, true
}

// Contacts returns the deduplicated contacts found on doc.
func (s Staff) Contacts(doc *Document) []intel.ContactCandidate {
	if info, ok := LookupPlatform(s.Platform); ok && len(info.CardSelectors) > 0 {
		if contacts := s.providerContacts(doc, info); len(contacts) > 0 {
			return dedupeContacts(contacts)
		}
	}
	contacts := s.genericContacts(doc)
	if len(contacts) == 0 {
		contacts = s.flatContacts(doc)
	}
	return dedupeContacts(contacts)
}

func (s Staff) providerContacts(doc *Document, info PlatformInfo) []intel.ContactCandidate {
	cards := firstMatching(doc.Doc.Selection, info.CardSelectors)
	if cards == nil {
		return nil
	}
	var out []intel.ContactCandidate
	cards.Each(func(_ int, card *goquery.Selection) {
		c := intel.ContactCandidate{Source: intel.SourceCrawl, SourceURL: doc.URL, RawConfidence: confidenceProviderCard}
		c.Name = firstText(card, info.NameSelectors, func(t string) bool {
			return len(t) > 2 && len(t) < 80 && !isGenericText(t) && looksLikePersonName(t)
		})
		c.Title = firstText(card, info.TitleSelectors, func(t string) bool {
			return len(t) > 3 && len(t) < 100 && looksLikeTitle(t)
		})
		if c.Title == "" {
			c.Title = bareTextTitle(card)
		}
		c.Email = s.cardEmail(card, info.EmailSelectors)
		c.Phone = cardPhone(card, info.PhoneSelectors)
		c.PhotoURL = cardPhoto(doc, card)
		c.LinkedInURL = cardLinkedIn(card)
		if c.Name != "" || c.Email != "" {
			out = append(out, c)
		}
	})
	return out
}

func (s Staff) genericContacts(doc *Document) []intel.ContactCandidate {
	cards := firstMatching(doc.Doc.Selection, genericCardSelectors)
	if cards == nil {
		return nil
	}
	var out []intel.ContactCandidate
	cards.Each(func(_ int, card *goquery.Selection) {
		c := intel.ContactCandidate{Source: intel.SourceCrawl, SourceURL: doc.URL, RawConfidence: confidenceGenericCard}
		c.Name = firstText(card, genericNameSelectors, func(t string) bool {
			return len(t) > 2 && len(t) < 80 && !isGenericText(t) && looksLikePersonName(t)
		})
		c.Title = firstText(card, genericTitleSelectors, func(t string) bool {
			return t != c.Name && len(t) > 3 && len(t) < 100 && looksLikeTitle(t)
		})
		c.Email = s.cardEmail(card, nil)
		c.Phone = cardPhone(card, nil)
		c.PhotoURL = cardPhoto(doc, card)
		c.LinkedInURL = cardLinkedIn(card)
		if c.Name != "" || c.Email != "" {
			out = append(out, c)
		}
	})
	return out
}

func (s Staff) flatContacts(doc *Document) []intel.ContactCandidate {
	emails := s.Emails(doc.HTML)
	if len(emails) > maxFlatContacts {
		emails = emails[:maxFlatContacts]
	}
	var out []intel.ContactCandidate
	for _, email := range emails {
		c := intel.ContactCandidate{
			Email:         email,
			Source:        intel.SourceCrawl,
			SourceURL:     doc.URL,
			RawConfidence: confidenceFlat,
		}
		c.Name, c.Title = nearEmail(doc, email)
		out = append(out, c)
	}
	return out
}

// Emails extracts contact emails from text, including "[at]"/"[dot]" obfuscations.
func (s Staff) Emails(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(raw string) {
		email := intel.NormalizeEmail(raw)
		if email == "" || !s.validContactEmail(email) {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	for _, m := range emailPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range obfuscatedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1] + "@" + m[2] + "." + m[3])
	}
	return out
}

func (s Staff) validContactEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return false
	}
	if _, ok := excludedLocalParts[email[:at]]; ok {
		return false
	}
	domain := intel.EmailDomain(email)
	if _, ok := excludedEmailDomains[domain]; ok {
		return false
	}
	if s.Domain != "" && !intel.SameOrSubdomain(domain, intel.NormalizeDomain(s.Domain)) {
		return false
	}
	return true
}

func (s Staff) cardEmail(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if href, ok := el.Attr("href"); ok && strings.HasPrefix(strings.ToLower(href), "mailto:") {
			if email := intel.NormalizeEmail(href); email != "" && s.validContactEmail(email) {
				return email
			}
			continue
		}
		if emails := s.Emails(el.Text()); len(emails) > 0 {
			return emails[0]
		}
	}
	var found string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return true
		}
		if email := intel.NormalizeEmail(href); email != "" && s.validContactEmail(email) {
			found = email
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	if emails := s.Emails(card.Text()); len(emails) > 0 {
		return emails[0]
	}
	return ""
}

func cardPhone(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if href, ok := el.Attr("href"); ok && strings.HasPrefix(strings.ToLower(href), "tel:") {
			return strings.TrimSpace(href[len("tel:"):])
		}
		if phones := Phones(el.Text()); len(phones) > 0 {
			return phones[0]
		}
	}
	var found string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(strings.ToLower(href), "tel:") {
			found = strings.TrimSpace(href[len("tel:"):])
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	if phones := Phones(card.Text()); len(phones) > 0 {
		return phones[0]
	}
	return ""
}

// Phones extracts US phone numbers with 10 or 11 digits.
func Phones(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range phonePattern.FindAllString(text, -1) {
		digits := digitsOf(m)
		if len(digits) < 10 || len(digits) > 11 {
			continue
		}
		if _, ok := seen[digits]; ok {
			continue
		}
		seen[digits] = struct{}{}
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

func cardPhoto(doc *Document, card *goquery.Selection) string {
	src, ok := card.Find("img").First().Attr("src")
	if !ok || strings.HasPrefix(src, "data:") {
		return ""
	}
	return doc.Resolve(src)
}

func cardLinkedIn(card *goquery.Selection) string {
	var found string
	card.Find("a[href*='linkedin.com/in/']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		found, _ = a.Attr("href")
		return found == ""
	})
	return strings.TrimSpace(found)
}

// bareTextTitle reads a title kept as a bare text node directly inside the card.
func bareTextTitle(card *goquery.Selection) string {
	var title string
	card.Contents().EachWithBreak(func(_ int, n *goquery.Selection) bool {
		if goquery.NodeName(n) != "#text" {
			return true
		}
		text := collapse(n.Text())
		if len(text) > 3 && len(text) < 100 && looksLikeTitle(text) {
			title = text
			return false
		}
		return true
	})
	return title
}

// nearEmail looks for a heading and a title among the siblings of the
// innermost element that mentions email.
func nearEmail(doc *Document, email string) (name, title string) {
	holder := innermostContaining(doc.Doc.Selection, email)
	if holder == nil {
		return "", ""
	}
	siblings := holder.Parent().Children()
	siblings.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "h2", "h3", "h4", "h5", "strong":
			text := collapse(s.Text())
			if len(text) > 2 && len(text) < 80 && !isGenericText(text) && looksLikePersonName(text) {
				name = text
				return false
			}
		}
		return true
	})
	siblings.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapse(s.Text())
		if text != "" && text != name && !strings.Contains(strings.ToLower(text), email) && len(text) < 100 && looksLikeTitle(text) {
			title = text
			return false
		}
		return true
	})
	return name, title
}

func innermostContaining(root *goquery.Selection, email string) *goquery.Selection {
	var found *goquery.Selection
	root.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if found != nil {
			return
		}
		if !containsEmail(s, email) {
			return
		}
		inner := s.Children().FilterFunction(func(_ int, c *goquery.Selection) bool {
			return containsEmail(c, email)
		})
		if inner.Length() == 0 {
			found = s
		}
	})
	return found
}

func containsEmail(s *goquery.Selection, email string) bool {
	if strings.Contains(strings.ToLower(s.Text()), email) {
		return true
	}
	href, _ := s.Attr("href")
	return strings.Contains(strings.ToLower(href), email)
}

// LooksLikeStaffPage reports whether a page is plausibly a staff listing.
func LooksLikeStaffPage(doc *Document) bool {
	lower := doc.Lower()
	indicators := 0
	for _, ind := range staffIndicators {
		if strings.Contains(lower, ind) {
			indicators++
		}
	}
	if indicators >= 2 {
		return true
	}
	if len(emailPattern.FindAllStringIndex(doc.HTML, 3)) >= 3 {
		return true
	}
	cards := doc.Doc.Find("[class*='staff'], [class*='team'], [class*='employee'], [class*='person']")
	return cards.Length() >= 2
}

// StaffNavLinks returns same-site navigation links whose text suggests a staff page.
func StaffNavLinks(doc *Document, domain string) []string {
	seen := map[string]struct{}{}
	var out []string
	doc.Doc.Find("nav a, header a, .menu a, [class*='nav'] a").Each(func(_ int, a *goquery.Selection) {
		text := strings.ToLower(collapse(a.Text()))
		href, _ := a.Attr("href")
		if text == "" || href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if !containsAny(text, StaffNavKeywords) {
			return
		}
		abs := doc.Resolve(href)
		if abs == "" || (domain != "" && !intel.SameOrSubdomain(intel.DomainOf(abs), domain)) {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

// firstMatching returns the cards of the first selector that matches. Cards
// are the largest group of matches sharing one parent, so neither a wrapper
// nor the labelled fields inside each card are mistaken for cards.
func firstMatching(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		found := root.Find(sel)
		if found.Length() == 0 {
			continue
		}
		return largestSiblingGroup(found)
	}
	return nil
}

func largestSiblingGroup(found *goquery.Selection) *goquery.Selection {
	groups := map[*html.Node][]*html.Node{}
	var order []*html.Node
	for _, n := range found.Nodes {
		if _, ok := groups[n.Parent]; !ok {
			order = append(order, n.Parent)
		}
		groups[n.Parent] = append(groups[n.Parent], n)
	}
	var best []*html.Node
	for _, parent := range order {
		if len(groups[parent]) > len(best) {
			best = groups[parent]
		}
	}
	return found.FilterNodes(best...)
}

func firstText(card *goquery.Selection, selectors []string, accept func(string) bool) string {
	for _, sel := range selectors {
		var out string
		card.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := collapse(el.Text())
			if text != "" && accept(text) {
				out = text
				return false
			}
			return true
		})
		if out != "" {
			return out
		}
	}
	return ""
}

func isGenericText(text string) bool {
	_, ok := genericHeadings[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

func looksLikePersonName(text string) bool {
	words := strings.Fields(text)
	if len(words) < 2 {
		return false
	}
	if strings.ContainsAny(text, "@0123456789") {
		return false
	}
	for _, w := range words {
		if _, ok := titleOnlyWords[strings.ToLower(w)]; !ok {
			return true
		}
	}
	return false
}

func looksLikeTitle(text string) bool {
	return containsAny(strings.ToLower(text), titleKeywords)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func dedupeContacts(contacts []intel.ContactCandidate) []intel.ContactCandidate {
	seen := map[string]struct{}{}
	out := contacts[:0]
	for _, c := range contacts {
		key := intel.IdentityKey(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
