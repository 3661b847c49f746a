package intel

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// NormalizeDomain lower-cases a host, strips a leading "www." and converts it to
// its ASCII (punycode) form. It returns "" when the host is not a plausible domain.
func NormalizeDomain(host string) string {
	host = strings.TrimSpace(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	ascii, err := domainProfile.ToASCII(host)
	if err != nil {
		return ""
	}
	ascii = strings.ToLower(ascii)
	ascii = strings.TrimPrefix(ascii, "www.")
	if !strings.Contains(ascii, ".") || len(ascii) < 3 {
		return ""
	}
	return ascii
}

// DomainOf extracts the normalised domain from a URL or bare host.
func DomainOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// EmailDomain returns the normalised domain part of an email, or "".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeDomain(email[at+1:])
}

// SameOrSubdomain reports whether host equals base or is one of its subdomains.
func SameOrSubdomain(host, base string) bool {
	if host == "" || base == "" {
		return false
	}
	return host == base || strings.HasSuffix(host, "."+base)
}

// CompanyNameFromDomain derives a display name such as "Example Motors" from
// "example-motors.com".
func CompanyNameFromDomain(domain string) string {
	if domain == "" {
		return ""
	}
	label := domain
	if i := strings.Index(domain, "."); i > 0 {
		label = domain[:i]
	}
	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
