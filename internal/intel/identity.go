package intel

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var emailSyntax = regexp.MustCompile(`^[a-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// DefaultRegion is the phone-number region assumed for numbers without a country code.
const DefaultRegion = "US"

// NormalizeEmail lower-cases and trims an email, returning "" when it is not
// syntactically valid or its domain does not survive IDNA normalisation.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	email = strings.TrimPrefix(email, "mailto:")
	if i := strings.Index(email, "?"); i >= 0 {
		email = email[:i]
	}
	if !emailSyntax.MatchString(email) {
		return ""
	}
	if EmailDomain(email) == "" {
		return ""
	}
	return email
}

// ValidEmailSyntax reports whether the email passes the syntactic check.
func ValidEmailSyntax(email string) bool {
	return NormalizeEmail(email) != ""
}

// NormalizeName collapses whitespace and lower-cases a person name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// PhoneKey returns the E.164 form of a phone when it parses for region, else its digits.
func PhoneKey(phone, region string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if region == "" {
		region = DefaultRegion
	}
	if num, err := phonenumbers.Parse(phone, region); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IdentityKey is the deduplication key of a contact: the normalised email when
// present and valid, otherwise the normalised (name, phone) pair.
func IdentityKey(c ContactCandidate) string {
	if email := NormalizeEmail(c.Email); email != "" {
		return "email:" + email
	}
	return "person:" + NormalizeName(c.Name) + "|" + PhoneKey(c.Phone, DefaultRegion)
}
