package validate

import "strings"

var disposableDomains = map[string]bool{
	"mailinator.com":         true,
	"guerrillamail.com":      true,
	"guerrillamailblock.com": true,
	"tempmail.com":           true,
	"temp-mail.org":          true,
	"throwaway.email":        true,
	"yopmail.com":            true,
	"sharklasers.com":        true,
	"grr.la":                 true,
	"dispostable.com":        true,
	"trashmail.com":          true,
	"10minutemail.com":       true,
	"fakeinbox.com":          true,
	"mailnesia.com":          true,
	"maildrop.cc":            true,
}

var personalDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"mail.com":       true,
	"protonmail.com": true,
	"zoho.com":       true,
	"yandex.com":     true,
	"live.com":       true,
	"msn.com":        true,
	"comcast.net":    true,
	"att.net":        true,
	"verizon.net":    true,
	"cox.net":        true,
	"sbcglobal.net":  true,
	"bellsouth.net":  true,
}

// IsDisposableDomain reports whether domain hands out throwaway inboxes.
func IsDisposableDomain(domain string) bool {
	return disposableDomains[strings.ToLower(domain)]
}

// IsPersonalDomain reports whether domain is a consumer free-mail provider.
func IsPersonalDomain(domain string) bool {
	return personalDomains[strings.ToLower(domain)]
}

// Whole names that are placeholders rather than people.
var placeholderNames = map[string]bool{
	"test": true, "unknown": true, "n/a": true, "na": true, "none": true,
	"null": true, "admin": true, "user": true, "contact": true, "info": true,
	"support": true, "staff": true, "team": true, "webmaster": true,
	"contact us": true, "our team": true, "meet our team": true,
	"meet the staff": true, "customer service": true, "front desk": true,
}

// Words that turn a "name" into a department or location label.
var nonPersonWords = map[string]bool{
	"department": true, "dept": true, "team": true, "staff": true,
	"office": true, "desk": true, "center": true, "centre": true,
	"sales": true, "service": true, "parts": true, "finance": true,
	"inquiries": true, "enquiries": true, "reception": true, "showroom": true,
	"dealership": true, "motors": true, "automotive": true, "hours": true,
	"directions": true, "inventory": true, "collision": true, "support": true,
}

// Mailbox local parts that belong to a function, not a person.
var roleLocalParts = map[string]bool{
	"info": true, "sales": true, "service": true, "parts": true, "contact": true,
	"admin": true, "support": true, "help": true, "webmaster": true,
	"postmaster": true, "noreply": true, "no-reply": true, "marketing": true,
	"billing": true, "accounts": true, "office": true, "team": true,
	"hello": true, "general": true, "enquiries": true, "inquiries": true,
	"finance": true, "internet": true, "leads": true,
}
