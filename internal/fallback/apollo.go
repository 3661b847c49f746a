package fallback

import (
	"strings"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Request and response shapes of the Apollo-compatible API.

type organizationSearchRequest struct {
	OrganizationDomains []string `json:"organization_domains,omitempty"`
	OrganizationName    string   `json:"organization_name,omitempty"`
	PerPage             int      `json:"per_page"`
	Page                int      `json:"page"`
}

type organizationSearchResponse struct {
	Organizations []apolloOrganization `json:"organizations"`
}

type apolloOrganization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	PrimaryDomain         string `json:"primary_domain"`
	WebsiteURL            string `json:"website_url"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	Phone                 string `json:"phone"`
	LinkedInURL           string `json:"linkedin_url"`
}

type peopleSearchRequest struct {
	OrganizationIDs     []string `json:"organization_ids,omitempty"`
	OrganizationDomains []string `json:"organization_domains,omitempty"`
	PersonSeniorities   []string `json:"person_seniorities,omitempty"`
	PersonTitles        []string `json:"person_titles,omitempty"`
	PerPage             int      `json:"per_page"`
	Page                int      `json:"page"`
}

type peopleSearchResponse struct {
	People []apolloPerson `json:"people"`
}

type apolloPerson struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	LinkedInURL  string        `json:"linkedin_url"`
	PhotoURL     string        `json:"photo_url"`
	Seniority    string        `json:"seniority"`
	PhoneNumbers []apolloPhone `json:"phone_numbers"`
}

type apolloPhone struct {
	RawNumber       string `json:"raw_number"`
	SanitizedNumber string `json:"sanitized_number"`
}

// Default people filters: decision makers at the dealership.
var (
	defaultSeniorities = []string{"owner", "c_suite", "vp", "director", "manager"}
	defaultTitles      = []string{
		"owner", "president", "ceo", "cfo", "general manager", "managing partner",
		"director", "vice president", "dealer principal", "general sales manager",
		"service manager", "parts manager", "finance manager",
	}
)

// lockedEmailPrefix marks placeholder addresses returned for contacts whose
// email has not been unlocked on the account.
const lockedEmailPrefix = "email_not_unlocked@"

// fallbackConfidence seeds the merge for API contacts, below any crawled card.
const fallbackConfidence = 0.4

func (o apolloOrganization) toOrganization() *intel.Organization {
	domain := intel.NormalizeDomain(o.PrimaryDomain)
	if domain == "" {
		domain = intel.DomainOf(o.WebsiteURL)
	}
	return &intel.Organization{
		ID:          o.ID,
		Name:        o.Name,
		Domain:      domain,
		Industry:    o.Industry,
		Employees:   o.EstimatedNumEmployees,
		Phone:       o.Phone,
		LinkedInURL: o.LinkedInURL,
	}
}

func (p apolloPerson) toCandidate() intel.ContactCandidate {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = strings.TrimSpace(p.Name)
	}
	email := strings.TrimSpace(p.Email)
	if strings.HasPrefix(strings.ToLower(email), lockedEmailPrefix) {
		email = ""
	}
	var phone string
	if len(p.PhoneNumbers) > 0 {
		phone = p.PhoneNumbers[0].SanitizedNumber
		if phone == "" {
			phone = p.PhoneNumbers[0].RawNumber
		}
	}
	return intel.ContactCandidate{
		Name:          name,
		Title:         strings.TrimSpace(p.Title),
		Email:         email,
		Phone:         phone,
		LinkedInURL:   p.LinkedInURL,
		PhotoURL:      p.PhotoURL,
		Source:        intel.SourceFallback,
		RawConfidence: fallbackConfidence,
	}
}

// DomainVariations lists alternative spellings of a dealership domain the API
// may have indexed, at most five.
func DomainVariations(domain string) []string {
	base := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if base == "" {
		return nil
	}
	out := []string{"www." + base}
	if stem, ok := strings.CutSuffix(base, ".com"); ok {
		out = append(out, stem+".net", stem+".org")
	}
	for _, sub := range []string{"shop", "sales", "store", "main", "site"} {
		out = append(out, sub+"."+base)
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
