package extract

// PlatformInfo describes a dealership website provider: how to recognise it and
// where it keeps staff, contact and inventory pages.
type PlatformInfo struct {
	Name       string
	Signatures []string

	NewInventoryPaths  []string
	UsedInventoryPaths []string
	StaffPaths         []string
	ContactPaths       []string

	CardSelectors  []string
	NameSelectors  []string
	TitleSelectors []string
	EmailSelectors []string
	PhoneSelectors []string

	CountSelectors []string
	CountPatterns  []string
}

var (
	mailtoSelector = "a[href^='mailto:']"
	telSelector    = "a[href^='tel:']"
)

// Platforms is the ordered signature table; earlier entries win ties.
var Platforms = []PlatformInfo{
	{
		Name:               "Dealer.com",
		Signatures:         []string{"dealer.com/content", "ddc-site", "dealercom", "static.dealer.com"},
		NewInventoryPaths:  []string{"/new-inventory", "/VehicleSearchResults?search=new"},
		UsedInventoryPaths: []string{"/used-inventory", "/VehicleSearchResults?search=used"},
		StaffPaths: []string{
			"/staff",
			"/dealership/staff.htm",
			"/dealership/meet-our-staff.htm",
			"/about-us",
			"/dealership/about.htm",
		},
		ContactPaths: []string{"/contact-us", "/dealership/contact.htm"},
		CardSelectors: []string{
			".staffMembers .staffMember",
			"[class*='staffMember']",
			"[class*='staffDisplay'] > div",
			"[class*='ddc-content'] .staff-card",
			"[class*='staff-member']",
		},
		NameSelectors:  []string{"[class*='staffName']", ".staffTitle h3", "[itemprop='name']", "h3"},
		TitleSelectors: []string{"[class*='staffJobTitle']", ".staffTitle p", "[itemprop='jobTitle']"},
		EmailSelectors: []string{mailtoSelector, "[class*='staffEmail']"},
		PhoneSelectors: []string{telSelector, "[class*='staffPhone']"},
		CountSelectors: []string{"[class*='totalCount']", ".vehicle-count", "[data-total]"},
		CountPatterns: []string{
			`(\d+)\s+(?:vehicle|car|result)s?\s+(?:found|available|in stock)`,
			`(?:showing|displaying)\s+\d+\s*-\s*\d+\s+of\s+(\d+)`,
		},
	},
	{
		Name:               "DealerOn",
		Signatures:         []string{"dealeron.com", "dealeron-", "cdn.dealeron"},
		NewInventoryPaths:  []string{"/new-vehicles", "/new-inventory"},
		UsedInventoryPaths: []string{"/used-vehicles", "/used-inventory", "/pre-owned"},
		StaffPaths:         []string{"/staff", "/our-team", "/meet-our-staff", "/about-us", "/about"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors: []string{
			"[class*='staffMember']",
			"[class*='team-member']",
			".staff-list .staff-item",
			"[class*='employee-card']",
		},
		NameSelectors:  []string{"[class*='name']", "h3", "h4", "[itemprop='name']"},
		TitleSelectors: []string{"[class*='title']", "[class*='position']", "[itemprop='jobTitle']"},
		EmailSelectors: []string{mailtoSelector, "[class*='email']"},
		PhoneSelectors: []string{telSelector, "[class*='phone']"},
		CountSelectors: []string{".vehicle-count", "[class*='resultCount']", "[data-count]"},
		CountPatterns: []string{
			`(\d+)\s+(?:vehicle|car|result)s?`,
			`(?:showing|viewing)\s+\d+\s*-\s*\d+\s+of\s+(\d+)`,
		},
	},
	{
		Name:               "DealerInspire",
		Signatures:         []string{"dealerinspire.com", "di-", "foxdealer"},
		NewInventoryPaths:  []string{"/new-vehicles", "/inventory/new"},
		UsedInventoryPaths: []string{"/used-vehicles", "/inventory/used", "/pre-owned-vehicles"},
		StaffPaths:         []string{"/our-team", "/staff", "/meet-our-team", "/about-us", "/about"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors: []string{
			"[class*='team-member']",
			"[class*='staff-member']",
			".team-grid .team-card",
			"[class*='employee']",
		},
		NameSelectors:  []string{"[class*='member-name']", "h3", "h4", "[itemprop='name']"},
		TitleSelectors: []string{"[class*='member-title']", "[class*='position']", "[itemprop='jobTitle']"},
		EmailSelectors: []string{mailtoSelector, "[class*='email']"},
		PhoneSelectors: []string{telSelector, "[class*='phone']"},
		CountSelectors: []string{".inventory-count", "[class*='totalResults']", "[data-total]"},
		CountPatterns: []string{
			`(\d+)\s+(?:vehicle|car|result)s?\s+(?:found|available)`,
			`(?:showing)\s+\d+\s*-\s*\d+\s+of\s+(\d+)`,
		},
	},
	{
		Name:               "DealerFire",
		Signatures:         []string{"dealerfire.com"},
		NewInventoryPaths:  []string{"/new-inventory", "/inventory/new"},
		UsedInventoryPaths: []string{"/used-inventory", "/inventory/used"},
		StaffPaths:         []string{"/staff", "/our-team", "/about-us", "/meet-the-team"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors:      []string{"[class*='staff']", "[class*='team-member']", "[class*='employee']"},
		NameSelectors:      []string{"[class*='name']", "h3", "h4", "[itemprop='name']"},
		TitleSelectors:     []string{"[class*='title']", "[class*='position']", "[itemprop='jobTitle']"},
		EmailSelectors:     []string{mailtoSelector},
		PhoneSelectors:     []string{telSelector},
		CountSelectors:     []string{".vehicle-count", "[class*='count']"},
		CountPatterns:      []string{`(\d+)\s+(?:vehicle|car|result)s?`},
	},
	{
		Name:               "Sincro",
		Signatures:         []string{"sincrodigital.com", "sincro."},
		NewInventoryPaths:  []string{"/new-vehicles", "/inventory?type=new"},
		UsedInventoryPaths: []string{"/used-vehicles", "/inventory?type=used"},
		StaffPaths:         []string{"/staff", "/our-team", "/about-us", "/about"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors:      []string{"[class*='staff']", "[class*='team-member']", "[class*='employee']"},
		NameSelectors:      []string{"[class*='name']", "h3", "h4"},
		TitleSelectors:     []string{"[class*='title']", "[class*='position']"},
		EmailSelectors:     []string{mailtoSelector},
		PhoneSelectors:     []string{telSelector},
		CountSelectors:     []string{".result-count", "[class*='count']"},
		CountPatterns:      []string{`(\d+)\s+(?:vehicle|car|result)s?`},
	},
	{
		Name:               "Dealer Car Search",
		Signatures:         []string{"dealercarsearch.com", "dcsimg", "dealer-car-search"},
		NewInventoryPaths:  []string{"/new-inventory", "/new-vehicles", "/inventory?condition=new"},
		UsedInventoryPaths: []string{"/used-inventory", "/used-vehicles", "/inventory?condition=used"},
		StaffPaths:         []string{"/staff", "/our-team", "/about-us", "/about"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors:      []string{"[class*='staff']", "[class*='team']", "[class*='employee']"},
		NameSelectors:      []string{"[class*='name']", "h3", "h4"},
		TitleSelectors:     []string{"[class*='title']", "[class*='position']"},
		EmailSelectors:     []string{mailtoSelector},
		PhoneSelectors:     []string{telSelector},
		CountSelectors:     []string{".vehicle-count", "[class*='count']", "[class*='total']"},
		CountPatterns:      []string{`(\d+)\s+(?:vehicle|car|result)s?`},
	},
	{
		Name:               "Cars.com",
		Signatures:         []string{"dealer-inspire", "cars.com/dealers", "cars.com"},
		NewInventoryPaths:  []string{"/new-vehicles", "/inventory/new"},
		UsedInventoryPaths: []string{"/used-vehicles", "/inventory/used", "/pre-owned"},
		StaffPaths:         []string{"/our-team", "/staff", "/meet-the-team", "/about-us"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors:      []string{"[class*='team-member']", "[class*='staff-member']", "[class*='employee']"},
		NameSelectors:      []string{"[class*='name']", "h3", "h4", "[itemprop='name']"},
		TitleSelectors:     []string{"[class*='title']", "[class*='position']", "[itemprop='jobTitle']"},
		EmailSelectors:     []string{mailtoSelector},
		PhoneSelectors:     []string{telSelector},
		CountSelectors:     []string{".inventory-count", "[class*='total']"},
		CountPatterns:      []string{`(\d+)\s+(?:vehicle|car|result)s?`},
	},
	{
		Name:               "Reynolds & Reynolds",
		Signatures:         []string{"rfrk.com", "reyweb", "reynolds"},
		NewInventoryPaths:  []string{"/new-inventory", "/new-vehicles", "/inventory/new"},
		UsedInventoryPaths: []string{"/used-inventory", "/used-vehicles", "/inventory/used"},
		StaffPaths:         []string{"/staff", "/about-us", "/our-team", "/about"},
		ContactPaths:       []string{"/contact-us", "/contact"},
		CardSelectors:      []string{"[class*='staff']", "[class*='team']", "[class*='employee']"},
		NameSelectors:      []string{"[class*='name']", "h3", "h4"},
		TitleSelectors:     []string{"[class*='title']", "[class*='position']"},
		EmailSelectors:     []string{mailtoSelector},
		PhoneSelectors:     []string{telSelector},
		CountSelectors:     []string{".vehicle-count", "[class*='count']"},
		CountPatterns:      []string{`(\d+)\s+(?:vehicle|car|result)s?`},
	},
}

// LookupPlatform returns the table entry for a platform name.
func LookupPlatform(name string) (PlatformInfo, bool) {
	for _, p := range Platforms {
		if p.Name == name {
			return p, true
		}
	}
	return PlatformInfo{}, false
}

// StaffPaths are tried on every site after the platform's own staff paths.
var StaffPaths = []string{
	"/staff",
	"/team",
	"/our-team",
	"/meet-the-team",
	"/meet-our-team",
	"/about-us",
	"/about",
	"/about/staff",
	"/about/team",
	"/employees",
	"/management",
	"/leadership",
	"/our-staff",
	"/people",
}

// ContactPaths are tried when the staff pass found too few contacts.
var ContactPaths = []string{
	"/contact-us",
	"/contact",
	"/get-in-touch",
}

// StaffNavKeywords mark navigation links that likely lead to a staff page.
var StaffNavKeywords = []string{
	"staff",
	"team",
	"about us",
	"about",
	"meet the team",
	"our people",
	"management",
	"leadership",
}

// SitemapStaffKeywords mark sitemap locations that likely hold staff listings.
var SitemapStaffKeywords = []string{
	"staff",
	"team",
	"about-us",
	"our-team",
	"meet-the-team",
	"employees",
	"management",
}

// NewInventoryPaths are the generic new-vehicle listing paths.
var NewInventoryPaths = []string{
	"/new-inventory",
	"/new-vehicles",
	"/inventory/new",
	"/new",
	"/inventory?type=new",
	"/VehicleSearchResults?search=new",
}

// UsedInventoryPaths are the generic used-vehicle listing paths.
var UsedInventoryPaths = []string{
	"/used-inventory",
	"/used-vehicles",
	"/inventory/used",
	"/pre-owned",
	"/pre-owned-vehicles",
	"/inventory?type=used",
	"/VehicleSearchResults?search=used",
	"/certified-pre-owned",
}

// StaffCandidatePaths returns platform staff paths followed by the generic
// ones, without duplicates, preserving priority order.
func StaffCandidatePaths(platform string) []string {
	var first []string
	if info, ok := LookupPlatform(platform); ok {
		first = info.StaffPaths
	}
	return dedupePaths(first, StaffPaths)
}

// ContactCandidatePaths returns the platform contact paths, or the generic ones.
func ContactCandidatePaths(platform string) []string {
	if info, ok := LookupPlatform(platform); ok && len(info.ContactPaths) > 0 {
		return info.ContactPaths
	}
	return ContactPaths
}

// InventoryCandidatePaths returns platform inventory paths followed by the
// generic ones for a condition.
func InventoryCandidatePaths(platform, condition string) []string {
	info, _ := LookupPlatform(platform)
	if condition == ConditionUsed {
		return dedupePaths(info.UsedInventoryPaths, UsedInventoryPaths)
	}
	return dedupePaths(info.NewInventoryPaths, NewInventoryPaths)
}

func dedupePaths(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
