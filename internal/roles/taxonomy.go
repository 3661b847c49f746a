package roles

// Seniority is a rung of the dealership title ladder.
type Seniority string

// Seniority levels, most senior first.
const (
	SeniorityCSuite      Seniority = "c-suite"
	SenioritySeniorExec  Seniority = "senior-executive"
	SeniorityDirector    Seniority = "director"
	SeniorityManager     Seniority = "manager"
	SenioritySpecialist  Seniority = "specialist"
	SeniorityCoordinator Seniority = "coordinator"
	SeniorityOther       Seniority = "other"
)

var seniorityRank = map[Seniority]float64{
	SeniorityCSuite:      1.0,
	SenioritySeniorExec:  0.9,
	SeniorityDirector:    0.8,
	SeniorityManager:     0.7,
	SenioritySpecialist:  0.5,
	SeniorityCoordinator: 0.3,
	SeniorityOther:       0.15,
}

// Rank maps a seniority to [0,1] for title-quality scoring.
func (s Seniority) Rank() float64 {
	if r, ok := seniorityRank[s]; ok {
		return r
	}
	return seniorityRank[SeniorityOther]
}

// Category groups titles by function.
type Category string

// Role categories.
const (
	CategoryOwnership        Category = "ownership"
	CategorySeniorLeadership Category = "senior-leadership"
	CategoryManagement       Category = "management"
	CategoryDepartmentHead   Category = "department-head"
	CategorySpecialist       Category = "specialist"
	CategorySales            Category = "sales"
	CategoryService          Category = "service"
	CategoryFinance          Category = "finance"
	CategoryMarketing        Category = "marketing"
	CategoryOperations       Category = "operations"
	CategoryIT               Category = "it"
	CategoryHRAdmin          Category = "hr-admin"
	CategoryOther            Category = "other"
)

type role struct {
	name     string
	patterns []string
}

type tier struct {
	seniority Seniority
	roles     []role
}

// tiers are tried most senior first; a later tier only wins with a strictly
// better match.
var tiers = []tier{
	{SeniorityCSuite, []role{
		{"ceo", []string{"chief executive officer", "ceo", "chief executive", "president & ceo"}},
		{"cfo", []string{"chief financial officer", "cfo", "chief financial"}},
		{"coo", []string{"chief operating officer", "coo", "chief operating"}},
		{"president", []string{"president", "company president"}},
		{"owner", []string{"owner", "co-owner", "business owner", "dealership owner"}},
		{"principal", []string{"principal", "managing principal"}},
		{"partner", []string{"managing partner", "partner", "equity partner"}},
	}},
	{SenioritySeniorExec, []role{
		{"vice_president", []string{"vice president", "vp", "executive vice president", "evp", "senior vice president", "svp"}},
		{"executive_director", []string{"executive director", "managing director"}},
		{"general_manager", []string{"general manager", "gm", "dealership general manager"}},
		{"dealer_principal", []string{"dealer principal", "dealer"}},
		{"senior_partner", []string{"senior partner"}},
	}},
	{SeniorityDirector, []role{
		{"sales_director", []string{"sales director", "director of sales", "sales and leasing director"}},
		{"service_director", []string{"service director", "director of service", "fixed operations director"}},
		{"parts_director", []string{"parts director", "director of parts", "parts and service director"}},
		{"finance_director", []string{"finance director", "director of finance", "f&i director"}},
		{"marketing_director", []string{"marketing director", "director of marketing"}},
		{"operations_director", []string{"operations director", "director of operations"}},
		{"hr_director", []string{"hr director", "director of human resources", "people director"}},
		{"it_director", []string{"it director", "director of it", "technology director"}},
	}},
	{SeniorityManager, []role{
		{"sales_manager", []string{"sales manager", "new car sales manager", "used car sales manager", "leasing manager", "fleet sales manager", "internet sales manager"}},
		{"service_manager", []string{"service manager", "fixed operations manager", "service operations manager", "warranty manager", "shop manager"}},
		{"parts_manager", []string{"parts manager", "parts and accessories manager", "parts department manager"}},
		{"finance_manager", []string{"finance manager", "f&i manager", "business manager", "finance and insurance manager"}},
		{"marketing_manager", []string{"marketing manager", "advertising manager", "digital marketing manager"}},
		{"hr_manager", []string{"hr manager", "human resources manager", "personnel manager"}},
		{"it_manager", []string{"it manager", "systems manager", "technology manager"}},
		{"operations_manager", []string{"operations manager", "facility manager", "admin manager"}},
		{"customer_relations_manager", []string{"customer relations manager", "customer service manager", "crm manager"}},
		{"inventory_manager", []string{"inventory manager", "lot manager", "vehicle inventory manager"}},
	}},
	{SenioritySpecialist, []role{
		{"sales_specialist", []string{"sales consultant", "sales associate", "sales specialist", "product specialist", "senior sales consultant", "leasing specialist", "fleet specialist"}},
		{"service_specialist", []string{"service advisor", "service consultant", "service specialist", "technical specialist", "warranty specialist"}},
		{"parts_specialist", []string{"parts specialist", "parts advisor", "parts consultant", "parts counter"}},
		{"finance_specialist", []string{"finance specialist", "f&i specialist", "credit specialist", "lease specialist"}},
		{"marketing_specialist", []string{"marketing specialist", "marketing coordinator", "digital specialist"}},
		{"it_specialist", []string{"it specialist", "systems analyst", "tech specialist"}},
		{"customer_service_specialist", []string{"customer service specialist", "customer care specialist"}},
	}},
	{SeniorityCoordinator, []role{
		{"coordinator", []string{"coordinator", "assistant coordinator", "program coordinator"}},
		{"assistant", []string{"assistant", "administrative assistant", "executive assistant"}},
		{"receptionist", []string{"receptionist", "front desk", "customer service representative"}},
		{"clerk", []string{"clerk", "office clerk", "data entry clerk"}},
		{"trainee", []string{"trainee", "apprentice"}},
	}},
}

// Abbreviations expanded word by word before matching.
var abbreviations = map[string]string{
	"mgr":   "manager",
	"dir":   "director",
	"coord": "coordinator",
	"asst":  "assistant",
	"sr":    "senior",
	"jr":    "junior",
	"vp":    "vice president",
	"svp":   "senior vice president",
	"evp":   "executive vice president",
	"gm":    "general manager",
	"gsm":   "general sales manager",
	"fi":    "finance",
}

var noiseWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
	"at": true, "for": true, "in": true, "on": true,
}

// Words that mark temporary or junior positions.
var negativeWords = map[string]bool{
	"intern": true, "student": true, "temp": true, "temporary": true,
	"contractor": true, "freelance": true, "volunteer": true, "seasonal": true,
	"parttime": true,
}

var dealershipWords = map[string]bool{
	"new": true, "used": true, "preowned": true, "certified": true, "leasing": true,
	"financing": true, "service": true, "parts": true, "accessories": true,
	"warranty": true, "collision": true, "body": true, "dealership": true,
	"automotive": true, "dealer": true, "showroom": true, "lot": true,
	"inventory": true, "appraisal": true, "internet": true, "fleet": true,
}

var dealershipCompanyHints = []string{
	"auto", "car", "dealer", "motors", "honda", "toyota", "ford", "chevrolet",
	"chevy", "bmw", "mercedes", "audi", "nissan", "volkswagen", "hyundai", "kia",
	"mazda", "subaru", "lexus", "acura", "infiniti", "cadillac", "buick", "gmc",
	"jeep", "dodge", "chrysler",
}

// Words weighted up when they appear in both title and pattern.
var keyWords = map[string]bool{
	"manager": true, "director": true, "president": true, "ceo": true,
	"owner": true, "vice": true, "chief": true,
}
