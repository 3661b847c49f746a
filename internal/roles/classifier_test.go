package roles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	tests := []struct {
		title     string
		company   string
		seniority Seniority
		category  Category
		role      string
		conf      float64
		dealer    bool
	}{
		{title: "General Manager", seniority: SenioritySeniorExec, category: CategorySeniorLeadership, role: "general_manager", conf: 1},
		{title: "GM", seniority: SenioritySeniorExec, category: CategorySeniorLeadership, role: "general_manager", conf: 1},
		{title: "Owner", seniority: SeniorityCSuite, category: CategoryOwnership, role: "owner", conf: 1},
		{title: "Dealer Principal", seniority: SenioritySeniorExec, category: CategoryOwnership, role: "dealer_principal", conf: 1, dealer: true},
		{title: "Sales Associate", seniority: SenioritySpecialist, category: CategorySpecialist, role: "sales_specialist", conf: 1},
		{title: "Service Mgr.", seniority: SeniorityManager, category: CategoryManagement, role: "service_manager", conf: 1, dealer: true},
		{title: "Internet Sales Manager", seniority: SeniorityManager, category: CategoryManagement, role: "sales_manager", conf: 1, dealer: true},
		{title: "VP of Sales", seniority: SenioritySeniorExec, category: CategorySeniorLeadership, role: "vice_president", conf: 0.8 + 0.1*2.0/3.0},
		{title: "F&I Manager", seniority: SeniorityManager, category: CategoryManagement, role: "finance_manager", conf: 1},
		{title: "Sales Intern", seniority: SeniorityOther, category: CategoryOther, conf: 0.2},
		{title: "Part-Time Receptionist", seniority: SeniorityOther, category: CategoryOther, conf: 0.2},
		{title: "Detail Technician", seniority: SeniorityOther, category: CategoryOther, conf: 0.2},
		{title: "Detail Technician", company: "Example Motors", seniority: SeniorityOther, category: CategoryOther, conf: 0.3, dealer: true},
		{title: "", seniority: SeniorityOther, category: CategoryOther, conf: 0},
	}
	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.company, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tt.title, tt.company)
			assert.Equal(t, tt.seniority, got.Seniority)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.role, got.Role)
			assert.InDelta(t, tt.conf, got.Confidence, 1e-9)
			assert.Equal(t, tt.dealer, got.DealershipSpecific)
		})
	}
}

func TestClassifyDealershipBonus(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	plain := c.Classify("VP of Sales", "")
	dealer := c.Classify("VP of Sales", "Example Motors")
	assert.InDelta(t, plain.Confidence+0.1, dealer.Confidence, 1e-9)
	assert.True(t, dealer.DealershipSpecific)
	assert.LessOrEqual(t, c.Classify("General Manager", "Example Motors").Confidence, 1.0)
}

func TestClassifyToleratesMisspelling(t *testing.T) {
	t.Parallel()

	got := NewClassifier().Classify("Genral Manager", "")
	require.Equal(t, SenioritySeniorExec, got.Seniority)
	assert.Less(t, got.Confidence, 0.9)
	assert.Greater(t, got.Confidence, 0.3)
}

func TestTitleQuality(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	assert.InDelta(t, 0.9, c.Classify("General Manager", "").TitleQuality(), 1e-9)
	assert.InDelta(t, 0.7, c.Classify("Service Manager", "").TitleQuality(), 1e-9)
	assert.InDelta(t, 0.5, c.Classify("Sales Associate", "").TitleQuality(), 1e-9)
	assert.InDelta(t, 0.15*0.2, c.Classify("Sales Intern", "").TitleQuality(), 1e-9)
	assert.Greater(t, c.Classify("General Manager", "").TitleQuality(), c.Classify("Sales Associate", "").TitleQuality())
}

func TestRank(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, SeniorityCSuite.Rank(), 1e-9)
	assert.InDelta(t, 0.15, SeniorityOther.Rank(), 1e-9)
	assert.InDelta(t, 0.15, Seniority("astronaut").Rank(), 1e-9)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"senior", "vice", "president", "sales"}, normalize("Sr. VP of Sales"))
	assert.Equal(t, []string{"finance", "manager"}, normalize("F&I Mgr"))
	assert.Empty(t, normalize(" - "))
}

func TestClassifierConcurrentUse(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, SeniorityManager, c.Classify("Parts Manager", "").Seniority)
		}()
	}
	wg.Wait()
}
