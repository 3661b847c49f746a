package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/roles"
	"github.com/savvydealer-adam/dealership-intel/internal/validate"
)

const domain = "example-motors.com"

func checks(failed ...string) []intel.Check {
	out := make([]intel.Check, 0, len(validate.CheckNames))
	for _, name := range validate.CheckNames {
		o := intel.Pass
		for _, f := range failed {
			if f == name {
				o = intel.Fail
			}
		}
		out = append(out, intel.Check{Name: name, Outcome: o})
	}
	return out
}

func TestDefaultWeightsSumTo100(t *testing.T) {
	t.Parallel()

	w := DefaultConfig().Weights
	assert.InDelta(t, 100, w.Completeness+w.DomainMatch+w.TitleQuality+w.Seed+w.Validation, 1e-9)
}

func TestScorePerfectContact(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c := intel.ContactCandidate{Name: "Jane Doe", Title: "Owner", Email: "jane@example-motors.com", Phone: "+15124631000", RawConfidence: 1}
	role := roles.NewClassifier().Classify(c.Title, "")

	score, b := s.Score(c, domain, role, checks())
	assert.InDelta(t, 100.0, score, 1e-9)
	assert.Equal(t, intel.ScoreBreakdown{Completeness: 30, DomainMatch: 20, TitleQuality: 20, Seed: 10, Validation: 20}, b)
}

func TestScorePenalties(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c := intel.ContactCandidate{Name: "Jane Doe"}
	tests := []struct {
		name       string
		checks     []intel.Check
		validation float64
	}{
		{name: "all pass", checks: checks(), validation: 20},
		{name: "syntax", checks: checks(validate.CheckEmailSyntax), validation: 0},
		{name: "mx and phone", checks: checks(validate.CheckEmailMX, validate.CheckPhone), validation: 5},
		{name: "name and domain", checks: checks(validate.CheckName, validate.CheckEmailDomain), validation: 0},
		{name: "name email", checks: checks(validate.CheckNameEmail), validation: 17},
		{name: "unknown is neutral", checks: []intel.Check{{Name: validate.CheckEmailMX, Outcome: intel.Unknown}}, validation: 20},
		{name: "everything", checks: checks(validate.CheckNames...), validation: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, b := s.Score(c, domain, roles.Classification{}, tt.checks)
			assert.InDelta(t, tt.validation, b.Validation, 1e-9)
		})
	}
}

func TestScoreMonotonicInCompleteness(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	role := roles.NewClassifier().Classify("General Manager", "")
	steps := []intel.ContactCandidate{
		{Name: "Jane Doe"},
		{Name: "Jane Doe", Title: "General Manager"},
		{Name: "Jane Doe", Title: "General Manager", Email: "jane@example-motors.com"},
		{Name: "Jane Doe", Title: "General Manager", Email: "jane@example-motors.com", Phone: "+15124631000"},
	}
	prev := -1.0
	for _, c := range steps {
		score, _ := s.Score(c, domain, role, checks())
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}

	// Only completeness differs here.
	base := intel.ContactCandidate{Name: "Jane Doe", Email: "jane@example-motors.com"}
	more := base
	more.Phone = "+15124631000"
	a, _ := s.Score(base, domain, role, checks())
	b, _ := s.Score(more, domain, role, checks())
	assert.InDelta(t, 7.5, b-a, 1e-9)
}

func TestScoreDomainMatchBoost(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	role := roles.NewClassifier().Classify("Sales Associate", "")
	own := intel.ContactCandidate{Name: "Tom Lee", Title: "Sales Associate", Email: "tom@example-motors.com"}
	other := own
	other.Email = "tom@othergroup.com"
	free := own
	free.Email = "tom@gmail.com"

	ownScore, _ := s.Score(own, domain, role, checks())
	otherScore, _ := s.Score(other, domain, role, checks())
	freeScore, _ := s.Score(free, domain, role, checks())
	assert.Greater(t, ownScore, otherScore)
	assert.Greater(t, otherScore, freeScore)
	assert.InDelta(t, 15, ownScore-otherScore, 1e-9)
}

func TestScoreRoundsToOneDecimal(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	score, _ := s.Score(intel.ContactCandidate{Name: "Jane Doe", RawConfidence: 0.123}, domain, roles.Classification{}, checks())
	// 7.5 completeness + 1.23 seed + 20 validation.
	assert.InDelta(t, 28.7, score, 1e-9)
}

func TestScoreClamps(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Weights.Completeness = 300
	s := New(cfg, nil)
	score, _ := s.Score(intel.ContactCandidate{Name: "Jane Doe", RawConfidence: 7}, domain, roles.Classification{}, checks())
	assert.InDelta(t, 100, score, 1e-9)
}

func TestDomainMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email, target string
		want          float64
	}{
		{"jane@example-motors.com", "example-motors.com", 1},
		{"jane@Example-Motors.com", "www.example-motors.com", 1},
		{"jane@sales.example-motors.com", "example-motors.com", 1},
		{"jane@dealergroup.com", "example-motors.com", 0.25},
		{"jane@gmail.com", "example-motors.com", 0},
		{"", "example-motors.com", 0},
		{"not-an-email", "example-motors.com", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, DomainMatch(tt.email, tt.target), 1e-9, tt.email)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c := intel.ContactCandidate{
		Name: "Tom Lee", Title: "Sales Associate", Email: "Tom@Example-Motors.com",
		Source: intel.SourceFallback, RawConfidence: 0.4,
	}
	v := validate.Result{
		Checks:          checks(),
		Status:          intel.ValidationValid,
		NormalizedEmail: "tom@example-motors.com",
	}

	got := s.Build(c, domain, "Example Motors", v)
	require.Equal(t, intel.ValidationValid, got.Validation)
	assert.Equal(t, "tom@example-motors.com", got.Email)
	assert.Equal(t, string(roles.SenioritySpecialist), got.Seniority)
	assert.Equal(t, string(roles.CategorySpecialist), got.Category)
	// 22.5 completeness + 20 domain + 10 title + 4 seed + 20 validation.
	assert.InDelta(t, 76.5, got.Score, 1e-9)

	again := s.Build(c, domain, "Example Motors", v)
	assert.Equal(t, got, again)
}
