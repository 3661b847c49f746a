package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"WWW.Example.COM.", "example.com"},
		{" shop.example.com ", "shop.example.com"},
		{"bücher.de", "xn--bcher-kva.de"},
		{"localhost", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), tt.in)
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example-motors.com/staff", "example-motors.com"},
		{"http://Shop.Example-Motors.com:8080/path", "shop.example-motors.com"},
		{"example-motors.com/contact-us", "example-motors.com"},
		{"   ", ""},
		{"https://", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DomainOf(tt.in), tt.in)
	}
}

func TestEmailDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", EmailDomain("Bob@Example.com"))
	assert.Equal(t, "mail.example.com", EmailDomain("bob@www.mail.example.com"))
	assert.Empty(t, EmailDomain("bob@"))
	assert.Empty(t, EmailDomain("bob"))
}

func TestSameOrSubdomain(t *testing.T) {
	t.Parallel()

	assert.True(t, SameOrSubdomain("a.com", "a.com"))
	assert.True(t, SameOrSubdomain("sales.a.com", "a.com"))
	assert.False(t, SameOrSubdomain("evila.com", "a.com"))
	assert.False(t, SameOrSubdomain("", "a.com"))
}

func TestCompanyNameFromDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Example Motors", CompanyNameFromDomain("example-motors.com"))
	assert.Equal(t, "Smith Ford", CompanyNameFromDomain("smith_ford.net"))
	assert.Equal(t, "Hondaworld", CompanyNameFromDomain("hondaworld.com"))
	assert.Empty(t, CompanyNameFromDomain(""))
}

func TestTargetDomainAndBaseURL(t *testing.T) {
	t.Parallel()

	target := Target{URL: "http://www.Example-Motors.com/inventory"}
	assert.Equal(t, "example-motors.com", target.Domain())
	assert.Equal(t, "https://example-motors.com", target.BaseURL())
	assert.Empty(t, Target{URL: "not a host"}.BaseURL())
}
