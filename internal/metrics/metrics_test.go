package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example-Motors.com/staff", "example-motors.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if targetsTotal == nil || pagesTotal == nil || fallbackCallsTotal == nil || contactScore == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveTarget(t *testing.T) {
	before := testutil.ToFloat64(targetsCounter("partial"))
	ObserveTarget("partial")
	if got := testutil.ToFloat64(targetsCounter("partial")); got != before+1 {
		t.Errorf("expected partial targets to be %f, got %f", before+1, got)
	}
}

func TestObserveSessionLifecycle(t *testing.T) {
	Init()
	before := testutil.ToFloat64(poolSessionsRetiredTotal.WithLabelValues("rotation"))
	IncActiveSessions()
	ObserveSessionRetired("rotation")
	if got := testutil.ToFloat64(poolSessionsRetiredTotal.WithLabelValues("rotation")); got != before+1 {
		t.Errorf("expected one rotation retirement, got %f", got-before)
	}
}

func TestObserveHistograms(t *testing.T) {
	ObserveContactScore(72.5)
	ObserveAcquireWait(250 * time.Millisecond)
	ObserveRateLimitDelay("fallback", time.Second)
	if n := testutil.CollectAndCount(rateLimitDelaySeconds); n == 0 {
		t.Error("expected rate limit delay series to be collected")
	}
}

func targetsCounter(status string) prometheus.Counter {
	Init()
	return targetsTotal.WithLabelValues(status)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://example-motors.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
