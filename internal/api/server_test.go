package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]intel.Target
	records func(targets []intel.Target) []intel.DealershipIntel
	err     error
	panics  bool
}

func (f *fakeRunner) Run(_ context.Context, targets []intel.Target) ([]intel.DealershipIntel, error) {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	f.calls = append(f.calls, targets)
	f.mu.Unlock()
	if f.records == nil {
		return nil, f.err
	}
	return f.records(targets), f.err
}

func echoRecords(targets []intel.Target) []intel.DealershipIntel {
	out := make([]intel.DealershipIntel, len(targets))
	for i, t := range targets {
		out[i] = intel.DealershipIntel{ID: "id-" + t.Domain(), Domain: t.Domain(), Target: t, Status: intel.StatusSuccess}
	}
	return out
}

func serve(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{})
	rec := serve(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerReadyz(t *testing.T) {
	t.Parallel()

	ready := NewServer(&fakeRunner{}, Options{Checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	}})
	rec := serve(t, ready, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(&fakeRunner{}, Options{Checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec = serve(t, down, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServerMetrics(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{})
	rec := serve(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestServerSubmitSingleTarget(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{records: echoRecords}
	s := NewServer(runner, Options{})
	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"url":"https://www.example-motors.com","name":"Example Motors"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Records []intel.DealershipIntel `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "example-motors.com", resp.Records[0].Domain)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []intel.Target{{URL: "https://www.example-motors.com", Name: "Example Motors"}}, runner.calls[0])
}

func TestServerSubmitBatch(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{records: echoRecords}
	s := NewServer(runner, Options{})
	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"targets":[{"url":"a-motors.com"},{"url":"b-motors.com"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.calls, 1)
	assert.Len(t, runner.calls[0], 2)
}

func TestServerSubmitRejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "invalid JSON"},
		{"no targets", `{}`, "url or targets required"},
		{"bad url", `{"targets":[{"url":"  "}]}`, "invalid target url"},
		{"too many", `{"targets":[{"url":"a.com"},{"url":"b.com"},{"url":"c.com"}]}`, "at most 2 targets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{records: echoRecords}
			s := NewServer(runner, Options{MaxTargets: 2})
			rec := serve(t, s, http.MethodPost, "/v1/intel", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestServerSubmitSinkWarning(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{records: echoRecords, err: errors.New("write a.com: bucket gone")}
	s := NewServer(runner, Options{})
	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bucket gone")
}

func TestServerSubmitRunFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("new run id: entropy")}
	s := NewServer(runner, Options{})
	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerRecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{panics: true}, Options{})
	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestServerAPIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{records: echoRecords}, Options{APIKey: "secret"})

	rec := serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/intel", `{"url":"a.com"}`, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, http.MethodPost, "/v1/intel?api_key=secret", `{"url":"a.com"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestServerKeepsIncomingRequestID(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{})
	rec := serve(t, s, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
