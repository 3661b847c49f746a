package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/storage/memory"
)

type failingReader struct{}

func (failingReader) Get(context.Context, string) (intel.DealershipIntel, error) {
	return intel.DealershipIntel{}, errors.New("connection reset")
}

func seededStore(t *testing.T) *memory.RecordStore {
	t.Helper()
	store := memory.NewRecordStore()
	for _, rec := range []intel.DealershipIntel{
		{ID: "a", Domain: "a.com", Status: intel.StatusSuccess},
		{ID: "b", Domain: "b.com", Status: intel.StatusFailed},
		{ID: "c", Domain: "c.com", Status: intel.StatusSuccess},
	} {
		require.NoError(t, store.Write(context.Background(), rec))
	}
	return store
}

func TestRecordHandlerGet(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{Records: seededStore(t)})

	rec := serve(t, s, http.MethodGet, "/v1/intel/b", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got intel.DealershipIntel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "b.com", got.Domain)

	rec = serve(t, s, http.MethodGet, "/v1/intel/zzz", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordHandlerGetErrors(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRunner{}, Options{}), http.MethodGet, "/v1/intel/a", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, NewServer(&fakeRunner{}, Options{Records: failingReader{}}), http.MethodGet, "/v1/intel/a", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecordHandlerList(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{Records: seededStore(t)})

	tests := []struct {
		name    string
		query   string
		code    int
		domains []string
		total   int
	}{
		{"all", "", http.StatusOK, []string{"a.com", "b.com", "c.com"}, 3},
		{"status filter", "?status=SUCCESS", http.StatusOK, []string{"a.com", "c.com"}, 2},
		{"paged", "?limit=1&offset=1", http.StatusOK, []string{"b.com"}, 3},
		{"offset past end", "?offset=10", http.StatusOK, []string{}, 3},
		{"bad limit", "?limit=0", http.StatusBadRequest, nil, 0},
		{"bad offset", "?offset=-1", http.StatusBadRequest, nil, 0},
		{"bad status", "?status=pending", http.StatusBadRequest, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, s, http.MethodGet, "/v1/intel"+tt.query, "", nil)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Records []intel.DealershipIntel `json:"records"`
				Total   int                     `json:"total"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			domains := make([]string, 0, len(resp.Records))
			for _, r := range resp.Records {
				domains = append(domains, r.Domain)
			}
			assert.Equal(t, tt.domains, domains)
			assert.Equal(t, tt.total, resp.Total)
		})
	}
}

func TestRecordHandlerListUnsupported(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRunner{}, Options{Records: failingReader{}})
	rec := serve(t, s, http.MethodGet, "/v1/intel", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
