package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/storage"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
	recordTimeout      = 3 * time.Second
)

// RecordReader loads a stored record by ID.
type RecordReader interface {
	Get(ctx context.Context, id string) (intel.DealershipIntel, error)
}

// RecordLister lists stored records. Readers that also implement it serve
// GET /v1/intel.
type RecordLister interface {
	List() []intel.DealershipIntel
}

// RecordHandler exposes read-only record endpoints.
type RecordHandler struct {
	reader  RecordReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecordHandler wires the reader and logger.
func NewRecordHandler(reader RecordReader, logger *zap.Logger) *RecordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordHandler{reader: reader, timeout: recordTimeout, logger: logger}
}

// Get handles GET /v1/intel/{id}. It returns the record, 404 when the reader
// reports storage.ErrNotFound, 503 without a reader, or 500 otherwise.
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.reader.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("get record failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// List handles GET /v1/intel?status=&limit=&offset=. It returns
// {"records": [...]} or 400 for invalid filters.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.reader.(RecordLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "record listing unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status intel.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		if status, err = parseStatus(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	matched := make([]intel.DealershipIntel, 0)
	for _, rec := range lister.List() {
		if status == "" || rec.Status == status {
			matched = append(matched, rec)
		}
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := min(offset+limit, len(matched))
	writeJSON(w, http.StatusOK, map[string]any{"records": matched[offset:end], "total": len(matched)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (intel.Status, error) {
	switch s := intel.Status(strings.ToLower(input)); s {
	case intel.StatusSuccess, intel.StatusPartial, intel.StatusFailed:
		return s, nil
	default:
		return "", errors.New("invalid status")
	}
}
