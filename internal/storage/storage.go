// Package storage defines where finished dealership records are kept. Records
// are archived as JSON objects in a BlobStore (GCS, the local filesystem or
// memory) and, when configured, written to Postgres.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BlobStore uploads an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver writes each record as an indented JSON object under
// <prefix>/<run_id>/<domain>.json.
type Archiver struct {
	store  BlobStore
	prefix string
}

// NewArchiver builds an Archiver.
func NewArchiver(store BlobStore, prefix string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/")}, nil
}

// Write implements the pipeline record sink.
func (a *Archiver) Write(ctx context.Context, rec intel.DealershipIntel) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := a.store.PutObject(ctx, ObjectPath(a.prefix, rec), "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	return nil
}

// ObjectPath returns the object key a record is archived under.
func ObjectPath(prefix string, rec intel.DealershipIntel) string {
	name := rec.Domain
	if name == "" {
		name = rec.ID
	}
	if name == "" {
		name = "unknown"
	}
	runID := rec.RunID
	if runID == "" {
		runID = "adhoc"
	}
	return path.Join(prefix, runID, name+".json")
}
