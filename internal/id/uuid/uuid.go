// Package uuid generates run and record identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// targetNamespace scopes the deterministic per-domain IDs.
var targetNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("dealership-intel"))

// Generator creates identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a time-ordered UUIDv7 for one pipeline run.
func (Generator) NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// TargetID returns a stable UUIDv5 for a dealership domain, so repeated runs
// over the same site share an ID.
func (Generator) TargetID(domain string) string {
	return uuid.NewSHA1(targetNamespace, []byte(domain)).String()
}
