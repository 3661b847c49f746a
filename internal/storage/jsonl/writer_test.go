package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

func TestWriterOneRecordPerLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write(context.Background(), intel.DealershipIntel{
				ID:     fmt.Sprintf("rec-%d", i),
				Domain: fmt.Sprintf("dealer%d.com", i),
			}))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	seen := map[string]bool{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var rec intel.DealershipIntel
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		seen[rec.ID] = true
	}
	require.NoError(t, scanner.Err())
	assert.Len(t, seen, 20)
}

func TestCreateWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), intel.DealershipIntel{ID: "rec-1", Status: intel.StatusPartial}))
	require.NoError(t, w.Close())

	// #nosec G304 -- test reads from the controlled temp directory.
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"partial"`)
	assert.Equal(t, byte('\n'), body[len(body)-1])
}

func TestCreateFailsForMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := Create(filepath.Join(t.TempDir(), "missing", "out.jsonl"))
	require.Error(t, err)
}
