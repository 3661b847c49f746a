package cmd

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// loadTargets merges the URL arguments with the targets listed in inputPath
// and drops repeated domains, keeping the first occurrence.
func loadTargets(args []string, inputPath string) ([]intel.Target, error) {
	targets := make([]intel.Target, 0, len(args))
	for _, arg := range args {
		targets = append(targets, intel.Target{URL: arg})
	}
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		fromFile, err := readTargets(f, formatOf(inputPath))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", inputPath, err)
		}
		targets = append(targets, fromFile...)
	}
	if len(targets) == 0 {
		return nil, errors.New("no targets: pass URLs or --input")
	}

	seen := make(map[string]struct{}, len(targets))
	out := targets[:0]
	for _, t := range targets {
		domain := t.Domain()
		if domain == "" {
			return nil, fmt.Errorf("invalid target url %q", t.URL)
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".csv":
		return "csv"
	default:
		return "txt"
	}
}

func readTargets(r io.Reader, format string) ([]intel.Target, error) {
	switch format {
	case "yaml":
		return readYAMLTargets(r)
	case "csv":
		return readCSVTargets(r)
	default:
		return readTextTargets(r)
	}
}

// readYAMLTargets accepts either a bare list or a document with a targets key.
// List entries may be plain URLs or {url, name} mappings.
func readYAMLTargets(r io.Reader) ([]intel.Target, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	list := &doc
	if list.Kind == yaml.DocumentNode && len(list.Content) > 0 {
		list = list.Content[0]
	}
	if list.Kind == yaml.MappingNode {
		var wrapped struct {
			Targets yaml.Node `yaml:"targets"`
		}
		if err := list.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		list = &wrapped.Targets
	}
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("yaml targets must be a list (line %d)", list.Line)
	}

	out := make([]intel.Target, 0, len(list.Content))
	for _, item := range list.Content {
		var t intel.Target
		switch item.Kind {
		case yaml.ScalarNode:
			t.URL = item.Value
		case yaml.MappingNode:
			if err := item.Decode(&t); err != nil {
				return nil, fmt.Errorf("line %d: %w", item.Line, err)
			}
		default:
			return nil, fmt.Errorf("line %d: target must be a url or a mapping", item.Line)
		}
		t.URL = strings.TrimSpace(t.URL)
		t.Name = strings.TrimSpace(t.Name)
		out = append(out, t)
	}
	return out, nil
}

// readCSVTargets reads url[,name] rows. A first row naming a url column is a
// header and selects the columns by name.
func readCSVTargets(r io.Reader) ([]intel.Target, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	urlCol, nameCol := 0, 1
	if len(rows) > 0 && headerIndex(rows[0], "url", "website", "domain") >= 0 {
		urlCol = headerIndex(rows[0], "url", "website", "domain")
		nameCol = headerIndex(rows[0], "name", "dealership", "company")
		rows = rows[1:]
	}

	out := make([]intel.Target, 0, len(rows))
	for _, row := range rows {
		if urlCol >= len(row) || strings.TrimSpace(row[urlCol]) == "" {
			continue
		}
		t := intel.Target{URL: strings.TrimSpace(row[urlCol])}
		if nameCol >= 0 && nameCol < len(row) {
			t.Name = strings.TrimSpace(row[nameCol])
		}
		out = append(out, t)
	}
	return out, nil
}

func headerIndex(header []string, names ...string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		for _, name := range names {
			if col == name {
				return i
			}
		}
	}
	return -1
}

// readTextTargets reads one target per line: a URL optionally followed by
// whitespace and the dealership name. Blank lines and # comments are skipped.
func readTextTargets(r io.Reader) ([]intel.Target, error) {
	var out []intel.Target
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t := intel.Target{URL: line}
		if i := strings.IndexFunc(line, isSpace); i > 0 {
			t.URL = line[:i]
			t.Name = strings.TrimSpace(line[i:])
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return out, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
