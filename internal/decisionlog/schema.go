package decisionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// schemaVersion is the sidecar format version.
const schemaVersion = 1

// Schema is the persisted header descriptor kept next to the log.
// The first physical row of the log is authoritative.
type Schema struct {
	Version   int      `yaml:"version"`
	Columns   []string `yaml:"columns"`
	CreatedAt string   `yaml:"created_at"`
	UpdatedAt string   `yaml:"updated_at,omitempty"`
}

// SchemaPath returns the sidecar path for a log file.
func SchemaPath(logPath string) string {
	return logPath + ".schema.yaml"
}

// ReadSchema loads a sidecar descriptor.
func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema sidecar: %w", err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema sidecar %s has no columns", path)
	}
	return &s, nil
}

// writeSchema atomically replaces the sidecar. createdAt is preserved when
// a previous descriptor exists.
func writeSchema(path string, columns []string) error {
	now := time.Now().UTC().Format(TimestampFormat)
	s := Schema{
		Version:   schemaVersion,
		Columns:   columns,
		CreatedAt: now,
	}
	if prev, err := ReadSchema(path); err == nil {
		s.CreatedAt = prev.CreatedAt
		s.UpdatedAt = now
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal schema sidecar: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".schema-*.tmp")
	if err != nil {
		return fmt.Errorf("create schema sidecar: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write schema sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close schema sidecar: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install schema sidecar: %w", err)
	}
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Drift describes how a record's field set differs from the log header.
type Drift struct {
	Added   []string `json:"added,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// Empty reports whether the field sets agree.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Missing) == 0
}

func (d Drift) String() string {
	var parts []string
	if len(d.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(d.Added, ","))
	}
	if len(d.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(d.Missing, ","))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "; ")
}

// diffColumns compares a record's columns against the header by name.
func diffColumns(header, cols []string) Drift {
	inHeader := make(map[string]bool, len(header))
	for _, h := range header {
		inHeader[h] = true
	}
	inCols := make(map[string]bool, len(cols))
	for _, c := range cols {
		inCols[c] = true
	}

	var d Drift
	for _, c := range cols {
		if !inHeader[c] {
			d.Added = append(d.Added, c)
		}
	}
	for _, h := range header {
		if !inCols[h] {
			d.Missing = append(d.Missing, h)
		}
	}
	return d
}

// DriftPolicy decides what Append does when a record's field set differs
// from the established header.
type DriftPolicy string

const (
	// DriftTolerate writes the row aligned by column name: absent columns
	// are left empty and columns unknown to the header are dropped.
	DriftTolerate DriftPolicy = "tolerate"
	// DriftReject refuses the row.
	DriftReject DriftPolicy = "reject"
	// DriftMigrate widens the header with the new columns, rewriting the
	// store once, then writes the full row.
	DriftMigrate DriftPolicy = "migrate"
)

// ParseDriftPolicy maps a config string to a policy. Empty means tolerate.
func ParseDriftPolicy(s string) (DriftPolicy, error) {
	switch DriftPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriftTolerate:
		return DriftTolerate, nil
	case DriftReject:
		return DriftReject, nil
	case DriftMigrate:
		return DriftMigrate, nil
	default:
		return "", fmt.Errorf("unknown schema drift policy %q (want tolerate, reject or migrate)", s)
	}
}

// DriftError is returned by Append under DriftReject.
type DriftError struct {
	Drift Drift
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("decisionlog: record does not match log header (%s)", e.Drift)
}
