// Package fingerprint detects physical relocation of the lamp from the
// neighboring WiFi networks it can see.
package fingerprint

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/itohio/surflamp/pkg/store"
)

const (
	// RecordKey is the store key of the fingerprint record.
	RecordKey = "wifi_fp"
	// MaxNeighbors is the maximum number of stored neighbor identifiers.
	MaxNeighbors = 4
	// MaxSSIDLen is the maximum stored identifier length in bytes.
	MaxSSIDLen = 32
)

// Record is the persisted set of neighbor identifiers, strongest first.
type Record struct {
	Neighbors []string `yaml:"neighbors"`
}

// Store persists a single fingerprint record.
type Store struct {
	kv store.Store
}

// NewStore creates a fingerprint store over kv.
func NewStore(kv store.Store) *Store {
	return &Store{kv: kv}
}

// Load returns the stored record. ok is false when there is no usable record.
func (s *Store) Load() (rec Record, ok bool, err error) {
	data, err := s.kv.Load(RecordKey)
	if errors.Is(err, store.ErrNotFound) {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, fmt.Errorf("failed to load fingerprint: %w", err)
	}

	// No version field: anything that does not decode is wiped on next Save.
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, nil
	}
	rec = normalize(rec)
	return rec, len(rec.Neighbors) > 0, nil
}

// Save replaces the stored record.
func (s *Store) Save(rec Record) error {
	data, err := yaml.Marshal(normalize(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint: %w", err)
	}
	if err := s.kv.Save(RecordKey, data); err != nil {
		return fmt.Errorf("failed to save fingerprint: %w", err)
	}
	return nil
}

// Clear removes the stored record.
func (s *Store) Clear() error {
	return s.kv.Delete(RecordKey)
}

// normalize enforces the record bounds: at most MaxNeighbors non-empty,
// distinct, truncated identifiers.
func normalize(rec Record) Record {
	out := Record{Neighbors: make([]string, 0, MaxNeighbors)}
	seen := make(map[string]struct{}, MaxNeighbors)
	for _, n := range rec.Neighbors {
		n = truncate(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out.Neighbors = append(out.Neighbors, n)
		if len(out.Neighbors) == MaxNeighbors {
			break
		}
	}
	return out
}

// truncate cuts s to MaxSSIDLen bytes without splitting a UTF-8 sequence.
func truncate(s string) string {
	if len(s) <= MaxSSIDLen {
		return s
	}
	cut := MaxSSIDLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
