package fingerprint

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/radio"
)

// Scanner performs an active radio scan.
type Scanner interface {
	Scan(ctx context.Context) ([]radio.Network, error)
}

// Locator compares the live radio environment against the stored fingerprint.
type Locator struct {
	store   *Store
	scanner Scanner
	policy  Policy
	log     zerolog.Logger
}

// NewLocator creates a locator.
func NewLocator(s *Store, scanner Scanner, policy Policy, log zerolog.Logger) *Locator {
	return &Locator{
		store:   s,
		scanner: scanner,
		policy:  policy,
		log:     log,
	}
}

// Policy returns the active match policy.
func (l *Locator) Policy() Policy {
	return l.policy
}

// Update scans and stores the strongest neighbors other than target,
// replacing any previous record. An empty scan keeps the previous record.
func (l *Locator) Update(ctx context.Context, target string) error {
	networks, err := l.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("fingerprint scan failed: %w", err)
	}

	rec := Capture(networks, target)
	if len(rec.Neighbors) == 0 {
		l.log.Debug().Int("visible", len(networks)).Msg("No neighbors to fingerprint, keeping previous record")
		return nil
	}
	if err := l.store.Save(rec); err != nil {
		return err
	}
	l.log.Info().Strs("neighbors", rec.Neighbors).Msg("Location fingerprint updated")
	return nil
}

// IsSameLocation reports whether the lamp still sees its stored neighbors.
// Without a record it cannot confirm and returns false. An empty or failed
// scan returns true so a transient radio glitch never forces reconfiguration.
func (l *Locator) IsSameLocation(ctx context.Context) bool {
	rec, ok, err := l.store.Load()
	if err != nil {
		l.log.Warn().Err(err).Msg("Cannot read fingerprint")
	}
	if !ok {
		l.log.Info().Msg("No fingerprint stored, treating location as new")
		return false
	}

	networks, err := l.scanner.Scan(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("Fingerprint scan failed, assuming same location")
		return true
	}
	if len(networks) == 0 {
		l.log.Info().Msg("No networks visible, assuming same location")
		return true
	}

	matched := Matches(rec, networks)
	same := l.policy.Same(len(rec.Neighbors), matched)
	l.log.Info().
		Int("matched", matched).
		Int("stored", len(rec.Neighbors)).
		Str("policy", l.policy.String()).
		Bool("same", same).
		Msg("Location check")
	return same
}

// Clear forgets the stored fingerprint.
func (l *Locator) Clear() error {
	return l.store.Clear()
}

// Capture builds a record from a scan: up to MaxNeighbors strongest networks,
// excluding target.
func Capture(networks []radio.Network, target string) Record {
	sorted := append([]radio.Network(nil), networks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RSSI > sorted[j].RSSI
	})

	target = truncate(target)
	var rec Record
	for _, n := range sorted {
		if truncate(n.SSID) == target {
			continue
		}
		rec.Neighbors = append(rec.Neighbors, n.SSID)
	}
	return normalize(rec)
}

// Matches counts stored neighbors that are visible in networks.
func Matches(rec Record, networks []radio.Network) int {
	visible := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		visible[truncate(n.SSID)] = struct{}{}
	}
	matched := 0
	for _, n := range rec.Neighbors {
		if _, ok := visible[n]; ok {
			matched++
		}
	}
	return matched
}
