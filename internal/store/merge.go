package store

import (
	"math"
	"sort"
	"strings"

	"github.com/xZoluGames/skinarb/internal/market"
)

// priceEpsilon guards the one-cent update threshold against float64
// representation error (|1.01-1.00| lands a hair under 0.01).
const priceEpsilon = 0.01 - 1e-9

// MergeStats summarizes one incremental merge.
type MergeStats struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}

// Merge folds an incoming batch into an existing catalog. New names are
// inserted; known names only take a price update when it moved at least
// one cent, and an icon upgrade when the incoming icon is local and the
// stored one is not. Re-merging the same batch is a no-op. The result is
// sorted by name.
func Merge(existing, incoming []market.Listing) ([]market.Listing, MergeStats) {
	byName := make(map[string]market.Listing, len(existing))
	for _, it := range existing {
		byName[it.Item] = it
	}

	var stats MergeStats
	seen := make(map[string]bool, len(incoming))
	for _, in := range incoming {
		if seen[in.Item] {
			stats.Duplicates++
			continue
		}
		seen[in.Item] = true

		cur, ok := byName[in.Item]
		if !ok {
			byName[in.Item] = in
			stats.Added++
			continue
		}

		changed := false
		if math.Abs(in.Price-cur.Price) >= priceEpsilon {
			cur.Price = in.Price
			changed = true
		}
		if localIcon(in.IconURL) && !localIcon(cur.IconURL) {
			cur.IconURL = in.IconURL
			changed = true
		}
		if in.Quantity != nil {
			cur.Quantity = in.Quantity
		}
		if changed {
			byName[in.Item] = cur
			stats.Updated++
		} else {
			stats.Skipped++
		}
	}

	out := make([]market.Listing, 0, len(byName))
	for _, it := range byName {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	stats.Total = len(out)
	return out, stats
}

// localIcon reports whether an icon URL points at the local image cache
// rather than a remote CDN.
func localIcon(u string) bool {
	return strings.HasPrefix(u, "/static/") || strings.HasPrefix(u, "/cache/")
}

// MergeInto merges a batch into a venue's on-disk catalog and persists the
// result atomically.
func (s *Snapshots) MergeInto(venue string, incoming []market.Listing) (MergeStats, error) {
	existing, err := s.Read(venue)
	if err != nil {
		return MergeStats{}, err
	}
	merged, stats := Merge(existing, incoming)
	if err := s.Write(venue, merged); err != nil {
		return MergeStats{}, err
	}
	return stats, nil
}
