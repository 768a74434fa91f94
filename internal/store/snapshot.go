// Package store persists venue snapshots on disk as JSON arrays, merges
// incremental Steam catalogs and optionally mirrors results to Postgres.
package store

import (
	"os"

	"github.com/xZoluGames/skinarb/internal/atomicio"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
	"github.com/xZoluGames/skinarb/internal/paths"
)

// Snapshots reads and writes per-venue listing files under the data dir.
type Snapshots struct {
	Paths *paths.Registry
}

// Write replaces a venue's snapshot atomically.
func (s *Snapshots) Write(venue string, items []market.Listing) error {
	if items == nil {
		items = []market.Listing{}
	}
	if err := atomicio.WriteJSON(s.Paths.SnapshotFile(venue), items); err != nil {
		return errs.Wrap(errs.KindPersistence, venue, err)
	}
	return nil
}

// Read loads a venue's snapshot. A missing file is an empty snapshot.
func (s *Snapshots) Read(venue string) ([]market.Listing, error) {
	var items []market.Listing
	err := atomicio.ReadJSON(s.Paths.SnapshotFile(venue), &items)
	if err != nil {
		if os.IsNotExist(err) {
			return []market.Listing{}, nil
		}
		return nil, errs.Wrap(errs.KindPersistence, venue, err)
	}
	return items, nil
}
