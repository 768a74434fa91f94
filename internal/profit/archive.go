package profit

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xZoluGames/skinarb/internal/atomicio"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/paths"
)

// historyDepth caps how many superseded runs the archive retains.
const historyDepth = 10

// ArchiveEntry is one computed run with its provenance.
type ArchiveEntry struct {
	RunID              string        `json:"run_id"`
	Timestamp          string        `json:"timestamp"`
	TotalOpportunities int           `json:"total_opportunities"`
	Mode               string        `json:"mode"`
	Opportunities      []Opportunity `json:"opportunities"`
}

// archiveFile is the on-disk shape: the live entry plus a bounded history
// of the runs it replaced.
type archiveFile struct {
	Current     *ArchiveEntry  `json:"current"`
	LastUpdated string         `json:"last_updated"`
	History     []ArchiveEntry `json:"history"`
}

// Archive persists opportunity runs, keeping the current entry and the
// last few replaced ones in a single file.
type Archive struct {
	mu    sync.Mutex
	paths *paths.Registry
	now   func() time.Time
}

func NewArchive(p *paths.Registry) *Archive {
	return &Archive{paths: p, now: time.Now}
}

// Save rotates the current entry into history and installs the new run.
// A corrupt existing file is replaced rather than propagated.
func (a *Archive) Save(mode Mode, ops []Opportunity) (*ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.paths.ArchiveFile()
	var file archiveFile
	if err := atomicio.ReadJSON(path, &file); err != nil && !os.IsNotExist(err) {
		file = archiveFile{}
	}

	now := a.now().Format(time.RFC3339)
	entry := &ArchiveEntry{
		RunID:              uuid.NewString(),
		Timestamp:          now,
		TotalOpportunities: len(ops),
		Mode:               string(mode),
		Opportunities:      ops,
	}

	if file.Current != nil {
		file.History = append(file.History, *file.Current)
		if len(file.History) > historyDepth {
			file.History = file.History[len(file.History)-historyDepth:]
		}
	}
	file.Current = entry
	file.LastUpdated = now

	if err := atomicio.WriteJSON(path, file); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "", err)
	}
	return entry, nil
}

// Current loads the live entry. A missing archive returns nil.
func (a *Archive) Current() (*ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var file archiveFile
	if err := atomicio.ReadJSON(a.paths.ArchiveFile(), &file); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindPersistence, "", err)
	}
	return file.Current, nil
}

// History loads the retained superseded runs, oldest first.
func (a *Archive) History() ([]ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var file archiveFile
	if err := atomicio.ReadJSON(a.paths.ArchiveFile(), &file); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindPersistence, "", err)
	}
	return file.History, nil
}
