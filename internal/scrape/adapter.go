// Package scrape holds the venue adapter framework: the shared runner
// that schedules, rate-limits and persists, and one adapter per venue
// contributing URL construction and response decoding.
package scrape

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/xZoluGames/skinarb/internal/cache"
	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/httpx"
	"github.com/xZoluGames/skinarb/internal/market"
	"github.com/xZoluGames/skinarb/internal/paths"
	"github.com/xZoluGames/skinarb/internal/store"
	"github.com/xZoluGames/skinarb/internal/telemetry"
)

// PlanKind selects the fetch strategy the runner executes.
type PlanKind int

const (
	// PlanSingle fetches a fixed list of URLs, in order.
	PlanSingle PlanKind = iota
	// PlanPaginated walks pages until an empty one.
	PlanPaginated
	// PlanNameIDBatch fans out over per-item requests.
	PlanNameIDBatch
	// PlanDynamic marks venues rendered client-side: no fetch, an empty
	// snapshot with a reason is published instead.
	PlanDynamic
)

// NameID pairs an item name with its numeric Steam identifier.
type NameID struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// FetchPlan describes one adapter run's network work.
type FetchPlan struct {
	Kind    PlanKind
	URLs    []string              // PlanSingle
	PageURL func(page int) string // PlanPaginated
	// Streams replaces PageURL when a venue pages several feeds that
	// each end independently (Empire's auction/direct split).
	Streams []func(page int) string
	Start   int // first page
	Max     int // page ceiling per stream
	IDs     []NameID              // PlanNameIDBatch
	IDURL   func(id NameID) string
	Headers map[string]string
	Reason  string // PlanDynamic
}

// Adapter is the contract every venue implements.
type Adapter interface {
	Name() string
	Plan(ctx context.Context, rt *Runtime) (FetchPlan, error)
	Parse(raw []byte) ([]market.Listing, error)
}

// NameIDParser decodes per-item responses for PlanNameIDBatch adapters.
type NameIDParser interface {
	ParseNameID(id NameID, raw []byte) (market.Listing, bool, error)
}

// Normalizer lets an adapter post-process validated listings with access
// to the runtime (image cache rewrites, for one).
type Normalizer interface {
	Normalize(rt *Runtime, items []market.Listing) []market.Listing
}

// SelfRunner bypasses the shared scheduler entirely; the nameid harvester
// uses it because its output is not a listing snapshot.
type SelfRunner interface {
	Run(ctx context.Context, rt *Runtime) RunResult
}

// Runtime is the process-scoped object graph adapters and the runner
// share. Constructed once at startup and threaded explicitly.
type Runtime struct {
	Config    *config.Config
	Secrets   *config.Secrets
	Paths     *paths.Registry
	KV        cache.KV
	Images    *cache.ImageCache
	Engine    *httpx.Engine
	Snapshots *store.Snapshots
	History   *store.HistorySink
	Metrics   *telemetry.Metrics
	Logger    zerolog.Logger

	// steamSem bounds concurrent Steam requests across every Steam
	// adapter because Steam rate-limits by origin, not by endpoint.
	steamSem chan struct{}
}

// NewRuntime wires the shared graph. History and Metrics may be nil.
func NewRuntime(cfg *config.Config, secrets *config.Secrets, p *paths.Registry,
	kv cache.KV, images *cache.ImageCache, engine *httpx.Engine,
	snaps *store.Snapshots, history *store.HistorySink,
	metrics *telemetry.Metrics, logger zerolog.Logger) *Runtime {

	n := cfg.Settings.SteamMaxConcurrent
	if n <= 0 {
		n = 5
	}
	return &Runtime{
		Config:    cfg,
		Secrets:   secrets,
		Paths:     p,
		KV:        kv,
		Images:    images,
		Engine:    engine,
		Snapshots: snaps,
		History:   history,
		Metrics:   metrics,
		Logger:    logger,
		steamSem:  make(chan struct{}, n),
	}
}

// acquireSteam blocks until a Steam request slot frees up.
func (rt *Runtime) acquireSteam(ctx context.Context) error {
	select {
	case rt.steamSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *Runtime) releaseSteam() { <-rt.steamSem }

func isSteamVenue(name string) bool {
	for _, v := range market.SteamVenues() {
		if v == name {
			return true
		}
	}
	return name == market.SteamID
}

// Status values for one adapter run.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RunResult is the per-adapter outcome the orchestrator aggregates.
type RunResult struct {
	Venue   string        `json:"venue"`
	Status  string        `json:"status"`
	Items   int           `json:"items"`
	Elapsed time.Duration `json:"elapsed"`
	Reason  string        `json:"reason,omitempty"`
	Err     error         `json:"-"`
}

// registry of every adapter, keyed by venue name.
func Adapters() []Adapter {
	all := []Adapter{
		&Waxpeer{}, &Skinport{}, &CSDeals{}, &CSTrade{}, &LisSkins{},
		&MarketCSGO{}, &Empire{}, &Shadowpay{}, &Bitskins{}, &White{},
		&Skinout{}, &Skindeck{}, &Manncostore{}, &Tradeit{}, &Rapidskins{},
		&SteamListing{}, &SteamMarket{}, &SteamIDHarvester{},
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}

// ByName resolves a venue name to its adapter.
func ByName(name string) (Adapter, bool) {
	for _, a := range Adapters() {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}
