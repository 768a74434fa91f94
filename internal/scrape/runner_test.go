package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xZoluGames/skinarb/internal/cache"
	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/httpx"
	"github.com/xZoluGames/skinarb/internal/market"
	"github.com/xZoluGames/skinarb/internal/paths"
	"github.com/xZoluGames/skinarb/internal/store"
	"github.com/xZoluGames/skinarb/internal/telemetry"
)

func testRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{
			Settings: config.Settings{
				TimeoutSeconds:        5,
				MaxRetries:            1,
				RetryBackoffMS:        1,
				RetryBackoffCapMS:     5,
				MaxConnections:        10,
				MaxConnectionsPerHost: 10,
				CacheEnabled:          false,
				CacheTTLSeconds:       60,
				SteamMaxConcurrent:    5,
			},
			Scrapers: map[string]config.Scraper{},
			Presets:  map[string]config.FilterPreset{},
		}
	}
	reg, err := paths.New(t.TempDir())
	require.NoError(t, err)

	engine := httpx.NewEngine(cfg, nil, nil, zerolog.Nop())
	return NewRuntime(cfg, config.NewSecrets(), reg,
		cache.NewMemory(100), nil, engine,
		&store.Snapshots{Paths: reg}, nil, telemetry.New(), zerolog.Nop())
}

// fakeAdapter lets the runner tests control planning and parsing without
// a real venue behind them.
type fakeAdapter struct {
	name      string
	plan      FetchPlan
	planErr   error
	planCalls atomic.Int64
	parse     func(raw []byte) ([]market.Listing, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	f.planCalls.Add(1)
	return f.plan, f.planErr
}

func (f *fakeAdapter) Parse(raw []byte) ([]market.Listing, error) { return f.parse(raw) }

func listingPayload(venue string, names ...string) []market.Listing {
	out := make([]market.Listing, 0, len(names))
	for i, n := range names {
		out = append(out, market.Listing{
			Item:     n,
			Price:    float64(i+1) * 1.5,
			Platform: venue,
			URL:      market.BuyURL(venue, n),
		})
	}
	return out
}

func TestRunMissingAPIKeyMakesNoCalls(t *testing.T) {
	rt := testRuntime(t, nil)
	rt.Config.Scrapers["waxpeer"] = config.Scraper{RequiresAPIKey: true}
	t.Setenv("WAXPEER_API_KEY", "")

	a := &fakeAdapter{name: market.Waxpeer}
	res := NewRunner(rt).Run(context.Background(), a)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "missing API key", res.Reason)
	assert.Equal(t, int64(0), a.planCalls.Load(), "plan must not run without the credential")
}

func TestRunDisabledVenueIsSkipped(t *testing.T) {
	rt := testRuntime(t, nil)
	off := false
	rt.Config.Scrapers["waxpeer"] = config.Scraper{Enabled: &off}

	res := NewRunner(rt).Run(context.Background(), &fakeAdapter{name: market.Waxpeer})
	assert.Equal(t, StatusSkipped, res.Status)
}

func TestRunDynamicVenuePublishesEmptySnapshot(t *testing.T) {
	rt := testRuntime(t, nil)
	a := &fakeAdapter{
		name: market.Rapidskins,
		plan: FetchPlan{Kind: PlanDynamic, Reason: "dynamic content"},
	}
	res := NewRunner(rt).Run(context.Background(), a)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "dynamic content", res.Reason)

	items, err := rt.Snapshots.Read(market.Rapidskins)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunSinglePersistsAndDedupes(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	a := &fakeAdapter{
		name: market.Waxpeer,
		plan: FetchPlan{Kind: PlanSingle, URLs: []string{srv.URL}},
		parse: func(raw []byte) ([]market.Listing, error) {
			dup := listingPayload(market.Waxpeer, "AK-47 | Redline (Field-Tested)")
			dup[0].Price = 9.99
			return append(listingPayload(market.Waxpeer, "AK-47 | Redline (Field-Tested)", "AWP | Asiimov (Field-Tested)"), dup...), nil
		},
	}
	res := NewRunner(rt).Run(context.Background(), a)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, int64(1), hits.Load())

	items, err := rt.Snapshots.Read(market.Waxpeer)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Dedupe keeps the lowest price per item.
	assert.InDelta(t, 1.5, items[0].Price, 1e-9)
}

func TestRunSingleCachesResponses(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	rt.Config.Settings.CacheEnabled = true
	a := &fakeAdapter{
		name: market.Waxpeer,
		plan: FetchPlan{Kind: PlanSingle, URLs: []string{srv.URL}},
		parse: func(raw []byte) ([]market.Listing, error) {
			return listingPayload(market.Waxpeer, "AK-47 | Redline (Field-Tested)"), nil
		},
	}
	runner := NewRunner(rt)
	require.Equal(t, StatusOK, runner.Run(context.Background(), a).Status)
	require.Equal(t, StatusOK, runner.Run(context.Background(), a).Status)
	assert.Equal(t, int64(1), hits.Load(), "second run must come from cache")
}

func TestRunPaginatedStopsOnEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "3" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprintf(w, `["item-%s"]`, page)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	a := &fakeAdapter{
		name: market.Skinout,
		plan: FetchPlan{
			Kind:    PlanPaginated,
			PageURL: func(page int) string { return fmt.Sprintf("%s/?page=%d", srv.URL, page) },
			Start:   1,
			Max:     50,
		},
		parse: func(raw []byte) ([]market.Listing, error) {
			var names []string
			if err := json.Unmarshal(raw, &names); err != nil {
				return nil, err
			}
			return listingPayload(market.Skinout, names...), nil
		},
	}
	res := NewRunner(rt).Run(context.Background(), a)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Items)
}

func TestRunPaginatedCancellationKeepsCompletedPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var page atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := page.Add(1)
		if n > 5 {
			// Simulate an operator interrupt mid-run.
			cancel()
			time.Sleep(100 * time.Millisecond)
			return
		}
		fmt.Fprintf(w, `["item-%d"]`, n)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	a := &fakeAdapter{
		name: market.Skinout,
		plan: FetchPlan{
			Kind:    PlanPaginated,
			PageURL: func(p int) string { return fmt.Sprintf("%s/?page=%d", srv.URL, p) },
			Start:   1,
			Max:     50,
		},
		parse: func(raw []byte) ([]market.Listing, error) {
			var names []string
			if err := json.Unmarshal(raw, &names); err != nil {
				return nil, err
			}
			return listingPayload(market.Skinout, names...), nil
		},
	}
	res := NewRunner(rt).Run(ctx, a)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 5, res.Items)

	items, err := rt.Snapshots.Read(market.Skinout)
	require.NoError(t, err)
	assert.Len(t, items, 5, "completed pages must survive cancellation")
}

func TestRunFailedFetchWithNoItemsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	a := &fakeAdapter{
		name:  market.Waxpeer,
		plan:  FetchPlan{Kind: PlanSingle, URLs: []string{srv.URL}},
		parse: func(raw []byte) ([]market.Listing, error) { return nil, nil },
	}
	res := NewRunner(rt).Run(context.Background(), a)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Reason)
}

// nameIDFake exercises the fan-out path.
type nameIDFake struct {
	fakeAdapter
	srvURL string
}

func (f *nameIDFake) ParseNameID(id NameID, raw []byte) (market.Listing, bool, error) {
	var cents int
	if err := json.Unmarshal(raw, &cents); err != nil {
		return market.Listing{}, false, err
	}
	if cents <= 0 {
		return market.Listing{}, false, nil
	}
	return market.Listing{
		Item:     id.Name,
		Price:    float64(cents) / 100,
		Platform: market.SteamMarket,
		URL:      market.SteamURL(id.Name),
	}, true, nil
}

func TestRunNameIDBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1":
			fmt.Fprint(w, `1543`)
		case "2":
			fmt.Fprint(w, `0`)
		default:
			fmt.Fprint(w, `250`)
		}
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	a := &nameIDFake{fakeAdapter: fakeAdapter{name: market.SteamMarket}, srvURL: srv.URL}
	a.plan = FetchPlan{
		Kind: PlanNameIDBatch,
		IDs: []NameID{
			{Name: "AK-47 | Redline (Field-Tested)", ID: "1"},
			{Name: "No Orders", ID: "2"},
			{Name: "AWP | Asiimov (Field-Tested)", ID: "3"},
		},
		IDURL: func(id NameID) string { return fmt.Sprintf("%s/?id=%s", srv.URL, id.ID) },
	}
	res := NewRunner(rt).Run(context.Background(), a)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Items)

	items, err := rt.Snapshots.Read(market.SteamMarket)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRunSteamVenueMergesIncrementally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	rt := testRuntime(t, nil)
	require.NoError(t, rt.Snapshots.Write(market.SteamListing,
		listingPayload(market.SteamListing, "Pre-existing Item")))

	a := &fakeAdapter{
		name: market.SteamListing,
		plan: FetchPlan{Kind: PlanSingle, URLs: []string{srv.URL}},
		parse: func(raw []byte) ([]market.Listing, error) {
			return listingPayload(market.SteamListing, "Fresh Item"), nil
		},
	}
	res := NewRunner(rt).Run(context.Background(), a)
	require.Equal(t, StatusOK, res.Status)

	items, err := rt.Snapshots.Read(market.SteamListing)
	require.NoError(t, err)
	assert.Len(t, items, 2, "steam snapshots merge instead of replacing")
}
