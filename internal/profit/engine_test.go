package profit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xZoluGames/skinarb/internal/market"
	"github.com/xZoluGames/skinarb/internal/paths"
	"github.com/xZoluGames/skinarb/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.Snapshots, *paths.Registry) {
	t.Helper()
	reg, err := paths.New(t.TempDir())
	require.NoError(t, err)
	snaps := &store.Snapshots{Paths: reg}
	return NewEngine(snaps, zerolog.Nop()), snaps, reg
}

func seed(t *testing.T, snaps *store.Snapshots, venue string, items ...market.Listing) {
	t.Helper()
	require.NoError(t, snaps.Write(venue, items))
}

func TestSteamReferenceHighestPriceWins(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 45.50, Platform: market.SteamMarket},
		market.Listing{Item: "Junk", Price: 0, Platform: market.SteamMarket},
	)
	seed(t, snaps, market.SteamListing,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 44.00, Platform: market.SteamListing},
		market.Listing{Item: "AWP | Asiimov (Battle-Scarred)", Price: 60.00, Platform: market.SteamListing},
	)

	ref, err := e.SteamReference()
	require.NoError(t, err)
	assert.Len(t, ref, 2)
	assert.InDelta(t, 45.50, ref["AK-47 | Redline (Field-Tested)"], 1e-9)
	assert.InDelta(t, 60.00, ref["AWP | Asiimov (Battle-Scarred)"], 1e-9)
}

func TestComputeCompleteMode(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 45.50, Platform: market.SteamMarket})
	seed(t, snaps, market.Waxpeer,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 37.83, Platform: market.Waxpeer})

	ops, err := e.Compute(Options{Mode: ModeComplete, MinProfitPercentage: 0.01, MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.InDelta(t, 39.56, op.NetSteamPrice, 0.011)
	assert.InDelta(t, 1.73, op.ProfitAbsolute, 0.011)
	assert.InDelta(t, 0.046, op.ProfitPercentage, 0.001)
	assert.Equal(t, market.Waxpeer, op.BuyPlatform)
	assert.Contains(t, op.BuyURL, "AK-47%20%7C%20Redline%20(Field-Tested)")
	assert.Contains(t, op.SteamURL, market.SteamURLBase)
}

func TestComputeRanksHigherMarginFirst(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 45.50, Platform: market.SteamMarket})
	seed(t, snaps, market.Waxpeer,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 37.83, Platform: market.Waxpeer})
	// Roughly a 3% margin on the same name from another venue.
	seed(t, snaps, market.Skinport,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 38.40, Platform: market.Skinport})

	ops, err := e.Compute(Options{Mode: ModeComplete, MinProfitPercentage: 0.01, MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, market.Waxpeer, ops[0].BuyPlatform, "4.6%% margin outranks 3%%")
	assert.Greater(t, ops[0].ProfitPercentage, ops[1].ProfitPercentage)
}

func TestComputeTieBreaks(t *testing.T) {
	ops := []Opportunity{
		{Name: "b", ProfitPercentage: 0.05, ProfitAbsolute: 1.0},
		{Name: "a", ProfitPercentage: 0.05, ProfitAbsolute: 1.0},
		{Name: "c", ProfitPercentage: 0.05, ProfitAbsolute: 2.0},
		{Name: "d", ProfitPercentage: 0.08, ProfitAbsolute: 0.5},
	}
	sortOpportunities(ops)
	assert.Equal(t, []string{"d", "c", "a", "b"},
		[]string{ops[0].Name, ops[1].Name, ops[2].Name, ops[3].Name})
}

func TestComputeFilters(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "cheap", Price: 1.50, Platform: market.SteamMarket},
		market.Listing{Item: "thin margin", Price: 10.10, Platform: market.SteamMarket},
		market.Listing{Item: "good", Price: 20.00, Platform: market.SteamMarket},
	)
	seed(t, snaps, market.Waxpeer,
		market.Listing{Item: "cheap", Price: 0.50, Platform: market.Waxpeer},       // below min_price
		market.Listing{Item: "thin margin", Price: 10.00, Platform: market.Waxpeer}, // below min profit
		market.Listing{Item: "good", Price: 12.00, Platform: market.Waxpeer},
	)

	ops, err := e.Compute(Options{Mode: ModeComplete, MinProfitPercentage: 0.05, MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "good", ops[0].Name)
}

func TestComputeFastModeUsesGrossPrice(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "x", Price: 10.00, Platform: market.SteamMarket})
	seed(t, snaps, market.Waxpeer,
		market.Listing{Item: "x", Price: 9.00, Platform: market.Waxpeer})

	ops, err := e.Compute(Options{Mode: ModeFast, MinProfitPercentage: 0.01, MinPrice: 1})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.InDelta(t, 10.00, ops[0].NetSteamPrice, 1e-9)
	assert.InDelta(t, 1.00, ops[0].ProfitAbsolute, 1e-9)
}

func TestComputeQueryAndPlatformFilter(t *testing.T) {
	e, snaps, _ := testEngine(t)
	seed(t, snaps, market.SteamMarket,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 45.50, Platform: market.SteamMarket},
		market.Listing{Item: "AWP | Asiimov (Battle-Scarred)", Price: 60.00, Platform: market.SteamMarket},
	)
	seed(t, snaps, market.Waxpeer,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 30.00, Platform: market.Waxpeer},
		market.Listing{Item: "AWP | Asiimov (Battle-Scarred)", Price: 40.00, Platform: market.Waxpeer},
	)
	seed(t, snaps, market.Skinport,
		market.Listing{Item: "AK-47 | Redline (Field-Tested)", Price: 31.00, Platform: market.Skinport})

	ops, err := e.Compute(Options{
		Mode:                ModeComplete,
		MinProfitPercentage: 0.01,
		MinPrice:            1,
		Platforms:           []string{market.Waxpeer},
		Query:               "redline",
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, market.Waxpeer, ops[0].BuyPlatform)
	assert.Contains(t, ops[0].Name, "Redline")
}

func TestComputeNoSteamDataFails(t *testing.T) {
	e, _, _ := testEngine(t)
	_, err := e.Compute(Options{MinPrice: 1})
	require.Error(t, err)
}

func TestArchiveRotationKeepsTenEntries(t *testing.T) {
	_, _, reg := testEngine(t)
	a := NewArchive(reg)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	a.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Minute) }

	for i := 0; i < 13; i++ {
		_, err := a.Save(ModeComplete, []Opportunity{{Name: "x", ProfitPercentage: 0.05}})
		require.NoError(t, err)
	}

	cur, err := a.Current()
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.NotEmpty(t, cur.RunID)
	assert.Equal(t, 1, cur.TotalOpportunities)

	hist, err := a.History()
	require.NoError(t, err)
	assert.Len(t, hist, 10)
	// Oldest retained run is the 3rd save; timestamps ascend.
	assert.Less(t, hist[0].Timestamp, hist[9].Timestamp)
	assert.Less(t, hist[9].Timestamp, cur.Timestamp)
}

func TestArchiveMissingFile(t *testing.T) {
	_, _, reg := testEngine(t)
	a := NewArchive(reg)

	cur, err := a.Current()
	require.NoError(t, err)
	assert.Nil(t, cur)

	hist, err := a.History()
	require.NoError(t, err)
	assert.Empty(t, hist)
}
