package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/market"
)

func TestRegistryCoversEveryVenue(t *testing.T) {
	adapters := Adapters()
	require.Len(t, adapters, len(market.Venues()))

	seen := map[string]bool{}
	for _, a := range adapters {
		assert.True(t, market.IsVenue(a.Name()), "adapter %q is not a known venue", a.Name())
		assert.False(t, seen[a.Name()], "duplicate adapter %q", a.Name())
		seen[a.Name()] = true
	}

	_, ok := ByName(market.Waxpeer)
	assert.True(t, ok)
	_, ok = ByName("nope")
	assert.False(t, ok)
}

func TestWaxpeerParseThousandths(t *testing.T) {
	raw := []byte(`{"success":true,"items":[
		{"name":"AK-47 | Redline (Field-Tested)","min":1234},
		{"name":"","min":500},
		{"name":"Worthless","min":0}
	]}`)
	items, err := (&Waxpeer{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "AK-47 | Redline (Field-Tested)", items[0].Item)
	assert.InDelta(t, 1.234, items[0].Price, 1e-9)
	assert.Equal(t, market.Waxpeer, items[0].Platform)
	assert.NotEmpty(t, items[0].URL)

	// A dollar dump value: 12990 thousandths is 12.99, not 129.90.
	items, err = (&Waxpeer{}).Parse([]byte(`{"success":true,"items":[{"name":"AWP | Asiimov (Field-Tested)","min":12990}]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 12.99, items[0].Price, 1e-9)

	_, err = (&Waxpeer{}).Parse([]byte(`{"success":false}`))
	assert.Error(t, err)
}

func TestCSTradeParseStripsBonus(t *testing.T) {
	a := &CSTrade{bonus: 50}
	price := 15.0
	raw := []byte(`{
		"AWP | Asiimov (Field-Tested)": {"price":15,"tradable":1,"have":3},
		"Untradable": {"price":10,"tradable":0,"have":1},
		"OutOfStock": {"price":10,"tradable":1,"have":0},
		"NoPrice": {"tradable":1,"have":1}
	}`)
	items, err := a.Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, price/1.5, items[0].Price, 0.005)
	require.NotNil(t, items[0].Quantity)
	assert.Equal(t, 3, *items[0].Quantity)
	assert.Equal(t, 15.0, items[0].Extra["price_original"])
}

func TestBitskinsParseThousandths(t *testing.T) {
	raw := []byte(`{"list":[{"name":"Glock-18 | Fade (Factory New)","price_min":1234567}]}`)
	items, err := (&Bitskins{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 1234.567, items[0].Price, 1e-9)
}

func TestManncoPriceDecimalShift(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{`1250`, 12.50, true},
		{`"1250"`, 12.50, true},
		{`7`, 0.07, true},
		{`"007"`, 0.07, true},
		{`0`, 0, false},
		{`"abc"`, 0, false},
		{`12.5`, 0, false},
	}
	for _, tc := range cases {
		got, ok := manncoPrice([]byte(tc.raw))
		assert.Equal(t, tc.ok, ok, "raw %s", tc.raw)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, "raw %s", tc.raw)
		}
	}
}

func TestManncostoreParse(t *testing.T) {
	raw := []byte(`[
		{"name":"P250 | Sand Dune","price":35,"url":"/item/730/p250-sand-dune"},
		{"name":"Broken","price":"x"}
	]`)
	items, err := (&Manncostore{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 0.35, items[0].Price, 1e-9)
	assert.Equal(t, "https://mannco.store/item/730/p250-sand-dune", items[0].URL)
}

func TestEmpireParseConvertsCoins(t *testing.T) {
	a := &Empire{rate: 0.6154}
	raw := []byte(`{"data":[
		{"market_name":"M4A4 | Howl (Minimal Wear)","market_value":250000,"id":1},
		{"market_name":"Dust","market_value":1,"id":2}
	]}`)
	items, err := a.Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 2500*0.6154, items[0].Price, 0.005)
	assert.Equal(t, 0.6154, items[0].Extra["conversion_rate"])
}

func TestEmpirePlanUsesConfiguredRate(t *testing.T) {
	rt := &Runtime{
		Config: &config.Config{
			Scrapers: map[string]config.Scraper{
				market.Empire: {ConversionRate: 0.75},
			},
		},
		Secrets: config.NewSecrets(),
	}
	a := &Empire{}
	plan, err := a.Plan(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, 0.75, a.rate)
	require.Len(t, plan.Streams, 2)
	assert.Contains(t, plan.Streams[0](3), "page=3")
	assert.Contains(t, plan.Streams[0](1), "auction=yes")
	assert.Contains(t, plan.Streams[1](1), "auction=no")
}

func TestTradeitParse(t *testing.T) {
	raw := []byte(`{"items":[{"name":"USP-S | Kill Confirmed (Minimal Wear)","priceForTrade":4321}]}`)
	items, err := (&Tradeit{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 43.21, items[0].Price, 1e-9)
}

func TestShadowpayParseNumericStrings(t *testing.T) {
	raw := []byte(`{"data":[
		{"steam_market_hash_name":"Five-SeveN | Case Hardened (Battle-Scarred)","price":"12.34"},
		{"steam_market_hash_name":"Free","price":"0"}
	]}`)
	items, err := (&Shadowpay{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 12.34, items[0].Price, 1e-9)
}

func TestRapidskinsPlanIsDynamic(t *testing.T) {
	plan, err := (&Rapidskins{}).Plan(context.Background(), &Runtime{})
	require.NoError(t, err)
	assert.Equal(t, PlanDynamic, plan.Kind)
	assert.NotEmpty(t, plan.Reason)
}

func TestSteamListingParse(t *testing.T) {
	raw := []byte(`{"success":true,"results":[
		{"hash_name":"AK-47 | Slate (Factory New)","sell_price":512,"sell_listings":27,
		 "asset_description":{"icon_url":"abc123"}},
		{"hash_name":"Zero","sell_price":0}
	]}`)
	items, err := (&SteamListing{}).Parse(raw)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 5.12, items[0].Price, 1e-9)
	assert.Equal(t, steamIconBase+"abc123", items[0].IconURL)
	require.NotNil(t, items[0].Quantity)
	assert.Equal(t, 27, *items[0].Quantity)

	_, err = (&SteamListing{}).Parse([]byte(`{"success":false}`))
	assert.Error(t, err)
}

func TestSteamMarketParseNameID(t *testing.T) {
	a := &SteamMarket{}
	id := NameID{Name: "AK-47 | Redline (Field-Tested)", ID: "176321160"}

	item, keep, err := a.ParseNameID(id, []byte(`{"success":1,"highest_buy_order":"1543"}`))
	require.NoError(t, err)
	require.True(t, keep)
	assert.InDelta(t, 15.43, item.Price, 1e-9)
	assert.Equal(t, market.SteamMarket, item.Platform)
	assert.Equal(t, id.Name, item.Item)

	// Bare number instead of a quoted string.
	item, keep, err = a.ParseNameID(id, []byte(`{"success":1,"highest_buy_order":1543}`))
	require.NoError(t, err)
	require.True(t, keep)
	assert.InDelta(t, 15.43, item.Price, 1e-9)

	// No buy orders at all.
	_, keep, err = a.ParseNameID(id, []byte(`{"success":1,"highest_buy_order":null}`))
	require.NoError(t, err)
	assert.False(t, keep)

	_, _, err = a.ParseNameID(id, []byte(`{"success":0}`))
	assert.Error(t, err)
}

func TestOrderSpreadRegex(t *testing.T) {
	html := []byte(`<script>Market_LoadOrderSpread( 176321160 );</script>`)
	m := orderSpreadRe.FindSubmatch(html)
	require.NotNil(t, m)
	assert.Equal(t, "176321160", string(m[1]))

	assert.Nil(t, orderSpreadRe.FindSubmatch([]byte(`<html>no spread</html>`)))
}
