package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const empireItemsURL = "https://csgoempire.com/api/v2/trading/items"

// defaultEmpireRate converts Empire coins to USD when no rate is
// configured. The value tracks the coin's historical peg.
const defaultEmpireRate = 0.6154

// Empire pages two independent feeds (auction and direct-buy) and prices
// in coin cents that convert to USD at a configured rate.
type Empire struct {
	rate float64
}

func (e *Empire) Name() string { return market.Empire }

func (e *Empire) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	e.rate = rt.Config.Scraper(market.Empire).ConversionRate
	if e.rate <= 0 {
		e.rate = defaultEmpireRate
	}
	key, _ := rt.Secrets.APIKey(market.Empire)
	stream := func(auction string) func(page int) string {
		return func(page int) string {
			return fmt.Sprintf("%s?per_page=2500&page=%d&auction=%s", empireItemsURL, page, auction)
		}
	}
	return FetchPlan{
		Kind:    PlanPaginated,
		Streams: []func(page int) string{stream("yes"), stream("no")},
		Start:   1,
		Max:     100,
		Headers: map[string]string{
			"Authorization": "Bearer " + key,
		},
	}, nil
}

func (e *Empire) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Data []struct {
			MarketName  string  `json:"market_name"`
			MarketValue float64 `json:"market_value"`
			ID          int64   `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Empire, err)
	}

	rate := e.rate
	if rate <= 0 {
		rate = defaultEmpireRate
	}
	items := make([]market.Listing, 0, len(payload.Data))
	for _, it := range payload.Data {
		if it.MarketName == "" || it.MarketValue <= 0 {
			continue
		}
		coins := it.MarketValue / 100
		usd := coins * rate
		if usd < 0.01 || usd > 50000 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.MarketName,
			Price:    round2(usd),
			Platform: market.Empire,
			URL:      market.BuyURL(market.Empire, it.MarketName),
			Extra: map[string]any{
				"price_coins":     coins,
				"conversion_rate": rate,
			},
		})
	}
	return items, nil
}
