package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const marketcsgoPricesURL = "https://market.csgo.com/api/v2/prices/USD.json"

type MarketCSGO struct{}

func (m *MarketCSGO) Name() string { return market.MarketCSGO }

func (m *MarketCSGO) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{marketcsgoPricesURL}}, nil
}

func (m *MarketCSGO) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success bool `json:"success"`
		Items   []struct {
			MarketHashName string      `json:"market_hash_name"`
			Price          json.Number `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.MarketCSGO, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.MarketCSGO, "API reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		price, err := it.Price.Float64()
		if it.MarketHashName == "" || err != nil || price <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.MarketHashName,
			Price:    round2(price),
			Platform: market.MarketCSGO,
			URL:      market.BuyURL(market.MarketCSGO, it.MarketHashName),
		})
	}
	return items, nil
}
