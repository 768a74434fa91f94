package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const whitePricesURL = "https://api.white.market/export/v1/prices/730.json"

type White struct{}

func (w *White) Name() string { return market.White }

func (w *White) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{whitePricesURL}}, nil
}

func (w *White) Parse(raw []byte) ([]market.Listing, error) {
	var payload []struct {
		MarketHashName    string      `json:"market_hash_name"`
		Price             json.Number `json:"price"`
		MarketProductLink string      `json:"market_product_link"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.White, err)
	}

	items := make([]market.Listing, 0, len(payload))
	for _, it := range payload {
		price, err := it.Price.Float64()
		if it.MarketHashName == "" || err != nil || price <= 0 {
			continue
		}
		url := it.MarketProductLink
		if url == "" {
			url = market.BuyURL(market.White, it.MarketHashName)
		}
		items = append(items, market.Listing{
			Item:     it.MarketHashName,
			Price:    price,
			Platform: market.White,
			URL:      url,
		})
	}
	return items, nil
}
