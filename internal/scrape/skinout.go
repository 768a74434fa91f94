package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const skinoutItemsURL = "https://skinout.gg/api/market/items?page=%d"

type Skinout struct{}

func (s *Skinout) Name() string { return market.Skinout }

func (s *Skinout) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{
		Kind:    PlanPaginated,
		PageURL: func(page int) string { return fmt.Sprintf(skinoutItemsURL, page) },
		Start:   1,
		Max:     200,
	}, nil
}

func (s *Skinout) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success bool `json:"success"`
		Items   []struct {
			MarketHashName string      `json:"market_hash_name"`
			Price          json.Number `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Skinout, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.Skinout, "API reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		price, err := it.Price.Float64()
		if it.MarketHashName == "" || err != nil || price <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.MarketHashName,
			Price:    price,
			Platform: market.Skinout,
			URL:      market.BuyURL(market.Skinout, it.MarketHashName),
		})
	}
	return items, nil
}
