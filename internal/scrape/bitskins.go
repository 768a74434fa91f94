package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const bitskinsInsellURL = "https://api.bitskins.com/market/insell/730"

// Bitskins prices arrive in thousandths of a dollar.
type Bitskins struct{}

func (b *Bitskins) Name() string { return market.Bitskins }

func (b *Bitskins) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{bitskinsInsellURL}}, nil
}

func (b *Bitskins) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		List []struct {
			Name     string  `json:"name"`
			PriceMin float64 `json:"price_min"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Bitskins, err)
	}

	items := make([]market.Listing, 0, len(payload.List))
	for _, it := range payload.List {
		if it.Name == "" || it.PriceMin <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.Name,
			Price:    it.PriceMin / 1000,
			Platform: market.Bitskins,
			URL:      market.BuyURL(market.Bitskins, it.Name),
		})
	}
	return items, nil
}
