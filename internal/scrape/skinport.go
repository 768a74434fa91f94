package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const skinportItemsURL = "https://api.skinport.com/v1/items?app_id=730&currency=USD"

// Skinport returns a flat array and compresses responses with brotli.
type Skinport struct{}

func (s *Skinport) Name() string { return market.Skinport }

func (s *Skinport) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{skinportItemsURL}}, nil
}

func (s *Skinport) Parse(raw []byte) ([]market.Listing, error) {
	var payload []struct {
		MarketHashName string   `json:"market_hash_name"`
		MinPrice       *float64 `json:"min_price"`
		Quantity       int      `json:"quantity"`
		ItemPage       string   `json:"item_page"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Skinport, err)
	}

	items := make([]market.Listing, 0, len(payload))
	for _, it := range payload {
		if it.MarketHashName == "" || it.MinPrice == nil || it.Quantity <= 0 {
			continue
		}
		q := it.Quantity
		items = append(items, market.Listing{
			Item:     it.MarketHashName,
			Price:    *it.MinPrice,
			Platform: market.Skinport,
			URL:      it.ItemPage,
			Quantity: &q,
		})
	}
	return items, nil
}
