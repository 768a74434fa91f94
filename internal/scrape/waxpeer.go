package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const waxpeerPricesURL = "https://api.waxpeer.com/v1/prices?game=csgo&minified=0&single=0"

// Waxpeer exposes a full price dump in one call. Prices arrive in
// thousandths of a dollar.
type Waxpeer struct{}

func (w *Waxpeer) Name() string { return market.Waxpeer }

func (w *Waxpeer) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{waxpeerPricesURL}}, nil
}

func (w *Waxpeer) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success bool `json:"success"`
		Items   []struct {
			Name string  `json:"name"`
			Min  float64 `json:"min"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Waxpeer, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.Waxpeer, "API reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Name == "" || it.Min <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.Name,
			Price:    it.Min / 1000,
			Platform: market.Waxpeer,
			URL:      market.BuyURL(market.Waxpeer, it.Name),
		})
	}
	return items, nil
}
