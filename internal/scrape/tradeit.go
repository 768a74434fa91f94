package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const (
	tradeitInventoryURL = "https://tradeit.gg/api/v2/inventory/data?gameId=730&sortType=Popularity&offset=%d&limit=%d&fresh=true"
	tradeitPageLimit    = 1000
)

// Tradeit is WAF-fronted (low-level client via config) and reports the
// for-trade price in cents.
type Tradeit struct{}

func (t *Tradeit) Name() string { return market.Tradeit }

func (t *Tradeit) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{
		Kind: PlanPaginated,
		PageURL: func(page int) string {
			return fmt.Sprintf(tradeitInventoryURL, page*tradeitPageLimit, tradeitPageLimit)
		},
		Start: 0,
		Max:   100,
		Headers: map[string]string{
			"Referer": "https://tradeit.gg/",
		},
	}, nil
}

func (t *Tradeit) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Items []struct {
			Name          string  `json:"name"`
			PriceForTrade float64 `json:"priceForTrade"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Tradeit, err)
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Name == "" || it.PriceForTrade <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.Name,
			Price:    it.PriceForTrade / 100,
			Platform: market.Tradeit,
			URL:      market.BuyURL(market.Tradeit, it.Name),
		})
	}
	return items, nil
}
