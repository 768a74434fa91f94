package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const skindeckMarketURL = "https://api.skindeck.com/client/market?page=%d&perPage=100000&sort=price_desc"

// Skindeck needs a bearer token and caps pagination defensively since the
// API does not report a page count.
type Skindeck struct{}

func (s *Skindeck) Name() string { return market.Skindeck }

func (s *Skindeck) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	key, _ := rt.Secrets.APIKey(market.Skindeck)
	return FetchPlan{
		Kind:    PlanPaginated,
		PageURL: func(page int) string { return fmt.Sprintf(skindeckMarketURL, page) },
		Start:   1,
		Max:     10,
		Headers: map[string]string{
			"Authorization": "Bearer " + key,
		},
	}, nil
}

func (s *Skindeck) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success bool `json:"success"`
		Items   []struct {
			MarketHashName string `json:"market_hash_name"`
			Offer          *struct {
				Price json.Number `json:"price"`
			} `json:"offer"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Skindeck, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.Skindeck, "API reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.MarketHashName == "" || it.Offer == nil {
			continue
		}
		price, err := it.Offer.Price.Float64()
		if err != nil || price <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.MarketHashName,
			Price:    round2(price),
			Platform: market.Skindeck,
			URL:      market.BuyURL(market.Skindeck, it.MarketHashName),
		})
	}
	return items, nil
}
