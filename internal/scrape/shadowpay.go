package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const shadowpayPricesURL = "https://api.shadowpay.com/api/v2/user/items/prices"

// Shadowpay requires a bearer token; the runner refuses to start it when
// the key is absent.
type Shadowpay struct{}

func (s *Shadowpay) Name() string { return market.Shadowpay }

func (s *Shadowpay) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	key, _ := rt.Secrets.APIKey(market.Shadowpay)
	return FetchPlan{
		Kind: PlanSingle,
		URLs: []string{shadowpayPricesURL},
		Headers: map[string]string{
			"Authorization": "Bearer " + key,
		},
	}, nil
}

func (s *Shadowpay) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Data []struct {
			SteamMarketHashName string      `json:"steam_market_hash_name"`
			Price               json.Number `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Shadowpay, err)
	}

	items := make([]market.Listing, 0, len(payload.Data))
	for _, it := range payload.Data {
		price, err := it.Price.Float64()
		if it.SteamMarketHashName == "" || err != nil || price <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.SteamMarketHashName,
			Price:    round2(price),
			Platform: market.Shadowpay,
			URL:      market.BuyURL(market.Shadowpay, it.SteamMarketHashName),
		})
	}
	return items, nil
}
