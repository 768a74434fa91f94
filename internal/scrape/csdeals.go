package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const csdealsPricesURL = "https://cs.deals/API/IPricing/GetLowestPrices/v1?appid=730"

type CSDeals struct{}

func (c *CSDeals) Name() string { return market.CSDeals }

func (c *CSDeals) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{csdealsPricesURL}}, nil
}

func (c *CSDeals) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success  bool `json:"success"`
		Response struct {
			Items []struct {
				MarketName  string      `json:"marketname"`
				LowestPrice json.Number `json:"lowest_price"`
				Quantity    int         `json:"quantity"`
			} `json:"items"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.CSDeals, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.CSDeals, "API reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Response.Items))
	for _, it := range payload.Response.Items {
		price, err := it.LowestPrice.Float64()
		if it.MarketName == "" || err != nil || price <= 0 {
			continue
		}
		l := market.Listing{
			Item:     it.MarketName,
			Price:    price,
			Platform: market.CSDeals,
			URL:      market.BuyURL(market.CSDeals, it.MarketName),
		}
		if it.Quantity > 0 {
			l.Quantity = market.IntPtr(it.Quantity)
		}
		items = append(items, l)
	}
	return items, nil
}
