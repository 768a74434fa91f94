package scrape

import (
	"context"
	"encoding/json"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const lisskinsExportURL = "https://lis-skins.com/market_export_json/api_csgo_full.json"

// LisSkins exports every individual listing; the dedupe pass keeps the
// cheapest per name.
type LisSkins struct{}

func (l *LisSkins) Name() string { return market.LisSkins }

func (l *LisSkins) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{Kind: PlanSingle, URLs: []string{lisskinsExportURL}}, nil
}

func (l *LisSkins) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Items []struct {
			Name  string   `json:"name"`
			Price *float64 `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.LisSkins, err)
	}

	items := make([]market.Listing, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Name == "" || it.Price == nil || *it.Price <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     it.Name,
			Price:    *it.Price,
			Platform: market.LisSkins,
			URL:      market.BuyURL(market.LisSkins, it.Name),
		})
	}
	return items, nil
}
