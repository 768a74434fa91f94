package scrape

import (
	"context"
	"encoding/json"
	"math"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const cstradePricesURL = "https://cdn.cs.trade:2096/api/prices_CSGO"

// defaultCSTradeBonus is the buyer-side markup CS.Trade bakes into its
// listed prices, stripped to recover the effective price.
const defaultCSTradeBonus = 50.0

// CSTrade returns a name-keyed map with prices inflated by a trade bonus.
type CSTrade struct {
	bonus float64
}

func (c *CSTrade) Name() string { return market.CSTrade }

func (c *CSTrade) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	c.bonus = rt.Config.Scraper(market.CSTrade).BonusRate
	if c.bonus <= 0 {
		c.bonus = defaultCSTradeBonus
	}
	return FetchPlan{Kind: PlanSingle, URLs: []string{cstradePricesURL}}, nil
}

func (c *CSTrade) Parse(raw []byte) ([]market.Listing, error) {
	var payload map[string]struct {
		Price    *float64 `json:"price"`
		Tradable int      `json:"tradable"`
		Have     int      `json:"have"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.CSTrade, err)
	}

	bonus := c.bonus
	if bonus <= 0 {
		bonus = defaultCSTradeBonus
	}
	items := make([]market.Listing, 0, len(payload))
	for name, it := range payload {
		if name == "" || it.Price == nil || it.Tradable == 0 || it.Have == 0 {
			continue
		}
		real := round2(*it.Price / (1 + bonus/100))
		if real <= 0 {
			continue
		}
		items = append(items, market.Listing{
			Item:     name,
			Price:    real,
			Platform: market.CSTrade,
			URL:      market.BuyURL(market.CSTrade, name),
			Quantity: market.IntPtr(it.Have),
			Extra: map[string]any{
				"price_original": *it.Price,
				"bonus_rate":     bonus,
				"tradable":       it.Tradable,
			},
		})
	}
	return items, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
