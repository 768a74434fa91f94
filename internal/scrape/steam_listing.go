package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const (
	steamRenderURL   = "https://steamcommunity.com/market/search/render/?query=&start=%d&count=%d&search_descriptions=0&sort_column=name&sort_dir=asc&appid=730&norender=1"
	steamRenderCount = 100
	steamIconBase    = "https://community.fastly.steamstatic.com/economy/image/"
)

// SteamListing pages the market search renderer. Sell prices arrive in
// cents; icon URLs are rewritten to the local image cache when present.
type SteamListing struct{}

func (s *SteamListing) Name() string { return market.SteamListing }

func (s *SteamListing) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{
		Kind: PlanPaginated,
		PageURL: func(page int) string {
			return fmt.Sprintf(steamRenderURL, page*steamRenderCount, steamRenderCount)
		},
		Start: 0,
		Max:   2500,
	}, nil
}

func (s *SteamListing) Parse(raw []byte) ([]market.Listing, error) {
	var payload struct {
		Success bool `json:"success"`
		Results []struct {
			HashName         string `json:"hash_name"`
			SellPrice        int    `json:"sell_price"`
			SellListings     int    `json:"sell_listings"`
			AssetDescription struct {
				IconURL string `json:"icon_url"`
			} `json:"asset_description"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.SteamListing, err)
	}
	if !payload.Success {
		return nil, errs.New(errs.KindParse, market.SteamListing, "renderer reported failure")
	}

	items := make([]market.Listing, 0, len(payload.Results))
	for _, it := range payload.Results {
		if it.HashName == "" || it.SellPrice <= 0 {
			continue
		}
		l := market.Listing{
			Item:     it.HashName,
			Price:    float64(it.SellPrice) / 100,
			Platform: market.SteamListing,
			URL:      market.SteamURL(it.HashName),
		}
		if it.AssetDescription.IconURL != "" {
			l.IconURL = steamIconBase + it.AssetDescription.IconURL
		}
		if it.SellListings > 0 {
			l.Quantity = market.IntPtr(it.SellListings)
		}
		items = append(items, l)
	}
	return items, nil
}

// Normalize swaps remote icon URLs for local cache paths where the image
// is already on disk.
func (s *SteamListing) Normalize(rt *Runtime, items []market.Listing) []market.Listing {
	if rt.Images == nil {
		return items
	}
	for i := range items {
		if items[i].IconURL != "" {
			items[i].IconURL = rt.Images.LocalURL(items[i].IconURL)
		}
	}
	return items
}
