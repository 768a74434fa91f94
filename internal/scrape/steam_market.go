package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xZoluGames/skinarb/internal/atomicio"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const steamHistogramURL = "https://steamcommunity.com/market/itemordershistogram?country=PK&language=english&currency=1&item_nameid=%s&two_factor=0&norender=1"

// SteamMarket fans out over the item_nameid registry and pulls the order
// histogram for each item. The highest buy order is the price a seller
// can realize immediately, which is what the profitability engine wants.
type SteamMarket struct{}

func (s *SteamMarket) Name() string { return market.SteamMarket }

func (s *SteamMarket) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	var ids []NameID
	if err := atomicio.ReadJSON(rt.Paths.NameIDFile(), &ids); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FetchPlan{}, errs.New(errs.KindPersistence, market.SteamMarket,
				"no item_nameids registry, run the steamid harvester first")
		}
		return FetchPlan{}, errs.Wrap(errs.KindPersistence, market.SteamMarket, err)
	}
	if len(ids) == 0 {
		return FetchPlan{}, errs.New(errs.KindPersistence, market.SteamMarket, "item_nameids registry is empty")
	}
	return FetchPlan{
		Kind: PlanNameIDBatch,
		IDs:  ids,
		IDURL: func(id NameID) string {
			return fmt.Sprintf(steamHistogramURL, id.ID)
		},
	}, nil
}

// Parse is unused for name-id batches; the runner calls ParseNameID per item.
func (s *SteamMarket) Parse(raw []byte) ([]market.Listing, error) {
	return nil, errs.New(errs.KindParse, market.SteamMarket, "histogram responses are parsed per item")
}

func (s *SteamMarket) ParseNameID(id NameID, raw []byte) (market.Listing, bool, error) {
	var payload struct {
		Success         int             `json:"success"`
		HighestBuyOrder json.RawMessage `json:"highest_buy_order"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return market.Listing{}, false, errs.Wrap(errs.KindParse, market.SteamMarket, err)
	}
	if payload.Success != 1 {
		return market.Listing{}, false, errs.New(errs.KindParse, market.SteamMarket,
			fmt.Sprintf("histogram failure for %q", id.Name))
	}

	cents, err := parseHistogramCents(payload.HighestBuyOrder)
	if err != nil {
		return market.Listing{}, false, errs.Wrap(errs.KindParse, market.SteamMarket, err)
	}
	if cents <= 0 {
		return market.Listing{}, false, nil
	}
	return market.Listing{
		Item:     id.Name,
		Price:    float64(cents) / 100,
		Platform: market.SteamMarket,
		URL:      market.SteamURL(id.Name),
	}, true, nil
}

// parseHistogramCents handles the histogram's habit of returning the buy
// order as either a JSON number or a quoted string, and of omitting it
// entirely when no buy orders exist.
func parseHistogramCents(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
