package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const (
	manncoItemsURL = "https://mannco.store/items/get?price=DESC&page=1&i=0&game=730&skip=%d"
	manncoPageSize = 50
	manncoStoreURL = "https://mannco.store"
)

// Manncostore sits behind a WAF that rejects standard HTTP clients, so
// its scraper config flags the low-level client. Prices are integers with
// an implied two-decimal shift (1250 means 12.50).
type Manncostore struct{}

func (m *Manncostore) Name() string { return market.Manncostore }

func (m *Manncostore) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{
		Kind:    PlanPaginated,
		PageURL: func(page int) string { return fmt.Sprintf(manncoItemsURL, page*manncoPageSize) },
		Start:   0,
		Max:     400,
	}, nil
}

func (m *Manncostore) Parse(raw []byte) ([]market.Listing, error) {
	var payload []struct {
		Name  string          `json:"name"`
		Price json.RawMessage `json:"price"`
		URL   string          `json:"url"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.Wrap(errs.KindParse, market.Manncostore, err)
	}

	items := make([]market.Listing, 0, len(payload))
	for _, it := range payload {
		if it.Name == "" {
			continue
		}
		price, ok := manncoPrice(it.Price)
		if !ok || price <= 0 {
			continue
		}
		url := market.BuyURL(market.Manncostore, it.Name)
		if it.URL != "" {
			url = manncoStoreURL + it.URL
		}
		items = append(items, market.Listing{
			Item:     it.Name,
			Price:    price,
			Platform: market.Manncostore,
			URL:      url,
		})
	}
	return items, nil
}

// manncoPrice shifts the last two digits of the integer price into the
// decimal part. The field arrives as either a bare number or a string.
func manncoPrice(raw json.RawMessage) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	for len(s) < 3 {
		s = "0" + s
	}
	var v float64
	if _, err := fmt.Sscanf(s[:len(s)-2]+"."+s[len(s)-2:], "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}
