package profit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
	"github.com/xZoluGames/skinarb/internal/store"
)

// Mode selects how Steam fees enter the margin.
type Mode string

const (
	// ModeFast compares against the gross Steam price, no fee applied.
	ModeFast Mode = "fast"
	// ModeComplete deducts Steam's fee ladder from the sale price.
	ModeComplete Mode = "complete"
)

// Opportunity is one profitable buy-on-venue, sell-on-Steam pair.
type Opportunity struct {
	Name              string  `json:"name"`
	BuyPrice          float64 `json:"buy_price"`
	BuyPlatform       string  `json:"buy_platform"`
	BuyURL            string  `json:"buy_url"`
	SteamPrice        float64 `json:"steam_price"`
	NetSteamPrice     float64 `json:"net_steam_price"`
	ProfitPercentage  float64 `json:"profit_percentage"`
	ProfitAbsolute    float64 `json:"profit_absolute"`
	ProfitPctDisplay  string  `json:"profit_percentage_display"`
	SteamURL          string  `json:"steam_url"`
	Timestamp         string  `json:"timestamp"`
}

// Options filters one computation run.
type Options struct {
	Mode                Mode
	MinProfitPercentage float64
	MinPrice            float64
	MaxPrice            float64 // 0 disables the ceiling
	MaxResults          int
	Platforms           []string // empty means every buy venue
	Query               string   // substring match on item name, case-insensitive
}

// Engine loads snapshots, joins them against the Steam reference table and
// ranks the resulting opportunities.
type Engine struct {
	snapshots *store.Snapshots
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(snapshots *store.Snapshots, logger zerolog.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		logger:    logger.With().Str("component", "profit").Logger(),
		now:       time.Now,
	}
}

// SteamReference builds the item → highest Steam price table from every
// Steam-origin snapshot. Higher price wins on conflicts.
func (e *Engine) SteamReference() (map[string]float64, error) {
	ref := make(map[string]float64)
	for _, venue := range market.SteamVenues() {
		items, err := e.snapshots.Read(venue)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			name := strings.TrimSpace(it.Item)
			if name == "" || it.Price <= 0 {
				continue
			}
			if it.Price > ref[name] {
				ref[name] = it.Price
			}
		}
	}
	e.logger.Debug().Int("items", len(ref)).Msg("steam reference loaded")
	return ref, nil
}

// Compute scans every selected buy venue against the Steam reference and
// returns ranked opportunities. Venues with no snapshot are skipped.
func (e *Engine) Compute(opts Options) ([]Opportunity, error) {
	if opts.Mode == "" {
		opts.Mode = ModeComplete
	}
	ref, err := e.SteamReference()
	if err != nil {
		return nil, err
	}
	if len(ref) == 0 {
		return nil, errs.New(errs.KindPersistence, "", "no steam reference data, run the steam adapters first")
	}

	venues := opts.Platforms
	if len(venues) == 0 {
		venues = market.BuyVenues()
	}

	start := e.now()
	query := strings.ToLower(opts.Query)
	var out []Opportunity
	analyzed := 0

	for _, venue := range venues {
		items, err := e.snapshots.Read(venue)
		if err != nil {
			e.logger.Warn().Err(err).Str("venue", venue).Msg("snapshot unreadable, skipping")
			continue
		}
		for _, it := range items {
			analyzed++
			name := strings.TrimSpace(it.Item)
			if name == "" || it.Price < opts.MinPrice {
				continue
			}
			if opts.MaxPrice > 0 && it.Price > opts.MaxPrice {
				continue
			}
			if query != "" && !strings.Contains(strings.ToLower(name), query) {
				continue
			}

			steamPrice, ok := ref[name]
			if !ok || steamPrice <= it.Price {
				continue
			}

			var net, abs, pct float64
			if opts.Mode == ModeComplete {
				abs, pct = Margin(steamPrice, it.Price)
				net = NetPrice(steamPrice)
			} else {
				net = steamPrice
				abs = steamPrice - it.Price
				pct = abs / it.Price
			}
			if pct < opts.MinProfitPercentage {
				continue
			}

			buyURL := it.URL
			if buyURL == "" {
				buyURL = market.BuyURL(venue, name)
			}
			out = append(out, Opportunity{
				Name:             name,
				BuyPrice:         it.Price,
				BuyPlatform:      venue,
				BuyURL:           buyURL,
				SteamPrice:       steamPrice,
				NetSteamPrice:    net,
				ProfitPercentage: pct,
				ProfitAbsolute:   abs,
				ProfitPctDisplay: displayPct(pct),
				SteamURL:         market.SteamURL(name),
				Timestamp:        e.now().Format(time.RFC3339),
			})
		}
	}

	sortOpportunities(out)
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}

	e.logger.Info().
		Int("analyzed", analyzed).
		Int("opportunities", len(out)).
		Str("mode", string(opts.Mode)).
		Dur("elapsed", e.now().Sub(start)).
		Msg("opportunity scan complete")
	return out, nil
}

// sortOpportunities ranks by profit percentage, then absolute profit, then
// item name for a stable total order.
func sortOpportunities(ops []Opportunity) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].ProfitPercentage != ops[j].ProfitPercentage {
			return ops[i].ProfitPercentage > ops[j].ProfitPercentage
		}
		if ops[i].ProfitAbsolute != ops[j].ProfitAbsolute {
			return ops[i].ProfitAbsolute > ops[j].ProfitAbsolute
		}
		return ops[i].Name < ops[j].Name
	})
}

func displayPct(pct float64) string {
	return fmt.Sprintf("%.2f%%", pct*100)
}
