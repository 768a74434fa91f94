package scrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/xZoluGames/skinarb/internal/atomicio"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/httpx"
	"github.com/xZoluGames/skinarb/internal/market"
)

var orderSpreadRe = regexp.MustCompile(`Market_LoadOrderSpread\(\s*(\d+)\s*\)`)

// SteamIDHarvester resolves item_nameid values by scraping listing pages.
// It runs itself: its output is the nameid registry file, not a listing
// snapshot, so the shared runner's persist path does not apply.
type SteamIDHarvester struct{}

func (h *SteamIDHarvester) Name() string { return market.SteamID }

// Plan exists only to satisfy the Adapter interface; Run is the entry point.
func (h *SteamIDHarvester) Plan(ctx context.Context, rt *Runtime) (FetchPlan, error) {
	return FetchPlan{}, errs.New(errs.KindParse, market.SteamID, "harvester runs itself")
}

func (h *SteamIDHarvester) Parse(raw []byte) ([]market.Listing, error) {
	return nil, errs.New(errs.KindParse, market.SteamID, "harvester runs itself")
}

func (h *SteamIDHarvester) Run(ctx context.Context, rt *Runtime) RunResult {
	start := time.Now()
	log := rt.Logger.With().Str("venue", market.SteamID).Logger()

	names, err := h.pendingNames(rt)
	if err != nil {
		return RunResult{Venue: market.SteamID, Status: StatusFailed, Elapsed: time.Since(start), Err: err}
	}

	known, err := h.loadRegistry(rt)
	if err != nil {
		return RunResult{Venue: market.SteamID, Status: StatusFailed, Elapsed: time.Since(start), Err: err}
	}
	have := make(map[string]bool, len(known))
	for _, id := range known {
		have[id.Name] = true
	}

	var missing []string
	for _, name := range names {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		log.Info().Int("known", len(known)).Msg("nameid registry is current")
		return RunResult{Venue: market.SteamID, Status: StatusOK, Elapsed: time.Since(start)}
	}

	sc := rt.Config.Scraper(market.SteamID)
	limiter := rate.NewLimiter(rate.Limit(float64(sc.RatePerMinute)/60), sc.Burst)

	resolved := 0
	var firstErr error
	canceled := false
	for _, name := range missing {
		if err := limiter.Wait(ctx); err != nil {
			canceled = true
			break
		}
		id, err := h.resolve(ctx, rt, name)
		if err != nil {
			if errs.KindOf(err) == errs.KindCanceled {
				canceled = true
				break
			}
			if firstErr == nil {
				firstErr = err
			}
			log.Warn().Str("item", name).Err(err).Msg("nameid resolution failed")
			continue
		}
		known = append(known, NameID{Name: name, ID: id})
		resolved++
	}

	if resolved > 0 {
		if err := atomicio.WriteJSON(rt.Paths.NameIDFile(), known); err != nil {
			return RunResult{Venue: market.SteamID, Status: StatusFailed, Items: resolved,
				Elapsed: time.Since(start), Err: errs.Wrap(errs.KindPersistence, market.SteamID, err)}
		}
	}

	res := RunResult{Venue: market.SteamID, Status: StatusOK, Items: resolved, Elapsed: time.Since(start)}
	switch {
	case canceled:
		res.Status = StatusPartial
		res.Reason = "canceled"
	case firstErr != nil && resolved == 0:
		res.Status = StatusFailed
		res.Err = firstErr
	case firstErr != nil:
		res.Status = StatusPartial
		res.Reason = fmt.Sprintf("%d of %d names unresolved", len(missing)-resolved, len(missing))
	}
	log.Info().Int("resolved", resolved).Int("missing", len(missing)).
		Str("status", res.Status).Msg("nameid harvest done")
	if rt.Metrics != nil {
		rt.Metrics.RecordRun(market.SteamID, res.Status, resolved)
	}
	return res
}

// pendingNames lists every item name in the listing snapshot; those are
// the candidates whose nameids the histogram adapter will need.
func (h *SteamIDHarvester) pendingNames(rt *Runtime) ([]string, error) {
	listings, err := rt.Snapshots.Read(market.SteamListing)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, errs.New(errs.KindPersistence, market.SteamID,
			"no steam_listing snapshot, run that adapter first")
	}
	names := make([]string, 0, len(listings))
	for _, l := range listings {
		names = append(names, l.Item)
	}
	return names, nil
}

func (h *SteamIDHarvester) loadRegistry(rt *Runtime) ([]NameID, error) {
	var known []NameID
	if err := atomicio.ReadJSON(rt.Paths.NameIDFile(), &known); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindPersistence, market.SteamID, err)
	}
	return known, nil
}

// resolve fetches the public listing page and pulls the nameid out of the
// Market_LoadOrderSpread call embedded in its script block.
func (h *SteamIDHarvester) resolve(ctx context.Context, rt *Runtime, name string) (string, error) {
	if err := rt.acquireSteam(ctx); err != nil {
		return "", errs.Wrap(errs.KindCanceled, market.SteamID, err)
	}
	defer rt.releaseSteam()

	resp, err := rt.Engine.Do(ctx, httpx.Request{
		Method:   "GET",
		URL:      market.SteamURL(name),
		Venue:    market.SteamID,
		UseProxy: rt.Config.UseProxyFor(market.SteamID),
	})
	if err != nil {
		return "", err
	}
	m := orderSpreadRe.FindSubmatch(resp.Body)
	if m == nil {
		return "", errs.New(errs.KindParse, market.SteamID,
			fmt.Sprintf("no order spread marker for %q", name))
	}
	return string(m[1]), nil
}
