package scrape

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/httpx"
	"github.com/xZoluGames/skinarb/internal/market"
)

// Runner executes one adapter run end to end: plan, fetch under the rate
// limit, parse, validate, dedupe, persist, report.
type Runner struct {
	rt *Runtime
}

func NewRunner(rt *Runtime) *Runner { return &Runner{rt: rt} }

// Run drives a single adapter. It never panics across adapter code and
// always persists whatever validated items it holds before returning.
func (r *Runner) Run(ctx context.Context, a Adapter) RunResult {
	name := a.Name()
	log := r.rt.Logger.With().Str("venue", name).Logger()
	start := time.Now()

	if !r.rt.Config.Enabled(name) {
		return RunResult{Venue: name, Status: StatusSkipped, Reason: "disabled"}
	}
	if sr, ok := a.(SelfRunner); ok {
		return sr.Run(ctx, r.rt)
	}

	scfg := r.rt.Config.Scraper(name)
	if scfg.RequiresAPIKey {
		if _, ok := r.rt.Secrets.APIKey(name); !ok {
			err := errs.MissingAPIKey(name)
			log.Error().Err(err).Msg("adapter requires a credential")
			r.record(name, StatusFailed, 0)
			return RunResult{Venue: name, Status: StatusFailed, Reason: "missing API key", Err: err, Elapsed: time.Since(start)}
		}
	}

	plan, err := a.Plan(ctx, r.rt)
	if err != nil {
		r.record(name, StatusFailed, 0)
		return RunResult{Venue: name, Status: StatusFailed, Reason: err.Error(), Err: err, Elapsed: time.Since(start)}
	}

	if plan.Kind == PlanDynamic {
		if err := r.persist(name, nil); err != nil {
			return r.fail(name, start, err)
		}
		log.Info().Str("reason", plan.Reason).Msg("dynamic venue, publishing empty snapshot")
		r.record(name, StatusOK, 0)
		return RunResult{Venue: name, Status: StatusOK, Reason: plan.Reason, Elapsed: time.Since(start)}
	}

	limiter := rate.NewLimiter(rate.Limit(float64(scfg.RatePerMinute)/60.0), scfg.Burst)

	var items []market.Listing
	var runErr error
	partial := false

	switch plan.Kind {
	case PlanSingle:
		items, partial, runErr = r.runSingle(ctx, a, plan, limiter, scfg.Antibot)
	case PlanPaginated:
		items, partial, runErr = r.runPaginated(ctx, a, plan, limiter, scfg.Antibot)
	case PlanNameIDBatch:
		items, partial, runErr = r.runNameIDBatch(ctx, a, plan, limiter, scfg.MaxConcurrent)
	default:
		runErr = errs.New(errs.KindValidation, name, fmt.Sprintf("unknown plan kind %d", plan.Kind))
	}

	items = r.finalize(a, items)

	if runErr != nil && len(items) == 0 {
		return r.fail(name, start, runErr)
	}
	if err := r.persist(name, items); err != nil {
		return r.fail(name, start, err)
	}

	status := StatusOK
	reason := ""
	if partial || runErr != nil {
		status = StatusPartial
		if runErr != nil {
			reason = runErr.Error()
		} else {
			reason = "canceled mid-run, partial snapshot persisted"
		}
	}
	if len(items) > 0 {
		min, max, avg := priceStats(items)
		log.Info().Int("items", len(items)).
			Float64("price_min", min).Float64("price_max", max).Float64("price_avg", avg).
			Msg("price statistics")
	}
	log.Info().Int("items", len(items)).Str("status", status).Dur("elapsed", time.Since(start)).Msg("adapter run complete")
	r.record(name, status, len(items))
	return RunResult{Venue: name, Status: status, Items: len(items), Reason: reason, Err: runErr, Elapsed: time.Since(start)}
}

func (r *Runner) fail(name string, start time.Time, err error) RunResult {
	r.rt.Logger.Error().Err(err).Str("venue", name).Msg("adapter run failed")
	r.record(name, StatusFailed, 0)
	return RunResult{Venue: name, Status: StatusFailed, Reason: err.Error(), Err: err, Elapsed: time.Since(start)}
}

func (r *Runner) record(venue, status string, items int) {
	if r.rt.Metrics != nil {
		r.rt.Metrics.RecordRun(venue, status, items)
	}
}

func priceStats(items []market.Listing) (min, max, avg float64) {
	min = items[0].Price
	for _, it := range items {
		if it.Price < min {
			min = it.Price
		}
		if it.Price > max {
			max = it.Price
		}
		avg += it.Price
	}
	avg = math.Round(avg/float64(len(items))*100) / 100
	return min, max, avg
}

// finalize validates, dedupes and runs the adapter's normalization hook.
func (r *Runner) finalize(a Adapter, items []market.Listing) []market.Listing {
	valid := items[:0]
	for _, it := range items {
		if it.Valid() {
			valid = append(valid, it)
		}
	}
	out := market.Dedupe(valid)
	if n, ok := a.(Normalizer); ok {
		out = n.Normalize(r.rt, out)
	}
	return out
}

// persist writes the snapshot. Steam catalogs merge incrementally; every
// other venue replaces its file. The history sink mirrors both.
func (r *Runner) persist(venue string, items []market.Listing) error {
	var err error
	if venue == market.SteamMarket || venue == market.SteamListing {
		_, err = r.rt.Snapshots.MergeInto(venue, items)
	} else {
		err = r.rt.Snapshots.Write(venue, items)
	}
	if err != nil {
		return err
	}
	if r.rt.History != nil && len(items) > 0 {
		if herr := r.rt.History.Record(context.Background(), venue, items, time.Now()); herr != nil {
			r.rt.Logger.Warn().Err(herr).Str("venue", venue).Msg("history sink write failed")
		}
	}
	return nil
}

// fetch issues one request through the engine or, for WAF-fronted venues,
// the low-level client. Single-URL payloads are cached when enabled.
func (r *Runner) fetch(ctx context.Context, venue, url string, headers map[string]string, antibot bool) ([]byte, error) {
	if antibot {
		c := &httpx.LowLevelClient{Venue: venue}
		resp, err := c.Get(ctx, url, headers)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
	resp, err := r.rt.Engine.Do(ctx, httpx.Request{
		URL:      url,
		Venue:    venue,
		Headers:  headers,
		UseProxy: r.rt.Config.UseProxyFor(venue),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (r *Runner) runSingle(ctx context.Context, a Adapter, plan FetchPlan, limiter *rate.Limiter, antibot bool) ([]market.Listing, bool, error) {
	name := a.Name()
	cacheTTL := time.Duration(r.rt.Config.Settings.CacheTTLSeconds) * time.Second
	useCache := r.rt.Config.Settings.CacheEnabled && r.rt.KV != nil

	var all []market.Listing
	var firstErr error
	fetched := 0
	for _, url := range plan.URLs {
		if err := limiter.Wait(ctx); err != nil {
			return all, fetched > 0, errs.Wrap(errs.KindCanceled, name, err)
		}

		var raw []byte
		cacheKey := "resp:" + url
		if useCache {
			if v, ok := r.rt.KV.Get(ctx, cacheKey); ok {
				raw = v
				if r.rt.Metrics != nil {
					r.rt.Metrics.RecordCache("memory", true)
				}
			} else if r.rt.Metrics != nil {
				r.rt.Metrics.RecordCache("memory", false)
			}
		}
		if raw == nil {
			var err error
			raw, err = r.fetchGated(ctx, name, url, plan.Headers, antibot)
			if err != nil {
				if errs.KindOf(err) == errs.KindCanceled {
					return all, fetched > 0, err
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if useCache {
				r.rt.KV.Set(ctx, cacheKey, raw, cacheTTL)
			}
		}

		items, err := a.Parse(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		all = append(all, items...)
		fetched++
	}
	partial := firstErr != nil && fetched > 0
	if fetched == len(plan.URLs) {
		firstErr = nil
	}
	return all, partial, firstErr
}

func (r *Runner) runPaginated(ctx context.Context, a Adapter, plan FetchPlan, limiter *rate.Limiter, antibot bool) ([]market.Listing, bool, error) {
	name := a.Name()
	streams := plan.Streams
	if streams == nil {
		streams = []func(page int) string{plan.PageURL}
	}
	limit := plan.Max
	if limit <= 0 {
		limit = 200
	}

	var all []market.Listing
	for _, pageURL := range streams {
		for page := plan.Start; page < plan.Start+limit; page++ {
			if err := limiter.Wait(ctx); err != nil {
				r.persistPartial(name, all)
				return all, len(all) > 0, errs.Wrap(errs.KindCanceled, name, err)
			}
			raw, err := r.fetchGated(ctx, name, pageURL(page), plan.Headers, antibot)
			if err != nil {
				if errs.KindOf(err) == errs.KindCanceled {
					r.persistPartial(name, all)
					return all, len(all) > 0, err
				}
				return all, len(all) > 0, err
			}
			items, err := a.Parse(raw)
			if err != nil {
				// One undecodable page does not sink the pages already held.
				r.rt.Logger.Warn().Err(err).Str("venue", name).Int("page", page).Msg("page parse failed")
				return all, len(all) > 0, err
			}
			if len(items) == 0 {
				break
			}
			all = append(all, items...)
			r.persistPartial(name, all)
		}
	}
	return all, false, nil
}

// persistPartial keeps the on-disk snapshot aligned with completed pages
// so cancellation never loses validated work.
func (r *Runner) persistPartial(name string, items []market.Listing) {
	valid := make([]market.Listing, 0, len(items))
	for _, it := range items {
		if it.Valid() {
			valid = append(valid, it)
		}
	}
	if err := r.persist(name, market.Dedupe(valid)); err != nil {
		r.rt.Logger.Warn().Err(err).Str("venue", name).Msg("partial persist failed")
	}
}

func (r *Runner) runNameIDBatch(ctx context.Context, a Adapter, plan FetchPlan, limiter *rate.Limiter, maxConcurrent int) ([]market.Listing, bool, error) {
	name := a.Name()
	parser, ok := a.(NameIDParser)
	if !ok {
		return nil, false, errs.New(errs.KindValidation, name, "adapter lacks a nameid parser")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	var (
		mu       sync.Mutex
		all      []market.Listing
		firstErr error
		failures int
	)
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	canceled := false
	for _, id := range plan.IDs {
		if err := limiter.Wait(ctx); err != nil {
			canceled = true
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			canceled = true
		}
		if canceled {
			break
		}
		wg.Add(1)
		go func(id NameID) {
			defer wg.Done()
			defer func() { <-sem }()

			raw, err := r.fetchGated(ctx, name, plan.IDURL(id), plan.Headers, false)
			if err != nil {
				mu.Lock()
				failures++
				if firstErr == nil && errs.KindOf(err) != errs.KindCanceled {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			item, keep, err := parser.ParseNameID(id, raw)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if keep {
				all = append(all, item)
			}
		}(id)
	}
	wg.Wait()

	if canceled {
		r.persistPartial(name, all)
		return all, len(all) > 0, errs.Wrap(errs.KindCanceled, name, ctx.Err())
	}
	partial := failures > 0 && len(all) > 0
	if failures == 0 {
		firstErr = nil
	}
	if len(all) == 0 && firstErr != nil {
		return nil, false, firstErr
	}
	return all, partial, firstErr
}

// fetchGated routes the request through the shared Steam semaphore when
// the venue is Steam-origin.
func (r *Runner) fetchGated(ctx context.Context, venue, url string, headers map[string]string, antibot bool) ([]byte, error) {
	if isSteamVenue(venue) {
		if err := r.rt.acquireSteam(ctx); err != nil {
			return nil, errs.Wrap(errs.KindCanceled, venue, err)
		}
		defer r.rt.releaseSteam()
	}
	return r.fetch(ctx, venue, url, headers, antibot)
}
