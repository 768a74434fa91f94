package scrape

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

// Named selection groups. "api" is resolved from configuration at run time
// so it tracks whichever venues declare requires_api_key.
var groups = map[string][]string{
	"fast": {
		market.Waxpeer, market.Skinport, market.CSDeals, market.CSTrade,
		market.LisSkins, market.MarketCSGO, market.Bitskins, market.White,
	},
	"essential": {
		market.Waxpeer, market.Skinport, market.CSDeals, market.MarketCSGO,
		market.SteamListing, market.SteamID, market.SteamMarket,
	},
}

// Summary aggregates one orchestrated run.
type Summary struct {
	RunID   uuid.UUID     `json:"run_id"`
	Results []RunResult   `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
	OK      int           `json:"ok"`
	Partial int           `json:"partial"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Items   int           `json:"items"`
	Workers int           `json:"workers"`
}

// ExitCode maps the summary onto the process exit contract: 0 when every
// selected adapter finished clean, 3 when any failed or came back partial.
func (s Summary) ExitCode() int {
	if s.Failed > 0 || s.Partial > 0 {
		return 3
	}
	return 0
}

// Orchestrator fans adapter runs across a bounded worker pool.
type Orchestrator struct {
	rt     *Runtime
	runner *Runner
}

func NewOrchestrator(rt *Runtime) *Orchestrator {
	return &Orchestrator{rt: rt, runner: NewRunner(rt)}
}

// Select resolves a selection token list into adapters. Tokens may be
// "all", a group name, or explicit venue names; unknown names error.
func (o *Orchestrator) Select(selection []string) ([]Adapter, error) {
	if len(selection) == 0 {
		selection = []string{"all"}
	}
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, tok := range selection {
		tok = strings.ToLower(strings.TrimSpace(tok))
		switch {
		case tok == "all":
			for _, a := range Adapters() {
				add(a.Name())
			}
		case tok == "api":
			for _, a := range Adapters() {
				if o.rt.Config.Scraper(a.Name()).RequiresAPIKey {
					add(a.Name())
				}
			}
		case groups[tok] != nil:
			for _, name := range groups[tok] {
				add(name)
			}
		default:
			if _, ok := ByName(tok); !ok {
				return nil, errs.New(errs.KindValidation, tok, "unknown venue or group")
			}
			add(tok)
		}
	}

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, _ := ByName(name)
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// Run executes the selection with the given worker count (<=0 means the
// computed optimum) and returns the aggregate summary.
func (o *Orchestrator) Run(ctx context.Context, selection []string, workers int) (Summary, error) {
	adapters, err := o.Select(selection)
	if err != nil {
		return Summary{}, err
	}
	if workers <= 0 {
		workers = OptimalConcurrency(&o.rt.Config.Settings)
	}
	if workers > len(adapters) {
		workers = len(adapters)
	}

	timeout := time.Duration(o.rt.Config.Settings.AdapterTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	log := o.rt.Logger.With().Int("workers", workers).Int("adapters", len(adapters)).Logger()
	log.Info().Msg("starting orchestrated run")
	start := time.Now()

	var (
		mu      sync.Mutex
		results []RunResult
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, workers)

	for i, a := range adapters {
		acquired := false
		if ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
				acquired = true
			case <-ctx.Done():
			}
		}
		if !acquired {
			mu.Lock()
			results = append(results, RunResult{
				Venue: a.Name(), Status: StatusSkipped, Reason: "canceled before start",
			})
			mu.Unlock()
			continue
		}
		// Stagger starts so a large selection does not stampede the
		// proxy vendor and every venue's first page at the same instant.
		if i > 0 && i < workers {
			time.Sleep(150 * time.Millisecond)
		}
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			defer func() { <-sem }()
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			res := o.runner.Run(runCtx, a)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(a)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Venue < results[j].Venue })

	sum := Summary{RunID: uuid.New(), Results: results, Elapsed: time.Since(start), Workers: workers}
	for _, res := range results {
		sum.Items += res.Items
		switch res.Status {
		case StatusOK:
			sum.OK++
		case StatusPartial:
			sum.Partial++
		case StatusFailed:
			sum.Failed++
		case StatusSkipped:
			sum.Skipped++
		}
	}
	o.report(sum)
	return sum, nil
}

// report logs the per-venue table and the session metrics rollup.
func (o *Orchestrator) report(sum Summary) {
	for _, res := range sum.Results {
		ev := o.rt.Logger.Info().
			Str("venue", res.Venue).
			Str("status", res.Status).
			Int("items", res.Items).
			Dur("elapsed", res.Elapsed)
		if res.Reason != "" {
			ev = ev.Str("reason", res.Reason)
		}
		ev.Msg("venue result")
	}
	o.rt.Logger.Info().
		Str("run_id", sum.RunID.String()).
		Int("ok", sum.OK).Int("partial", sum.Partial).
		Int("failed", sum.Failed).Int("skipped", sum.Skipped).
		Int("items", sum.Items).Dur("elapsed", sum.Elapsed).
		Msg("run summary")

	if o.rt.Metrics != nil {
		for venue, entry := range o.rt.Metrics.SessionReport() {
			o.rt.Logger.Debug().
				Str("venue", venue).
				Int64("requests", entry.Requests).
				Int64("failures", entry.Failures).
				Float64("success_rate", entry.SuccessRate).
				Float64("avg_latency_sec", entry.AvgLatencySec).
				Msg("session entry")
		}
	}
}

// OptimalConcurrency derives a worker count from the machine: CPU count
// scaled down by memory pressure and by container or WSL confinement,
// clamped to the configured band.
func OptimalConcurrency(s *config.Settings) int {
	min, max := s.MinConcurrency, s.MaxConcurrency
	if min <= 0 {
		min = 2
	}
	if max <= 0 {
		max = 32
	}
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	workers := n * 2

	if vm, err := mem.VirtualMemory(); err == nil {
		switch {
		case vm.UsedPercent > 90:
			workers = workers / 4
		case vm.UsedPercent > 75:
			workers = workers / 2
		}
	}
	if inContainer() {
		workers = workers / 2
	}

	if workers < min {
		workers = min
	}
	if workers > max {
		workers = max
	}
	return workers
}

// inContainer detects Docker (and WSL, which shares its IO ceilings) so
// the pool does not assume bare-metal headroom.
func inContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/version"); err == nil &&
		strings.Contains(strings.ToLower(string(data)), "microsoft") {
		return true
	}
	return false
}
