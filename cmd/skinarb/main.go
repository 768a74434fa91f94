// Command skinarb harvests CS:GO skin listings across venues and computes
// cross-venue arbitrage against the Steam Community Market.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xZoluGames/skinarb/internal/cache"
	"github.com/xZoluGames/skinarb/internal/config"
	"github.com/xZoluGames/skinarb/internal/httpx"
	"github.com/xZoluGames/skinarb/internal/paths"
	"github.com/xZoluGames/skinarb/internal/profit"
	"github.com/xZoluGames/skinarb/internal/proxy"
	"github.com/xZoluGames/skinarb/internal/scrape"
	"github.com/xZoluGames/skinarb/internal/store"
	"github.com/xZoluGames/skinarb/internal/telemetry"
)

const (
	appName = "skinarb"
	version = "v1.4.0"
)

// Process exit contract.
const (
	exitOK      = 0
	exitConfig  = 2
	exitPartial = 3
	exitFatal   = 4
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

// redactWriter scrubs credential-shaped substrings from everything the
// logger emits, as a last line of defense behind the per-site care.
type redactWriter struct {
	w io.Writer
	r *config.Redactor
}

func (rw redactWriter) Write(p []byte) (int, error) {
	if _, err := rw.w.Write([]byte(rw.r.Sanitize(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func main() {
	config.LoadDotenv()
	zerolog.TimeFieldFormat = time.RFC3339
	out := io.Writer(redactWriter{w: os.Stderr, r: config.NewRedactor()})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = log.Output(out)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           appName,
		Short:         "CS:GO skin marketplace harvester and arbitrage engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), daemonCmd(), profitabilityCmd(), proxiesCmd(), serveCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				log.Error().Err(ee.err).Msg("command failed")
			}
			os.Exit(ee.code)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitFatal)
	}
}

// app is the wired object graph every command starts from.
type app struct {
	cfg      *config.Config
	secrets  *config.Secrets
	paths    *paths.Registry
	metrics  *telemetry.Metrics
	proxies  *proxy.Manager
	kv       cache.KV
	history  *store.HistorySink
	snaps    *store.Snapshots
	rt       *scrape.Runtime
}

func buildApp(ctx context.Context) (*app, error) {
	p, err := paths.New("")
	if err != nil {
		return nil, exitError{code: exitConfig, err: err}
	}
	cfg, err := config.Load(p.Config)
	if err != nil {
		return nil, exitError{code: exitConfig, err: err}
	}
	if lvl, err := zerolog.ParseLevel(cfg.Settings.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	secrets := config.NewSecrets()
	metrics := telemetry.New()

	var kv cache.KV
	if addr := cfg.Settings.CacheRedisAddr; addr != "" {
		kv = cache.NewRedis(redis.NewClient(&redis.Options{Addr: addr}))
		log.Info().Str("addr", addr).Msg("using redis response cache")
	} else {
		kv = cache.NewMemory(cfg.Settings.CacheMemoryLimit)
	}

	images := cache.NewImageCache(p.Images, log.Logger)
	if ext := os.Getenv("BOT_EXTERNAL_IMAGE_PATH"); ext != "" {
		if err := images.ImportTree(ext); err != nil {
			log.Warn().Err(err).Str("path", ext).Msg("image tree import failed")
		}
	}

	var vendor *proxy.OculusClient
	if secrets.HasProxyCredentials() {
		vendor = proxy.NewOculusClient(secrets.OculusAuthToken(), secrets.OculusOrderToken())
	}
	proxies := proxy.NewManager(vendor, metrics, log.Logger)
	if cfg.Settings.UseProxy && vendor != nil {
		if err := proxies.RefreshAllowListIfNeeded(ctx); err != nil {
			log.Warn().Err(err).Msg("proxy allow-list refresh failed")
		}
		proxies.LoadPools(ctx, cfg.Settings.ProxyPools, cfg.Settings.ProxiesPerPool)
	} else if cfg.Settings.UseProxy {
		log.Warn().Msg("use_proxy is on but vendor credentials are absent, running direct")
	}

	engine := httpx.NewEngine(cfg, proxies, metrics, log.Logger)
	snaps := &store.Snapshots{Paths: p}

	history, err := store.OpenHistory(ctx, cfg.Settings.HistoryDSN)
	if err != nil {
		log.Warn().Err(err).Msg("price history store unavailable, continuing without")
		history = nil
	}

	rt := scrape.NewRuntime(cfg, secrets, p, kv, images, engine, snaps, history, metrics, log.Logger)
	return &app{
		cfg: cfg, secrets: secrets, paths: p, metrics: metrics,
		proxies: proxies, kv: kv, history: history, snaps: snaps,
		rt: rt,
	}, nil
}

func (a *app) close() {
	if a.kv != nil {
		a.kv.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
}

func runCmd() *cobra.Command {
	var (
		concurrency int
		timeout     int
		group       string
	)
	cmd := &cobra.Command{
		Use:   "run [venues...]",
		Short: "Harvest the selected venues once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if timeout > 0 {
				a.cfg.Settings.AdapterTimeoutSeconds = timeout
			}

			selection := args
			if group != "" {
				selection = append([]string{group}, selection...)
			}
			sum, err := scrape.NewOrchestrator(a.rt).Run(cmd.Context(), selection, concurrency)
			if err != nil {
				return exitError{code: exitConfig, err: err}
			}
			if code := sum.ExitCode(); code != exitOK {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (0 = computed optimum)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "per-adapter timeout in seconds")
	cmd.Flags().StringVar(&group, "group", "", "selection group (all, fast, api, essential)")
	return cmd
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon [venues...]",
		Short: "Run every selected venue on its configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			err = scrape.NewDaemon(a.rt).Start(cmd.Context(), args)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	return cmd
}

func profitabilityCmd() *cobra.Command {
	var (
		mode      string
		minProfit float64
		minPrice  float64
		maxPrice  float64
		maxN      int
		platforms []string
		query     string
		preset    string
	)
	cmd := &cobra.Command{
		Use:   "profitability",
		Short: "Compute arbitrage opportunities from the current snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			opts := profit.Options{
				Mode:                profit.Mode(mode),
				MinProfitPercentage: minProfit,
				MinPrice:            minPrice,
				MaxPrice:            maxPrice,
				MaxResults:          maxN,
				Platforms:           platforms,
				Query:               query,
			}
			if preset != "" {
				p, ok := a.cfg.Presets[preset]
				if !ok {
					return exitError{code: exitConfig,
						err: fmt.Errorf("unknown preset %q", preset)}
				}
				// A named preset overrides individual flags wholesale.
				opts.MinProfitPercentage = p.MinProfitPercentage
				opts.MinPrice = p.MinPrice
				opts.MaxPrice = p.MaxPrice
				opts.MaxResults = p.MaxResults
				opts.Platforms = p.Platforms
				opts.Query = p.Query
			}

			engine := profit.NewEngine(a.snaps, log.Logger)
			ops, err := engine.Compute(opts)
			if err != nil {
				return exitError{code: exitPartial, err: err}
			}
			if _, err := profit.NewArchive(a.paths).Save(opts.Mode, ops); err != nil {
				log.Warn().Err(err).Msg("archive save failed")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ops)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(profit.ModeComplete), "fast or complete")
	cmd.Flags().Float64Var(&minProfit, "min-profit", 0.01, "minimum profit ratio (0.05 = 5%)")
	cmd.Flags().Float64Var(&minPrice, "min-price", 1.0, "minimum buy price in USD")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum buy price in USD (0 = no ceiling)")
	cmd.Flags().IntVar(&maxN, "max", 100, "maximum opportunities returned")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "restrict buy venues")
	cmd.Flags().StringVar(&query, "query", "", "substring filter on item names")
	cmd.Flags().StringVar(&preset, "preset", "", "named filter preset from search_filters.yaml")
	return cmd
}

func proxiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxies",
		Short: "Show proxy pool health",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(a.proxies.Stats())
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			r := mux.NewRouter()
			r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
			r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"status": "ok",
					"uptime": a.metrics.Uptime().String(),
				})
			}).Methods(http.MethodGet)
			r.HandleFunc("/proxies", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(a.proxies.Stats())
			}).Methods(http.MethodGet)
			r.HandleFunc("/opportunities", func(w http.ResponseWriter, _ *http.Request) {
				entry, err := profit.NewArchive(a.paths).Current()
				if err != nil {
					http.Error(w, "archive unavailable", http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(entry)
			}).Methods(http.MethodGet)

			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
