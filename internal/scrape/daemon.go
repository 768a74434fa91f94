package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Daemon schedules each enabled venue on its configured interval and keeps
// running until the context ends. Venues sharing an interval still run
// independently so one slow adapter never holds the others.
type Daemon struct {
	orch *Orchestrator
	cron *cron.Cron
}

func NewDaemon(rt *Runtime) *Daemon {
	return &Daemon{
		orch: NewOrchestrator(rt),
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers one cron entry per selected venue and blocks until ctx
// is done. An immediate first run happens before the schedule takes over.
func (d *Daemon) Start(ctx context.Context, selection []string) error {
	adapters, err := d.orch.Select(selection)
	if err != nil {
		return err
	}

	log := d.orch.rt.Logger
	for _, a := range adapters {
		name := a.Name()
		if !d.orch.rt.Config.Enabled(name) {
			continue
		}
		interval := time.Duration(d.orch.rt.Config.Scraper(name).IntervalSeconds) * time.Second
		spec := fmt.Sprintf("@every %s", interval)
		adapter := a
		if _, err := d.cron.AddFunc(spec, func() {
			res := NewRunner(d.orch.rt).Run(ctx, adapter)
			log.Info().Str("venue", res.Venue).Str("status", res.Status).
				Int("items", res.Items).Msg("scheduled run complete")
		}); err != nil {
			return err
		}
		log.Info().Str("venue", name).Dur("interval", interval).Msg("venue scheduled")
	}

	if _, err := d.orch.Run(ctx, selection, 0); err != nil {
		return err
	}

	d.cron.Start()
	<-ctx.Done()
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}
