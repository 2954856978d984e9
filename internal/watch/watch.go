// Package watch drives convergence passes over a declaration: one pass on
// demand, or a periodic loop that keeps the device converged.
package watch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/declaration"
	"github.com/dokzlo13/ltmsync/internal/journal"
	"github.com/dokzlo13/ltmsync/internal/reconcile"
	"github.com/dokzlo13/ltmsync/internal/reconcile/node"
	"github.com/dokzlo13/ltmsync/internal/reconcile/virtualserver"
)

// Options configure a Runner.
type Options struct {
	Interval     time.Duration // time between periodic passes
	RateLimitRPS float64       // resource passes per second
	Retention    time.Duration // journal retention, 0 keeps everything
	DryRun       bool
}

// Runner executes convergence passes. Each pass walks the declaration in
// order, nodes first, one resource at a time under the rate limiter. A
// resource failure is logged and journaled, never fatal for the pass.
type Runner struct {
	client    bigip.Client
	jrnl      *journal.Journal
	limiter   *rate.Limiter
	interval  time.Duration
	retention time.Duration
	dryRun    bool
}

// NewRunner creates a Runner. The journal may be nil to skip recording.
func NewRunner(client bigip.Client, jrnl *journal.Journal, opts Options) *Runner {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 10.0
	}
	burst := int(opts.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Runner{
		client:    client,
		jrnl:      jrnl,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst),
		interval:  opts.Interval,
		retention: opts.Retention,
		dryRun:    opts.DryRun,
	}
}

// Summary aggregates one pass.
type Summary struct {
	RunID     string
	Resources int
	Changed   int
	Failed    int
}

// Run executes a pass immediately and then on every interval tick until
// the context is cancelled.
func (r *Runner) Run(ctx context.Context, res *declaration.Resolved) error {
	log.Info().Dur("interval", r.interval).Bool("dry_run", r.dryRun).Msg("Watch started")

	if r.jrnl != nil && r.retention > 0 {
		if n, err := r.jrnl.DeleteOlderThan(r.retention); err != nil {
			log.Warn().Err(err).Msg("Journal retention cleanup failed")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("Journal retention cleanup")
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if _, err := r.Pass(ctx, res); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Watch stopping")
			return nil
		case <-ticker.C:
			if _, err := r.Pass(ctx, res); err != nil {
				return err
			}
		}
	}
}

// Pass converges every resource in the declaration once. The returned
// error is only ever a context error; per-resource failures land in the
// summary.
func (r *Runner) Pass(ctx context.Context, res *declaration.Resolved) (*Summary, error) {
	runID := uuid.New().String()
	summary := &Summary{
		RunID:     runID,
		Resources: len(res.Nodes) + len(res.VirtualServers),
	}

	log.Debug().Str("run_id", runID).Int("resources", summary.Resources).Msg("Pass started")

	applier := &reconcile.Applier{Client: r.client, DryRun: r.dryRun}
	nodes := &node.Reconciler{Client: r.client, Applier: applier}
	virtuals := &virtualserver.Reconciler{Client: r.client, Applier: applier}

	for _, want := range res.Nodes {
		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}
		result, err := nodes.Reconcile(ctx, want)
		r.record(runID, want.Key(), result, err, summary)
	}
	for _, want := range res.VirtualServers {
		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}
		result, err := virtuals.Reconcile(ctx, want)
		r.record(runID, want.Key(), result, err, summary)
	}

	log.Info().
		Str("run_id", runID).
		Int("resources", summary.Resources).
		Int("changed", summary.Changed).
		Int("failed", summary.Failed).
		Bool("dry_run", r.dryRun).
		Msg("Pass completed")

	return summary, nil
}

func (r *Runner) record(runID string, key reconcile.Key, result reconcile.Result, err error, summary *Summary) {
	if err != nil {
		summary.Failed++
		log.Error().Err(err).Str("resource", key.String()).Msg("Reconcile failed")
	} else if result.Changed {
		summary.Changed++
		log.Info().
			Str("resource", key.String()).
			Str("action", string(result.Action)).
			Interface("fields", result.Fields).
			Bool("dry_run", r.dryRun).
			Msg("Resource converged")
	} else {
		log.Debug().Str("resource", key.String()).Msg("Resource already converged")
	}

	if r.jrnl == nil {
		return
	}

	outcome := journal.Outcome{
		RunID:   runID,
		Kind:    string(key.Kind),
		Key:     key.FullPath(),
		Action:  string(result.Action),
		Changed: result.Changed,
		DryRun:  r.dryRun,
		Fields:  result.Fields,
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	if jerr := r.jrnl.Append(outcome); jerr != nil {
		log.Warn().Err(jerr).Str("resource", key.String()).Msg("Journal append failed")
	}
}
