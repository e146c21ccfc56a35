package ensemble

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/integrators"
	"github.com/san-kum/dtwa/internal/metrics"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/timegrid"
	"go.uber.org/zap"
)

// Runner integrates the trajectories of one rank, one after another.
type Runner struct {
	rc      RunContext
	model   Model
	sampler sampling.Sampler
	grid    timegrid.Grid
	cfg     Config
	log     *zap.Logger
}

func NewRunner(rc RunContext, model Model, sampler sampling.Sampler, grid timegrid.Grid, cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{rc: rc, model: model, sampler: sampler, grid: grid, cfg: cfg, log: log}
}

// Result is the local outcome of a rank.
type Result struct {
	Sums     *observables.Sums
	Drift    *metrics.WeylDrift
	Diverged int
}

// Run integrates one trajectory per seed and adds each contribution to a
// running sum as soon as it is known. The seed offset is added here and never
// leaves the rank.
func (r *Runner) Run(ctx context.Context, seeds []int64) (*Result, error) {
	n := r.model.Sites()
	rhs := r.model.NewSystem()
	integ := r.newIntegrator()
	weyl, hasWeyl := rhs.(dynamo.WeylSymbol)

	opts := r.cfg.Solver
	opts.FullOutput = r.cfg.Verbose

	drift := metrics.NewWeylDrift(r.grid)
	div := metrics.NewDivergence()
	rank := strconv.Itoa(r.rc.Rank)

	sums := observables.NewSums(r.grid.Len())
	for i, seed := range seeds {
		start := time.Now()

		rng := rand.New(rand.NewSource(seed + r.cfg.SeedOffset))
		site, corr := r.sampler.Sample(rng)
		x0 := dynamo.Concat(site, corr)
		if len(x0) != rhs.StateDim() {
			return nil, fmt.Errorf("seed %d: %w: sampler gave %d values, system needs %d",
				seed, dynamo.ErrDimensionMismatch, len(x0), rhs.StateDim())
		}

		sol, err := integrators.Solve(ctx, integ, rhs, x0, r.grid, opts)
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", seed, err)
		}

		if r.cfg.Verbose {
			r.log.Debug("trajectory integrated",
				zap.Int64("seed", seed),
				zap.Int("steps", sol.Info.Steps),
				zap.Int("rejected", sol.Info.Rejected),
				zap.Int("forced", sol.Info.Forced),
				zap.Int("evaluations", sol.Info.Evaluations),
				zap.Float64s("step_sizes", sol.Info.StepSizes),
			)
			if hasWeyl {
				if err := drift.Observe(weyl, sol.States); err != nil {
					return nil, fmt.Errorf("seed %d: %w", seed, err)
				}
			}
		}

		diverged := div.Observe(sol.States)
		if diverged {
			r.log.Warn("trajectory diverged", zap.Int64("seed", seed))
		}

		c, err := observables.Contribute(sol.States, n)
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", seed, err)
		}
		if err := sums.Add(c); err != nil {
			return nil, fmt.Errorf("seed %d: %w", seed, err)
		}

		elapsed := time.Since(start)
		if t := r.cfg.Telemetry; t != nil {
			t.RecordTrajectory(rank, sol.Info.Steps, sol.Info.Rejected, sol.Info.Forced, sol.Info.Evaluations, diverged, elapsed)
		}
		ev := TrajectoryEvent{
			Rank:     r.rc.Rank,
			Seed:     seed,
			Done:     i + 1,
			Local:    len(seeds),
			Info:     sol.Info,
			Diverged: diverged,
			Elapsed:  elapsed,
		}
		for _, o := range r.cfg.Observers {
			o.OnTrajectory(ev)
		}
	}

	sums.AddDiverged(div.Diverged())

	fields := []zap.Field{
		zap.Int("rank", r.rc.Rank),
		zap.Int("trajectories", len(seeds)),
		zap.Float64(div.Name(), div.Value()),
	}
	if r.cfg.Verbose && hasWeyl {
		fields = append(fields, zap.Float64(drift.Name(), drift.Value()))
	}
	r.log.Debug("rank finished", fields...)

	return &Result{Sums: sums, Drift: drift, Diverged: div.Diverged()}, nil
}

func (r *Runner) newIntegrator() dynamo.Integrator {
	if r.cfg.NewIntegrator != nil {
		return r.cfg.NewIntegrator()
	}
	return integrators.NewRK45()
}
