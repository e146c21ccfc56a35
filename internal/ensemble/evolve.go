package ensemble

import (
	"context"
	"time"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/logging"
	"github.com/san-kum/dtwa/internal/metrics"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/partition"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/timegrid"
	"go.uber.org/zap"
)

// Evolve runs the ensemble described by model and cfg over the output times
// of spec. It is a collective: every rank of c calls it with the same
// arguments. The coordinator returns the normalized dataset, every other
// rank returns (nil, nil).
func Evolve(ctx context.Context, c comm.Comm, model Model, cfg Config, spec timegrid.Spec, scheme sampling.Scheme) (*observables.Dataset, error) {
	started := time.Now()
	rc := NewRunContext(c)
	log := logging.ForRank(cfg.Logger, rc.Rank)

	grid, err := timegrid.Resolve(spec)
	if err != nil {
		return nil, &ConfigError{Stage: StageValidate, Err: err}
	}
	if err := partition.Validate(cfg.Trajectories, rc.Size); err != nil {
		return nil, &ConfigError{Stage: StagePartition, Err: err}
	}
	conv, err := observables.ParseConvention(string(cfg.Convention))
	if err != nil {
		return nil, &ConfigError{Stage: StageValidate, Err: err}
	}
	cfg.Convention = conv
	if model == nil || model.Sites() < 1 || model.Samplers() == nil {
		return nil, configErr(StageValidate, "model must have at least one site and a sampler set")
	}
	scheme, err = sampling.ParseScheme(string(scheme))
	if err != nil {
		return nil, &ConfigError{Stage: StageValidate, Err: err}
	}

	sampler, used, fellBack := model.Samplers().Resolve(scheme)
	if fellBack {
		log.Warn("sampling scheme not available for this model, using the default",
			zap.String("requested", string(scheme)),
			zap.String("using", string(used)))
	}
	log.Info("starting run", zap.Object("run", newSummary(rc, model, cfg, spec, grid, used)))

	seeds, err := partition.Scatter(ctx, c, cfg.Trajectories)
	if err != nil {
		return nil, &StageError{Stage: StagePartition, Rank: rc.Rank, Err: err}
	}

	res, err := NewRunner(rc, model, sampler, grid, cfg, log).Run(ctx, seeds)
	if err != nil {
		return nil, &StageError{Stage: StageIntegrate, Rank: rc.Rank, Err: err}
	}
	if res.Diverged > 0 {
		log.Warn("diverged trajectories are included in the averages", zap.Int("count", res.Diverged))
	}

	totals, err := observables.Reduce(ctx, c, res.Sums, grid)
	if err != nil {
		return nil, &StageError{Stage: StageReduce, Rank: rc.Rank, Err: err}
	}
	var drift []float64
	if cfg.Verbose {
		drift, err = metrics.ReduceDrift(ctx, c, res.Drift, cfg.Trajectories, model.Sites())
		if err != nil {
			return nil, &StageError{Stage: StageReduce, Rank: rc.Rank, Err: err}
		}
	}

	if !rc.Coordinator {
		return nil, nil
	}

	data, err := totals.Normalize(cfg.Convention, cfg.Trajectories, model.Sites())
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Rank: rc.Rank, Err: err}
	}
	data.Drift = drift
	data.Scheme = string(used)

	elapsed := time.Since(started)
	if cfg.Telemetry != nil {
		cfg.Telemetry.RecordRun(rc.Size, elapsed)
	}
	if cfg.Verbose {
		log.Info("weyl symbol drift", zap.Float64s("times", data.Times), zap.Float64s("rms_dhw_dt", drift))
	}
	log.Info("run complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("points", data.Len()),
		zap.Float64("finite_fraction", metrics.FiniteFraction(data.Diverged, cfg.Trajectories)))
	return data, nil
}
