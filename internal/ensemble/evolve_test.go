package ensemble_test

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/ensemble"
	"github.com/san-kum/dtwa/internal/integrators"
	"github.com/san-kum/dtwa/internal/logging"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/spins"
	"github.com/san-kum/dtwa/internal/timegrid"
)

func chain(n int) *spins.Model {
	p, err := spins.NewParams(spins.Options{
		N:     n,
		Alpha: 1.5,
		J:     [3]float64{1, 0.8, -0.4},
		H:     [3]float64{0, 0, 0.3},
		Kac:   true,
	})
	Expect(err).NotTo(HaveOccurred())
	return spins.NewModel(p)
}

func config(nt int) ensemble.Config {
	cfg := ensemble.DefaultConfig(nt)
	cfg.Solver.Tolerance = dynamo.Tolerance{Rel: 1e-9, Abs: 1e-9}
	return cfg
}

type rankResult struct {
	data *observables.Dataset
	err  error
}

// evolveGroup runs Evolve on every rank of an in-process group and returns
// the per-rank results together with the group error.
func evolveGroup(size int, model ensemble.Model, cfg ensemble.Config, spec timegrid.Spec, scheme sampling.Scheme) ([]rankResult, error) {
	results := make([]rankResult, size)
	var mu sync.Mutex
	err := comm.RunLocal(context.Background(), size, func(ctx context.Context, c comm.Comm) error {
		data, err := ensemble.Evolve(ctx, c, model, cfg, spec, scheme)
		mu.Lock()
		results[c.Rank()] = rankResult{data: data, err: err}
		mu.Unlock()
		return err
	})
	return results, err
}

func expectClose(a, b *observables.Dataset, tol float64) {
	Expect(a.Times).To(Equal(b.Times))
	as, bs := a.Series(), b.Series()
	Expect(as).To(HaveLen(len(bs)))
	for i := range as {
		for k := range as[i] {
			Expect(as[i][k]).To(BeNumerically("~", bs[i][k], tol), "%s[%d]", a.Columns()[i], k)
		}
	}
}

var _ = Describe("Evolve", func() {
	var (
		model *spins.Model
		spec  timegrid.Spec
	)

	BeforeEach(func() {
		model = chain(3)
		spec = timegrid.Range{Start: 0, End: 1, Steps: 5}
	})

	It("returns the dataset on the coordinator only", func() {
		results, err := evolveGroup(3, model, config(8), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())

		Expect(results[0].data).NotTo(BeNil())
		Expect(results[0].data.Times).To(Equal([]float64{0, 0.25, 0.5, 0.75}))
		Expect(results[1].data).To(BeNil())
		Expect(results[2].data).To(BeNil())
		for _, r := range results {
			Expect(r.err).NotTo(HaveOccurred())
		}
	})

	It("starts from the sampled polarization", func() {
		data, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(16), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.SX[0]).To(Equal(1.0))
		// 1/N self term plus N(N-1) pairs of s^x s^x = 1, minus the squared mean
		Expect(data.SXVar[0]).To(BeNumerically("~", 0, 1e-12))
	})

	It("gives the same dataset for one rank and for several", func() {
		serial, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(8), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())

		for _, size := range []int{2, 3, 5} {
			results, err := evolveGroup(size, model, config(8), spec, sampling.SPR)
			Expect(err).NotTo(HaveOccurred())
			expectClose(results[0].data, serial, 1e-12)
		}
	})

	It("matches a serial sum over the same eight seeds", func() {
		grid, err := timegrid.Resolve(spec)
		Expect(err).NotTo(HaveOccurred())
		sampler, _, _ := model.Samplers().Resolve(sampling.SPR)

		runner := ensemble.NewRunner(ensemble.RunContext{Size: 1, Coordinator: true}, model, sampler, grid, config(8), nil)
		res, err := runner.Run(context.Background(), []int64{1, 2, 3, 4, 5, 6, 7, 8})
		Expect(err).NotTo(HaveOccurred())
		totals, err := observables.Reduce(context.Background(), comm.Self{}, res.Sums, grid)
		Expect(err).NotTo(HaveOccurred())
		serial, err := totals.Normalize(observables.Connected, 8, model.Sites())
		Expect(err).NotTo(HaveOccurred())

		results, err := evolveGroup(3, model, config(8), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		expectClose(results[0].data, serial, 1e-12)
	})

	It("integrates a range and the explicit list of its points identically", func() {
		fromRange, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())

		explicit := timegrid.Explicit{0, 0.25, 0.5, 0.75}
		fromList, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), explicit, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())

		Expect(fromList).To(Equal(fromRange))
	})

	It("changes the samples with the seed offset", func() {
		a, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())

		cfg := config(4)
		cfg.SeedOffset = 1000
		b, err := ensemble.Evolve(context.Background(), comm.Self{}, model, cfg, spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.SY).NotTo(Equal(a.SY))
	})

	It("falls back to the default sampler for schemes the model lacks", func() {
		fallback, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.OneZero)
		Expect(err).NotTo(HaveOccurred())
		spr, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		Expect(fallback).To(Equal(spr))
		Expect(fallback.Scheme).To(Equal("spr"))
	})

	It("accepts scheme names in any case", func() {
		data, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(2), spec, "SPR")
		Expect(err).NotTo(HaveOccurred())
		Expect(data.Scheme).To(Equal("spr"))
	})

	It("uses the fixed-step integrators when configured", func() {
		cfg := config(4)
		cfg.NewIntegrator = func() dynamo.Integrator { return integrators.NewRK4() }
		cfg.IntegratorName = "rk4"
		cfg.Solver.FixedDt = 1e-3

		rk4, err := ensemble.Evolve(context.Background(), comm.Self{}, model, cfg, spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		rk45, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		expectClose(rk4, rk45, 1e-6)
	})

	It("notifies observers once per trajectory", func() {
		var count, outOfRange atomic.Int64
		cfg := config(7)
		cfg.Observers = []ensemble.Observer{ensemble.ObserverFunc(func(ev ensemble.TrajectoryEvent) {
			if ev.Done < 1 || ev.Done > ev.Local {
				outOfRange.Add(1)
			}
			count.Add(1)
		})}

		_, err := evolveGroup(3, model, cfg, spec, sampling.SPR)
		Expect(err).NotTo(HaveOccurred())
		Expect(count.Load()).To(Equal(int64(7)))
		Expect(outOfRange.Load()).To(BeZero())
	})

	Context("in verbose mode", func() {
		It("reports a vanishing Weyl drift for an exactly conserving pair", func() {
			cfg := config(6)
			cfg.Verbose = true
			cfg.Solver.Tolerance = dynamo.Tolerance{Rel: 1e-11, Abs: 1e-11}

			results, err := evolveGroup(2, chain(2), cfg, spec, sampling.SPR)
			Expect(err).NotTo(HaveOccurred())
			data := results[0].data
			Expect(data.Drift).To(HaveLen(4))
			for _, d := range data.Drift {
				Expect(d).To(BeNumerically("<", 1e-6))
			}
			Expect(data.Columns()).To(ContainElement("drift"))
		})

		It("leaves the observables untouched", func() {
			quiet, err := ensemble.Evolve(context.Background(), comm.Self{}, model, config(4), spec, sampling.SPR)
			Expect(err).NotTo(HaveOccurred())

			cfg := config(4)
			cfg.Verbose = true
			loud, err := ensemble.Evolve(context.Background(), comm.Self{}, model, cfg, spec, sampling.SPR)
			Expect(err).NotTo(HaveOccurred())

			Expect(loud.SX).To(Equal(quiet.SX))
			Expect(loud.SYZVar).To(Equal(quiet.SYZVar))
			Expect(quiet.Drift).To(BeNil())
		})
	})

	Context("with a malformed configuration", func() {
		DescribeTable("fails on every rank before any collective",
			func(spec timegrid.Spec, nt int) {
				results, err := evolveGroup(3, model, config(nt), spec, sampling.SPR)
				Expect(err).To(MatchError(ensemble.ErrConfig))
				for rank, r := range results {
					Expect(r.data).To(BeNil(), "rank %d", rank)
					Expect(r.err).To(MatchError(ensemble.ErrConfig), "rank %d", rank)
				}
			},
			Entry("no time input", nil, 8),
			Entry("empty explicit list", timegrid.Explicit{}, 8),
			Entry("decreasing times", timegrid.Explicit{0, 1, 0.5}, 8),
			Entry("range with one step", timegrid.Range{Start: 0, End: 1, Steps: 1}, 8),
			Entry("no trajectories", timegrid.Range{Start: 0, End: 1, Steps: 5}, 0),
			Entry("negative trajectories", timegrid.Range{Start: 0, End: 1, Steps: 5}, -4),
		)

		It("rejects an unknown sampling scheme on every rank", func() {
			results, err := evolveGroup(3, model, config(8), spec, "bogus")
			Expect(err).To(MatchError(ensemble.ErrConfig))
			for rank, r := range results {
				Expect(r.data).To(BeNil(), "rank %d", rank)
				Expect(r.err).To(MatchError(ensemble.ErrConfig), "rank %d", rank)
				Expect(r.err).To(MatchError(sampling.ErrUnknownScheme), "rank %d", rank)
			}
		})

		It("rejects an unknown normalization convention", func() {
			cfg := config(2)
			cfg.Convention = "bogus"
			_, err := ensemble.Evolve(context.Background(), comm.Self{}, model, cfg, spec, sampling.SPR)
			Expect(err).To(MatchError(ensemble.ErrConfig))
			Expect(err).To(MatchError(observables.ErrUnknownConvention))
		})
	})

	It("reports the stage of a failing trajectory", func() {
		broken := &wrongDimModel{Model: model}
		_, err := ensemble.Evolve(context.Background(), comm.Self{}, broken, config(2), spec, sampling.SPR)

		var se *ensemble.StageError
		Expect(err).To(BeAssignableToTypeOf(se))
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})
})

var _ = Describe("Runner", func() {
	var (
		model   *spins.Model
		grid    timegrid.Grid
		sampler sampling.Sampler
	)

	BeforeEach(func() {
		model = chain(2)
		var err error
		grid, err = timegrid.Resolve(timegrid.Range{Start: 0, End: 1, Steps: 5})
		Expect(err).NotTo(HaveOccurred())
		sampler, _, _ = model.Samplers().Resolve(sampling.SPR)
	})

	It("keeps a running sum equal to the sum of single trajectories", func() {
		seeds := []int64{3, 1, 4, 5}
		rc := ensemble.RunContext{Size: 1, Coordinator: true}

		all, err := ensemble.NewRunner(rc, model, sampler, grid, config(4), nil).Run(context.Background(), seeds)
		Expect(err).NotTo(HaveOccurred())

		var single []*observables.Sums
		for _, seed := range seeds {
			res, err := ensemble.NewRunner(rc, model, sampler, grid, config(4), nil).Run(context.Background(), []int64{seed})
			Expect(err).NotTo(HaveOccurred())
			single = append(single, res.Sums)
		}
		want, err := observables.Sum(single, grid.Len())
		Expect(err).NotTo(HaveOccurred())

		for k := 0; k < grid.Len(); k++ {
			for ch := observables.SX; ch < observables.NumChannels; ch++ {
				Expect(all.Sums.Value(k, ch)).To(Equal(want.Value(k, ch)), "k=%d %s", k, ch)
			}
		}
		Expect(all.Sums.Diverged()).To(BeZero())
	})

	It("logs the finite fraction and the drift of the rank", func() {
		var buf bytes.Buffer
		log := logging.New(logging.Config{Output: &buf, Verbose: true, Format: "json"})
		cfg := config(2)
		cfg.Verbose = true

		_, err := ensemble.NewRunner(ensemble.RunContext{Size: 1, Coordinator: true}, model, sampler, grid, cfg, log).
			Run(context.Background(), []int64{1, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Sync()).To(Succeed())

		Expect(buf.String()).To(ContainSubstring(`"msg":"rank finished"`))
		Expect(buf.String()).To(ContainSubstring(`"finite_fraction":1`))
		Expect(buf.String()).To(ContainSubstring(`"weyl_drift":`))
	})
})

var _ = Describe("Summary", func() {
	It("marshals the display fields and the model", func() {
		enc := zapcore.NewMapObjectEncoder()
		s := ensemble.Summary{
			Trajectories: 8,
			Ranks:        3,
			Sites:        3,
			Scheme:       sampling.SPR,
			Time:         "range(0, 1, 5)",
			Points:       4,
			Convention:   observables.Connected,
			Model:        chain(3),
		}
		Expect(s.MarshalLogObject(enc)).To(Succeed())
		Expect(enc.Fields).To(HaveKeyWithValue("trajectories", 8))
		Expect(enc.Fields).To(HaveKeyWithValue("sampling", "spr"))
		Expect(enc.Fields).NotTo(HaveKey("integrator"))
		Expect(enc.Fields).To(HaveKey("model"))
	})
})

var _ = Describe("RunContext", func() {
	It("marks rank 0 as coordinator", func() {
		Expect(ensemble.NewRunContext(comm.Self{})).To(Equal(ensemble.RunContext{Rank: 0, Size: 1, Coordinator: true}))
	})
})

// wrongDimModel samples states one entry too long.
type wrongDimModel struct {
	*spins.Model
}

func (m *wrongDimModel) Samplers() *sampling.Set {
	inner, _, _ := m.Model.Samplers().Resolve(sampling.SPR)
	return sampling.NewSet(sampling.SPR, sampling.SamplerFunc(func(rng *rand.Rand) ([]float64, []float64) {
		site, corr := inner.Sample(rng)
		return append(site, 0), corr
	}))
}
