package ensemble

import (
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/timegrid"
	"go.uber.org/zap/zapcore"
)

// Summary is what a run prints about itself. It is assembled field by
// field so nothing large or internal leaks into the log.
type Summary struct {
	Trajectories int
	Ranks        int
	SeedOffset   int64
	Sites        int
	Scheme       sampling.Scheme
	Time         string
	Points       int
	Integrator   string
	Convention   observables.Convention
	Verbose      bool

	Model zapcore.ObjectMarshaler
}

func newSummary(rc RunContext, m Model, cfg Config, spec timegrid.Spec, grid timegrid.Grid, scheme sampling.Scheme) Summary {
	s := Summary{
		Trajectories: cfg.Trajectories,
		Ranks:        rc.Size,
		SeedOffset:   cfg.SeedOffset,
		Sites:        m.Sites(),
		Scheme:       scheme,
		Time:         spec.String(),
		Points:       grid.Len(),
		Integrator:   cfg.IntegratorName,
		Convention:   cfg.Convention,
		Verbose:      cfg.Verbose,
	}
	if mm, ok := m.(zapcore.ObjectMarshaler); ok {
		s.Model = mm
	}
	return s
}

func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("trajectories", s.Trajectories)
	enc.AddInt("ranks", s.Ranks)
	enc.AddInt64("seed_offset", s.SeedOffset)
	enc.AddInt("sites", s.Sites)
	enc.AddString("sampling", string(s.Scheme))
	enc.AddString("time", s.Time)
	enc.AddInt("points", s.Points)
	if s.Integrator != "" {
		enc.AddString("integrator", s.Integrator)
	}
	enc.AddString("normalization", string(s.Convention))
	enc.AddBool("verbose", s.Verbose)
	if s.Model != nil {
		return enc.AddObject("model", s.Model)
	}
	return nil
}
