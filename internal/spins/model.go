package spins

import (
	"fmt"

	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/sampling"
	"go.uber.org/zap/zapcore"
)

// Model bundles the chain parameters with its samplers.
type Model struct {
	params   *Params
	samplers *sampling.Set
}

// NewModel registers the polarized SPR sampler as the default scheme.
func NewModel(p *Params) *Model {
	return &Model{
		params:   p,
		samplers: sampling.NewSet(sampling.SPR, sampling.Polarized{N: p.N, Axis: p.Axis}),
	}
}

func (m *Model) Params() *Params { return m.params }

func (m *Model) Sites() int { return m.params.N }

// NewSystem returns a fresh right-hand side with its own workspace.
func (m *Model) NewSystem() dynamo.System { return NewBBGKY(m.params) }

func (m *Model) Samplers() *sampling.Set { return m.samplers }

func (m *Model) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	p := m.params
	enc.AddInt("sites", p.N)
	enc.AddFloat64("alpha", p.Alpha)
	enc.AddString("j", vec(p.J))
	enc.AddString("h", vec(p.H))
	enc.AddBool("kac", p.Kac)
	enc.AddFloat64("norm", p.norm)
	enc.AddString("axis", p.Axis.String())
	return nil
}

func vec(v [3]float64) string {
	return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
}
