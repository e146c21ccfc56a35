package config

import (
	"fmt"
	"os"

	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/integrators"
	"github.com/san-kum/dtwa/internal/sampling"
	"github.com/san-kum/dtwa/internal/spins"
	"github.com/san-kum/dtwa/internal/timegrid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel        = "bbgky"
	DefaultSites        = 8
	DefaultAlpha        = 1.5
	DefaultTrajectories = 200
	DefaultSteps        = 101
	DefaultEnd          = 2.0
	DefaultIntegrator   = "rk45"
	DefaultTolerance    = 1.49012e-8
)

type Config struct {
	Model         ModelConfig  `yaml:"model"`
	Run           RunConfig    `yaml:"run"`
	Solver        SolverConfig `yaml:"solver"`
	Normalization string       `yaml:"normalization"`
}

// Vec is a 3-vector in spin space.
type Vec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (v Vec) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

type ModelConfig struct {
	Name  string  `yaml:"name"`
	Sites int     `yaml:"sites"`
	Alpha float64 `yaml:"alpha"`
	J     Vec     `yaml:"j"`
	H     Vec     `yaml:"h"`
	Kac   bool    `yaml:"kac"`
	Axis  string  `yaml:"axis"`
}

type RunConfig struct {
	Trajectories int            `yaml:"trajectories"`
	SeedOffset   int64          `yaml:"seed_offset"`
	Sampling     string         `yaml:"sampling"`
	Time         timegrid.Field `yaml:"time"`
	Verbose      bool           `yaml:"verbose"`
	Workers      int            `yaml:"workers"`
}

type SolverConfig struct {
	Integrator string  `yaml:"integrator"`
	Rtol       float64 `yaml:"rtol"`
	Atol       float64 `yaml:"atol"`
	InitialDt  float64 `yaml:"initial_dt"`
	MaxDt      float64 `yaml:"max_dt"`
	MinDt      float64 `yaml:"min_dt"`
	FixedDt    float64 `yaml:"fixed_dt"`
}

func DefaultConfig() *Config {
	opts := integrators.DefaultOptions()
	return &Config{
		Model: ModelConfig{
			Name:  DefaultModel,
			Sites: DefaultSites,
			Alpha: DefaultAlpha,
			J:     Vec{X: 1, Y: 1, Z: 1},
			Kac:   true,
			Axis:  "x",
		},
		Run: RunConfig{
			Trajectories: DefaultTrajectories,
			Sampling:     string(sampling.SPR),
			Time:         timegrid.Field{Spec: timegrid.Range{Start: 0, End: DefaultEnd, Steps: DefaultSteps}},
			Workers:      1,
		},
		Solver: SolverConfig{
			Integrator: DefaultIntegrator,
			Rtol:       DefaultTolerance,
			Atol:       DefaultTolerance,
			MinDt:      opts.MinDt,
			FixedDt:    opts.FixedDt,
		},
		Normalization: "connected",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SpinOptions converts the model section.
func (c *Config) SpinOptions() (spins.Options, error) {
	axis, err := sampling.ParseAxis(c.Model.Axis)
	if err != nil {
		return spins.Options{}, fmt.Errorf("config: model.axis: %w", err)
	}
	return spins.Options{
		N:     c.Model.Sites,
		Alpha: c.Model.Alpha,
		J:     c.Model.J.Array(),
		H:     c.Model.H.Array(),
		Kac:   c.Model.Kac,
		Axis:  axis,
	}, nil
}

// SolverOptions converts the solver section.
func (c *Config) SolverOptions() integrators.Options {
	opts := integrators.DefaultOptions()
	if c.Solver.Rtol > 0 || c.Solver.Atol > 0 {
		opts.Tolerance = dynamo.Tolerance{Rel: c.Solver.Rtol, Abs: c.Solver.Atol}
	}
	opts.InitialDt = c.Solver.InitialDt
	opts.MaxDt = c.Solver.MaxDt
	if c.Solver.MinDt > 0 {
		opts.MinDt = c.Solver.MinDt
	}
	if c.Solver.FixedDt > 0 {
		opts.FixedDt = c.Solver.FixedDt
	}
	return opts
}
