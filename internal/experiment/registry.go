package experiment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/dtwa/internal/config"
	"github.com/san-kum/dtwa/internal/dynamo"
	"github.com/san-kum/dtwa/internal/ensemble"
	"github.com/san-kum/dtwa/internal/integrators"
	"github.com/san-kum/dtwa/internal/spins"
)

var (
	ErrUnknownModel      = errors.New("experiment: unknown model")
	ErrUnknownIntegrator = errors.New("experiment: unknown integrator")
)

type Registry struct {
	models      map[string]func(*config.Config) (ensemble.Model, error)
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func(*config.Config) (ensemble.Model, error)),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.models["bbgky"] = func(cfg *config.Config) (ensemble.Model, error) {
		opts, err := cfg.SpinOptions()
		if err != nil {
			return nil, err
		}
		p, err := spins.NewParams(opts)
		if err != nil {
			return nil, err
		}
		return spins.NewModel(p), nil
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

// RegisterModel adds or replaces a model builder.
func (r *Registry) RegisterModel(name string, build func(*config.Config) (ensemble.Model, error)) {
	r.models[name] = build
}

func (r *Registry) GetModel(name string, cfg *config.Config) (ensemble.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return fn(cfg)
}

// IntegratorFactory returns a constructor so every rank gets its own
// stepper.
func (r *Registry) IntegratorFactory(name string) (func() dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegrator, name)
	}
	return fn, nil
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
