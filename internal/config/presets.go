package config

import (
	"sort"

	"github.com/san-kum/dtwa/internal/timegrid"
)

func preset(j, h Vec, alpha float64, end float64) *Config {
	cfg := DefaultConfig()
	cfg.Model.J = j
	cfg.Model.H = h
	cfg.Model.Alpha = alpha
	cfg.Run.Time = timegrid.Field{Spec: timegrid.Range{Start: 0, End: end, Steps: DefaultSteps}}
	return cfg
}

var Presets = map[string]*Config{
	// long-range Ising: pure dephasing of the x polarization
	"ising": preset(Vec{Z: 1}, Vec{}, 1.5, 3),
	"xy":    preset(Vec{X: 1, Y: 1}, Vec{}, 1.0, 2),
	// isotropic couplings conserve the total spin, only the field rotates it
	"heisenberg": preset(Vec{X: 1, Y: 1, Z: 1}, Vec{Z: 0.5}, 1.5, 4),
	"xxz":        preset(Vec{X: 1, Y: 1, Z: 0.5}, Vec{}, 2.0, 2),
}

// GetPreset returns a copy of the named preset, nil if unknown.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
