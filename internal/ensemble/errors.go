package ensemble

import (
	"errors"
	"fmt"
)

// Stage names a step of a run.
type Stage string

const (
	StageValidate  Stage = "validate"
	StagePartition Stage = "partition"
	StageIntegrate Stage = "integrate"
	StageReduce    Stage = "reduce"
	StageNormalize Stage = "normalize"
)

var ErrConfig = errors.New("ensemble: invalid configuration")

// ConfigError is a configuration problem found before any collective call.
// Every rank reports the same one.
type ConfigError struct {
	Stage Stage
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ensemble: %s: %v", e.Stage, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

// StageError wraps a failure of a run stage.
type StageError struct {
	Stage Stage
	Rank  int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ensemble: %s on rank %d: %v", e.Stage, e.Rank, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func configErr(stage Stage, format string, args ...any) error {
	return &ConfigError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
