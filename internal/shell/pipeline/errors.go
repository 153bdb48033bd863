package pipeline

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrContainerNotRunning = errors.New("container did not appear in the running list")
	ErrProxySyntax         = errors.New("proxy configuration failed syntax check")
)

// Class identifies which stage of the pipeline failed. The orchestrator
// maps classes to stable process exit codes.
type Class string

const (
	ClassSource       Class = "source"
	ClassConnectivity Class = "connectivity"
	ClassProvision    Class = "provision"
	ClassTransfer     Class = "transfer"
	ClassRollout      Class = "rollout"
	ClassProxy        Class = "proxy"
)

// StepError is a fatal pipeline failure. The pipeline aborts on the
// first StepError; there are no retries and no rollback.
type StepError struct {
	Step  string
	Class Class
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %s", e.Step, e.Class, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a new StepError.
func NewStepError(step string, class Class, err error) *StepError {
	return &StepError{Step: step, Class: class, Err: err}
}
