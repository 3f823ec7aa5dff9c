package orchestrator

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a stage failed, so the orchestrator can
// decide fatal-vs-degraded without string matching on error text.
type FailureKind string

const (
	Cancelled     FailureKind = "cancelled"
	StageTimeout  FailureKind = "stage_timeout"
	StageFatal    FailureKind = "stage_fatal"
	StageDegraded FailureKind = "stage_degraded"
	ProviderFail  FailureKind = "provider_fail"
	LLMParseFail  FailureKind = "llm_parse_fail"
	StoreFail     FailureKind = "store_fail"
)

// StageError carries the stage name, failure classification, and the
// underlying cause.
type StageError struct {
	Stage string
	Kind  FailureKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsDegraded reports whether err classifies as a degraded (non-fatal)
// stage failure.
func IsDegraded(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == StageDegraded
	}
	return false
}

// IsCancelled reports whether err represents a cooperative cancellation.
func IsCancelled(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == Cancelled
	}
	return errors.Is(err, errCancelled)
}

var errCancelled = errors.New("orchestrator: session cancelled")
