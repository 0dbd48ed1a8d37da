package types

import (
	stderrors "errors"

	"github.com/juju/errors"
)

var (
	_ error = &CycleError{}
	_ error = &IslandError{}
	_ error = &PreconditionError{}
	_ error = &HandlerError{}
	_ error = &AllVotersFailedError{}
	_ error = &SynthesizerFailedError{}
)

type baseError struct {
	BaseErr error
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{BaseErr: otherErr}
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) Unwrap() error {
	return e.BaseErr
}

// CycleError marks a graph that is not a DAG. Fatal, pre-execution.
type CycleError struct {
	*baseError
}

func NewCycleErrorf(format string, args ...any) error {
	return &CycleError{newBaseErr(errors.Errorf(format, args...))}
}

// IslandError marks a graph that is not weakly connected. Fatal,
// pre-execution.
type IslandError struct {
	*baseError
}

func NewIslandErrorf(format string, args ...any) error {
	return &IslandError{newBaseErr(errors.Errorf(format, args...))}
}

// PreconditionError marks a node whose execution requirements are not met,
// e.g. a HUMAN node without a feedback channel or a COUNCIL node without a
// caller identity. Node-local but aborts the run.
type PreconditionError struct {
	*baseError
}

func NewPreconditionErrorf(format string, args ...any) error {
	return &PreconditionError{newBaseErr(errors.Errorf(format, args...))}
}

// HandlerError wraps any failure raised by a node handler. It carries the
// failing node id and aborts the run.
type HandlerError struct {
	*baseError
	NodeID string
}

func NewHandlerError(nodeID string, cause error) error {
	return &HandlerError{baseError: newBaseErr(cause), NodeID: nodeID}
}

// AllVotersFailedError is raised by the council strategy when every voter
// failed or timed out.
type AllVotersFailedError struct {
	*baseError
}

func NewAllVotersFailedErrorf(format string, args ...any) error {
	return &AllVotersFailedError{newBaseErr(errors.Errorf(format, args...))}
}

// SynthesizerFailedError is raised by the council strategy when the reduce
// phase fails. Distinct from voter failures: there is no fallback consensus.
type SynthesizerFailedError struct {
	*baseError
	Cause error
}

func NewSynthesizerFailedError(cause error) error {
	return &SynthesizerFailedError{
		baseError: newBaseErr(errors.Annotatef(cause, "synthesizer agent failed")),
		Cause:     cause,
	}
}

func IsCycleError(err error) bool {
	var target *CycleError
	return stderrors.As(err, &target)
}

func IsIslandError(err error) bool {
	var target *IslandError
	return stderrors.As(err, &target)
}

func IsPreconditionError(err error) bool {
	var target *PreconditionError
	return stderrors.As(err, &target)
}

func IsHandlerError(err error) bool {
	var target *HandlerError
	return stderrors.As(err, &target)
}

func IsAllVotersFailedError(err error) bool {
	var target *AllVotersFailedError
	return stderrors.As(err, &target)
}

func IsSynthesizerFailedError(err error) bool {
	var target *SynthesizerFailedError
	return stderrors.As(err, &target)
}
