package core

import (
	"errors"
	"fmt"

	"github.com/aerafi/vault-engine/core/vm"
	"github.com/aerafi/vault-engine/tracing"
)

// Sentinel failures surfaced by the submission engine. Structural codec and
// proof failures keep their sentinels in core/codec and core/merkle.
var (
	// ErrUnauthorized rejects submitters that are not registered guardians
	// or have no root configured.
	ErrUnauthorized = errors.New("caller is not an authorized guardian")

	// ErrInvalidOperation rejects an operation whose membership proof does
	// not verify against the guardian's current root.
	ErrInvalidOperation = errors.New("operation not authorized under guardian root")

	// ErrClipboardBounds rejects a patch instruction referencing bytes
	// outside the input or the referenced result.
	ErrClipboardBounds = errors.New("clipboard reference out of bounds")

	// ErrUnauthorizedCallback rejects an inbound re-entrant call that does
	// not match the armed callback gate.
	ErrUnauthorizedCallback = errors.New("unauthorized re-entrant callback")

	// ErrCallbackNotReceived rejects an operation whose declared callback
	// never arrived during dispatch.
	ErrCallbackNotReceived = errors.New("expected callback not received")

	// ErrAllowanceNotZero rejects an approval-shaped call that left a
	// standing permission behind.
	ErrAllowanceNotZero = errors.New("allowance not zero after approval call")

	// ErrSubCallFailed wraps a dispatched call's own failure.
	ErrSubCallFailed = errors.New("dispatched call failed")

	// ErrHookFailed wraps a hook rejection; the SubmissionError records the
	// phase.
	ErrHookFailed = errors.New("hook rejected submission")

	// ErrNotOwner rejects administrative calls from anyone but the owner.
	ErrNotOwner = errors.New("caller is not the vault owner")

	// ErrSubmissionActive rejects a top-level Submit while another
	// submission is still executing.
	ErrSubmissionActive = errors.New("submission already in progress")
)

// SubmissionError is the single failure type Submit returns: the reason
// class, the index of the operation being executed when the failure occurred
// (-1 for batch-level failures), the hook phase for hook rejections, and the
// underlying failure with any application payload preserved unmodified.
type SubmissionError struct {
	Reason  tracing.FailureReason
	Hook    tracing.HookPhase
	OpIndex int
	Data    []byte
	Err     error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submission aborted (%s)", e.Reason)
	if e.OpIndex >= 0 {
		msg += fmt.Sprintf(" at op %d", e.OpIndex)
	}
	if e.Hook != tracing.HookPhaseNone {
		msg += fmt.Sprintf(" in %s hook", e.Hook)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// batchError builds a batch-level SubmissionError.
func batchError(reason tracing.FailureReason, err error) *SubmissionError {
	return &SubmissionError{Reason: reason, OpIndex: -1, Err: err, Data: revertPayload(err)}
}

// opError builds an operation-scoped SubmissionError.
func opError(reason tracing.FailureReason, index int, err error) *SubmissionError {
	return &SubmissionError{Reason: reason, OpIndex: index, Err: err, Data: revertPayload(err)}
}

// hookError tags a hook rejection with its phase.
func hookError(phase tracing.HookPhase, index int, err error) *SubmissionError {
	e := opError(tracing.ReasonHookFailed, index, fmt.Errorf("%w: %w", ErrHookFailed, err))
	e.Hook = phase
	return e
}

// revertPayload extracts an application-level failure payload, if any.
func revertPayload(err error) []byte {
	var re *vm.RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return nil
}
