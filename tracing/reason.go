package tracing

// FailureReason classifies why a submission was aborted. Every reason is
// fatal to the whole batch; there is no partial commit and no automatic
// retry.
type FailureReason int

const (
	ReasonUnspecified FailureReason = iota
	ReasonMalformedBatch
	ReasonMalformedProof
	ReasonUnauthorized
	ReasonInvalidOperation
	ReasonClipboardBounds
	ReasonUnauthorizedCallback
	ReasonCallbackNotReceived
	ReasonSubCallFailed
	ReasonHookFailed
	ReasonAllowanceNotZero
)

// String returns a human-readable string for the reason.
func (r FailureReason) String() string {
	switch r {
	case ReasonUnspecified:
		return "unspecified"
	case ReasonMalformedBatch:
		return "malformed_batch"
	case ReasonMalformedProof:
		return "malformed_proof"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonInvalidOperation:
		return "invalid_operation"
	case ReasonClipboardBounds:
		return "clipboard_bounds"
	case ReasonUnauthorizedCallback:
		return "unauthorized_callback"
	case ReasonCallbackNotReceived:
		return "callback_not_received"
	case ReasonSubCallFailed:
		return "sub_call_failed"
	case ReasonHookFailed:
		return "hook_failed"
	case ReasonAllowanceNotZero:
		return "allowance_not_zero"
	}
	return "unknown"
}

// HookPhase identifies which hook invocation rejected a submission.
type HookPhase int

const (
	HookPhaseNone HookPhase = iota
	HookPhaseBeforeSubmit
	HookPhaseAfterSubmit
	HookPhaseBeforeOperation
	HookPhaseAfterOperation
)

// String returns a human-readable string for the phase.
func (p HookPhase) String() string {
	switch p {
	case HookPhaseNone:
		return "none"
	case HookPhaseBeforeSubmit:
		return "before_submit"
	case HookPhaseAfterSubmit:
		return "after_submit"
	case HookPhaseBeforeOperation:
		return "before_operation"
	case HookPhaseAfterOperation:
		return "after_operation"
	}
	return "unknown"
}
