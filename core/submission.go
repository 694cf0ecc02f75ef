package core

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/aerafi/vault-engine/core/codec"
	"github.com/aerafi/vault-engine/core/vm"
	"github.com/aerafi/vault-engine/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// submission is the batch-scoped execution context: the return buffer, the
// callback gate and the failure latch. It is created per Submit call and
// never outlives it.
type submission struct {
	vault    *Vault
	guardian common.Address
	root     common.Hash

	// results holds one entry per executed non-static operation, in
	// execution order across the top-level batch and any nested callback
	// batches. Discarded with the submission.
	results [][]byte

	gate     callbackGate
	executed int

	// failure latches the first engine-level failure raised inside a
	// dispatched call. Targets may swallow the error we hand them; the
	// orchestrator re-checks the latch after every dispatch so a swallowed
	// violation still aborts the batch.
	failure *SubmissionError
}

// Submit executes one encoded batch on behalf of a guardian. It returns the
// encoded return envelope on success; on any failure the entire batch is
// unwound and a *SubmissionError describes the reason and operation index.
func (v *Vault) Submit(guardian common.Address, payload []byte) ([]byte, error) {
	start := time.Now()
	submissionMeter.Inc(1)
	defer submissionTimer.UpdateSince(start)

	if v.active != nil {
		return nil, v.abort(guardian, 0, batchError(tracing.ReasonUnauthorized, ErrSubmissionActive))
	}
	root, err := v.guardianRoot(guardian)
	if err != nil {
		return nil, v.abort(guardian, 0, batchError(tracing.ReasonUnauthorized, err))
	}
	ops, err := codec.DecodeBatch(payload)
	if err != nil {
		return nil, v.abort(guardian, 0, batchError(tracing.ReasonMalformedBatch, err))
	}

	sub := &submission{vault: v, guardian: guardian, root: root}
	v.active = sub
	snap := v.exec.Snapshot()
	out, serr := sub.run(payload, ops)
	v.active = nil
	if serr != nil {
		v.exec.RevertToSnapshot(snap)
		return nil, v.abort(guardian, len(ops), serr)
	}

	v.submissionFeed.Send(SubmissionEvent{Guardian: guardian, Operations: sub.executed, Reason: tracing.ReasonUnspecified, OpIndex: -1})
	log.Debug("Submission executed", "guardian", guardian, "ops", sub.executed, "elapsed", time.Since(start))
	return out, nil
}

// abort records a failed submission and hands the error back unchanged.
func (v *Vault) abort(guardian common.Address, ops int, serr *SubmissionError) error {
	submissionFailMeter.Inc(1)
	v.submissionFeed.Send(SubmissionEvent{Guardian: guardian, Operations: ops, Reason: serr.Reason, OpIndex: serr.OpIndex, Payload: serr.Data})
	log.Warn("Submission aborted", "guardian", guardian, "reason", serr.Reason, "op", serr.OpIndex, "err", serr.Err)
	return serr
}

func (s *submission) run(payload []byte, ops []codec.Operation) ([]byte, *SubmissionError) {
	if hooks := s.vault.hooksTarget; hooks != (common.Address{}) {
		if _, err := s.callHook(hooks, beforeSubmitSelector, s.guardian, payload); err != nil {
			return nil, hookError(tracing.HookPhaseBeforeSubmit, -1, err)
		}
	}
	if serr := s.executeOps(ops); serr != nil {
		return nil, serr
	}
	if hooks := s.vault.hooksTarget; hooks != (common.Address{}) {
		if _, err := s.callHook(hooks, afterSubmitSelector, s.guardian, payload); err != nil {
			return nil, hookError(tracing.HookPhaseAfterSubmit, -1, err)
		}
	}

	kind, result := codec.ReturnNone, []byte(nil)
	if n := len(s.results); n > 0 {
		kind, result = codec.ReturnVariableSize, s.results[n-1]
	}
	envelope, err := codec.EncodeReturnEnvelope(kind, result)
	if err != nil {
		return nil, batchError(tracing.ReasonMalformedBatch, err)
	}
	return envelope, nil
}

// executeOps runs a sequence of operations, either the top-level batch or a
// nested callback batch. Operation indices keep counting across nesting so
// failure reports identify the op in execution order.
func (s *submission) executeOps(ops []codec.Operation) *SubmissionError {
	for i := range ops {
		if serr := s.executeOne(s.executed, &ops[i]); serr != nil {
			return serr
		}
		s.executed++
		operationMeter.Inc(1)
	}
	return nil
}

func (s *submission) executeOne(idx int, op *codec.Operation) *SubmissionError {
	// Authorize against the guardian's current root.
	ok, err := s.vault.verifier.Verify(s.root, codec.Leaf(op), op.Proof)
	if err != nil {
		return opError(tracing.ReasonMalformedProof, idx, err)
	}
	if !ok {
		return opError(tracing.ReasonInvalidOperation, idx, ErrInvalidOperation)
	}

	// Patch prior results into the input.
	input, err := applyClipboards(op.Input, op.Clipboards, s.results)
	if err != nil {
		return opError(tracing.ReasonClipboardBounds, idx, err)
	}

	// Per-operation before hook. With extraction offsets declared, the
	// engine performs the configurable before-call itself and splices the
	// returned words into the input; an explicit before hook alongside
	// offsets was already rejected at decode.
	hooksTarget := op.HooksTarget()
	if len(op.ExtractOffsets) > 0 {
		if len(op.Clipboards) == 0 {
			input = append([]byte(nil), input...) // private copy before in-place extraction
		}
		out, err := s.callHook(hooksTarget, beforeOperationSelector, op.Target, input)
		if err != nil {
			return hookError(tracing.HookPhaseBeforeOperation, idx, err)
		}
		if err := extractHookOutput(input, op.ExtractOffsets, out); err != nil {
			return hookError(tracing.HookPhaseBeforeOperation, idx, err)
		}
	} else if op.HasBeforeHook() {
		if _, err := s.callHook(hooksTarget, beforeOperationSelector, op.Target, input); err != nil {
			return hookError(tracing.HookPhaseBeforeOperation, idx, err)
		}
	}

	// Arm the gate for the declared callback, dispatch, and clear the gate
	// no matter how the dispatch went.
	if op.Callback != nil {
		s.gate.arm(op.Callback)
	}
	out, callErr := s.vault.exec.Execute(vm.CallMetadata{
		From:   s.vault.address,
		To:     op.Target,
		Data:   input,
		Value:  op.Value,
		Static: op.Static,
	})
	callbackPending := op.Callback != nil && s.gate.pending()
	s.gate.clear()

	if s.failure != nil {
		return s.failure
	}
	if callErr != nil {
		var serr *SubmissionError
		if errors.As(callErr, &serr) {
			return serr // nested engine failure surfaced through the target
		}
		return opError(tracing.ReasonSubCallFailed, idx, fmt.Errorf("%w: %w", ErrSubCallFailed, callErr))
	}
	if callbackPending {
		return opError(tracing.ReasonCallbackNotReceived, idx, ErrCallbackNotReceived)
	}

	if !op.Static {
		s.results = append(s.results, out)
	}

	if serr := s.checkApproval(idx, op, input); serr != nil {
		return serr
	}

	if op.HasAfterHook() {
		if _, err := s.callHook(hooksTarget, afterOperationSelector, op.Target, input); err != nil {
			return hookError(tracing.HookPhaseAfterOperation, idx, err)
		}
	}
	return nil
}

// checkApproval enforces the post-call invariant for approval-shaped calls:
// no residual standing permission may remain once the operation (including
// any nested callback work) has completed.
func (s *submission) checkApproval(idx int, op *codec.Operation, input []byte) *SubmissionError {
	if op.Selector() != vm.ApproveSelector || len(input) < 4+64 {
		return nil
	}
	vals, err := vm.AddrUintArgs.Unpack(input[4:68])
	if err != nil {
		return nil // selector collision, not an approval shape
	}
	spender := vals[0].(common.Address)

	probe, err := vm.AddrAddrArgs.Pack(s.vault.address, spender)
	if err != nil {
		return opError(tracing.ReasonAllowanceNotZero, idx, err)
	}
	out, err := s.vault.exec.Execute(vm.CallMetadata{
		From:   s.vault.address,
		To:     op.Target,
		Data:   append(vm.AllowanceSelector[:], probe...),
		Static: true,
	})
	if err != nil {
		// Target cannot report allowances; nothing to enforce against.
		log.Warn("Allowance probe failed", "target", op.Target, "spender", spender, "err", err)
		return nil
	}
	vals, err = vm.UintArgs.Unpack(out)
	if err != nil {
		log.Warn("Allowance probe returned undecodable data", "target", op.Target, "len", len(out))
		return nil
	}
	if vals[0].(*big.Int).Sign() != 0 {
		return opError(tracing.ReasonAllowanceNotZero, idx,
			fmt.Errorf("%w: %s still approved for %s", ErrAllowanceNotZero, spender, vals[0]))
	}
	return nil
}

// fail latches the first engine-level failure raised from inside a dispatch.
func (s *submission) fail(serr *SubmissionError) {
	if s.failure == nil {
		s.failure = serr
	}
}

// handleInbound is the vault's own call handler: the only calls a vault
// accepts are the declared re-entrant callbacks of the operation currently
// being dispatched.
func (v *Vault) handleInbound(ctx *vm.CallContext) ([]byte, error) {
	s := v.active
	if s == nil {
		return nil, vm.Revert("vault: no active submission")
	}
	return s.handleCallback(ctx)
}

func (s *submission) handleCallback(ctx *vm.CallContext) ([]byte, error) {
	idx := s.executed // the operation currently being dispatched
	var selector [codec.SelectorSize]byte
	if len(ctx.Input) < codec.SelectorSize {
		serr := opError(tracing.ReasonUnauthorizedCallback, idx,
			fmt.Errorf("%w: inbound call without selector", ErrUnauthorizedCallback))
		s.fail(serr)
		return nil, serr
	}
	copy(selector[:], ctx.Input)

	offset, ok := s.gate.consume(ctx.Caller, selector)
	if !ok {
		serr := opError(tracing.ReasonUnauthorizedCallback, idx,
			fmt.Errorf("%w: caller %s selector %x", ErrUnauthorizedCallback, ctx.Caller, selector))
		s.fail(serr)
		return nil, serr
	}
	callbackMeter.Inc(1)
	log.Debug("Callback admitted", "caller", ctx.Caller, "selector", fmt.Sprintf("%x", selector), "op", idx)

	if int(offset) > len(ctx.Input) {
		serr := opError(tracing.ReasonMalformedBatch, idx,
			fmt.Errorf("%w: callback envelope offset %d past calldata length %d", codec.ErrMalformedBatch, offset, len(ctx.Input)))
		s.fail(serr)
		return nil, serr
	}
	ops, kind, payload, err := codec.DecodeCallbackBatch(ctx.Input[offset:])
	if err != nil {
		serr := opError(tracing.ReasonMalformedBatch, idx, err)
		s.fail(serr)
		return nil, serr
	}
	if serr := s.executeOps(ops); serr != nil {
		s.fail(serr)
		return nil, serr
	}

	switch kind {
	case codec.ReturnStaticSize:
		return payload, nil
	case codec.ReturnVariableSize:
		if len(payload) == 0 || int(payload[0]) >= len(s.results) {
			serr := opError(tracing.ReasonMalformedBatch, idx,
				fmt.Errorf("%w: variable return references missing result", codec.ErrMalformedBatch))
			s.fail(serr)
			return nil, serr
		}
		return s.results[payload[0]], nil
	default:
		return nil, nil
	}
}
