package core

import (
	"fmt"

	"github.com/aerafi/vault-engine/core/codec"
	"github.com/aerafi/vault-engine/core/vm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Hook call convention: selector || abi.encode(subject, payload). Batch-level
// hooks receive the guardian and the raw batch; operation-level hooks receive
// the operation target and its (patched) input.
var (
	hookAddressType, _ = abi.NewType("address", "", nil)
	hookBytesType, _   = abi.NewType("bytes", "", nil)
	hookArgs           = abi.Arguments{{Type: hookAddressType}, {Type: hookBytesType}}

	beforeSubmitSelector    = vm.Selector("beforeSubmit(address,bytes)")
	afterSubmitSelector     = vm.Selector("afterSubmit(address,bytes)")
	beforeOperationSelector = vm.Selector("beforeOperation(address,bytes)")
	afterOperationSelector  = vm.Selector("afterOperation(address,bytes)")
)

// callHook dispatches one hook invocation through the executor seam. Hooks
// run as regular (non-static) calls from the vault identity; whatever they
// return is handed back to the caller for optional extraction.
func (s *submission) callHook(target common.Address, selector [codec.SelectorSize]byte, subject common.Address, payload []byte) ([]byte, error) {
	packed, err := hookArgs.Pack(subject, payload)
	if err != nil {
		return nil, fmt.Errorf("pack hook call: %w", err)
	}
	return s.vault.exec.Execute(vm.CallMetadata{
		From: s.vault.address,
		To:   target,
		Data: append(selector[:], packed...),
	})
}

// extractHookOutput copies successive 32-byte words of a hook's returned
// bytes into the operation input at the declared offsets. The input slice is
// already the submission-local patched copy, so overwriting in place is safe.
func extractHookOutput(input []byte, offsets []uint16, hookOut []byte) error {
	if need := len(offsets) * codec.WordSize; len(hookOut) < need {
		return fmt.Errorf("hook returned %d bytes, need %d for %d offsets", len(hookOut), need, len(offsets))
	}
	for i, off := range offsets {
		if int(off)+codec.WordSize > len(input) {
			return fmt.Errorf("extraction offset %d past input length %d", off, len(input))
		}
		copy(input[off:int(off)+codec.WordSize], hookOut[i*codec.WordSize:(i+1)*codec.WordSize])
	}
	return nil
}
