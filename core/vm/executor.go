// Package vm contains the narrow dispatch seam the submission engine uses to
// reach external call targets, together with an in-memory environment that
// implements it with journaled, snapshot-revertable state.
package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallMetadata carries the minimal fields required to invoke one external
// call on the underlying backend. It is the only shape that crosses the
// engine/backend boundary; richer context stays on either side.
type CallMetadata struct {
	From   common.Address
	To     common.Address
	Data   []byte
	Value  *uint256.Int // nil means zero
	Static bool         // read-only dispatch; writes and transfers are rejected
}

// Executor is the abstraction over a call execution backend. The engine
// depends on nothing else: every dispatched operation, hook invocation and
// invariant probe goes through Execute, and batch atomicity is built on the
// snapshot pair.
type Executor interface {
	// Engine returns a short human identifier for the backend.
	Engine() string

	// Execute runs one call and returns its output. A failed call leaves no
	// effects of its own behind.
	Execute(call CallMetadata) ([]byte, error)

	// Snapshot marks the current state; RevertToSnapshot unwinds every
	// change made since the matching Snapshot.
	Snapshot() int
	RevertToSnapshot(id int)
}

var (
	// ErrWriteProtection is returned when a static call attempts any state
	// mutation or value transfer.
	ErrWriteProtection = errors.New("write protection")

	// ErrInsufficientBalance is returned when a value transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
)

// RevertError is a call failure that carries an application-level reason
// payload. The engine preserves the payload unmodified when surfacing the
// failure to the submitter.
type RevertError struct {
	Reason []byte
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("execution reverted: %q", e.Reason)
}

// Revert builds a RevertError from a human-readable reason.
func Revert(reason string) *RevertError {
	return &RevertError{Reason: []byte(reason)}
}
