package core

import (
	"github.com/aerafi/vault-engine/core/codec"
	"github.com/ethereum/go-ethereum/common"
)

// callbackGate is the single-slot, submission-scoped capability permitting
// exactly one declared re-entrant call. It is armed immediately before
// dispatching an operation that declares callback data, consumed by the
// first inbound call matching caller and selector exactly, and cleared
// unconditionally after every dispatch so nothing leaks into a later
// operation or submission.
//
// Execution is strictly sequential (the callback happens synchronously
// inside the dispatch that armed the gate), so the slot needs no locking.
type callbackGate struct {
	armed    bool
	caller   common.Address
	selector [codec.SelectorSize]byte
	offset   uint16
}

// arm records the one allowed (caller, selector, offset) tuple. Each
// operation calls exactly one target, so a second arm before clear simply
// overwrites the slot.
func (g *callbackGate) arm(cb *codec.CallbackData) {
	g.armed = true
	g.caller = cb.Caller
	g.selector = cb.Selector
	g.offset = cb.Offset
}

// consume matches an inbound call against the slot. On a match the slot is
// spent and the declared envelope offset is returned; any mismatch leaves
// the slot untouched and reports not-armed.
func (g *callbackGate) consume(caller common.Address, selector [codec.SelectorSize]byte) (uint16, bool) {
	if !g.armed || g.caller != caller || g.selector != selector {
		return 0, false
	}
	g.armed = false
	return g.offset, true
}

// pending reports whether an armed slot was never consumed.
func (g *callbackGate) pending() bool { return g.armed }

// clear unconditionally empties the slot.
func (g *callbackGate) clear() { *g = callbackGate{} }
