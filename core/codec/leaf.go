package codec

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LeafInput packs the public fields of an operation in the canonical
// commitment ordering:
//
//	target || selector || hasValue || hooks identity ||
//	offsetCount || offsets... || callbackFlag || callback selector || callback caller
//
// The callback's runtime offset and the input payload past the selector are
// deliberately excluded: the clipboard and hook engines patch those at
// dispatch time, so committing them would make every data-flowing operation
// unprovable.
func LeafInput(op *Operation) []byte {
	buf := make([]byte, 0, 2*common.AddressLength+2*SelectorSize+common.AddressLength+8+2*len(op.ExtractOffsets))
	buf = append(buf, op.Target.Bytes()...)
	sel := op.Selector()
	buf = append(buf, sel[:]...)
	if op.HasValue() {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, op.Hooks.Bytes()...)
	buf = append(buf, uint8(len(op.ExtractOffsets)))
	for _, off := range op.ExtractOffsets {
		buf = binary.BigEndian.AppendUint16(buf, off)
	}
	if cb := op.Callback; cb != nil {
		buf = append(buf, 1)
		buf = append(buf, cb.Selector[:]...)
		buf = append(buf, cb.Caller.Bytes()...)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, SelectorSize+common.AddressLength)...)
	}
	return buf
}

// Leaf returns the keccak256 commitment over the canonical leaf input.
func Leaf(op *Operation) common.Hash {
	return crypto.Keccak256Hash(LeafInput(op))
}
