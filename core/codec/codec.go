// Package codec implements the compact wire layout for guarded operation
// batches, the nested callback envelope, and the canonical leaf encoding the
// authorization verifier commits to.
//
// The field order of both the batch records and the leaf input is a durable
// contract: every registered guardian root is a commitment over leaves built
// with this exact ordering, so any change here invalidates every
// previously-issued authorization.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrMalformedBatch is returned for any structurally invalid batch payload:
// truncated sections, trailing bytes, counts that do not match the data, or
// per-operation shapes the engine can never execute.
var ErrMalformedBatch = errors.New("malformed operation batch")

// Wire limits. Counts are single bytes and input lengths are u16 on the wire,
// so these bounds are inherent to the format rather than tunables.
const (
	MaxOperations = 255
	MaxInputSize  = 65535
)

// SelectorSize is the number of leading input bytes treated as the call
// selector for commitment purposes.
const SelectorSize = 4

// WordSize is the unit the clipboard engine copies between call results.
const WordSize = 32

// ReturnKind tags how a nested callback's declared return value is located
// and copied out of the submission's result buffer.
type ReturnKind uint8

const (
	// ReturnNone means the callback returns no data to its caller.
	ReturnNone ReturnKind = iota
	// ReturnStaticSize returns the envelope payload verbatim.
	ReturnStaticSize
	// ReturnVariableSize returns a previously buffered call result; the
	// envelope payload's first byte selects the buffer index.
	ReturnVariableSize
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnNone:
		return "none"
	case ReturnStaticSize:
		return "static"
	case ReturnVariableSize:
		return "variable"
	}
	return "unknown"
}

// Clipboard instructs the engine to copy one 32-byte word from a prior call
// result into the next operation's input before dispatch.
type Clipboard struct {
	ResultIndex uint8  // index into the submission's return buffer
	WordIndex   uint8  // 32-byte word offset within that result
	DestOffset  uint16 // byte offset in the destination input
}

// CallbackData declares the single re-entrant call an operation's target is
// allowed to make while being dispatched. Offset locates the nested callback
// envelope inside the inbound calldata; it is runtime positioning and is not
// part of the authorization commitment.
type CallbackData struct {
	Selector [SelectorSize]byte
	Caller   common.Address
	Offset   uint16
}

// Operation is one authorized external call plus its metadata. Instances are
// immutable once dispatched and live for exactly one submission.
type Operation struct {
	Target         common.Address
	Input          []byte
	Clipboards     []Clipboard
	Static         bool
	Callback       *CallbackData
	ExtractOffsets []uint16      // input offsets a hook result may overwrite
	Proof          []common.Hash // membership proof for the guardian root
	Hooks          common.Address
	Value          *uint256.Int
}

// Hook-identity flag bits, packed into the lowest bits of the hooks address.
const (
	hookBeforeBit = 0x01
	hookAfterBit  = 0x02
)

// Selector returns the first four input bytes, zero-padded when the input is
// shorter.
func (op *Operation) Selector() (sel [SelectorSize]byte) {
	copy(sel[:], op.Input)
	return sel
}

// HasValue reports whether the operation attaches a native value transfer.
func (op *Operation) HasValue() bool {
	return op.Value != nil && !op.Value.IsZero()
}

// HasBeforeHook reports whether the per-operation before hook fires.
func (op *Operation) HasBeforeHook() bool {
	return op.Hooks[common.AddressLength-1]&hookBeforeBit != 0
}

// HasAfterHook reports whether the per-operation after hook fires.
func (op *Operation) HasAfterHook() bool {
	return op.Hooks[common.AddressLength-1]&hookAfterBit != 0
}

// HooksTarget returns the hook contract address with the flag bits cleared.
func (op *Operation) HooksTarget() common.Address {
	target := op.Hooks
	target[common.AddressLength-1] &^= hookBeforeBit | hookAfterBit
	return target
}

// Validate rejects operation shapes the engine can never execute: a
// read-only call that declares a callback, and a before hook combined with
// configurable extraction offsets (the configurable before-call is the only
// producer of extracted bytes, so an explicit before hook is ambiguous).
func (op *Operation) Validate() error {
	if op.Static && op.Callback != nil {
		return fmt.Errorf("%w: static call declares callback data", ErrMalformedBatch)
	}
	if len(op.ExtractOffsets) > 0 && op.HasBeforeHook() {
		return fmt.Errorf("%w: before hook combined with extraction offsets", ErrMalformedBatch)
	}
	if len(op.Input) > MaxInputSize {
		return fmt.Errorf("%w: input exceeds %d bytes", ErrMalformedBatch, MaxInputSize)
	}
	return nil
}

// reader is a bounds-checked cursor over an untrusted batch payload.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at byte %d, need %d more", ErrMalformedBatch, r.off, n-r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) address() (common.Address, error) {
	b, err := r.take(common.AddressLength)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// DecodeBatch parses a count-prefixed operation batch. Trailing bytes after
// the final record are rejected.
func DecodeBatch(data []byte) ([]Operation, error) {
	r := &reader{buf: data}
	ops, err := decodeOperations(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBatch, r.remaining())
	}
	return ops, nil
}

func decodeOperations(r *reader) ([]Operation, error) {
	count, err := r.u8()
	if err != nil {
		return nil, err
	}
	ops := make([]Operation, count)
	for i := range ops {
		if err := decodeOperation(r, &ops[i]); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		if err := ops[i].Validate(); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
	}
	return ops, nil
}

func decodeOperation(r *reader, op *Operation) error {
	var err error
	if op.Target, err = r.address(); err != nil {
		return err
	}
	inputLen, err := r.u16()
	if err != nil {
		return err
	}
	input, err := r.take(int(inputLen))
	if err != nil {
		return err
	}
	op.Input = append([]byte(nil), input...)

	clipCount, err := r.u8()
	if err != nil {
		return err
	}
	if clipCount > 0 {
		op.Clipboards = make([]Clipboard, clipCount)
		for i := range op.Clipboards {
			c := &op.Clipboards[i]
			if c.ResultIndex, err = r.u8(); err != nil {
				return err
			}
			if c.WordIndex, err = r.u8(); err != nil {
				return err
			}
			if c.DestOffset, err = r.u16(); err != nil {
				return err
			}
		}
	}

	staticFlag, err := r.u8()
	if err != nil {
		return err
	}
	if staticFlag > 1 {
		return fmt.Errorf("%w: invalid static flag %#x", ErrMalformedBatch, staticFlag)
	}
	op.Static = staticFlag == 1

	cbFlag, err := r.u8()
	if err != nil {
		return err
	}
	switch cbFlag {
	case 0:
	case 1:
		cb := new(CallbackData)
		sel, err := r.take(SelectorSize)
		if err != nil {
			return err
		}
		copy(cb.Selector[:], sel)
		if cb.Caller, err = r.address(); err != nil {
			return err
		}
		if cb.Offset, err = r.u16(); err != nil {
			return err
		}
		op.Callback = cb
	default:
		return fmt.Errorf("%w: invalid callback flag %#x", ErrMalformedBatch, cbFlag)
	}

	offsetCount, err := r.u8()
	if err != nil {
		return err
	}
	if offsetCount > 0 {
		op.ExtractOffsets = make([]uint16, offsetCount)
		for i := range op.ExtractOffsets {
			if op.ExtractOffsets[i], err = r.u16(); err != nil {
				return err
			}
		}
	}

	proofDepth, err := r.u8()
	if err != nil {
		return err
	}
	if proofDepth > 0 {
		op.Proof = make([]common.Hash, proofDepth)
		for i := range op.Proof {
			digest, err := r.take(common.HashLength)
			if err != nil {
				return err
			}
			op.Proof[i] = common.BytesToHash(digest)
		}
	}

	if op.Hooks, err = r.address(); err != nil {
		return err
	}
	value, err := r.take(WordSize)
	if err != nil {
		return err
	}
	op.Value = new(uint256.Int).SetBytes(value)
	return nil
}

// EncodeBatch is the exact inverse of DecodeBatch for all valid operation
// lists.
func EncodeBatch(ops []Operation) ([]byte, error) {
	if len(ops) > MaxOperations {
		return nil, fmt.Errorf("%w: %d operations exceed limit %d", ErrMalformedBatch, len(ops), MaxOperations)
	}
	out := []byte{uint8(len(ops))}
	for i := range ops {
		var err error
		if out, err = appendOperation(out, &ops[i]); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
	}
	return out, nil
}

func appendOperation(out []byte, op *Operation) ([]byte, error) {
	if len(op.Input) > MaxInputSize {
		return nil, fmt.Errorf("%w: input exceeds %d bytes", ErrMalformedBatch, MaxInputSize)
	}
	if len(op.Clipboards) > 255 || len(op.ExtractOffsets) > 255 || len(op.Proof) > 255 {
		return nil, fmt.Errorf("%w: section count exceeds 255", ErrMalformedBatch)
	}
	out = append(out, op.Target.Bytes()...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(op.Input)))
	out = append(out, op.Input...)

	out = append(out, uint8(len(op.Clipboards)))
	for _, c := range op.Clipboards {
		out = append(out, c.ResultIndex, c.WordIndex)
		out = binary.BigEndian.AppendUint16(out, c.DestOffset)
	}

	if op.Static {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	if cb := op.Callback; cb != nil {
		out = append(out, 1)
		out = append(out, cb.Selector[:]...)
		out = append(out, cb.Caller.Bytes()...)
		out = binary.BigEndian.AppendUint16(out, cb.Offset)
	} else {
		out = append(out, 0)
	}

	out = append(out, uint8(len(op.ExtractOffsets)))
	for _, off := range op.ExtractOffsets {
		out = binary.BigEndian.AppendUint16(out, off)
	}

	out = append(out, uint8(len(op.Proof)))
	for _, digest := range op.Proof {
		out = append(out, digest.Bytes()...)
	}

	out = append(out, op.Hooks.Bytes()...)
	value := op.Value
	if value == nil {
		value = new(uint256.Int)
	}
	v := value.Bytes32()
	out = append(out, v[:]...)
	return out, nil
}

// EncodeCallbackOperations assembles the nested callback envelope: a return
// descriptor followed by the encoded batch the callback executes.
func EncodeCallbackOperations(ops []Operation, kind ReturnKind, payload []byte) ([]byte, error) {
	if kind > ReturnVariableSize {
		return nil, fmt.Errorf("%w: invalid return kind %d", ErrMalformedBatch, kind)
	}
	if len(payload) > MaxInputSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformedBatch, MaxInputSize)
	}
	batch, err := EncodeBatch(ops)
	if err != nil {
		return nil, err
	}
	out := []byte{uint8(kind)}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	out = append(out, payload...)
	out = append(out, batch...)
	return out, nil
}

// EncodeReturnEnvelope assembles a bare return descriptor with no trailing
// batch, as returned by a successful submission.
func EncodeReturnEnvelope(kind ReturnKind, payload []byte) ([]byte, error) {
	if kind > ReturnVariableSize {
		return nil, fmt.Errorf("%w: invalid return kind %d", ErrMalformedBatch, kind)
	}
	if len(payload) > MaxInputSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformedBatch, MaxInputSize)
	}
	out := []byte{uint8(kind)}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	return append(out, payload...), nil
}

// DecodeReturnEnvelope extracts the return descriptor from a callback
// envelope. The trailing batch is left for DecodeCallbackBatch.
func DecodeReturnEnvelope(data []byte) (ReturnKind, []byte, error) {
	r := &reader{buf: data}
	kind, payload, err := decodeEnvelopeHeader(r)
	if err != nil {
		return ReturnNone, nil, err
	}
	return kind, payload, nil
}

// DecodeCallbackBatch parses a full callback envelope into its return
// descriptor and nested operations.
func DecodeCallbackBatch(data []byte) ([]Operation, ReturnKind, []byte, error) {
	r := &reader{buf: data}
	kind, payload, err := decodeEnvelopeHeader(r)
	if err != nil {
		return nil, ReturnNone, nil, err
	}
	ops, err := decodeOperations(r)
	if err != nil {
		return nil, ReturnNone, nil, err
	}
	if r.remaining() != 0 {
		return nil, ReturnNone, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBatch, r.remaining())
	}
	return ops, kind, payload, nil
}

func decodeEnvelopeHeader(r *reader) (ReturnKind, []byte, error) {
	kindByte, err := r.u8()
	if err != nil {
		return ReturnNone, nil, err
	}
	if kindByte > uint8(ReturnVariableSize) {
		return ReturnNone, nil, fmt.Errorf("%w: invalid return kind %d", ErrMalformedBatch, kindByte)
	}
	payloadLen, err := r.u16()
	if err != nil {
		return ReturnNone, nil, err
	}
	payload, err := r.take(int(payloadLen))
	if err != nil {
		return ReturnNone, nil, err
	}
	if payloadLen == 0 {
		return ReturnKind(kindByte), nil, nil
	}
	return ReturnKind(kindByte), append([]byte(nil), payload...), nil
}
