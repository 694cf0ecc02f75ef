package core

import (
	"fmt"

	"github.com/aerafi/vault-engine/core/codec"
)

// applyClipboards copies one 32-byte word per entry from a prior call result
// into a fresh copy of the operation input. Entries apply in order and later
// entries may overwrite earlier targets; authorized operation sets rely on
// that last-write-wins behavior, so it is part of the contract.
//
// The results slice holds only completed non-static call results, so a plain
// index check is the full "prior, non-static" invariant.
func applyClipboards(input []byte, entries []codec.Clipboard, results [][]byte) ([]byte, error) {
	if len(entries) == 0 {
		return input, nil
	}
	patched := append([]byte(nil), input...)
	for i, entry := range entries {
		if int(entry.ResultIndex) >= len(results) {
			return nil, fmt.Errorf("%w: entry %d references result %d of %d",
				ErrClipboardBounds, i, entry.ResultIndex, len(results))
		}
		src := results[entry.ResultIndex]
		start := int(entry.WordIndex) * codec.WordSize
		if start+codec.WordSize > len(src) {
			return nil, fmt.Errorf("%w: entry %d reads word %d past result length %d",
				ErrClipboardBounds, i, entry.WordIndex, len(src))
		}
		dest := int(entry.DestOffset)
		if dest+codec.WordSize > len(patched) {
			return nil, fmt.Errorf("%w: entry %d writes at offset %d past input length %d",
				ErrClipboardBounds, i, entry.DestOffset, len(patched))
		}
		copy(patched[dest:dest+codec.WordSize], src[start:start+codec.WordSize])
	}
	return patched, nil
}
