package codec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func baseOp() Operation {
	return Operation{
		Target:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Input:          []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01, 0x02},
		ExtractOffsets: []uint16{4},
		Callback: &CallbackData{
			Selector: [4]byte{0xde, 0xad, 0xbe, 0xef},
			Caller:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Offset:   68,
		},
		Hooks: common.HexToAddress("0x3333333333333333333333333333333333333302"),
		Value: uint256.NewInt(1),
	}
}

func TestLeafCommitsPublicFields(t *testing.T) {
	base := baseOp()
	baseLeaf := Leaf(&base)

	mutations := map[string]func(*Operation){
		"target":            func(op *Operation) { op.Target[0] ^= 0xff },
		"selector":          func(op *Operation) { op.Input[0] ^= 0xff },
		"value presence":    func(op *Operation) { op.Value = new(uint256.Int) },
		"hook identity":     func(op *Operation) { op.Hooks[19] ^= 0x02 },
		"extract offsets":   func(op *Operation) { op.ExtractOffsets = []uint16{8} },
		"callback selector": func(op *Operation) { op.Callback.Selector[0] ^= 0xff },
		"callback caller":   func(op *Operation) { op.Callback.Caller[0] ^= 0xff },
		"callback presence": func(op *Operation) { op.Callback = nil },
	}
	for name, mutate := range mutations {
		op := baseOp()
		mutate(&op)
		require.NotEqual(t, baseLeaf, Leaf(&op), "mutating %s must change the leaf", name)
	}
}

func TestLeafIgnoresRuntimeData(t *testing.T) {
	base := baseOp()
	baseLeaf := Leaf(&base)

	// Bytes past the selector are patched at dispatch time and are not
	// committed.
	op := baseOp()
	op.Input[5] ^= 0xff
	require.Equal(t, baseLeaf, Leaf(&op))

	// The callback envelope offset is runtime positioning.
	op = baseOp()
	op.Callback.Offset = 4
	require.Equal(t, baseLeaf, Leaf(&op))

	// Proof and clipboard entries are witnesses, not committed fields.
	op = baseOp()
	op.Proof = []common.Hash{common.HexToHash("0x01")}
	op.Clipboards = []Clipboard{{DestOffset: 4}}
	require.Equal(t, baseLeaf, Leaf(&op))
}

func TestLeafValueAmountNotCommitted(t *testing.T) {
	// Only value presence is committed, not the amount.
	a, b := baseOp(), baseOp()
	b.Value = uint256.NewInt(999)
	require.Equal(t, Leaf(&a), Leaf(&b))
}

func TestShortInputSelectorPadding(t *testing.T) {
	op := baseOp()
	op.Input = []byte{0xa9}
	sel := op.Selector()
	require.Equal(t, [4]byte{0xa9, 0, 0, 0}, sel)
}
