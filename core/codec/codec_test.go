package codec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func sampleOps() []Operation {
	return []Operation{
		{
			Target: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Input:  []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01, 0x02, 0x03},
			Clipboards: []Clipboard{
				{ResultIndex: 0, WordIndex: 1, DestOffset: 4},
				{ResultIndex: 2, WordIndex: 0, DestOffset: 4},
			},
			Proof: []common.Hash{
				common.HexToHash("0xaaaa"),
				common.HexToHash("0xbbbb"),
			},
			Hooks: common.HexToAddress("0x2222222222222222222222222222222222222202"),
			Value: uint256.NewInt(42),
		},
		{
			Target: common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Input:  []byte{0xde, 0xad, 0xbe, 0xef},
			Callback: &CallbackData{
				Selector: [4]byte{0x01, 0x02, 0x03, 0x04},
				Caller:   common.HexToAddress("0x4444444444444444444444444444444444444444"),
				Offset:   68,
			},
			Hooks: common.Address{},
			Value: new(uint256.Int),
		},
		{
			Target: common.HexToAddress("0x5555555555555555555555555555555555555555"),
			Input:  nil,
			Static: true,
			Value:  new(uint256.Int),
		},
		{
			Target:         common.HexToAddress("0x6666666666666666666666666666666666666666"),
			Input:          make([]byte, 100),
			ExtractOffsets: []uint16{4, 36},
			Hooks:          common.HexToAddress("0x7777777777777777777777777777777777777700"),
			Value:          new(uint256.Int),
		},
	}
}

func TestBatchRoundTrip(t *testing.T) {
	ops := sampleOps()
	encoded, err := EncodeBatch(ops)
	require.NoError(t, err)

	decoded, err := DecodeBatch(encoded)
	require.NoError(t, err)
	require.Equal(t, ops, decoded)
}

func TestEmptyBatchRoundTrip(t *testing.T) {
	encoded, err := EncodeBatch(nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, encoded)

	decoded, err := DecodeBatch(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeRejectsTruncation(t *testing.T) {
	encoded, err := EncodeBatch(sampleOps())
	require.NoError(t, err)

	// Every strict prefix must fail: no prefix of a valid batch is valid.
	for cut := 0; cut < len(encoded); cut++ {
		_, err := DecodeBatch(encoded[:cut])
		require.ErrorIs(t, err, ErrMalformedBatch, "prefix length %d", cut)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded, err := EncodeBatch(sampleOps())
	require.NoError(t, err)

	_, err = DecodeBatch(append(encoded, 0x00))
	require.ErrorIs(t, err, ErrMalformedBatch)
}

func TestDecodeRejectsInvalidFlags(t *testing.T) {
	op := Operation{Target: common.HexToAddress("0x01"), Value: new(uint256.Int)}
	encoded, err := EncodeBatch([]Operation{op})
	require.NoError(t, err)

	// static flag byte sits right after target, input length and clipboard
	// count
	staticOff := 1 + 20 + 2 + 1
	bad := append([]byte(nil), encoded...)
	bad[staticOff] = 0x02
	_, err = DecodeBatch(bad)
	require.ErrorIs(t, err, ErrMalformedBatch)

	bad = append([]byte(nil), encoded...)
	bad[staticOff+1] = 0x07 // callback flag
	_, err = DecodeBatch(bad)
	require.ErrorIs(t, err, ErrMalformedBatch)
}

func TestDecodeRejectsStaticWithCallback(t *testing.T) {
	op := Operation{
		Target:   common.HexToAddress("0x01"),
		Static:   true,
		Callback: &CallbackData{Offset: 4},
		Value:    new(uint256.Int),
	}
	encoded, err := EncodeBatch([]Operation{op})
	require.NoError(t, err)

	_, err = DecodeBatch(encoded)
	require.ErrorIs(t, err, ErrMalformedBatch)
}

func TestDecodeRejectsBeforeHookWithOffsets(t *testing.T) {
	hooks := common.HexToAddress("0x2222222222222222222222222222222222222201") // before bit set
	op := Operation{
		Target:         common.HexToAddress("0x01"),
		Input:          make([]byte, 64),
		ExtractOffsets: []uint16{0},
		Hooks:          hooks,
		Value:          new(uint256.Int),
	}
	encoded, err := EncodeBatch([]Operation{op})
	require.NoError(t, err)

	_, err = DecodeBatch(encoded)
	require.ErrorIs(t, err, ErrMalformedBatch)
}

func TestCallbackEnvelopeRoundTrip(t *testing.T) {
	ops := sampleOps()[:1]
	for _, tc := range []struct {
		kind    ReturnKind
		payload []byte
	}{
		{ReturnNone, nil},
		{ReturnStaticSize, []byte{0xca, 0xfe}},
		{ReturnVariableSize, []byte{0x01}},
	} {
		encoded, err := EncodeCallbackOperations(ops, tc.kind, tc.payload)
		require.NoError(t, err)

		kind, payload, err := DecodeReturnEnvelope(encoded)
		require.NoError(t, err)
		require.Equal(t, tc.kind, kind)
		require.Equal(t, tc.payload, payload)

		decoded, kind, payload, err := DecodeCallbackBatch(encoded)
		require.NoError(t, err)
		require.Equal(t, tc.kind, kind)
		require.Equal(t, tc.payload, payload)
		require.Len(t, decoded, 1)
	}
}

func TestReturnEnvelopeRoundTrip(t *testing.T) {
	encoded, err := EncodeReturnEnvelope(ReturnVariableSize, []byte{1, 2, 3})
	require.NoError(t, err)

	kind, payload, err := DecodeReturnEnvelope(encoded)
	require.NoError(t, err)
	require.Equal(t, ReturnVariableSize, kind)
	require.Equal(t, []byte{1, 2, 3}, payload)
}

func TestEnvelopeRejectsBadKind(t *testing.T) {
	_, _, err := DecodeReturnEnvelope([]byte{0x09, 0x00, 0x00})
	require.ErrorIs(t, err, ErrMalformedBatch)

	_, err = EncodeCallbackOperations(nil, ReturnKind(9), nil)
	require.ErrorIs(t, err, ErrMalformedBatch)
}

func TestOperationHookBits(t *testing.T) {
	op := Operation{Hooks: common.HexToAddress("0x0000000000000000000000000000000000000103")}
	require.True(t, op.HasBeforeHook())
	require.True(t, op.HasAfterHook())
	require.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000100"), op.HooksTarget())

	op.Hooks = common.HexToAddress("0x0000000000000000000000000000000000000102")
	require.False(t, op.HasBeforeHook())
	require.True(t, op.HasAfterHook())
}
