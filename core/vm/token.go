package vm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ERC-20-shaped selectors and argument codecs, shared with the engine's
// approval-invariant probe and with tests.
var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)

	AddrUintArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
	AddrAddrArgs = abi.Arguments{{Type: addressType}, {Type: addressType}}
	AddrArgs     = abi.Arguments{{Type: addressType}}
	UintArgs     = abi.Arguments{{Type: uint256Type}}

	TransferSelector  = Selector("transfer(address,uint256)")
	ApproveSelector   = Selector("approve(address,uint256)")
	AllowanceSelector = Selector("allowance(address,address)")
	BalanceOfSelector = Selector("balanceOf(address)")
	MintSelector      = Selector("mint(address,uint256)")
)

// Selector computes the 4-byte call selector for a signature.
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature)))
	return sel
}

// RegisterToken installs an ERC-20-shaped contract at the given address:
// transfer, approve, allowance, balanceOf and an open mint. Token state
// lives in the environment's journaled storage, so it participates in
// snapshot/revert like everything else.
func RegisterToken(env *Environment, addr common.Address) {
	env.Register(addr, tokenHandler)
}

func tokenHandler(ctx *CallContext) ([]byte, error) {
	if len(ctx.Input) < 4 {
		return nil, Revert("token: missing selector")
	}
	var sel [4]byte
	copy(sel[:], ctx.Input)
	args := ctx.Input[4:]

	switch sel {
	case TransferSelector:
		to, amount, err := unpackAddrUint(args)
		if err != nil {
			return nil, err
		}
		return packBool(true), tokenMove(ctx, ctx.Caller, to, amount)

	case MintSelector:
		to, amount, err := unpackAddrUint(args)
		if err != nil {
			return nil, err
		}
		bal := readWord(ctx, balanceSlot(to))
		return nil, writeWord(ctx, balanceSlot(to), new(uint256.Int).Add(bal, amount))

	case ApproveSelector:
		spender, amount, err := unpackAddrUint(args)
		if err != nil {
			return nil, err
		}
		return packBool(true), writeWord(ctx, allowanceSlot(ctx.Caller, spender), amount)

	case AllowanceSelector:
		vals, err := AddrAddrArgs.Unpack(args)
		if err != nil {
			return nil, Revert("token: bad allowance args")
		}
		owner, spender := vals[0].(common.Address), vals[1].(common.Address)
		return packUint(readWord(ctx, allowanceSlot(owner, spender)))

	case BalanceOfSelector:
		vals, err := AddrArgs.Unpack(args)
		if err != nil {
			return nil, Revert("token: bad balanceOf args")
		}
		return packUint(readWord(ctx, balanceSlot(vals[0].(common.Address))))
	}
	return nil, Revert(fmt.Sprintf("token: unknown selector %x", sel))
}

func tokenMove(ctx *CallContext, from, to common.Address, amount *uint256.Int) error {
	fromBal := readWord(ctx, balanceSlot(from))
	if fromBal.Lt(amount) {
		return Revert("token: transfer amount exceeds balance")
	}
	if err := writeWord(ctx, balanceSlot(from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal := readWord(ctx, balanceSlot(to))
	return writeWord(ctx, balanceSlot(to), toBal.Add(toBal, amount))
}

func balanceSlot(holder common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("balance"), holder.Bytes())
}

func allowanceSlot(owner, spender common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("allowance"), owner.Bytes(), spender.Bytes())
}

func readWord(ctx *CallContext, slot common.Hash) *uint256.Int {
	word := ctx.GetState(slot)
	return new(uint256.Int).SetBytes(word[:])
}

func writeWord(ctx *CallContext, slot common.Hash, value *uint256.Int) error {
	return ctx.SetState(slot, value.Bytes32())
}

func unpackAddrUint(args []byte) (common.Address, *uint256.Int, error) {
	vals, err := AddrUintArgs.Unpack(args)
	if err != nil {
		return common.Address{}, nil, Revert("token: bad args")
	}
	amount, overflow := uint256.FromBig(vals[1].(*big.Int))
	if overflow {
		return common.Address{}, nil, Revert("token: amount overflow")
	}
	return vals[0].(common.Address), amount, nil
}

func packUint(v *uint256.Int) ([]byte, error) {
	return UintArgs.Pack(v.ToBig())
}

func packBool(v bool) []byte {
	word := make([]byte, 32)
	if v {
		word[31] = 1
	}
	return word
}
