// vaultctl encodes, decodes and commits guarded operation batches. Batches
// are described in TOML, encoded to the wire format guardians submit, and
// committed to the merkle root the vault owner installs for a guardian.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aerafi/vault-engine/core/codec"
	"github.com/aerafi/vault-engine/core/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

var app = &cli.App{
	Name:  "vaultctl",
	Usage: "guarded operation batch tooling",
	Commands: []*cli.Command{
		encodeCommand,
		decodeCommand,
		rootCommand,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var encodeCommand = &cli.Command{
	Name:      "encode",
	Usage:     "encode a TOML batch definition to submission wire format",
	ArgsUsage: "<batch.toml>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "prove",
			Usage: "commit all operations to a tree and embed the membership proofs",
		},
	},
	Action: encodeBatch,
}

var decodeCommand = &cli.Command{
	Name:      "decode",
	Usage:     "decode a hex-encoded batch payload",
	ArgsUsage: "<hex payload or file>",
	Action:    decodeBatch,
}

var rootCommand = &cli.Command{
	Name:      "root",
	Usage:     "print the commitment root, leaves and proofs for a batch definition",
	ArgsUsage: "<batch.toml>",
	Action:    printRoot,
}

// The TOML shape mirrors the wire format field for field. Addresses and byte
// strings are 0x-hex; values accept decimal or 0x-hex.
type batchDefinition struct {
	Operation []operationDefinition
}

type operationDefinition struct {
	Target         string
	Input          string
	Static         bool
	Value          string
	Hooks          string
	ExtractOffsets []uint16
	Clipboard      []clipboardDefinition
	Callback       *callbackDefinition
}

type clipboardDefinition struct {
	Result uint8
	Word   uint8
	Offset uint16
}

type callbackDefinition struct {
	Selector string
	Caller   string
	Offset   uint16
}

func loadBatch(path string) ([]codec.Operation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var def batchDefinition
	if err := toml.NewDecoder(f).Decode(&def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	ops := make([]codec.Operation, len(def.Operation))
	for i, d := range def.Operation {
		op, err := d.toOperation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops[i] = op
	}
	return ops, nil
}

func (d *operationDefinition) toOperation() (codec.Operation, error) {
	var op codec.Operation
	if !common.IsHexAddress(d.Target) {
		return op, fmt.Errorf("invalid target address %q", d.Target)
	}
	op.Target = common.HexToAddress(d.Target)
	op.Static = d.Static
	op.ExtractOffsets = d.ExtractOffsets

	if d.Input != "" {
		input, err := hexutil.Decode(d.Input)
		if err != nil {
			return op, fmt.Errorf("input: %w", err)
		}
		op.Input = input
	}
	if d.Hooks != "" {
		if !common.IsHexAddress(d.Hooks) {
			return op, fmt.Errorf("invalid hooks address %q", d.Hooks)
		}
		op.Hooks = common.HexToAddress(d.Hooks)
	}
	if d.Value != "" {
		value, err := parseValue(d.Value)
		if err != nil {
			return op, fmt.Errorf("value: %w", err)
		}
		op.Value = value
	}
	for _, c := range d.Clipboard {
		op.Clipboards = append(op.Clipboards, codec.Clipboard{
			ResultIndex: c.Result,
			WordIndex:   c.Word,
			DestOffset:  c.Offset,
		})
	}
	if d.Callback != nil {
		sel, err := hexutil.Decode(d.Callback.Selector)
		if err != nil || len(sel) != codec.SelectorSize {
			return op, fmt.Errorf("callback selector must be 4 hex bytes")
		}
		if !common.IsHexAddress(d.Callback.Caller) {
			return op, fmt.Errorf("invalid callback caller %q", d.Callback.Caller)
		}
		cb := &codec.CallbackData{Caller: common.HexToAddress(d.Callback.Caller), Offset: d.Callback.Offset}
		copy(cb.Selector[:], sel)
		op.Callback = cb
	}
	return op, op.Validate()
}

func parseValue(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

// commit builds the tree over the batch and attaches every proof in place.
func commit(ops []codec.Operation) *merkle.Tree {
	leaves := make([]common.Hash, len(ops))
	for i := range ops {
		leaves[i] = codec.Leaf(&ops[i])
	}
	tree := merkle.NewTree(leaves)
	for i := range ops {
		proof, _ := tree.Prove(i)
		ops[i].Proof = proof
	}
	return tree
}

func encodeBatch(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected one batch definition file")
	}
	ops, err := loadBatch(ctx.Args().First())
	if err != nil {
		return err
	}
	if ctx.Bool("prove") {
		tree := commit(ops)
		fmt.Fprintln(os.Stderr, "root:", tree.Root())
	}
	payload, err := codec.EncodeBatch(ops)
	if err != nil {
		return err
	}
	fmt.Println(hexutil.Encode(payload))
	return nil
}

func decodeBatch(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected a hex payload or a file containing one")
	}
	arg := ctx.Args().First()
	if !strings.HasPrefix(arg, "0x") {
		raw, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		arg = strings.TrimSpace(string(raw))
	}
	payload, err := hexutil.Decode(arg)
	if err != nil {
		return err
	}
	ops, err := codec.DecodeBatch(payload)
	if err != nil {
		return err
	}
	for i := range ops {
		printOperation(i, &ops[i])
	}
	return nil
}

func printOperation(i int, op *codec.Operation) {
	sel := op.Selector()
	fmt.Printf("operation %d\n", i)
	fmt.Printf("  target    %s\n", op.Target)
	fmt.Printf("  selector  0x%x\n", sel)
	fmt.Printf("  input     %d bytes\n", len(op.Input))
	fmt.Printf("  static    %v\n", op.Static)
	if op.HasValue() {
		fmt.Printf("  value     %s\n", op.Value)
	}
	if hooks := op.HooksTarget(); hooks != (common.Address{}) {
		fmt.Printf("  hooks     %s before=%v after=%v\n", hooks, op.HasBeforeHook(), op.HasAfterHook())
	}
	for _, c := range op.Clipboards {
		fmt.Printf("  clipboard result %d word %d -> offset %d\n", c.ResultIndex, c.WordIndex, c.DestOffset)
	}
	if len(op.ExtractOffsets) > 0 {
		fmt.Printf("  extract   %v\n", op.ExtractOffsets)
	}
	if cb := op.Callback; cb != nil {
		fmt.Printf("  callback  0x%x from %s at offset %d\n", cb.Selector, cb.Caller, cb.Offset)
	}
	fmt.Printf("  leaf      %s\n", codec.Leaf(op))
	fmt.Printf("  proof     %d hashes\n", len(op.Proof))
}

func printRoot(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected one batch definition file")
	}
	ops, err := loadBatch(ctx.Args().First())
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return fmt.Errorf("batch defines no operations")
	}
	tree := commit(ops)
	fmt.Println("root:", tree.Root())
	for i := range ops {
		fmt.Printf("leaf %d: %s\n", i, codec.Leaf(&ops[i]))
		for _, h := range ops[i].Proof {
			fmt.Printf("  %s\n", h)
		}
	}
	return nil
}
