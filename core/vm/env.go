package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// Handler executes a registered contract for one inbound call.
type Handler func(ctx *CallContext) ([]byte, error)

// Environment is the in-memory Executor implementation: per-address handler
// functions, native balances and word-addressed storage, with every mutation
// recorded in an undo journal so that any prefix of work can be unwound.
//
// Addresses without a handler behave like plain accounts: calling them
// transfers value and returns empty output.
type Environment struct {
	handlers map[common.Address]Handler
	balances map[common.Address]*uint256.Int
	storage  map[common.Address]map[common.Hash]common.Hash
	journal  []func()
	depth    int
}

// NewEnvironment creates an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		handlers: make(map[common.Address]Handler),
		balances: make(map[common.Address]*uint256.Int),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Engine implements Executor.
func (e *Environment) Engine() string { return "memenv" }

// Register installs a contract handler at the given address.
func (e *Environment) Register(addr common.Address, h Handler) {
	e.handlers[addr] = h
}

// Snapshot implements Executor. Snapshots are journal positions, so they are
// free to take and nest arbitrarily.
func (e *Environment) Snapshot() int { return len(e.journal) }

// RevertToSnapshot implements Executor, replaying undo entries in reverse.
func (e *Environment) RevertToSnapshot(id int) {
	if id < 0 || id > len(e.journal) {
		panic(fmt.Sprintf("invalid snapshot id %d (journal %d)", id, len(e.journal)))
	}
	for i := len(e.journal) - 1; i >= id; i-- {
		e.journal[i]()
	}
	e.journal = e.journal[:id]
}

// BalanceOf returns a copy of the address's native balance.
func (e *Environment) BalanceOf(addr common.Address) *uint256.Int {
	if bal, ok := e.balances[addr]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// SetBalance overwrites an address's balance. Journaled like every other
// mutation, so setup performed after a snapshot is still unwound on revert.
func (e *Environment) SetBalance(addr common.Address, amount *uint256.Int) {
	prev, had := e.balances[addr]
	e.journal = append(e.journal, func() {
		if had {
			e.balances[addr] = prev
		} else {
			delete(e.balances, addr)
		}
	})
	e.balances[addr] = new(uint256.Int).Set(amount)
}

// GetState reads one storage word.
func (e *Environment) GetState(addr common.Address, key common.Hash) common.Hash {
	return e.storage[addr][key]
}

func (e *Environment) setState(addr common.Address, key, value common.Hash) {
	slots, ok := e.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		e.storage[addr] = slots
	}
	prev, had := slots[key]
	e.journal = append(e.journal, func() {
		if had {
			slots[key] = prev
		} else {
			delete(slots, key)
		}
	})
	slots[key] = value
}

func (e *Environment) transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal := e.BalanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	e.SetBalance(from, fromBal.Sub(fromBal, amount))
	toBal := e.BalanceOf(to)
	e.SetBalance(to, toBal.Add(toBal, amount))
	return nil
}

// Execute implements Executor. A handler error unwinds the call's own
// effects before being returned, matching call-frame revert semantics.
func (e *Environment) Execute(call CallMetadata) ([]byte, error) {
	if call.Static && call.Value != nil && !call.Value.IsZero() {
		return nil, fmt.Errorf("%w: value transfer in static call", ErrWriteProtection)
	}
	snap := e.Snapshot()
	e.depth++
	out, err := e.run(call)
	e.depth--
	if err != nil {
		e.RevertToSnapshot(snap)
		return nil, err
	}
	return out, nil
}

func (e *Environment) run(call CallMetadata) ([]byte, error) {
	if err := e.transfer(call.From, call.To, call.Value); err != nil {
		return nil, err
	}
	handler, ok := e.handlers[call.To]
	if !ok {
		return nil, nil // plain account, transfer only
	}
	log.Trace("Environment call", "from", call.From, "to", call.To, "len", len(call.Data), "static", call.Static, "depth", e.depth)
	ctx := &CallContext{
		env:      e,
		Caller:   call.From,
		Address:  call.To,
		Value:    call.Value,
		Input:    call.Data,
		readOnly: call.Static,
	}
	return handler(ctx)
}

// CallContext is the view a handler gets of its own call frame.
type CallContext struct {
	env      *Environment
	Caller   common.Address
	Address  common.Address
	Value    *uint256.Int
	Input    []byte
	readOnly bool
}

// Static reports whether the frame is read-only.
func (ctx *CallContext) Static() bool { return ctx.readOnly }

// GetState reads a word from the executing contract's storage.
func (ctx *CallContext) GetState(key common.Hash) common.Hash {
	return ctx.env.GetState(ctx.Address, key)
}

// SetState writes a word to the executing contract's storage.
func (ctx *CallContext) SetState(key, value common.Hash) error {
	if ctx.readOnly {
		return ErrWriteProtection
	}
	ctx.env.setState(ctx.Address, key, value)
	return nil
}

// Balance returns any address's native balance.
func (ctx *CallContext) Balance(addr common.Address) *uint256.Int {
	return ctx.env.BalanceOf(addr)
}

// Call performs a nested call from the executing contract. Read-only frames
// force static on every child.
func (ctx *CallContext) Call(to common.Address, data []byte, value *uint256.Int, static bool) ([]byte, error) {
	return ctx.env.Execute(CallMetadata{
		From:   ctx.Address,
		To:     to,
		Data:   data,
		Value:  value,
		Static: static || ctx.readOnly,
	})
}
