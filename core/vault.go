// Package core implements the guarded operation engine: a vault whose
// guardians may only execute call batches pre-approved by the owner through
// per-guardian merkle-root commitments. The submission orchestrator decodes
// a batch, authorizes and dispatches each operation in order, threads data
// between calls through the clipboard engine, admits at most one declared
// re-entrant callback per operation, and reverts every effect of the batch
// on any failure.
package core

import (
	"fmt"

	"github.com/aerafi/vault-engine/core/merkle"
	"github.com/aerafi/vault-engine/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

const defaultProofCacheSize = 1024

// Config carries the vault's static identity and tunables.
type Config struct {
	// Owner may register guardians, rotate roots and set the hooks target.
	Owner common.Address
	// Address is the vault's own identity: the From of every dispatched
	// call and the address callback targets re-enter through.
	Address common.Address
	// HooksTarget, when non-zero, receives the batch-level before/after
	// submit hooks.
	HooksTarget common.Address
	// ProofCacheSize bounds the verified-proof cache (default 1024).
	ProofCacheSize int
}

// Vault owns the guardian registry and drives submissions against an
// execution backend.
type Vault struct {
	owner       common.Address
	address     common.Address
	hooksTarget common.Address

	exec     vm.Executor
	verifier *merkle.Verifier

	// guardians maps registered guardians to their commitment root. A zero
	// root means the guardian is registered but has no authorized
	// operations yet.
	guardians map[common.Address]common.Hash

	// active is the currently-running submission; inbound callback calls
	// route to it. Execution is single-threaded, so a plain field suffices.
	active *submission

	submissionFeed event.Feed
	rootFeed       event.Feed
	guardianFeed   event.Feed
}

// NewVault creates a vault on the given execution backend. When the backend
// is the in-memory environment, the vault registers its own inbound handler
// so that dispatched targets can perform their declared callbacks; other
// backends wire Handler() themselves.
func NewVault(cfg Config, exec vm.Executor) *Vault {
	size := cfg.ProofCacheSize
	if size <= 0 {
		size = defaultProofCacheSize
	}
	v := &Vault{
		owner:       cfg.Owner,
		address:     cfg.Address,
		hooksTarget: cfg.HooksTarget,
		exec:        exec,
		verifier:    merkle.NewVerifier(size),
		guardians:   make(map[common.Address]common.Hash),
	}
	if env, ok := exec.(*vm.Environment); ok {
		env.Register(cfg.Address, v.handleInbound)
	}
	return v
}

// Address returns the vault's call identity.
func (v *Vault) Address() common.Address { return v.address }

// Owner returns the administrative owner.
func (v *Vault) Owner() common.Address { return v.owner }

// HooksTarget returns the configured batch-level hook target, zero if none.
func (v *Vault) HooksTarget() common.Address { return v.hooksTarget }

// Handler exposes the inbound callback entry point for custom executors.
func (v *Vault) Handler() vm.Handler { return v.handleInbound }

// RegisterGuardian adds a guardian with no authorized operations. Owner
// only.
func (v *Vault) RegisterGuardian(caller, guardian common.Address) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	if guardian == (common.Address{}) {
		return fmt.Errorf("cannot register zero guardian")
	}
	if _, ok := v.guardians[guardian]; ok {
		return fmt.Errorf("guardian %s already registered", guardian)
	}
	v.guardians[guardian] = common.Hash{}
	v.guardianFeed.Send(GuardianEvent{Guardian: guardian, Registered: true})
	log.Info("Guardian registered", "guardian", guardian)
	return nil
}

// RemoveGuardian removes a guardian and its root. Owner only.
func (v *Vault) RemoveGuardian(caller, guardian common.Address) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	if _, ok := v.guardians[guardian]; !ok {
		return fmt.Errorf("guardian %s not registered", guardian)
	}
	delete(v.guardians, guardian)
	v.guardianFeed.Send(GuardianEvent{Guardian: guardian, Registered: false})
	log.Info("Guardian removed", "guardian", guardian)
	return nil
}

// SetGuardianRoot rotates a registered guardian's commitment root. Owner
// only. Proofs issued under the previous root stop verifying immediately.
func (v *Vault) SetGuardianRoot(caller, guardian common.Address, root common.Hash) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	old, ok := v.guardians[guardian]
	if !ok {
		return fmt.Errorf("guardian %s not registered", guardian)
	}
	v.guardians[guardian] = root
	v.rootFeed.Send(RootRotationEvent{Guardian: guardian, OldRoot: old, NewRoot: root})
	log.Info("Guardian root rotated", "guardian", guardian, "old", old, "new", root)
	return nil
}

// SetHooksTarget replaces the batch-level hook target; zero disables it.
// Owner only.
func (v *Vault) SetHooksTarget(caller, target common.Address) error {
	if caller != v.owner {
		return ErrNotOwner
	}
	v.hooksTarget = target
	log.Info("Vault hooks target set", "target", target)
	return nil
}

// guardianRoot resolves the submitting guardian's root, rejecting unknown
// guardians and guardians with no root configured.
func (v *Vault) guardianRoot(guardian common.Address) (common.Hash, error) {
	root, ok := v.guardians[guardian]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s not registered", ErrUnauthorized, guardian)
	}
	if root == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("%w: %s has no root configured", ErrUnauthorized, guardian)
	}
	return root, nil
}
