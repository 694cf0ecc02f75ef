package core

import (
	"github.com/aerafi/vault-engine/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// SubmissionEvent reports the outcome of one top-level submission for
// off-engine auditing. Reason is ReasonUnspecified on success; on failure
// OpIndex carries the failing operation (-1 for batch-level failures) and
// Payload the preserved failure bytes, if any.
type SubmissionEvent struct {
	Guardian   common.Address
	Operations int
	Reason     tracing.FailureReason
	OpIndex    int
	Payload    []byte
}

// RootRotationEvent reports a successful guardian-root change.
type RootRotationEvent struct {
	Guardian common.Address
	OldRoot  common.Hash
	NewRoot  common.Hash
}

// GuardianEvent reports a guardian being registered or removed.
type GuardianEvent struct {
	Guardian   common.Address
	Registered bool
}

// SubscribeSubmissions subscribes to submission outcomes.
func (v *Vault) SubscribeSubmissions(ch chan<- SubmissionEvent) event.Subscription {
	return v.submissionFeed.Subscribe(ch)
}

// SubscribeRootRotations subscribes to guardian-root changes.
func (v *Vault) SubscribeRootRotations(ch chan<- RootRotationEvent) event.Subscription {
	return v.rootFeed.Subscribe(ch)
}

// SubscribeGuardians subscribes to guardian registration changes.
func (v *Vault) SubscribeGuardians(ch chan<- GuardianEvent) event.Subscription {
	return v.guardianFeed.Subscribe(ch)
}
