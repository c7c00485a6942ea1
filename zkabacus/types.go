// Package zkabacus defines the opaque cryptographic primitives and the
// persisted channel state machine for a zkChannels payment channel.
//
// The Pointcheval-Sanders blind-signature scheme, its proof system and the
// range proofs that back it are treated as opaque operations with stated
// contracts: this package declares the interfaces those primitives must
// satisfy and the data they carry, but does not implement the proof system
// itself.
package zkabacus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const channelIDLength = 32

// ChannelId is an opaque 32-byte identifier for a channel, derived
// deterministically from merchant randomness, customer randomness, the
// merchant's public key and both parties' on-chain addresses.
type ChannelId [channelIDLength]byte

// NewChannelId derives a ChannelId the same way the Establish protocol does:
// it is the caller's responsibility to supply a binding, deterministic
// combination of the randomness contributed by both parties and the
// identifying material of both on-chain addresses. The concrete derivation
// (a collision-resistant hash of all five inputs) lives in the establish
// package, which has access to the hash function used to bind the
// transcript; this constructor is a thin, panic-free validator used once
// that derivation has produced 32 bytes.
func NewChannelId(b []byte) (ChannelId, error) {
	var id ChannelId
	if len(b) != channelIDLength {
		return id, fmt.Errorf("zkabacus: channel id must be %d bytes, got %d", channelIDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (c ChannelId) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether the channel id has never been assigned.
func (c ChannelId) IsZero() bool {
	return c == ChannelId{}
}

// CustomerBalance is a non-negative quantity of minor units held by the
// customer side of a channel.
type CustomerBalance uint64

// MerchantBalance is a non-negative quantity of minor units held by the
// merchant side of a channel.
type MerchantBalance uint64

// Nonce is an opaque freshness token, unique per channel across all
// payments, enforced by the merchant's nonce table.
type Nonce [32]byte

// NewNonce draws a fresh, uniformly random nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("zkabacus: failed to generate nonce: %w", err)
	}
	return n, nil
}

func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// RevocationSecret is the opening half of a revocation commitment.
type RevocationSecret [32]byte

// RevocationLock is the commitment half of a revocation pair. A secret
// hashes deterministically to its lock; see Open.
type RevocationLock [32]byte

func (l RevocationLock) String() string {
	return hex.EncodeToString(l[:])
}

// Open reports whether secret opens lock, i.e. hash(secret) == lock.
func (l RevocationLock) Open(secret RevocationSecret) bool {
	return HashRevocationSecret(secret) == l
}

// CustomerRandomness is the customer's randomness contribution to ChannelId
// derivation.
type CustomerRandomness [32]byte

// MerchantRandomness is the merchant's randomness contribution to ChannelId
// derivation.
type MerchantRandomness [32]byte

// BlindingFactor is the customer-chosen value used to blind the pay token
// request and to re-randomize the revocation lock disclosed during Lock.
type BlindingFactor [32]byte

// ClosingSignature is the merchant's blind signature authorizing a
// particular CloseState. Its internal representation is opaque: this
// package only moves it around and serializes it.
type ClosingSignature struct {
	Bytes []byte
}

// PayToken is a merchant-issued, blindly-signed token enabling the next
// payment from a given state. Its internal representation, like
// ClosingSignature, is opaque.
type PayToken struct {
	Bytes []byte
}

// CloseState is the tuple that custClose/mutualClose posts on chain.
type CloseState struct {
	ChannelId       ChannelId
	CustomerBalance CustomerBalance
	MerchantBalance MerchantBalance
	RevocationLock  RevocationLock
}

// ClosingMessage is the customer's on-chain evidence needed to call
// custClose: a CloseState together with the ClosingSignature that
// authorizes it.
type ClosingMessage struct {
	CloseState CloseState
	Signature  ClosingSignature
}

// Context is the proof context binding a cryptographic proof to a
// particular session transcript. It is derived from the session key
// material established at connection time.
type Context struct {
	Bytes []byte
}

// NewContext builds a proof Context from session key material.
func NewContext(sessionKeyMaterial []byte) Context {
	b := make([]byte, len(sessionKeyMaterial))
	copy(b, sessionKeyMaterial)
	return Context{Bytes: b}
}

// EstablishProof is the zero-knowledge proof produced in zkAbacus.Initialize
// binding (channel_id, merchant_deposit, customer_deposit, context).
type EstablishProof struct {
	Bytes []byte
}

// PayProof is the zero-knowledge proof produced when starting a payment,
// binding the committed prior state, the requested payment amount, and the
// nonce.
type PayProof struct {
	Bytes []byte
}

// StartMessage is what the customer sends the merchant to begin a payment:
// a fresh nonce and the proof that the requested transition is valid.
type StartMessage struct {
	Nonce Nonce
	Proof PayProof
}

// LockMessage is what the customer discloses to revoke its previous close
// capability: the opening of the previous state's revocation commitment,
// plus the blinding factor used to construct the new pay-token request.
type LockMessage struct {
	RevocationLock   RevocationLock
	RevocationSecret RevocationSecret
	BlindingFactor   BlindingFactor
}

// ChannelName is a human label, locally unique on the customer side.
type ChannelName string

func (n ChannelName) String() string { return string(n) }

// Suffixed returns a new ChannelName with a parenthesized numeric suffix,
// used to resolve label collisions: "foo" -> "foo (1)" -> "foo (2)" ...
func (n ChannelName) Suffixed(count int) ChannelName {
	if count <= 0 {
		return n
	}
	return ChannelName(fmt.Sprintf("%s (%d)", n, count))
}
