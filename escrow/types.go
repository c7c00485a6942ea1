// Package escrow models the abstract on-chain client: the set of named
// smart-contract entrypoints a zkChannels contract exposes and the status
// query that drives the customer's chain-watching control loop.
//
// The concrete Tezos RPC invocations are out of scope (spec.md §1); this
// package defines the capability interface and data types that any backend
// — a real RPC client or an in-process simulator — must satisfy.
package escrow

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// ContractId is the on-chain originated address of a zkChannels contract.
type ContractId struct {
	Address string
}

func (c ContractId) String() string { return c.Address }

// IsZero reports whether the contract has not yet been originated.
func (c ContractId) IsZero() bool { return c.Address == "" }

// TezosPublicKey is an opaque Tezos account public key.
type TezosPublicKey []byte

// TezosFundingAddress is the implicit address (hash of a public key) that
// funds a zkChannels contract.
type TezosFundingAddress string

// KeyHash is a SHA3-256 digest binding a merchant's zkAbacus public key to
// its Tezos identity: its zkAbacus public key bytes, its Tezos funding
// address, and its Tezos public key. Delivered during the Parameters
// exchange so a customer can independently verify the merchant's key
// material.
type KeyHash [32]byte

// NewKeyHash computes the KeyHash for a merchant's key material.
func NewKeyHash(zkabacusPublicKey []byte, fundingAddress TezosFundingAddress, tezosPublicKey TezosPublicKey) KeyHash {
	h := sha3.New256()
	h.Write(zkabacusPublicKey)
	h.Write([]byte(fundingAddress))
	h.Write(tezosPublicKey)
	var out KeyHash
	copy(out[:], h.Sum(nil))
	return out
}

func (k KeyHash) String() string { return hex.EncodeToString(k[:]) }

// ContractDetails describes where a zkChannels contract lives on chain and
// who its merchant party is.
type ContractDetails struct {
	MerchantTezosPublicKey TezosPublicKey
	ContractId             ContractId
	ContractLevel          uint64
}

// Entrypoint names one of the zkChannels contract's on-chain entrypoints.
type Entrypoint int

const (
	EntrypointOriginate Entrypoint = iota
	EntrypointAddMerchantFunding
	EntrypointAddCustomerFunding
	EntrypointReclaimMerchantFunding
	EntrypointReclaimCustomerFunding
	EntrypointExpiry
	EntrypointCustomerClose
	EntrypointMerchantDispute
	EntrypointCustomerClaim
	EntrypointMerchantClaim
	EntrypointMutualClose
)

func (e Entrypoint) String() string {
	switch e {
	case EntrypointOriginate:
		return "originate"
	case EntrypointAddMerchantFunding:
		return "addFunding for merchant"
	case EntrypointAddCustomerFunding:
		return "addFunding for customer"
	case EntrypointReclaimMerchantFunding:
		return "reclaimFunding for merchant"
	case EntrypointReclaimCustomerFunding:
		return "reclaimFunding for customer"
	case EntrypointExpiry:
		return "expiry"
	case EntrypointCustomerClose:
		return "custClose"
	case EntrypointMerchantDispute:
		return "merchDispute"
	case EntrypointCustomerClaim:
		return "custClaim"
	case EntrypointMerchantClaim:
		return "merchClaim"
	case EntrypointMutualClose:
		return "mutualClose"
	default:
		return fmt.Sprintf("entrypoint(%d)", int(e))
	}
}

// ContractStatus is the status of a zkChannels contract as observed on
// chain, at the caller-requested confirmation depth.
type ContractStatus int

const (
	AwaitingCustomerFunding ContractStatus = iota
	AwaitingMerchantFunding
	Open
	Expiry
	CustomerClose
	Closed
	FundingReclaimed
)

func (s ContractStatus) String() string {
	switch s {
	case AwaitingCustomerFunding:
		return "awaiting customer funding"
	case AwaitingMerchantFunding:
		return "awaiting merchant funding"
	case Open:
		return "open"
	case Expiry:
		return "expiry"
	case CustomerClose:
		return "customer close"
	case Closed:
		return "closed"
	case FundingReclaimed:
		return "funding reclaimed"
	default:
		return fmt.Sprintf("contract status(%d)", int(s))
	}
}

// ContractState is the result of get_contract_state: the full picture of a
// contract needed to drive the chain-watching control loop.
type ContractState struct {
	Status              ContractStatus
	CustomerBalance     zkabacus.CustomerBalance
	MerchantBalance     zkabacus.MerchantBalance
	RevocationLock      *zkabacus.RevocationLock
	SelfDelay           uint64
	DelayExpiry         uint64
	MerchantPublicKey   TezosPublicKey
	ContractCodeHash    [32]byte
	CurrentLevel        uint64
}

// TimeoutExpired reports whether the self-delay timelock following a
// custClose has passed, given the current chain level.
func (s ContractState) TimeoutExpired() bool {
	return s.CurrentLevel >= s.DelayExpiry
}
