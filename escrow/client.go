package escrow

import (
	"context"
	"fmt"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// OperationStatus is the outcome of posting an on-chain operation.
type OperationStatus int

const (
	// OperationConfirmed means the operation was included and reached
	// the caller's requested confirmation depth.
	OperationConfirmed OperationStatus = iota
	// OperationRejected means the chain rejected the operation outright
	// (e.g. a failing contract precondition).
	OperationRejected
)

// Client is the abstract on-chain capability every zkChannels entrypoint
// invocation and state query goes through. The spec treats this as a pure
// capability: implementations may be a real RPC client or an in-process
// ledger simulator (Simulator, below). Implementations MUST NOT return
// provisional (unconfirmed) contract state from GetContractState.
type Client interface {
	// Originate posts the contract origination operation. It does not
	// fund the contract: deposits are posted afterwards through
	// AddCustomerFunding and AddMerchantFunding.
	Originate(ctx context.Context, details ContractDetails, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (ContractId, uint64, error)

	// AddCustomerFunding posts the customer's funding deposit.
	AddCustomerFunding(ctx context.Context, contractId ContractId, amount zkabacus.CustomerBalance) (OperationStatus, uint64, error)

	// AddMerchantFunding posts the merchant's funding deposit.
	AddMerchantFunding(ctx context.Context, contractId ContractId, amount zkabacus.MerchantBalance) (OperationStatus, uint64, error)

	// ReclaimCustomerFunding reclaims the customer's deposit before the
	// contract reaches Open (e.g. the merchant never funded).
	ReclaimCustomerFunding(ctx context.Context, contractId ContractId) (OperationStatus, uint64, error)

	// ReclaimMerchantFunding reclaims the merchant's deposit before the
	// contract reaches Open.
	ReclaimMerchantFunding(ctx context.Context, contractId ContractId) (OperationStatus, uint64, error)

	// Expiry posts the merchant's unilateral expiry operation.
	Expiry(ctx context.Context, contractId ContractId) (OperationStatus, uint64, error)

	// CustomerClose posts a ClosingMessage as a unilateral close.
	CustomerClose(ctx context.Context, contractId ContractId, closing zkabacus.ClosingMessage) (OperationStatus, uint64, error)

	// MerchantDispute posts a revocation secret that opens the posted
	// close's revocation lock, paying both balances to the merchant.
	MerchantDispute(ctx context.Context, contractId ContractId, secret zkabacus.RevocationSecret) (OperationStatus, uint64, error)

	// CustomerClaim posts the customer's claim to its balance once the
	// custClose self-delay has elapsed.
	CustomerClaim(ctx context.Context, contractId ContractId) (OperationStatus, uint64, error)

	// MerchantClaim posts the merchant's claim to its balance after
	// expiry or dispute.
	MerchantClaim(ctx context.Context, contractId ContractId) (OperationStatus, uint64, error)

	// MutualClose posts a cooperatively-negotiated close authorized by
	// the merchant's AuthorizationSignature.
	MutualClose(ctx context.Context, contractId ContractId, state zkabacus.CloseState, merchantAuth AuthorizationSignature) (OperationStatus, uint64, error)

	// GetContractState queries the contract's status and balances at
	// the client's configured confirmation depth.
	GetContractState(ctx context.Context, contractId ContractId) (ContractState, error)
}

// AuthorizationSignature is the merchant's on-chain signing key signature
// over the mutual-close payout tuple (contract_id, "zkChannels mutual
// close", channel_id, customer_balance, merchant_balance). It is distinct
// from the opaque zkAbacus ClosingSignature: this is a concrete,
// DER-encoded secp256k1 ECDSA signature, the same kind of plain on-chain
// signing operation lnd performs for its own transactions.
type AuthorizationSignature struct {
	Bytes []byte
}

// Error is the escrow-layer error type, matching the taxonomy in
// spec.md §7's ChainError kinds.
type Error struct {
	Kind       ErrorKind
	Entrypoint Entrypoint
	ContractId ContractId
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNetworkFailure:
		return fmt.Sprintf("escrow: network failure processing operation %s", e.Entrypoint)
	case ErrOperationFailure:
		return fmt.Sprintf("escrow: operation %s failed to confirm for contract %s", e.Entrypoint, e.ContractId)
	case ErrOperationInvalid:
		return fmt.Sprintf("escrow: operation %s invalid for contract %s", e.Entrypoint, e.ContractId)
	case ErrInvalidZkChannelsContract:
		return fmt.Sprintf("escrow: contract %s is not a valid zkChannels contract", e.ContractId)
	case ErrSigningFailed:
		return fmt.Sprintf("escrow: failed to sign mutual close authorization for contract %s", e.ContractId)
	case ErrInvalidAuthorizationSignature:
		return fmt.Sprintf("escrow: mutual close authorization signature invalid for contract %s", e.ContractId)
	case ErrUnexpectedContractStatus:
		return fmt.Sprintf("escrow: unexpected contract status for contract %s", e.ContractId)
	case ErrUnexpectedMerchantBalance:
		return fmt.Sprintf("escrow: unexpected merchant balance for contract %s", e.ContractId)
	case ErrUnexpectedCustomerBalance:
		return fmt.Sprintf("escrow: unexpected customer balance for contract %s", e.ContractId)
	case ErrUnexpectedMerchantKey:
		return fmt.Sprintf("escrow: unexpected merchant key for contract %s", e.ContractId)
	case ErrUnexpectedContractHash:
		return fmt.Sprintf("escrow: unexpected contract code hash for contract %s", e.ContractId)
	case ErrUnexpectedSelfDelay:
		return fmt.Sprintf("escrow: unexpected self delay for contract %s", e.ContractId)
	default:
		return fmt.Sprintf("escrow: error (kind %d) for contract %s", e.Kind, e.ContractId)
	}
}

// ErrorKind enumerates the chain-error taxonomy from spec.md §7.
type ErrorKind int

const (
	ErrNetworkFailure ErrorKind = iota
	ErrOperationFailure
	ErrOperationInvalid
	ErrInvalidZkChannelsContract
	ErrSigningFailed
	ErrInvalidAuthorizationSignature
	ErrUnexpectedContractStatus
	ErrUnexpectedMerchantBalance
	ErrUnexpectedCustomerBalance
	ErrUnexpectedMerchantKey
	ErrUnexpectedContractHash
	ErrUnexpectedSelfDelay
)
