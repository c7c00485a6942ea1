package establish

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// MerchantIdentity is the merchant's own key material, used to derive the
// ChannelId alongside the customer's contribution.
type MerchantIdentity struct {
	ZkAbacusPublicKey   []byte
	TezosFundingAddress string
}

// RunMerchant drives the merchant side of Establish once the dispatcher
// has routed an inbound session here (branch index 2). fundMerchant posts
// the merchant's own on-chain funding once the contract is originated and
// customer-funded, returning the contract it funded once it has confirmed
// at the configured depth.
func RunMerchant(
	ctx context.Context,
	ch *transport.Chan,
	db *store.MerchantStore,
	crypto MerchantCrypto,
	identity MerchantIdentity,
	fundMerchant func(ctx context.Context, channelId zkabacus.ChannelId, customerTezosAddress string, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (escrow.ContractId, error),
) error {
	// Step 1.
	var reqMsg transport.EstablishRequest
	if err := ch.Recv(&reqMsg); err != nil {
		return fmt.Errorf("establish: receiving establish request: %w", err)
	}

	// TODO: consult an approver policy before continuing; for now every
	// well-formed deposit request is accepted.
	if reqMsg.CustomerBalance == 0 && reqMsg.MerchantBalance == 0 {
		abortWith(ch, AbortInvalidDeposit, "zero-value channel requested")
		return &ProtocolAbort{Kind: AbortInvalidDeposit}
	}

	// Step 2.
	if err := ch.SendContinue(); err != nil {
		return fmt.Errorf("establish: sending continue: %w", err)
	}

	// Step 3.
	var merchantRandomness zkabacus.MerchantRandomness
	if _, err := rand.Read(merchantRandomness[:]); err != nil {
		return fmt.Errorf("establish: generating merchant randomness: %w", err)
	}
	if err := ch.Send(&transport.MerchantRandomnessMsg{MerchantRandomness: merchantRandomness}); err != nil {
		return fmt.Errorf("establish: sending merchant randomness: %w", err)
	}

	// Step 4 (merchant-side derivation; customerTezosAddress is unknown
	// to the merchant until it is told separately, so it is threaded
	// through as an explicit argument here rather than read off the
	// wire — spec.md's distillation leaves this channel unspecified).
	channelId, err := deriveChannelId(merchantRandomness, reqMsg.CustomerRandomness, identity.ZkAbacusPublicKey, identity.TezosFundingAddress, "")
	if err != nil {
		return fmt.Errorf("establish: deriving channel id: %w", err)
	}

	sessionContext := zkabacus.NewContext([]byte(ch.Key().String()))

	// Step 6 (receive).
	var proofMsg transport.EstablishProofMsg
	if err := ch.Recv(&proofMsg); err != nil {
		return fmt.Errorf("establish: receiving establish proof: %w", err)
	}
	if !crypto.VerifyEstablishProof(proofMsg.Proof, channelId, reqMsg.CustomerBalance, reqMsg.MerchantBalance, sessionContext) {
		abortWith(ch, AbortInvalidClosingSignature, "establish proof failed verification")
		return &ProtocolAbort{Kind: AbortInvalidClosingSignature, Reason: "establish proof failed verification"}
	}

	// Step 7.
	if err := ch.SendContinue(); err != nil {
		return fmt.Errorf("establish: sending continue: %w", err)
	}

	// Step 8: issue the initial closing signature. The merchant does not
	// yet know the customer's chosen revocation lock (it is generated
	// locally by the customer in Requested); it signs over the
	// zero-value placeholder lock that Requested seeds the first close
	// with, matching the reference implementation's Initialize contract.
	var revocationLockPlaceholder zkabacus.RevocationLock
	signature, err := crypto.IssueClosingSignature(channelId, reqMsg.CustomerBalance, reqMsg.MerchantBalance, revocationLockPlaceholder)
	if err != nil {
		return fmt.Errorf("establish: issuing initial closing signature: %w", err)
	}
	if err := ch.Send(&transport.ClosingSignatureMsg{Signature: signature}); err != nil {
		return fmt.Errorf("establish: sending initial closing signature: %w", err)
	}

	// Steps 9-10 happen on the customer's side (persisting Inactive and
	// originating/funding the contract); the merchant posts its own
	// funding once it observes the contract and the customer's deposit.
	contractId, err := fundMerchant(ctx, channelId, "", reqMsg.CustomerBalance, reqMsg.MerchantBalance)
	if err != nil {
		return fmt.Errorf("establish: funding merchant side of contract: %w", err)
	}
	if err := db.NewChannelStatus(ctx, channelId); err != nil {
		return fmt.Errorf("establish: recording channel status: %w", err)
	}
	if err := db.SetContractId(ctx, channelId, contractId); err != nil {
		return fmt.Errorf("establish: recording contract id: %w", err)
	}
	// Bind this session to the channel so a later reconnect for Pay or
	// Close can be resolved back to channelId without the customer
	// resending its identity (spec.md §4.I).
	if err := db.BindSession(ctx, channelId, ch.Key()); err != nil {
		return fmt.Errorf("establish: binding session to channel: %w", err)
	}

	// Step 11.
	if err := ch.SendContinue(); err != nil {
		return fmt.Errorf("establish: confirming funding: %w", err)
	}

	// Step 12: issue the activation pay token.
	token, err := crypto.IssuePayToken(channelId, reqMsg.CustomerBalance, reqMsg.MerchantBalance)
	if err != nil {
		return fmt.Errorf("establish: issuing pay token: %w", err)
	}
	if err := ch.Send(&transport.PayTokenMsg{Token: token}); err != nil {
		return fmt.Errorf("establish: sending pay token: %w", err)
	}

	return nil
}
