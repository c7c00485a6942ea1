package closer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/metrics"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("CLOS")

// SetLogLevel sets this subsystem's logging level, for main to wire up
// from its --loglevel configuration.
func SetLogLevel(level string) { zkchanlog.SetLevel(log, level) }

// RunCustomerMutualClose drives the customer side of a mutual close for
// label to completion, leaving the channel Closed with final balances
// recorded on success.
func RunCustomerMutualClose(ctx context.Context, ch *transport.Chan, db *store.CustomerStore, client escrow.Client, merchantPublicKey *secp256k1.PublicKey, label zkabacus.ChannelName) error {
	if err := ch.Choose(transport.ChoiceClose); err != nil {
		return fmt.Errorf("closer: selecting session: %w", err)
	}

	record, err := db.Get(ctx, label)
	if err != nil {
		return fmt.Errorf("closer: loading channel %v: %w", label, err)
	}
	if record.ContractId == nil {
		return fmt.Errorf("closer: channel %v has no on-chain contract", label)
	}
	contractId := *record.ContractId

	// Step 1.
	closing, err := db.WithCloseableChannel(ctx, label, func(c zkabacus.Closeable) (zkabacus.ClosingMessage, zkabacus.PendingClose, error) {
		return c.Close(rand.Reader)
	})
	if err != nil {
		if errors.Is(err, store.ErrUncloseableState) {
			return ErrUncloseableState
		}
		return fmt.Errorf("closer: producing close message: %w", err)
	}

	// Step 2.
	if err := ch.Send(&transport.CloseRequest{Signature: closing.Signature, CloseState: closing.CloseState}); err != nil {
		return fmt.Errorf("closer: sending close request: %w", err)
	}

	// Step 3.
	ok, kind, reason, err := ch.RecvContinueOrAbort()
	if err != nil {
		return fmt.Errorf("closer: waiting for merchant acceptance: %w", err)
	}
	if !ok {
		return &ProtocolAbort{Kind: AbortKind(kind), Reason: string(reason)}
	}

	// Step 4.
	var authMsg transport.MutualCloseAuthMsg
	if err := ch.Recv(&authMsg); err != nil {
		return fmt.Errorf("closer: receiving mutual close authorization: %w", err)
	}

	// Step 5.
	state := closing.CloseState
	if !escrow.VerifyMutualClose(merchantPublicKey, authMsg.Signature, contractId, state.ChannelId, state.CustomerBalance, state.MerchantBalance) {
		return &ProtocolAbort{Kind: AbortInvalidMerchantAuthSignature, Reason: "merchant authorization signature failed verification"}
	}
	status, level, err := client.MutualClose(ctx, contractId, state, authMsg.Signature)
	if err != nil {
		return fmt.Errorf("closer: posting mutual close: %w", err)
	}
	if status != escrow.OperationConfirmed {
		return &ProtocolAbort{Kind: AbortInvalidMerchantAuthSignature, Reason: "ledger rejected mutual close authorization"}
	}

	if err := db.SetContractLevel(ctx, label, level); err != nil {
		log.Errorf("Failed to record contract level for channel %v: %v", label, err)
	}
	if err := FinalizeCustomerClose(ctx, db, label); err != nil {
		return fmt.Errorf("closer: finalizing channel %v: %w", label, err)
	}

	log.Infof("Channel %v closed mutually at final balances %d/%d", label, state.CustomerBalance, state.MerchantBalance)
	return nil
}

// RunMerchantMutualClose drives the merchant side of a mutual close once
// the dispatcher has routed an inbound session here (branch index 3).
// contractId and key are the channel's on-chain contract and the
// merchant's own on-chain signing key, both known to the dispatcher from
// the channel's Establish record.
func RunMerchantMutualClose(ctx context.Context, ch *transport.Chan, db *store.MerchantStore, crypto MerchantCrypto, contractId escrow.ContractId, key *secp256k1.PrivateKey) error {
	// Step 2 (receive).
	var req transport.CloseRequest
	if err := ch.Recv(&req); err != nil {
		return fmt.Errorf("closer: receiving close request: %w", err)
	}

	// Step 3.
	if !crypto.VerifyClosingSignature(req.Signature, req.CloseState) {
		abortWith(ch, AbortInvalidCloseStateSignature, "closing signature failed verification")
		return &ProtocolAbort{Kind: AbortInvalidCloseStateSignature, Reason: "closing signature failed verification"}
	}
	prior, err := db.InsertRevocation(ctx, req.CloseState.RevocationLock, nil)
	if err != nil {
		return fmt.Errorf("closer: inserting revocation lock: %w", err)
	}
	if len(prior) > 0 {
		abortWith(ch, AbortKnownRevocationLock, "revocation lock already known")
		return &ProtocolAbort{Kind: AbortKnownRevocationLock, Reason: "revocation lock already known"}
	}
	if err := ch.SendContinue(); err != nil {
		return fmt.Errorf("closer: sending continue: %w", err)
	}

	// CAS the merchant's bookkeeping status before handing out an
	// authorization signature, so a racing duplicate close attempt
	// against the same channel fails cleanly instead of issuing two
	// signatures (spec.md §4.H failure semantics).
	channelId := req.CloseState.ChannelId
	if err := db.CompareAndSwapChannelStatus(ctx, channelId, store.ChannelStatusActive, store.ChannelStatusPendingClose); err != nil {
		return fmt.Errorf("closer: %w", err)
	}

	// Step 4.
	sig := escrow.SignMutualClose(key, contractId, channelId, req.CloseState.CustomerBalance, req.CloseState.MerchantBalance)
	if err := ch.Send(&transport.MutualCloseAuthMsg{Signature: sig}); err != nil {
		return fmt.Errorf("closer: sending authorization signature: %w", err)
	}

	return nil
}

// abortWith sends an abort with kind and reason, logging rather than
// propagating a failure to do even that.
func abortWith(ch *transport.Chan, kind AbortKind, reason string) {
	metrics.AbortsTotal.WithLabelValues("close", kind.String()).Inc()
	if err := ch.Abort(uint8(kind), transport.AbortReason(reason)); err != nil {
		log.Errorf("Failed to send abort (%s: %s): %v", kind, reason, err)
	}
}
