package pay

import (
	"context"
	"fmt"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"

	"github.com/boltlabs-inc/zkchannels/metrics"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// RunMerchant drives the merchant side of Pay once the dispatcher has
// routed an inbound session here (branch index 1). channelId identifies
// the channel the dispatcher already resolved from the session's prior
// Establish.
func RunMerchant(ctx context.Context, ch *transport.Chan, db *store.MerchantStore, crypto MerchantCrypto, channelId zkabacus.ChannelId) error {
	// Step 1.
	var reqMsg transport.PayRequest
	if err := ch.Recv(&reqMsg); err != nil {
		return fmt.Errorf("pay: receiving pay request: %w", err)
	}

	// TODO: consult an approver policy before continuing; for now every
	// payment request is accepted.

	// Step 2.
	if err := ch.SendContinue(); err != nil {
		return fmt.Errorf("pay: sending continue: %w", err)
	}

	// Step 3 (receive).
	var startMsg transport.StartMessageMsg
	if err := ch.Recv(&startMsg); err != nil {
		return fmt.Errorf("pay: receiving start message: %w", err)
	}

	// Step 4: insert the nonce before trusting the proof, so a replayed
	// nonce is rejected even if the proof happens to verify.
	fresh, err := db.InsertNonce(ctx, startMsg.Nonce)
	if err != nil {
		return fmt.Errorf("pay: inserting nonce: %w", err)
	}
	if !fresh {
		abortWith(ch, AbortReusedNonce, "nonce already used")
		return &ProtocolAbort{Kind: AbortReusedNonce, Reason: "nonce already used"}
	}
	if !crypto.VerifyPayProof(startMsg.Proof, channelId, reqMsg.Amount, startMsg.Nonce) {
		abortWith(ch, AbortInvalidPayProof, "pay proof failed verification")
		return &ProtocolAbort{Kind: AbortInvalidPayProof, Reason: "pay proof failed verification"}
	}

	signature, err := crypto.IssueClosingSignature(channelId, startMsg.Nonce)
	if err != nil {
		return fmt.Errorf("pay: issuing new closing signature: %w", err)
	}
	if err := ch.Send(&transport.ClosingSignatureMsg{Signature: signature}); err != nil {
		return fmt.Errorf("pay: sending new closing signature: %w", err)
	}

	// Step 7 (receive).
	var lockMsg transport.LockMessageMsg
	if err := ch.Recv(&lockMsg); err != nil {
		return fmt.Errorf("pay: receiving lock message: %w", err)
	}
	if !crypto.VerifyRevocation(lockMsg.RevocationLock, lockMsg.RevocationSecret, lockMsg.BlindingFactor) {
		abortWith(ch, AbortInvalidRevocation, "revocation failed to open the prior commitment")
		return &ProtocolAbort{Kind: AbortInvalidRevocation, Reason: "revocation failed to open the prior commitment"}
	}
	prior, err := db.InsertRevocation(ctx, lockMsg.RevocationLock, &lockMsg.RevocationSecret)
	if err != nil {
		return fmt.Errorf("pay: inserting revocation: %w", err)
	}
	for _, p := range prior {
		if p.Secret == nil {
			log.Warnf("Channel %v: dispute evidence acquired, revocation lock %x was posted on-chain without its secret", channelId, lockMsg.RevocationLock)
			if log.Level() <= btclog.LevelDebug {
				log.Debugf("Dispute evidence detail: %s", spew.Sdump(lockMsg))
			}
		}
	}

	// Step 8: issue the pay token activating the new balance.
	token, err := crypto.IssuePayToken(channelId, startMsg.Nonce)
	if err != nil {
		return fmt.Errorf("pay: issuing pay token: %w", err)
	}
	if err := ch.Send(&transport.PayTokenMsg{Token: token}); err != nil {
		return fmt.Errorf("pay: sending pay token: %w", err)
	}

	return nil
}

// abortWith sends an abort with kind and reason, logging rather than
// propagating a failure to do even that.
func abortWith(ch *transport.Chan, kind AbortKind, reason string) {
	metrics.AbortsTotal.WithLabelValues("pay", kind.String()).Inc()
	if err := ch.Abort(uint8(kind), transport.AbortReason(reason)); err != nil {
		log.Errorf("Failed to send abort (%s: %s): %v", kind, reason, err)
	}
}
