package establish

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/metrics"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("ESTB")

// SetLogLevel sets this subsystem's logging level, for main to wire up
// from its --loglevel configuration.
func SetLogLevel(level string) { zkchanlog.SetLevel(log, level) }

// MerchantParameters is the merchant public key material the customer
// learns during a prior Parameters exchange (branch index 0), required to
// derive a ChannelId and verify the merchant's identity.
type MerchantParameters struct {
	ZkAbacusPublicKey   []byte
	TezosPublicKey      escrow.TezosPublicKey
	TezosFundingAddress string
	KeyHash             escrow.KeyHash
}

// CustomerRequest carries the customer-supplied inputs to Establish.
type CustomerRequest struct {
	Label                zkabacus.ChannelName
	Address              string
	CustomerDeposit      zkabacus.CustomerBalance
	MerchantDeposit      zkabacus.MerchantBalance
	Note                 string
	CustomerTezosAddress string
}

// RunCustomer drives the customer side of Establish to completion,
// persisting the resulting Inactive channel and, once the on-chain
// contract is funded and activated, stepping the store to Ready
// (spec.md §4.F).
//
// fund is invoked once the Inactive state has been durably persisted; it
// must originate and fund the on-chain contract, waiting for each step's
// confirmation depth, and return the resulting ContractId and chain
// level. Any error here still leaves a recoverable Inactive channel in
// the store (spec.md §4.F failure semantics).
func RunCustomer(
	ctx context.Context,
	ch *transport.Chan,
	db *store.CustomerStore,
	crypto CustomerCrypto,
	params MerchantParameters,
	req CustomerRequest,
	fund func(ctx context.Context, channelId zkabacus.ChannelId) (escrow.ContractId, uint64, error),
) error {
	if err := ch.Choose(transport.ChoiceEstablish); err != nil {
		return fmt.Errorf("establish: selecting session: %w", err)
	}

	var customerRandomness zkabacus.CustomerRandomness
	if _, err := rand.Read(customerRandomness[:]); err != nil {
		return fmt.Errorf("establish: generating customer randomness: %w", err)
	}

	// Step 1.
	err := ch.Send(&transport.EstablishRequest{
		CustomerRandomness: customerRandomness,
		CustomerBalance:    req.CustomerDeposit,
		MerchantBalance:    req.MerchantDeposit,
		Note:               req.Note,
	})
	if err != nil {
		return fmt.Errorf("establish: sending establish request: %w", err)
	}

	// Step 2.
	if abort, err := expectContinue(ch); err != nil {
		return err
	} else if abort != nil {
		return abort
	}

	// Step 3.
	var randomnessMsg transport.MerchantRandomnessMsg
	if err := ch.Recv(&randomnessMsg); err != nil {
		return fmt.Errorf("establish: receiving merchant randomness: %w", err)
	}

	// Step 4.
	channelId, err := deriveChannelId(randomnessMsg.MerchantRandomness, customerRandomness, params.ZkAbacusPublicKey, params.TezosFundingAddress, req.CustomerTezosAddress)
	if err != nil {
		return fmt.Errorf("establish: deriving channel id: %w", err)
	}

	// Step 5.
	sessionContext := zkabacus.NewContext([]byte(ch.Key().String()))

	// Step 6.
	proof, err := crypto.NewEstablishProof(channelId, req.CustomerDeposit, req.MerchantDeposit, sessionContext)
	if err != nil {
		return fmt.Errorf("establish: building establish proof: %w", err)
	}
	if err := ch.Send(&transport.EstablishProofMsg{Proof: proof}); err != nil {
		return fmt.Errorf("establish: sending establish proof: %w", err)
	}

	// Step 7.
	if abort, err := expectContinue(ch); err != nil {
		return err
	} else if abort != nil {
		return abort
	}

	// Step 8.
	var sigMsg transport.ClosingSignatureMsg
	if err := ch.Recv(&sigMsg); err != nil {
		return fmt.Errorf("establish: receiving initial closing signature: %w", err)
	}
	// The initial state has no prior close to revoke, so it carries the
	// zero-value RevocationLock; a real commitment is only established
	// once the first payment locks (zkabacus.Started.Lock).
	var revocationLock zkabacus.RevocationLock
	requested := zkabacus.NewRequested(channelId, req.CustomerDeposit, req.MerchantDeposit, revocationLock)
	valid := crypto.ValidateClosingSignature(sigMsg.Signature, channelId, req.CustomerDeposit, req.MerchantDeposit, revocationLock)
	inactive, err := requested.Complete(sigMsg.Signature, valid)
	if err != nil {
		abortWith(ch, AbortInvalidClosingSignature, "invalid initial closing signature")
		return &ProtocolAbort{Kind: AbortInvalidClosingSignature, Reason: "invalid initial closing signature"}
	}

	// Step 9: persist under a unique label, retrying on collision.
	label, err := persistUniqueLabel(ctx, db, req.Label, req.Address, inactive)
	if err != nil {
		return fmt.Errorf("establish: persisting channel: %w", err)
	}
	log.Infof("Persisted channel %v with channel id %v", label, channelId)

	// Step 10: originate and fund the on-chain contract.
	contractId, level, err := fund(ctx, channelId)
	if err != nil {
		return fmt.Errorf("establish: funding on-chain contract: %w", err)
	}
	if err := db.SetContractDetails(ctx, label, contractId, level, params.TezosPublicKey); err != nil {
		return fmt.Errorf("establish: recording contract details: %w", err)
	}

	// Step 11.
	ok, kind, reason, err := ch.RecvContinueOrAbort()
	if err != nil {
		return fmt.Errorf("establish: waiting for merchant funding confirmation: %w", err)
	}
	if !ok {
		return &ProtocolAbort{Kind: AbortFailedMerchantFunding, Reason: fmt.Sprintf("%v: %s", kind, reason)}
	}

	// Step 12.
	var tokenMsg transport.PayTokenMsg
	if err := ch.Recv(&tokenMsg); err != nil {
		return fmt.Errorf("establish: receiving activation pay token: %w", err)
	}
	_, err = db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		inactive, ok := current.(zkabacus.Inactive)
		if !ok {
			return nil, nil, fmt.Errorf("establish: channel %v is not Inactive at activation", label)
		}
		ready, failedInactive, activateErr := inactive.Activate(tokenMsg.Token, crypto.ValidatePayToken(tokenMsg.Token, inactive))
		if activateErr != nil {
			return failedInactive, nil, activateErr
		}
		return ready, nil, nil
	})
	if err != nil {
		abortWith(ch, AbortInvalidPayToken, "invalid pay token")
		return &ProtocolAbort{Kind: AbortInvalidPayToken, Reason: "invalid pay token"}
	}

	log.Infof("Activated channel %v", label)
	return nil
}

// expectContinue waits for a continue/abort tag, returning a non-nil
// *ProtocolAbort if the peer aborted.
func expectContinue(ch *transport.Chan) (*ProtocolAbort, error) {
	ok, kind, reason, err := ch.RecvContinueOrAbort()
	if err != nil {
		return nil, fmt.Errorf("establish: waiting for peer: %w", err)
	}
	if !ok {
		return &ProtocolAbort{Kind: AbortKind(kind), Reason: string(reason)}, nil
	}
	return nil, nil
}

func abortWith(ch *transport.Chan, kind AbortKind, reason string) {
	metrics.AbortsTotal.WithLabelValues("establish", kind.String()).Inc()
	if err := ch.Abort(uint8(kind), transport.AbortReason(reason)); err != nil {
		log.Errorf("Failed to send abort (%s): %v", kind, err)
	}
}

// persistUniqueLabel inserts inactive under label, appending " (1)",
// " (2)", ... on collision (spec.md §4.F step 9).
func persistUniqueLabel(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName, address string, inactive zkabacus.Inactive) (zkabacus.ChannelName, error) {
	for attempt := 0; ; attempt++ {
		candidate := label.Suffixed(attempt)
		err := db.NewChannel(ctx, candidate, address, inactive)
		if err == nil {
			return candidate, nil
		}
		if err != store.ErrChannelExists {
			return "", err
		}
	}
}
