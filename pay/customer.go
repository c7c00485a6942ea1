package pay

import (
	"context"
	"fmt"

	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("PAY ")

// SetLogLevel sets this subsystem's logging level, for main to wire up
// from its --loglevel configuration.
func SetLogLevel(level string) { zkchanlog.SetLevel(log, level) }

// RunCustomer drives the customer side of Pay to completion for label,
// moving amount minor units from customer to merchant (negative is a
// refund). On success the channel returns to Ready with a fresh PayToken.
func RunCustomer(ctx context.Context, ch *transport.Chan, db *store.CustomerStore, crypto CustomerCrypto, label zkabacus.ChannelName, amount int64, note string) error {
	if err := ch.Choose(transport.ChoicePay); err != nil {
		return fmt.Errorf("pay: selecting session: %w", err)
	}

	// Step 1.
	if err := ch.Send(&transport.PayRequest{Amount: amount, Note: note}); err != nil {
		return fmt.Errorf("pay: sending pay request: %w", err)
	}

	// Step 2.
	ok, kind, reason, err := ch.RecvContinueOrAbort()
	if err != nil {
		return fmt.Errorf("pay: waiting for merchant approval: %w", err)
	}
	if !ok {
		return &ProtocolAbort{Kind: AbortKind(kind), Reason: string(reason)}
	}

	// Step 3: transition Ready -> Started under a single store
	// transaction, producing the StartMessage to send.
	startOut, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		ready, ok := current.(zkabacus.Ready)
		if !ok {
			return nil, nil, fmt.Errorf("pay: channel %v is not Ready", label)
		}
		nonce, err := zkabacus.NewNonce()
		if err != nil {
			return nil, nil, err
		}
		proof, err := crypto.NewPayProof(ready, amount, nonce)
		if err != nil {
			return nil, nil, err
		}
		started, failedReady, startErr := ready.Start(amount, nonce, proof)
		if startErr != nil {
			return failedReady, nil, startErr
		}
		return started, started.StartMessage(), nil
	})
	if err != nil {
		return fmt.Errorf("pay: starting payment: %w", err)
	}
	startMsg := startOut.(zkabacus.StartMessage)

	if err := ch.Send(&transport.StartMessageMsg{Nonce: startMsg.Nonce, Proof: startMsg.Proof}); err != nil {
		return fmt.Errorf("pay: sending start message: %w", err)
	}

	// Step 4: merchant verifies and either sends a fresh ClosingSignature
	// or aborts.
	var sigMsg transport.ClosingSignatureMsg
	ok, kind, reason, err = ch.RecvOrAbort(&sigMsg)
	if err != nil {
		return fmt.Errorf("pay: waiting for new closing signature: %w", err)
	}
	if !ok {
		if revertErr := revertToReady(ctx, db, label); revertErr != nil {
			log.Errorf("Failed to revert channel %v to Ready after merchant abort: %v", label, revertErr)
		}
		return &ProtocolAbort{Kind: AbortKind(kind), Reason: string(reason)}
	}

	// Step 5: Started -> Locked, producing the LockMessage.
	lockOut, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		started, ok := current.(zkabacus.Started)
		if !ok {
			return nil, nil, fmt.Errorf("pay: channel %v is not Started", label)
		}
		valid := crypto.ValidateNewClosingSignature(sigMsg.Signature, started.ChannelId(), started.NewCustomerBalance(), started.NewMerchantBalance())
		locked, failedStarted, lockErr := started.Lock(sigMsg.Signature, valid)
		if lockErr != nil {
			return failedStarted.Revert(), nil, lockErr
		}
		return locked, locked.LockMessage(), nil
	})
	if err != nil {
		return &ProtocolAbort{Kind: AbortInvalidClosingSignature, Reason: "invalid closing signature for new balance"}
	}
	lockMsg := lockOut.(zkabacus.LockMessage)

	// Step 6.
	if err := ch.Send(&transport.LockMessageMsg{
		RevocationLock:   lockMsg.RevocationLock,
		RevocationSecret: lockMsg.RevocationSecret,
		BlindingFactor:   lockMsg.BlindingFactor,
	}); err != nil {
		return fmt.Errorf("pay: sending lock message: %w", err)
	}

	// Steps 7-8: from here on, a protocol error leaves the channel dirty
	// (it stays in Locked, which Close/WithCloseableChannel still
	// accepts — a fresh Pay is refused by the Ready type assertion above
	// until the customer resolves it by closing unilaterally).
	var tokenMsg transport.PayTokenMsg
	ok, kind, reason, err = ch.RecvOrAbort(&tokenMsg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirtyChannel, err)
	}
	if !ok {
		return &ProtocolAbort{Kind: AbortKind(kind), Reason: string(reason)}
	}

	// Step 9: Locked -> Ready.
	_, err = db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		locked, ok := current.(zkabacus.Locked)
		if !ok {
			return nil, nil, fmt.Errorf("pay: channel %v is not Locked", label)
		}
		valid := crypto.ValidatePayToken(tokenMsg.Token, locked)
		ready, failedLocked, unlockErr := locked.Unlock(tokenMsg.Token, valid)
		if unlockErr != nil {
			return failedLocked, nil, unlockErr
		}
		return ready, nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: invalid pay token: %v", ErrDirtyChannel, err)
	}

	log.Infof("Completed payment of %d on channel %v", amount, label)
	return nil
}

// revertToReady restores Ready from Started when the merchant rejects a
// payment before locking in a new revocation commitment (spec.md §4.G
// "if steps 3 or 5 fail locally, the customer restores the previous
// state").
func revertToReady(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName) error {
	_, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		started, ok := current.(zkabacus.Started)
		if !ok {
			return nil, nil, fmt.Errorf("pay: channel %v is not Started", label)
		}
		return started.Revert(), nil, nil
	})
	return err
}
