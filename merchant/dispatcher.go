// Package merchant implements the merchant's session dispatcher (spec.md
// §4.I): for each inbound transport session it reads the customer's branch
// choice and hands the session to the matching protocol handler, which then
// owns the entire remaining exchange.
package merchant

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	goerrors "github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/metrics"
	"github.com/boltlabs-inc/zkchannels/pay"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("DISP")

// SetLogLevel sets this subsystem's logging level, for main to wire up
// from its --loglevel configuration.
func SetLogLevel(level string) { zkchanlog.SetLevel(log, level) }

// Crypto bundles the opaque crypto backends each sub-protocol needs. They
// are typically three views onto the same merchant zkAbacus keypair.
type Crypto struct {
	Establish establish.MerchantCrypto
	Pay       pay.MerchantCrypto
	Close     closer.MerchantCrypto
}

// FundMerchant posts the merchant's own on-chain funding once a customer's
// Establish request has produced a channel and its contract is originated
// and customer-funded, returning the originated contract once confirmed.
type FundMerchant func(ctx context.Context, channelId zkabacus.ChannelId, customerTezosAddress string, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (escrow.ContractId, error)

// Dispatcher accepts inbound transport sessions and routes each to the
// Parameters, Establish, Pay, or Close handler per the customer's branch
// choice (transport.Choice). Accepted sessions wait on a queue until Run
// takes them off and starts each one's handler in its own goroutine; the
// number of handlers running at once is not limited.
type Dispatcher struct {
	db         *store.MerchantStore
	crypto     Crypto
	identity   establish.MerchantIdentity
	fund       FundMerchant
	signingKey *secp256k1.PrivateKey
	parameters transport.ParametersMsg

	sessions *queue.ConcurrentQueue
}

// NewDispatcher builds a Dispatcher. signingKey is the merchant's on-chain
// key used to authorize mutual closes; parameters is sent verbatim to
// customers that select the Parameters branch. concurrency is the initial
// buffer size of the session queue; it does not limit how many sessions
// run their protocol handler at once.
func NewDispatcher(
	db *store.MerchantStore,
	crypto Crypto,
	identity establish.MerchantIdentity,
	fund FundMerchant,
	signingKey *secp256k1.PrivateKey,
	parameters transport.ParametersMsg,
	concurrency int,
) *Dispatcher {
	d := &Dispatcher{
		db:         db,
		crypto:     crypto,
		identity:   identity,
		fund:       fund,
		signingKey: signingKey,
		parameters: parameters,
		sessions:   queue.NewConcurrentQueue(concurrency),
	}
	d.sessions.Start()
	return d
}

// Stop drains the session queue and releases its worker.
func (d *Dispatcher) Stop() { d.sessions.Stop() }

// Accept enqueues an inbound session for dispatch. It returns once the
// session has been queued, not once it has finished; callers that need to
// know when a session completes should use HandleSession directly from
// their own goroutine instead.
func (d *Dispatcher) Accept(ch *transport.Chan) {
	d.sessions.ChanIn() <- ch
}

// Run drains queued sessions until the queue is stopped, dispatching each
// to HandleSession in its own goroutine. This bounds dispatch throughput to
// however fast the caller drains Run relative to Accept, while still
// letting independent sessions' protocol handlers block on I/O
// concurrently.
func (d *Dispatcher) Run() {
	for v := range d.sessions.ChanOut() {
		ch := v.(*transport.Chan)
		go func() {
			if err := d.HandleSession(context.Background(), ch); err != nil {
				// Wrap with go-errors so the log carries a stack trace
				// pinned to where the session actually failed, not to
				// this goroutine's own frame.
				stacked := goerrors.Wrap(err, 1)
				log.Errorf("Session %v: %s\n%s", ch.Key(), stacked.Error(), stacked.ErrorStack())
			}
		}()
	}
}

// HandleSession reads the customer's branch choice off ch and dispatches to
// the matching protocol handler, which owns the rest of the exchange.
func (d *Dispatcher) HandleSession(ctx context.Context, ch *transport.Chan) error {
	choice, ok, err := ch.OfferChoice()
	if err != nil {
		return fmt.Errorf("merchant: reading branch choice: %w", err)
	}
	if !ok {
		return nil
	}

	switch choice {
	case transport.ChoiceParameters:
		metrics.SessionsTotal.WithLabelValues("parameters").Inc()
		return d.handleParameters(ch)
	case transport.ChoiceEstablish:
		metrics.SessionsTotal.WithLabelValues("establish").Inc()
		return establish.RunMerchant(ctx, ch, d.db, d.crypto.Establish, d.identity, d.fund)
	case transport.ChoicePay:
		metrics.SessionsTotal.WithLabelValues("pay").Inc()
		return d.handlePay(ctx, ch)
	case transport.ChoiceClose:
		metrics.SessionsTotal.WithLabelValues("close").Inc()
		return d.handleClose(ctx, ch)
	default:
		return fmt.Errorf("merchant: unknown branch choice %d", choice)
	}
}

func (d *Dispatcher) handleParameters(ch *transport.Chan) error {
	if err := ch.Send(&d.parameters); err != nil {
		return fmt.Errorf("merchant: sending parameters: %w", err)
	}
	return nil
}

// handlePay resolves the channel this session belongs to from its
// SessionKey, bound once at Establish time (establish.RunMerchant's
// db.BindSession call), since a Pay request carries no channel identifier
// of its own.
func (d *Dispatcher) handlePay(ctx context.Context, ch *transport.Chan) error {
	channelId, err := d.db.ChannelIdForSession(ctx, ch.Key())
	if err != nil {
		return fmt.Errorf("merchant: resolving channel for session: %w", err)
	}
	return pay.RunMerchant(ctx, ch, d.db, d.crypto.Pay, channelId)
}

// handleClose resolves the channel this session belongs to from its
// SessionKey, as handlePay does, then looks up that channel's contract id
// before handing the session to closer.RunMerchantMutualClose.
func (d *Dispatcher) handleClose(ctx context.Context, ch *transport.Chan) error {
	channelId, err := d.db.ChannelIdForSession(ctx, ch.Key())
	if err != nil {
		return fmt.Errorf("merchant: resolving channel for session: %w", err)
	}
	contractId, err := d.db.ContractIdOf(ctx, channelId)
	if err != nil {
		return fmt.Errorf("merchant: resolving contract for channel %v: %w", channelId, err)
	}
	return closer.RunMerchantMutualClose(ctx, ch, d.db, d.crypto.Close, contractId, d.signingKey)
}
