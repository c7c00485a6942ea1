package closer

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/metrics"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// DefaultPollInterval is the chain-watching loop's polling period (spec.md
// §4.H: "A long-lived periodic task running every 60 seconds").
const DefaultPollInterval = 60 * time.Second

// Watcher runs the customer's chain-watching control loop: every tick it
// walks every locally known channel, queries the on-chain ContractStatus,
// and drives local state forward per spec.md §4.H's (status, predicate) ->
// action table. Every action is either a no-op once local state already
// matches, or a compare-and-swap on the local state label before posting,
// so a tick that runs twice against unchanged chain state never
// double-posts.
type Watcher struct {
	db     *store.CustomerStore
	client escrow.Client
	clock  clock.Clock
	ticker ticker.Ticker

	mu       sync.Mutex
	lastTick time.Time

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher builds a Watcher polling client/db every interval.
func NewWatcher(db *store.CustomerStore, client escrow.Client, interval time.Duration) *Watcher {
	return &Watcher{
		db:     db,
		client: client,
		clock:  clock.NewDefaultClock(),
		ticker: ticker.New(interval),
		quit:   make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (w *Watcher) Start() {
	w.ticker.Resume()
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the polling loop and waits for any in-flight tick to finish.
func (w *Watcher) Stop() {
	close(w.quit)
	w.ticker.Stop()
	w.wg.Wait()
}

// LastTick reports when the loop last completed a full pass over every
// channel. No caller in this module reads it.
func (w *Watcher) LastTick() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTick
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.Ticks():
			w.tick(context.Background())
		case <-w.quit:
			return
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	labels, err := w.db.ListLabels(ctx)
	if err != nil {
		log.Errorf("chain watcher: listing channels: %v", err)
		return
	}
	for _, label := range labels {
		if err := w.checkChannel(ctx, label); err != nil {
			stacked := goerrors.Wrap(err, 1)
			log.Errorf("chain watcher: channel %v: %s\n%s", label, stacked.Error(), stacked.ErrorStack())
		}
	}
	w.mu.Lock()
	w.lastTick = w.clock.Now()
	w.mu.Unlock()
}

func (w *Watcher) checkChannel(ctx context.Context, label zkabacus.ChannelName) error {
	record, err := w.db.Get(ctx, label)
	if err != nil {
		return err
	}
	if record.ContractId == nil {
		return nil
	}

	chainState, err := w.client.GetContractState(ctx, *record.ContractId)
	if err != nil {
		return fmt.Errorf("querying contract state: %w", err)
	}
	if err := w.db.SetContractLevel(ctx, label, chainState.CurrentLevel); err != nil {
		log.Errorf("chain watcher: recording contract level for %v: %v", label, err)
	}

	statusLabel := chainState.Status.String()

	switch chainState.Status {
	case escrow.Expiry:
		if _, ok := record.State.(zkabacus.PendingClose); ok {
			metrics.ChainActionsTotal.WithLabelValues(statusLabel, "noop").Inc()
			return nil
		}
		metrics.ChainActionsTotal.WithLabelValues(statusLabel, "unilateral_close").Inc()
		return RunCustomerUnilateralClose(ctx, w.db, w.client, label, true, "")

	case escrow.CustomerClose:
		if _, ok := record.State.(zkabacus.PendingCustomerClaim); ok {
			metrics.ChainActionsTotal.WithLabelValues(statusLabel, "noop").Inc()
			return nil
		}
		if !chainState.TimeoutExpired() {
			metrics.ChainActionsTotal.WithLabelValues(statusLabel, "wait_timeout").Inc()
			return nil
		}
		if err := ToPendingCustomerClaim(ctx, w.db, label); err != nil {
			return err
		}
		status, _, err := w.client.CustomerClaim(ctx, *record.ContractId)
		if err != nil {
			return err
		}
		if status != escrow.OperationConfirmed {
			return fmt.Errorf("custClaim rejected for channel %v", label)
		}
		metrics.ChainActionsTotal.WithLabelValues(statusLabel, "claim").Inc()
		return FinalizeCustomerClaim(ctx, w.db, label)

	case escrow.Closed:
		if _, ok := record.State.(zkabacus.PendingClose); !ok {
			return nil
		}
		if record.FinalMerchantBalance == nil {
			return nil
		}
		metrics.ChainActionsTotal.WithLabelValues(statusLabel, "mark_dispute").Inc()
		return MarkDispute(ctx, w.db, label)
	}
	return nil
}
