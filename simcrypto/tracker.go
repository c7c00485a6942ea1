package simcrypto

import (
	"fmt"
	"sync"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// Tracker holds the merchant's own view of each channel's current balances
// and any in-flight payment's proposed new balances. A real
// Pointcheval-Sanders backend recovers the committed (blinded) balance from
// the proof itself and "carries the committed balance forward" internally,
// as pay.MerchantCrypto's doc comments put it; simcrypto has no blinded
// commitment to recover it from, so it tracks the plaintext balances
// directly instead. EstablishMerchantCrypto seeds an entry once a channel
// activates; PayMerchantCrypto reads and updates it across a payment.
type Tracker struct {
	mu      sync.Mutex
	current map[zkabacus.ChannelId]balancePair
	pending map[zkabacus.Nonce]pendingTransition
}

type balancePair struct {
	customerBalance zkabacus.CustomerBalance
	merchantBalance zkabacus.MerchantBalance
}

type pendingTransition struct {
	channelId          zkabacus.ChannelId
	newCustomerBalance zkabacus.CustomerBalance
	newMerchantBalance zkabacus.MerchantBalance
}

// NewTracker builds an empty Tracker, shared between the EstablishMerchant
// and PayMerchant backends for a single merchant process.
func NewTracker() *Tracker {
	return &Tracker{
		current: make(map[zkabacus.ChannelId]balancePair),
		pending: make(map[zkabacus.Nonce]pendingTransition),
	}
}

func (t *Tracker) seed(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[channelId] = balancePair{customerBalance, merchantBalance}
}

func (t *Tracker) currentBalances(channelId zkabacus.ChannelId) (balancePair, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.current[channelId]
	if !ok {
		return balancePair{}, fmt.Errorf("simcrypto: no tracked balance for channel %v", channelId)
	}
	return cur, nil
}

func (t *Tracker) stage(nonce zkabacus.Nonce, transition pendingTransition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[nonce] = transition
}

func (t *Tracker) pendingFor(nonce zkabacus.Nonce) (pendingTransition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.pending[nonce]
	if !ok {
		return pendingTransition{}, fmt.Errorf("simcrypto: no pending transition for nonce %v", nonce)
	}
	return pt, nil
}

// commit finalizes the transition staged under nonce as the channel's new
// current balance, and discards the pending entry.
func (t *Tracker) commit(nonce zkabacus.Nonce) (pendingTransition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.pending[nonce]
	if !ok {
		return pendingTransition{}, fmt.Errorf("simcrypto: no pending transition for nonce %v", nonce)
	}
	delete(t.pending, nonce)
	t.current[pt.channelId] = balancePair{pt.newCustomerBalance, pt.newMerchantBalance}
	return pt, nil
}
