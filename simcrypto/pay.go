package simcrypto

import (
	"fmt"

	"github.com/boltlabs-inc/zkchannels/pay"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// PayCustomerCrypto implements pay.CustomerCrypto.
type PayCustomerCrypto struct {
	Key SharedKey
}

// PayMerchantCrypto implements pay.MerchantCrypto. It shares a Tracker with
// EstablishMerchantCrypto so it knows the committed balance a payment
// proof transitions from without the caller passing it in, matching the
// interface's (channelId, nonce)-only signatures for IssueClosingSignature
// and IssuePayToken.
type PayMerchantCrypto struct {
	Key     SharedKey
	Tracker *Tracker
}

func (c PayCustomerCrypto) NewPayProof(committed zkabacus.Ready, amount int64, nonce zkabacus.Nonce) (zkabacus.PayProof, error) {
	channelId := committed.ChannelId()
	tag := mac(c.Key, []byte("pay-proof"), channelId[:], u64(uint64(committed.CustomerBalance())), u64(uint64(committed.MerchantBalance())), i64(amount), nonce[:])
	return zkabacus.PayProof{Bytes: tag}, nil
}

func (c PayCustomerCrypto) ValidateNewClosingSignature(signature zkabacus.ClosingSignature, channelId zkabacus.ChannelId, newCustomerBalance zkabacus.CustomerBalance, newMerchantBalance zkabacus.MerchantBalance) bool {
	return verify(signature.Bytes, c.Key, []byte("closing-sig"), channelId[:], u64(uint64(newCustomerBalance)), u64(uint64(newMerchantBalance)))
}

func (c PayCustomerCrypto) ValidatePayToken(token zkabacus.PayToken, locked zkabacus.Locked) bool {
	channelId := locked.ChannelId()
	return verify(token.Bytes, c.Key, []byte("pay-token"), channelId[:], u64(uint64(locked.CustomerBalance())), u64(uint64(locked.MerchantBalance())))
}

// VerifyPayProof checks proof against the channel's tracked committed
// balance rather than a blinded commitment recovered from the proof
// itself (simcrypto has none), then stages the proposed new balances so
// the remaining Pay steps for this nonce can complete without the caller
// threading balances through again.
func (m PayMerchantCrypto) VerifyPayProof(proof zkabacus.PayProof, channelId zkabacus.ChannelId, amount int64, nonce zkabacus.Nonce) bool {
	cur, err := m.Tracker.currentBalances(channelId)
	if err != nil {
		return false
	}
	newCustomer := int64(cur.customerBalance) - amount
	newMerchant := int64(cur.merchantBalance) + amount
	if newCustomer < 0 || newMerchant < 0 {
		return false
	}
	ok := verify(proof.Bytes, m.Key, []byte("pay-proof"), channelId[:], u64(uint64(cur.customerBalance)), u64(uint64(cur.merchantBalance)), i64(amount), nonce[:])
	if !ok {
		return false
	}
	m.Tracker.stage(nonce, pendingTransition{
		channelId:          channelId,
		newCustomerBalance: zkabacus.CustomerBalance(newCustomer),
		newMerchantBalance: zkabacus.MerchantBalance(newMerchant),
	})
	return true
}

func (m PayMerchantCrypto) IssueClosingSignature(channelId zkabacus.ChannelId, nonce zkabacus.Nonce) (zkabacus.ClosingSignature, error) {
	pt, err := m.Tracker.pendingFor(nonce)
	if err != nil {
		return zkabacus.ClosingSignature{}, fmt.Errorf("simcrypto: issuing closing signature: %w", err)
	}
	tag := mac(m.Key, []byte("closing-sig"), channelId[:], u64(uint64(pt.newCustomerBalance)), u64(uint64(pt.newMerchantBalance)))
	return zkabacus.ClosingSignature{Bytes: tag}, nil
}

// VerifyRevocation checks only that secret opens lock; blinding is opaque
// pass-through here, since its only role is re-randomizing the next
// PayToken request against linkage, which this backend does not attempt.
func (m PayMerchantCrypto) VerifyRevocation(lock zkabacus.RevocationLock, secret zkabacus.RevocationSecret, _ zkabacus.BlindingFactor) bool {
	return lock.Open(secret)
}

func (m PayMerchantCrypto) IssuePayToken(channelId zkabacus.ChannelId, nonce zkabacus.Nonce) (zkabacus.PayToken, error) {
	pt, err := m.Tracker.commit(nonce)
	if err != nil {
		return zkabacus.PayToken{}, fmt.Errorf("simcrypto: issuing pay token: %w", err)
	}
	tag := mac(m.Key, []byte("pay-token"), channelId[:], u64(uint64(pt.newCustomerBalance)), u64(uint64(pt.newMerchantBalance)))
	return zkabacus.PayToken{Bytes: tag}, nil
}

var (
	_ pay.CustomerCrypto = PayCustomerCrypto{}
	_ pay.MerchantCrypto = PayMerchantCrypto{}
)
