package simcrypto

import (
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// EstablishCustomerCrypto implements establish.CustomerCrypto.
type EstablishCustomerCrypto struct {
	Key SharedKey
}

// EstablishMerchantCrypto implements establish.MerchantCrypto. Tracker is
// seeded with the channel's opening balances once IssuePayToken activates
// it, so PayMerchantCrypto has a starting point for the first payment.
type EstablishMerchantCrypto struct {
	Key     SharedKey
	Tracker *Tracker
}

func (c EstablishCustomerCrypto) NewEstablishProof(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, context zkabacus.Context) (zkabacus.EstablishProof, error) {
	tag := mac(c.Key, []byte("establish-proof"), channelId[:], u64(uint64(customerBalance)), u64(uint64(merchantBalance)), context.Bytes)
	return zkabacus.EstablishProof{Bytes: tag}, nil
}

func (c EstablishCustomerCrypto) ValidateClosingSignature(signature zkabacus.ClosingSignature, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, _ zkabacus.RevocationLock) bool {
	return verify(signature.Bytes, c.Key, []byte("closing-sig"), channelId[:], u64(uint64(customerBalance)), u64(uint64(merchantBalance)))
}

func (c EstablishCustomerCrypto) ValidatePayToken(token zkabacus.PayToken, inactive zkabacus.Inactive) bool {
	channelId := inactive.ChannelId()
	return verify(token.Bytes, c.Key, []byte("pay-token"), channelId[:], u64(uint64(inactive.CustomerBalance())), u64(uint64(inactive.MerchantBalance())))
}

func (m EstablishMerchantCrypto) VerifyEstablishProof(proof zkabacus.EstablishProof, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, context zkabacus.Context) bool {
	return verify(proof.Bytes, m.Key, []byte("establish-proof"), channelId[:], u64(uint64(customerBalance)), u64(uint64(merchantBalance)), context.Bytes)
}

// IssueClosingSignature signs only the balance pair, not revocationLock: a
// real blind signature over the initial CloseState authorizes a balance
// transition, not the independently-chosen revocation lock, which is why
// pay.MerchantCrypto's later closing signatures never receive the lock as
// an argument at all. The zero-value placeholder lock the caller passes
// for the very first state is simply unused here.
func (m EstablishMerchantCrypto) IssueClosingSignature(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, _ zkabacus.RevocationLock) (zkabacus.ClosingSignature, error) {
	tag := mac(m.Key, []byte("closing-sig"), channelId[:], u64(uint64(customerBalance)), u64(uint64(merchantBalance)))
	return zkabacus.ClosingSignature{Bytes: tag}, nil
}

func (m EstablishMerchantCrypto) IssuePayToken(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (zkabacus.PayToken, error) {
	tag := mac(m.Key, []byte("pay-token"), channelId[:], u64(uint64(customerBalance)), u64(uint64(merchantBalance)))
	if m.Tracker != nil {
		m.Tracker.seed(channelId, customerBalance, merchantBalance)
	}
	return zkabacus.PayToken{Bytes: tag}, nil
}

var (
	_ establish.CustomerCrypto = EstablishCustomerCrypto{}
	_ establish.MerchantCrypto = EstablishMerchantCrypto{}
)
