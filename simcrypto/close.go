package simcrypto

import (
	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// CloseMerchantCrypto implements closer.MerchantCrypto. It re-derives the
// same "closing-sig" tag EstablishMerchantCrypto and PayMerchantCrypto
// produce, over the CloseState's balance pair only: the revocation lock
// a CloseState carries was never part of what a closing signature
// authorizes in this backend (see EstablishMerchantCrypto.IssueClosingSignature).
type CloseMerchantCrypto struct {
	Key SharedKey
}

func (c CloseMerchantCrypto) VerifyClosingSignature(signature zkabacus.ClosingSignature, state zkabacus.CloseState) bool {
	return verify(signature.Bytes, c.Key, []byte("closing-sig"), state.ChannelId[:], u64(uint64(state.CustomerBalance)), u64(uint64(state.MerchantBalance)))
}

var _ closer.MerchantCrypto = CloseMerchantCrypto{}
