package establish

import (
	"golang.org/x/crypto/blake2b"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

var channelIdDomain = []byte("zkchannels-channel-id")

// deriveChannelId implements ChannelId::new (spec.md §4.F step 4): a
// collision-resistant binding of both parties' randomness, the merchant's
// public key, and both parties' on-chain addresses. Both sides compute the
// identical value independently; neither party need transmit it.
func deriveChannelId(merchantRandomness zkabacus.MerchantRandomness, customerRandomness zkabacus.CustomerRandomness, merchantPublicKey []byte, merchantTezosAddress, customerTezosAddress string) (zkabacus.ChannelId, error) {
	h, err := blake2b.New256(channelIdDomain)
	if err != nil {
		panic(err)
	}
	h.Write(merchantRandomness[:])
	h.Write(customerRandomness[:])
	h.Write(merchantPublicKey)
	h.Write([]byte(merchantTezosAddress))
	h.Write([]byte(customerTezosAddress))
	return zkabacus.NewChannelId(h.Sum(nil))
}
