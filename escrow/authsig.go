package escrow

import (
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

const mutualCloseDomainTag = "zkChannels mutual close"

// mutualCloseDigest hashes the payout tuple a merchant authorizes for a
// mutual close: (contract_id, "zkChannels mutual close", channel_id,
// customer_balance, merchant_balance).
func mutualCloseDigest(contractId ContractId, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(contractId.Address))
	h.Write([]byte(mutualCloseDomainTag))
	h.Write(channelId[:])

	var balances [16]byte
	binary.BigEndian.PutUint64(balances[0:8], uint64(customerBalance))
	binary.BigEndian.PutUint64(balances[8:16], uint64(merchantBalance))
	h.Write(balances[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// SignMutualClose produces the merchant's AuthorizationSignature over the
// mutual-close payout tuple, using the merchant's secp256k1 on-chain signing
// key. This is the concrete ECDSA operation described in SPEC_FULL.md §3;
// it is independent of the opaque zkAbacus ClosingSignature.
func SignMutualClose(key *secp256k1.PrivateKey, contractId ContractId, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) AuthorizationSignature {
	digest := mutualCloseDigest(contractId, channelId, customerBalance, merchantBalance)
	sig := ecdsa.Sign(key, digest[:])
	return AuthorizationSignature{Bytes: sig.Serialize()}
}

// VerifyMutualClose checks a merchant's AuthorizationSignature against its
// public key and the payout tuple it authorizes.
func VerifyMutualClose(pubKey *secp256k1.PublicKey, sig AuthorizationSignature, contractId ContractId, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) bool {
	parsed, err := ecdsa.ParseDERSignature(sig.Bytes)
	if err != nil {
		return false
	}
	digest := mutualCloseDigest(contractId, channelId, customerBalance, merchantBalance)
	return parsed.Verify(digest[:], pubKey)
}
