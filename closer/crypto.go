package closer

import "github.com/boltlabs-inc/zkchannels/zkabacus"

// MerchantCrypto is the opaque zkAbacus operation the merchant side of a
// mutual close needs: checking that a ClosingSignature the customer
// presents really does authorize the given CloseState under the
// merchant's own zkAbacus public key. Unlike Establish/Pay, the merchant
// here is a verifier of its own past signature, not an issuer.
type MerchantCrypto interface {
	VerifyClosingSignature(signature zkabacus.ClosingSignature, state zkabacus.CloseState) bool
}
