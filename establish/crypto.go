package establish

import "github.com/boltlabs-inc/zkchannels/zkabacus"

// CustomerCrypto is the set of opaque zkAbacus operations the customer
// side of Establish needs. A production implementation backs this with
// the real Pointcheval-Sanders proof system; tests may substitute a fake
// that always reports success.
type CustomerCrypto interface {
	// NewEstablishProof builds the establish proof binding
	// (channelId, customerBalance, merchantBalance, context).
	NewEstablishProof(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, context zkabacus.Context) (zkabacus.EstablishProof, error)

	// ValidateClosingSignature reports whether signature authorizes the
	// Requested state's close at (channelId, customerBalance,
	// merchantBalance, revocationLock).
	ValidateClosingSignature(signature zkabacus.ClosingSignature, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, revocationLock zkabacus.RevocationLock) bool

	// ValidatePayToken reports whether token activates the given Inactive
	// state.
	ValidatePayToken(token zkabacus.PayToken, inactive zkabacus.Inactive) bool
}

// MerchantCrypto is the set of opaque zkAbacus operations the merchant
// side of Establish needs.
type MerchantCrypto interface {
	// VerifyEstablishProof reports whether proof is a valid establish
	// proof over (channelId, customerBalance, merchantBalance, context).
	VerifyEstablishProof(proof zkabacus.EstablishProof, channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, context zkabacus.Context) bool

	// IssueClosingSignature blind-signs the initial CloseState for a
	// freshly-requested channel.
	IssueClosingSignature(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance, revocationLock zkabacus.RevocationLock) (zkabacus.ClosingSignature, error)

	// IssuePayToken issues the blinded PayToken that activates a channel
	// once the merchant has confirmed its own funding.
	IssuePayToken(channelId zkabacus.ChannelId, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (zkabacus.PayToken, error)
}
