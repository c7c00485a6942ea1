package pay

import "github.com/boltlabs-inc/zkchannels/zkabacus"

// CustomerCrypto is the set of opaque zkAbacus operations the customer
// side of Pay needs.
type CustomerCrypto interface {
	// NewPayProof builds the proof that a transition of amount from the
	// committed Ready state, bound to nonce, is valid.
	NewPayProof(committed zkabacus.Ready, amount int64, nonce zkabacus.Nonce) (zkabacus.PayProof, error)

	// ValidateNewClosingSignature reports whether signature authorizes a
	// close at the new balances.
	ValidateNewClosingSignature(signature zkabacus.ClosingSignature, channelId zkabacus.ChannelId, newCustomerBalance zkabacus.CustomerBalance, newMerchantBalance zkabacus.MerchantBalance) bool

	// ValidatePayToken reports whether token activates locked's new
	// balance.
	ValidatePayToken(token zkabacus.PayToken, locked zkabacus.Locked) bool
}

// MerchantCrypto is the set of opaque zkAbacus operations the merchant
// side of Pay needs. Note that the merchant never learns plaintext
// balances: pay_proof is a zero-knowledge proof that the committed (blind)
// state transitions correctly by the claimed amount, bound to nonce, not a
// check against a plaintext ledger the merchant would otherwise have to
// keep.
type MerchantCrypto interface {
	// VerifyPayProof reports whether proof correctly transitions the
	// channel's committed state, bound to nonce.
	VerifyPayProof(proof zkabacus.PayProof, channelId zkabacus.ChannelId, amount int64, nonce zkabacus.Nonce) bool

	// IssueClosingSignature blind-signs the balance transition already
	// bound to nonce by a verified pay proof. The backend, not the
	// caller, carries the committed (blinded) balance forward.
	IssueClosingSignature(channelId zkabacus.ChannelId, nonce zkabacus.Nonce) (zkabacus.ClosingSignature, error)

	// VerifyRevocation reports whether (secret, lock, blinding) opens the
	// previous state's revocation commitment.
	VerifyRevocation(lock zkabacus.RevocationLock, secret zkabacus.RevocationSecret, blinding zkabacus.BlindingFactor) bool

	// IssuePayToken issues the blinded PayToken enabling the next payment
	// from the balance bound to nonce.
	IssuePayToken(channelId zkabacus.ChannelId, nonce zkabacus.Nonce) (zkabacus.PayToken, error)
}
