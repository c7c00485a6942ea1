package zkabacus

import (
	"fmt"
	"io"
)

// StateName names a channel state variant. Every State implementation
// reports one of these from StateName(); the strings are stable and used in
// logs and store rows.
type StateName int

const (
	StateInactive StateName = iota
	StateOriginated
	StateCustomerFunded
	StateMerchantFunded
	StateReady
	StateStarted
	StateLocked
	StatePendingClose
	StatePendingCustomerClaim
	StateDispute
	StateClosed
)

func (n StateName) String() string {
	switch n {
	case StateInactive:
		return "inactive"
	case StateOriginated:
		return "originated"
	case StateCustomerFunded:
		return "customer funded"
	case StateMerchantFunded:
		return "merchant funded"
	case StateReady:
		return "ready"
	case StateStarted:
		return "started"
	case StateLocked:
		return "locked"
	case StatePendingClose:
		return "pending close"
	case StatePendingCustomerClaim:
		return "pending customer claim"
	case StateDispute:
		return "disputed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown state(%d)", int(n))
	}
}

// State is a persisted channel state. It is a closed sum type: the only
// implementations are the eleven variants in this file. Accessors never
// panic regardless of which variant is active.
type State interface {
	zkabacusStateSealed()

	// ChannelId returns the channel this state belongs to.
	ChannelId() ChannelId

	// CustomerBalance returns the customer's current balance under this
	// state.
	CustomerBalance() CustomerBalance

	// MerchantBalance returns the merchant's current balance under this
	// state.
	MerchantBalance() MerchantBalance

	// StateName reports which variant this is.
	StateName() StateName
}

// Closeable is implemented by every pre-close State variant: Inactive,
// Originated, CustomerFunded, MerchantFunded, Ready, Started and Locked.
// Close produces the ClosingMessage that authorizes custClose/mutualClose
// for the state's current balances, along with the PendingClose state that
// must replace it in the store.
type Closeable interface {
	State

	Close(rng io.Reader) (ClosingMessage, PendingClose, error)
}

// closeCapable carries the fields common to every pre-close variant: enough
// to reconstruct a CloseState and the ClosingSignature that authorizes it.
type closeCapable struct {
	channelId        ChannelId
	customerBalance  CustomerBalance
	merchantBalance  MerchantBalance
	closingSignature ClosingSignature
	revocationLock   RevocationLock
}

func (c closeCapable) ChannelId() ChannelId               { return c.channelId }
func (c closeCapable) CustomerBalance() CustomerBalance   { return c.customerBalance }
func (c closeCapable) MerchantBalance() MerchantBalance   { return c.merchantBalance }

func (c closeCapable) closeState() CloseState {
	return CloseState{
		ChannelId:       c.channelId,
		CustomerBalance: c.customerBalance,
		MerchantBalance: c.merchantBalance,
		RevocationLock:  c.revocationLock,
	}
}

// close builds the ClosingMessage and PendingClose state shared by every
// Close implementation. rng is accepted to match the spec's close(rng)
// signature (a refreshed closing context may need fresh randomness in a
// concrete PS-signature implementation) even though this opaque
// implementation does not consume it itself.
func (c closeCapable) close(_ io.Reader) (ClosingMessage, PendingClose, error) {
	msg := ClosingMessage{
		CloseState: c.closeState(),
		Signature:  c.closingSignature,
	}
	return msg, PendingClose{channelId: c.channelId, closing: msg}, nil
}

// Requested is the customer's transient, unpersisted state while an
// Establish session is in flight: the establish proof has been sent but
// the merchant's initial ClosingSignature has not yet been validated.
// Requested is never written to the store; Complete turns it into the
// first persistable state, Inactive.
type Requested struct {
	channelId       ChannelId
	customerBalance CustomerBalance
	merchantBalance MerchantBalance
	revocationLock  RevocationLock
}

// NewRequested builds the Requested state from the values committed to in
// the establish proof (spec.md §4.F step 6).
func NewRequested(channelId ChannelId, customerBalance CustomerBalance, merchantBalance MerchantBalance, revocationLock RevocationLock) Requested {
	return Requested{
		channelId:       channelId,
		customerBalance: customerBalance,
		merchantBalance: merchantBalance,
		revocationLock:  revocationLock,
	}
}

// Complete validates the merchant's initial ClosingSignature and, on
// success, produces the first persistable state. valid stands in for the
// opaque zkAbacus verification of signature against the Requested
// transcript.
func (s Requested) Complete(signature ClosingSignature, valid bool) (Inactive, error) {
	if !valid {
		return Inactive{}, fmt.Errorf("zkabacus: invalid initial closing signature")
	}
	return NewInactive(s.channelId, s.customerBalance, s.merchantBalance, signature, s.revocationLock), nil
}

// Inactive is the state of a channel that has been requested locally but
// has no on-chain contract yet.
type Inactive struct {
	closeCapable
}

func (Inactive) zkabacusStateSealed() {}
func (Inactive) StateName() StateName { return StateInactive }
func (s Inactive) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// NewInactive constructs the Inactive state reached at the end of
// zkAbacus.Initialize, once the merchant's initial ClosingSignature has
// been validated.
func NewInactive(channelId ChannelId, customerBalance CustomerBalance, merchantBalance MerchantBalance, closingSignature ClosingSignature, revocationLock RevocationLock) Inactive {
	return Inactive{closeCapable{
		channelId:        channelId,
		customerBalance:  customerBalance,
		merchantBalance:  merchantBalance,
		closingSignature: closingSignature,
		revocationLock:   revocationLock,
	}}
}

// Activate consumes a blinded PayToken to step Inactive forward to Ready.
// Activate never mutates the receiver; on failure it returns the original
// Inactive value unchanged, matching the store contract's "on failure the
// inactive payload is returned intact" requirement.
func (s Inactive) Activate(token PayToken, valid bool) (Ready, Inactive, error) {
	if !valid {
		return Ready{}, s, fmt.Errorf("zkabacus: invalid pay token for activation")
	}
	// Inactive's revocationLock is the zero-value placeholder seeded at
	// Establish (there is no prior close to revoke yet), so its opening
	// secret is the zero value too.
	return Ready{closeCapable: s.closeCapable, payToken: token}, Inactive{}, nil
}

// Originated is Inactive plus the fact that a contract now exists on chain,
// unfunded.
type Originated struct {
	closeCapable
}

func (Originated) zkabacusStateSealed() {}
func (Originated) StateName() StateName { return StateOriginated }
func (s Originated) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// NewOriginated promotes an Inactive state once the on-chain contract has
// been originated.
func NewOriginated(i Inactive) Originated { return Originated{i.closeCapable} }

// CustomerFunded is Inactive plus the fact that the customer has added
// funding on chain.
type CustomerFunded struct {
	closeCapable
}

func (CustomerFunded) zkabacusStateSealed() {}
func (CustomerFunded) StateName() StateName { return StateCustomerFunded }
func (s CustomerFunded) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// NewCustomerFunded promotes an Originated state once customer funding is
// observed at the configured confirmation depth.
func NewCustomerFunded(o Originated) CustomerFunded { return CustomerFunded{o.closeCapable} }

// MerchantFunded is Inactive plus the fact that both parties have funded.
type MerchantFunded struct {
	closeCapable
}

func (MerchantFunded) zkabacusStateSealed() {}
func (MerchantFunded) StateName() StateName { return StateMerchantFunded }
func (s MerchantFunded) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// NewMerchantFunded promotes a CustomerFunded state once merchant funding is
// observed at the configured confirmation depth.
func NewMerchantFunded(c CustomerFunded) MerchantFunded { return MerchantFunded{c.closeCapable} }

// Ready is an activated channel that can start a payment.
type Ready struct {
	closeCapable
	payToken PayToken
	// revocationSecret opens this state's closeCapable.revocationLock. It
	// is retained (rather than discarded once the lock commitment is
	// formed) because the NEXT payment's Lock step must disclose it to
	// revoke this state's close capability.
	revocationSecret RevocationSecret
}

func (Ready) zkabacusStateSealed() {}
func (Ready) StateName() StateName { return StateReady }
func (s Ready) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// PayToken returns the capability enabling the next payment.
func (s Ready) PayToken() PayToken { return s.payToken }

// Start begins a payment, obtaining a StartMessage to send the merchant.
// amount is signed: positive moves minor units from customer to merchant,
// negative is a refund. Start fails if the resulting balances would be
// negative; on failure it returns the original Ready unchanged.
func (s Ready) Start(amount int64, nonce Nonce, proof PayProof) (Started, Ready, error) {
	newCustomer := int64(s.customerBalance) - amount
	newMerchant := int64(s.merchantBalance) + amount
	if newCustomer < 0 || newMerchant < 0 {
		return Started{}, s, fmt.Errorf("zkabacus: payment of %d would make a balance negative", amount)
	}
	return Started{
		previous:        s,
		newCustomerBalance: CustomerBalance(newCustomer),
		newMerchantBalance: MerchantBalance(newMerchant),
		nonce:           nonce,
		proof:           proof,
	}, Ready{}, nil
}

// NewReady constructs a Ready state directly, used when restoring from
// storage.
func NewReady(channelId ChannelId, customerBalance CustomerBalance, merchantBalance MerchantBalance, closingSignature ClosingSignature, revocationLock RevocationLock, revocationSecret RevocationSecret, payToken PayToken) Ready {
	return Ready{
		closeCapable: closeCapable{
			channelId:        channelId,
			customerBalance:  customerBalance,
			merchantBalance:  merchantBalance,
			closingSignature: closingSignature,
			revocationLock:   revocationLock,
		},
		payToken:         payToken,
		revocationSecret: revocationSecret,
	}
}

// Started is a channel with a payment in flight: the customer still holds
// the old state's close capability, and is awaiting a new ClosingSignature
// from the merchant for the proposed new balances.
type Started struct {
	previous           Ready
	newCustomerBalance CustomerBalance
	newMerchantBalance MerchantBalance
	nonce              Nonce
	proof              PayProof
}

func (Started) zkabacusStateSealed() {}
func (Started) StateName() StateName { return StateStarted }
func (s Started) ChannelId() ChannelId             { return s.previous.channelId }
func (s Started) CustomerBalance() CustomerBalance { return s.previous.customerBalance }
func (s Started) MerchantBalance() MerchantBalance { return s.previous.merchantBalance }

// Close closes at the OLD (pre-payment) balances, since the new balances
// are not yet authorized by a ClosingSignature.
func (s Started) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.previous.closeCapable.close(rng)
}

// Nonce returns the freshness token sent to the merchant for this payment.
func (s Started) Nonce() Nonce { return s.nonce }

// NewCustomerBalance returns the proposed (not yet authorized) customer
// balance this payment would establish.
func (s Started) NewCustomerBalance() CustomerBalance { return s.newCustomerBalance }

// NewMerchantBalance returns the proposed (not yet authorized) merchant
// balance this payment would establish.
func (s Started) NewMerchantBalance() MerchantBalance { return s.newMerchantBalance }

// StartMessage returns the message that was (or will be) sent to the
// merchant to begin this payment.
func (s Started) StartMessage() StartMessage {
	return StartMessage{Nonce: s.nonce, Proof: s.proof}
}

// Lock consumes a fresh ClosingSignature over the new balances, producing
// Locked and the LockMessage that discloses the previous state's
// revocation secret. On cryptographic failure (valid == false) the
// original Started is returned unchanged so the caller can restore Ready
// from s.Revert().
func (s Started) Lock(newSignature ClosingSignature, valid bool) (Locked, Started, error) {
	if !valid {
		return Locked{}, s, fmt.Errorf("zkabacus: invalid closing signature for new balance")
	}
	newLock, newSecret, err := NewRevocationPair()
	if err != nil {
		return Locked{}, s, err
	}
	blinding, err := newBlindingFactor()
	if err != nil {
		return Locked{}, s, err
	}
	return Locked{
		closeCapable: closeCapable{
			channelId:        s.previous.channelId,
			customerBalance:  s.newCustomerBalance,
			merchantBalance:  s.newMerchantBalance,
			closingSignature: newSignature,
			revocationLock:   newLock,
		},
		pendingRevocationSecret: newSecret,
		blindingFactor:          blinding,
		disclosedLock:           s.previous.revocationLock,
		disclosedSecret:         s.previous.revocationSecret,
	}, Started{}, nil
}

// Revert restores the Ready state that preceded this payment attempt, for
// use when a local or remote failure aborts the Pay protocol before Lock.
func (s Started) Revert() Ready { return s.previous }

func newBlindingFactor() (BlindingFactor, error) {
	var b BlindingFactor
	if _, err := randRead(b[:]); err != nil {
		return b, err
	}
	return b, nil
}

// Locked is a channel that has revoked its old close capability and is
// awaiting a new PayToken before it can pay again.
type Locked struct {
	closeCapable
	pendingRevocationSecret RevocationSecret
	blindingFactor          BlindingFactor
	disclosedLock           RevocationLock
	disclosedSecret         RevocationSecret
}

func (Locked) zkabacusStateSealed() {}
func (Locked) StateName() StateName { return StateLocked }
func (s Locked) Close(rng io.Reader) (ClosingMessage, PendingClose, error) {
	return s.closeCapable.close(rng)
}

// LockMessage returns the message disclosing the prior revocation secret
// and committing to the new one, sent to the merchant when entering Locked.
func (s Locked) LockMessage() LockMessage {
	return LockMessage{
		RevocationLock:   s.disclosedLock,
		RevocationSecret: s.disclosedSecret,
		BlindingFactor:   s.blindingFactor,
	}
}

// Unlock consumes the merchant's new blind PayToken, completing the payment
// and returning to Ready. On failure, the original Locked is returned
// unchanged: the caller must close unilaterally rather than retry Pay, per
// the "dirty state" rule in the pay protocol's failure semantics.
func (s Locked) Unlock(token PayToken, valid bool) (Ready, Locked, error) {
	if !valid {
		return Ready{}, s, fmt.Errorf("zkabacus: invalid pay token for unlock")
	}
	return Ready{
		closeCapable:     s.closeCapable,
		payToken:         token,
		revocationSecret: s.pendingRevocationSecret,
	}, Locked{}, nil
}

// PendingClose is the terminal-bound state entered by get_close_message: a
// close has been posted, or is in progress, on chain.
type PendingClose struct {
	channelId ChannelId
	closing   ClosingMessage
}

func (PendingClose) zkabacusStateSealed() {}
func (PendingClose) StateName() StateName               { return StatePendingClose }
func (s PendingClose) ChannelId() ChannelId               { return s.channelId }
func (s PendingClose) CustomerBalance() CustomerBalance   { return s.closing.CloseState.CustomerBalance }
func (s PendingClose) MerchantBalance() MerchantBalance   { return s.closing.CloseState.MerchantBalance }
func (s PendingClose) ClosingMessage() ClosingMessage      { return s.closing }

// NewPendingClose wraps a ClosingMessage as a PendingClose state. Exported
// so the store and closer packages can construct it when recovering from a
// crash mid-close.
func NewPendingClose(channelId ChannelId, closing ClosingMessage) PendingClose {
	return PendingClose{channelId: channelId, closing: closing}
}

// ToPendingCustomerClaim transitions from PendingClose after the custClose
// timelock has expired and custClaim has been posted.
func (s PendingClose) ToPendingCustomerClaim() PendingCustomerClaim {
	return PendingCustomerClaim{channelId: s.channelId, closing: s.closing}
}

// ToDispute transitions from PendingClose once the merchant has posted
// merchDispute against the posted close.
func (s PendingClose) ToDispute() Dispute {
	return Dispute{channelId: s.channelId, closing: s.closing}
}

// ToClosed finalizes from PendingClose once mutualClose/custClose has
// confirmed without challenge.
func (s PendingClose) ToClosed() Closed {
	return Closed{channelId: s.channelId, closing: s.closing}
}

// PendingCustomerClaim is entered after custClaim is posted following an
// expired custClose timelock.
type PendingCustomerClaim struct {
	channelId ChannelId
	closing   ClosingMessage
}

func (PendingCustomerClaim) zkabacusStateSealed() {}
func (PendingCustomerClaim) StateName() StateName             { return StatePendingCustomerClaim }
func (s PendingCustomerClaim) ChannelId() ChannelId             { return s.channelId }
func (s PendingCustomerClaim) CustomerBalance() CustomerBalance { return s.closing.CloseState.CustomerBalance }
func (s PendingCustomerClaim) MerchantBalance() MerchantBalance { return s.closing.CloseState.MerchantBalance }
func (s PendingCustomerClaim) ClosingMessage() ClosingMessage    { return s.closing }

// ToClosed finalizes once the custClaim operation confirms.
func (s PendingCustomerClaim) ToClosed() Closed {
	return Closed{channelId: s.channelId, closing: s.closing}
}

// Dispute is entered when the merchant has disputed a posted close using a
// revealed revocation secret.
type Dispute struct {
	channelId ChannelId
	closing   ClosingMessage
}

func (Dispute) zkabacusStateSealed() {}
func (Dispute) StateName() StateName             { return StateDispute }
func (s Dispute) ChannelId() ChannelId             { return s.channelId }
func (s Dispute) CustomerBalance() CustomerBalance { return s.closing.CloseState.CustomerBalance }
func (s Dispute) MerchantBalance() MerchantBalance { return s.closing.CloseState.MerchantBalance }
func (s Dispute) ClosingMessage() ClosingMessage    { return s.closing }

// ToClosed finalizes once the dispute resolution confirms, paying both
// balances to the merchant.
func (s Dispute) ToClosed() Closed {
	return Closed{channelId: s.channelId, closing: s.closing}
}

// Closed is the terminal state. No further transition is permitted out of
// Closed.
type Closed struct {
	channelId ChannelId
	closing   ClosingMessage
}

func (Closed) zkabacusStateSealed() {}
func (Closed) StateName() StateName             { return StateClosed }
func (s Closed) ChannelId() ChannelId             { return s.channelId }
func (s Closed) CustomerBalance() CustomerBalance { return s.closing.CloseState.CustomerBalance }
func (s Closed) MerchantBalance() MerchantBalance { return s.closing.CloseState.MerchantBalance }
func (s Closed) ClosingMessage() ClosingMessage    { return s.closing }

// compile-time interface assertions
var (
	_ State     = Inactive{}
	_ State     = Originated{}
	_ State     = CustomerFunded{}
	_ State     = MerchantFunded{}
	_ State     = Ready{}
	_ State     = Started{}
	_ State     = Locked{}
	_ State     = PendingClose{}
	_ State     = PendingCustomerClaim{}
	_ State     = Dispute{}
	_ State     = Closed{}
	_ Closeable = Inactive{}
	_ Closeable = Originated{}
	_ Closeable = CustomerFunded{}
	_ Closeable = MerchantFunded{}
	_ Closeable = Ready{}
	_ Closeable = Started{}
	_ Closeable = Locked{}
)
