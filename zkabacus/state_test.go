package zkabacus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testChannelId(t *testing.T, b byte) ChannelId {
	t.Helper()
	raw := make([]byte, channelIDLength)
	for i := range raw {
		raw[i] = b
	}
	id, err := NewChannelId(raw)
	require.NoError(t, err)
	return id
}

func TestNewChannelIdRejectsWrongLength(t *testing.T) {
	_, err := NewChannelId([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestRevocationPairOpensItself(t *testing.T) {
	lock, secret, err := NewRevocationPair()
	require.NoError(t, err)
	require.True(t, lock.Open(secret))

	_, other, err := NewRevocationPair()
	require.NoError(t, err)
	require.False(t, lock.Open(other))
}

// TestActivateOnFailureReturnsInactiveUnchanged checks the store contract
// documented on Inactive.Activate: on failure the original Inactive is
// returned intact, not zeroed.
func TestActivateOnFailureReturnsInactiveUnchanged(t *testing.T) {
	channelId := testChannelId(t, 0x01)
	inactive := NewInactive(channelId, 100, 0, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})

	_, unchanged, err := inactive.Activate(PayToken{}, false)
	require.Error(t, err)
	require.Equal(t, inactive, unchanged)
}

func TestActivateOnSuccessProducesReady(t *testing.T) {
	channelId := testChannelId(t, 0x02)
	inactive := NewInactive(channelId, 100, 0, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})
	token := PayToken{Bytes: []byte("token")}

	ready, _, err := inactive.Activate(token, true)
	require.NoError(t, err)
	require.Equal(t, channelId, ready.ChannelId())
	require.Equal(t, CustomerBalance(100), ready.CustomerBalance())
	require.Equal(t, token, ready.PayToken())
	require.Equal(t, StateReady, ready.StateName())
}

// TestStartRejectsNegativeBalance checks the invariant that neither
// balance may go negative across a payment, for both an over-large payment
// and an over-large refund.
func TestStartRejectsNegativeBalance(t *testing.T) {
	channelId := testChannelId(t, 0x03)
	ready := NewReady(channelId, 100, 50, ClosingSignature{}, RevocationLock{}, RevocationSecret{}, PayToken{})

	nonce, err := NewNonce()
	require.NoError(t, err)

	_, unchanged, err := ready.Start(200, nonce, PayProof{})
	require.Error(t, err)
	require.Equal(t, ready, unchanged)

	_, unchanged, err = ready.Start(-100, nonce, PayProof{})
	require.Error(t, err)
	require.Equal(t, ready, unchanged)
}

func TestStartLockUnlockRoundTrip(t *testing.T) {
	channelId := testChannelId(t, 0x04)
	ready := NewReady(channelId, 100, 50, ClosingSignature{Bytes: []byte("sig0")}, RevocationLock{}, RevocationSecret{}, PayToken{Bytes: []byte("tok0")})

	nonce, err := NewNonce()
	require.NoError(t, err)

	started, consumedReady, err := ready.Start(30, nonce, PayProof{Bytes: []byte("proof")})
	require.NoError(t, err)
	require.Equal(t, Ready{}, consumedReady)
	require.Equal(t, CustomerBalance(70), started.NewCustomerBalance())
	require.Equal(t, MerchantBalance(80), started.NewMerchantBalance())
	require.Equal(t, StateStarted, started.StateName())

	// Before Lock, Close still closes at the OLD balances.
	closingMsg, _, err := started.Close(nil)
	require.NoError(t, err)
	require.Equal(t, CustomerBalance(100), closingMsg.CloseState.CustomerBalance)

	newSig := ClosingSignature{Bytes: []byte("sig1")}
	locked, consumedStarted, err := started.Lock(newSig, true)
	require.NoError(t, err)
	require.Equal(t, Started{}, consumedStarted)
	require.Equal(t, StateLocked, locked.StateName())
	require.Equal(t, CustomerBalance(70), locked.CustomerBalance())

	lockMsg := locked.LockMessage()
	require.Equal(t, RevocationLock{}, lockMsg.RevocationLock, "discloses the PRIOR state's lock, which was the zero placeholder here")

	newToken := PayToken{Bytes: []byte("tok1")}
	unlocked, consumedLocked, err := locked.Unlock(newToken, true)
	require.NoError(t, err)
	require.Equal(t, Locked{}, consumedLocked)
	require.Equal(t, StateReady, unlocked.StateName())
	require.Equal(t, newToken, unlocked.PayToken())
	require.Equal(t, CustomerBalance(70), unlocked.CustomerBalance())
	require.Equal(t, MerchantBalance(80), unlocked.MerchantBalance())
}

// TestLockOnFailureReturnsStartedUnchanged checks the "dirty state" failure
// path: a failed Lock must leave Started intact so the caller can recover
// via Revert, per Started.Lock's doc comment.
func TestLockOnFailureReturnsStartedUnchanged(t *testing.T) {
	channelId := testChannelId(t, 0x05)
	ready := NewReady(channelId, 100, 0, ClosingSignature{}, RevocationLock{}, RevocationSecret{}, PayToken{})
	nonce, err := NewNonce()
	require.NoError(t, err)

	started, _, err := ready.Start(10, nonce, PayProof{})
	require.NoError(t, err)

	_, unchanged, err := started.Lock(ClosingSignature{}, false)
	require.Error(t, err)
	require.Equal(t, started, unchanged)
	require.Equal(t, ready, started.Revert())
}

// TestUnlockOnFailureReturnsLockedUnchanged mirrors the same "dirty state"
// rule one step further along: a failed Unlock must not discard the
// Locked state, since the caller must close unilaterally rather than retry.
func TestUnlockOnFailureReturnsLockedUnchanged(t *testing.T) {
	channelId := testChannelId(t, 0x06)
	ready := NewReady(channelId, 100, 0, ClosingSignature{}, RevocationLock{}, RevocationSecret{}, PayToken{})
	nonce, err := NewNonce()
	require.NoError(t, err)
	started, _, err := ready.Start(10, nonce, PayProof{})
	require.NoError(t, err)
	locked, _, err := started.Lock(ClosingSignature{Bytes: []byte("sig")}, true)
	require.NoError(t, err)

	_, unchanged, err := locked.Unlock(PayToken{}, false)
	require.Error(t, err)
	require.Equal(t, locked, unchanged)
}

func TestPromotionChainPreservesCloseCapable(t *testing.T) {
	channelId := testChannelId(t, 0x07)
	inactive := NewInactive(channelId, 500, 500, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})

	originated := NewOriginated(inactive)
	require.Equal(t, StateOriginated, originated.StateName())
	require.Equal(t, channelId, originated.ChannelId())

	customerFunded := NewCustomerFunded(originated)
	require.Equal(t, StateCustomerFunded, customerFunded.StateName())

	merchantFunded := NewMerchantFunded(customerFunded)
	require.Equal(t, StateMerchantFunded, merchantFunded.StateName())
	require.Equal(t, CustomerBalance(500), merchantFunded.CustomerBalance())
	require.Equal(t, MerchantBalance(500), merchantFunded.MerchantBalance())
}

func TestCloseTerminalChain(t *testing.T) {
	channelId := testChannelId(t, 0x08)
	inactive := NewInactive(channelId, 300, 200, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})

	msg, pendingClose, err := inactive.Close(nil)
	require.NoError(t, err)
	require.Equal(t, channelId, pendingClose.ChannelId())
	require.Equal(t, msg, pendingClose.ClosingMessage())

	claim := pendingClose.ToPendingCustomerClaim()
	require.Equal(t, StatePendingCustomerClaim, claim.StateName())
	closedFromClaim := claim.ToClosed()
	require.Equal(t, StateClosed, closedFromClaim.StateName())

	dispute := pendingClose.ToDispute()
	require.Equal(t, StateDispute, dispute.StateName())
	closedFromDispute := dispute.ToClosed()
	require.Equal(t, StateClosed, closedFromDispute.StateName())

	closed := pendingClose.ToClosed()
	require.Equal(t, StateClosed, closed.StateName())
	require.Equal(t, CustomerBalance(300), closed.CustomerBalance())
	require.Equal(t, MerchantBalance(200), closed.MerchantBalance())
}

func TestRequestedCompleteRejectsInvalidSignature(t *testing.T) {
	channelId := testChannelId(t, 0x09)
	requested := NewRequested(channelId, 100, 0, RevocationLock{})

	_, err := requested.Complete(ClosingSignature{}, false)
	require.Error(t, err)

	inactive, err := requested.Complete(ClosingSignature{Bytes: []byte("sig")}, true)
	require.NoError(t, err)
	require.Equal(t, StateInactive, inactive.StateName())
	require.Equal(t, channelId, inactive.ChannelId())
}

func TestChannelNameSuffixed(t *testing.T) {
	name := ChannelName("coffee-shop")
	require.Equal(t, ChannelName("coffee-shop"), name.Suffixed(0))
	require.Equal(t, ChannelName("coffee-shop (1)"), name.Suffixed(1))
	require.Equal(t, ChannelName("coffee-shop (2)"), name.Suffixed(2))
}

// TestEncodeDecodeRoundTrip checks that the Inactive, Originated and
// CustomerFunded State variants survive an Encode/Decode round trip with its fields intact, since the
// store persists exactly this encoding between daemon restarts.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	channelId := testChannelId(t, 0x0a)

	cases := map[string]State{
		"inactive":        NewInactive(channelId, 100, 50, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{1, 2, 3}),
		"originated":      NewOriginated(NewInactive(channelId, 100, 50, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})),
		"customer funded": NewCustomerFunded(NewOriginated(NewInactive(channelId, 100, 50, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{}))),
	}

	for name, state := range cases {
		t.Run(name, func(t *testing.T) {
			encoded, err := EncodeBytes(state)
			require.NoError(t, err)

			decoded, err := DecodeBytes(encoded)
			require.NoError(t, err)
			require.Equal(t, state.StateName(), decoded.StateName())
			require.Equal(t, state.ChannelId(), decoded.ChannelId())
			require.Equal(t, state.CustomerBalance(), decoded.CustomerBalance())
			require.Equal(t, state.MerchantBalance(), decoded.MerchantBalance())
		})
	}
}

func TestEncodeDecodeReadyRoundTrip(t *testing.T) {
	channelId := testChannelId(t, 0x0b)
	ready := NewReady(channelId, 70, 80, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{9, 9, 9}, RevocationSecret{8, 8, 8}, PayToken{Bytes: []byte("tok")})

	encoded, err := EncodeBytes(ready)
	require.NoError(t, err)

	decoded, err := DecodeBytes(encoded)
	require.NoError(t, err)
	decodedReady, ok := decoded.(Ready)
	require.True(t, ok)
	require.Equal(t, ready.PayToken(), decodedReady.PayToken())
	require.Equal(t, ready.CustomerBalance(), decodedReady.CustomerBalance())
	require.Equal(t, ready.MerchantBalance(), decodedReady.MerchantBalance())
}

func TestEncodeDecodeClosedRoundTrip(t *testing.T) {
	channelId := testChannelId(t, 0x0c)
	inactive := NewInactive(channelId, 400, 100, ClosingSignature{Bytes: []byte("sig")}, RevocationLock{})
	_, pendingClose, err := inactive.Close(nil)
	require.NoError(t, err)
	closed := pendingClose.ToClosed()

	encoded, err := EncodeBytes(closed)
	require.NoError(t, err)

	decoded, err := DecodeBytes(encoded)
	require.NoError(t, err)
	require.Equal(t, StateClosed, decoded.StateName())
	require.Equal(t, closed.ClosingMessage(), decoded.(Closed).ClosingMessage())
}
