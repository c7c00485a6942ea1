package simcrypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boltlabs-inc/zkchannels/simcrypto"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

func mustChannelId(t *testing.T, b byte) zkabacus.ChannelId {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	id, err := zkabacus.NewChannelId(raw)
	require.NoError(t, err)
	return id
}

func TestGenerateSharedKeyIsRandom(t *testing.T) {
	a, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)
	b, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestLoadSharedKeySavesAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "key")

	loaded, err := simcrypto.LoadSharedKey(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "LoadSharedKey must persist a generated key on first use")

	again, err := simcrypto.LoadSharedKey(path)
	require.NoError(t, err)
	require.Equal(t, loaded, again)
}

func TestLoadSharedKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("not hex at all!!"), 0600))

	_, err := simcrypto.LoadSharedKey(path)
	require.Error(t, err)
}

func TestPublicTagIsDeterministicAndKeyed(t *testing.T) {
	key, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)
	other, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)

	require.Equal(t, simcrypto.PublicTag(key), simcrypto.PublicTag(key))
	require.NotEqual(t, simcrypto.PublicTag(key), simcrypto.PublicTag(other))
}

// TestEstablishRoundTrip exercises the establish proof and initial closing
// signature/pay token the way establish.RunCustomer and establish.RunMerchant
// do: a proof the merchant issued under doesn't verify under a different
// key, and a proof for one channel doesn't verify for another.
func TestEstablishRoundTrip(t *testing.T) {
	key, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)
	wrongKey, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)

	customer := simcrypto.NewCustomerCrypto(key).Establish
	merchant := simcrypto.NewMerchantCrypto(key).Establish

	channelId := mustChannelId(t, 0x01)
	custBal := zkabacus.CustomerBalance(1000)
	merchBal := zkabacus.MerchantBalance(0)
	ctx := zkabacus.NewContext([]byte("session-transcript"))

	proof, err := customer.NewEstablishProof(channelId, custBal, merchBal, ctx)
	require.NoError(t, err)
	require.True(t, merchant.VerifyEstablishProof(proof, channelId, custBal, merchBal, ctx))

	// A proof for a different channel must not verify.
	otherChannelId := mustChannelId(t, 0x02)
	require.False(t, merchant.VerifyEstablishProof(proof, otherChannelId, custBal, merchBal, ctx))

	// A proof issued under a different shared key must not verify.
	wrongMerchant := simcrypto.NewMerchantCrypto(wrongKey).Establish
	require.False(t, wrongMerchant.VerifyEstablishProof(proof, channelId, custBal, merchBal, ctx))

	sig, err := merchant.IssueClosingSignature(channelId, custBal, merchBal, zkabacus.RevocationLock{})
	require.NoError(t, err)
	require.True(t, customer.ValidateClosingSignature(sig, channelId, custBal, merchBal, zkabacus.RevocationLock{}))

	inactive := zkabacus.NewInactive(channelId, custBal, merchBal, sig, zkabacus.RevocationLock{})

	token, err := merchant.IssuePayToken(channelId, custBal, merchBal)
	require.NoError(t, err)
	require.True(t, customer.ValidatePayToken(token, inactive))
}

// TestPayRoundTrip walks a full Pay cycle against shared Tracker state the
// way a merchant process would, matching pay.RunCustomer/RunMerchant's
// VerifyPayProof -> IssueClosingSignature -> VerifyRevocation -> IssuePayToken
// sequence, and checks that a payment driving a balance negative is rejected.
func TestPayRoundTrip(t *testing.T) {
	key, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)

	merchantBundle := simcrypto.NewMerchantCrypto(key)
	customerBundle := simcrypto.NewCustomerCrypto(key)

	channelId := mustChannelId(t, 0x03)
	custBal := zkabacus.CustomerBalance(1000)
	merchBal := zkabacus.MerchantBalance(0)

	// Seed the merchant's tracker the way activation does.
	_, err = merchantBundle.Establish.IssuePayToken(channelId, custBal, merchBal)
	require.NoError(t, err)

	amount := int64(100)
	nonce, err := zkabacus.NewNonce()
	require.NoError(t, err)

	ready := zkabacus.NewReady(channelId, custBal, merchBal, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{}, zkabacus.RevocationSecret{}, zkabacus.PayToken{})

	proof, err := customerBundle.Pay.NewPayProof(ready, amount, nonce)
	require.NoError(t, err)

	require.True(t, merchantBundle.Pay.VerifyPayProof(proof, channelId, amount, nonce))

	started, _, err := ready.Start(amount, nonce, proof)
	require.NoError(t, err)

	newSig, err := merchantBundle.Pay.IssueClosingSignature(channelId, nonce)
	require.NoError(t, err)
	require.True(t, customerBundle.Pay.ValidateNewClosingSignature(newSig, channelId, started.NewCustomerBalance(), started.NewMerchantBalance()))

	locked, _, err := started.Lock(newSig, true)
	require.NoError(t, err)

	lockMsg := locked.LockMessage()
	require.True(t, merchantBundle.Pay.VerifyRevocation(lockMsg.RevocationLock, lockMsg.RevocationSecret, lockMsg.BlindingFactor))

	newToken, err := merchantBundle.Pay.IssuePayToken(channelId, nonce)
	require.NoError(t, err)
	require.True(t, customerBundle.Pay.ValidatePayToken(newToken, locked))

	unlocked, _, err := locked.Unlock(newToken, true)
	require.NoError(t, err)
	require.Equal(t, started.NewCustomerBalance(), unlocked.CustomerBalance())
	require.Equal(t, started.NewMerchantBalance(), unlocked.MerchantBalance())
}

// TestPayRejectsOverdraft checks VerifyPayProof's balance-negativity guard:
// a payment larger than the tracked customer balance must not verify, and
// must not mutate tracker state (verified by a subsequent valid payment for
// the original balance succeeding).
func TestPayRejectsOverdraft(t *testing.T) {
	key, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)

	merchantBundle := simcrypto.NewMerchantCrypto(key)
	customerBundle := simcrypto.NewCustomerCrypto(key)

	channelId := mustChannelId(t, 0x04)
	custBal := zkabacus.CustomerBalance(100)
	merchBal := zkabacus.MerchantBalance(0)
	_, err = merchantBundle.Establish.IssuePayToken(channelId, custBal, merchBal)
	require.NoError(t, err)

	overdraftNonce, err := zkabacus.NewNonce()
	require.NoError(t, err)
	overdraftAmount := int64(200)
	ready := zkabacus.NewReady(channelId, custBal, merchBal, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{}, zkabacus.RevocationSecret{}, zkabacus.PayToken{})
	overdraftProof, err := customerBundle.Pay.NewPayProof(ready, overdraftAmount, overdraftNonce)
	require.NoError(t, err)
	require.False(t, merchantBundle.Pay.VerifyPayProof(overdraftProof, channelId, overdraftAmount, overdraftNonce))

	okNonce, err := zkabacus.NewNonce()
	require.NoError(t, err)
	okAmount := int64(50)
	okProof, err := customerBundle.Pay.NewPayProof(ready, okAmount, okNonce)
	require.NoError(t, err)
	require.True(t, merchantBundle.Pay.VerifyPayProof(okProof, channelId, okAmount, okNonce))
}

func TestCloseMerchantCryptoMatchesClosingSignature(t *testing.T) {
	key, err := simcrypto.GenerateSharedKey()
	require.NoError(t, err)

	establishMerchant := simcrypto.NewMerchantCrypto(key).Establish
	closeMerchant := simcrypto.CloseMerchantCrypto{Key: key}

	channelId := mustChannelId(t, 0x05)
	custBal := zkabacus.CustomerBalance(500)
	merchBal := zkabacus.MerchantBalance(500)

	sig, err := establishMerchant.IssueClosingSignature(channelId, custBal, merchBal, zkabacus.RevocationLock{})
	require.NoError(t, err)

	state := zkabacus.CloseState{
		ChannelId:       channelId,
		CustomerBalance: custBal,
		MerchantBalance: merchBal,
		RevocationLock:  zkabacus.RevocationLock{},
	}
	require.True(t, closeMerchant.VerifyClosingSignature(sig, state))

	// A closing signature for different balances must not verify.
	state.CustomerBalance = 499
	state.MerchantBalance = 501
	require.False(t, closeMerchant.VerifyClosingSignature(sig, state))
}
