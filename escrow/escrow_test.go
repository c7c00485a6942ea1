package escrow_test

import (
	"context"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

func testChannelId(t *testing.T, b byte) zkabacus.ChannelId {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	id, err := zkabacus.NewChannelId(raw)
	require.NoError(t, err)
	return id
}

func TestNewKeyHashIsDeterministicAndBinding(t *testing.T) {
	zkPub := []byte("zkabacus-public-key")
	addr := escrow.TezosFundingAddress("tz1SomeMerchant")
	tezosPub := escrow.TezosPublicKey([]byte("tezos-public-key"))

	h1 := escrow.NewKeyHash(zkPub, addr, tezosPub)
	h2 := escrow.NewKeyHash(zkPub, addr, tezosPub)
	require.Equal(t, h1, h2)

	differentAddr := escrow.NewKeyHash(zkPub, "tz1Other", tezosPub)
	require.NotEqual(t, h1, differentAddr)

	differentZkPub := escrow.NewKeyHash([]byte("other-zk-key"), addr, tezosPub)
	require.NotEqual(t, h1, differentZkPub)
}

func TestSignAndVerifyMutualClose(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	contractId := escrow.ContractId{Address: "KT1Test"}
	channelId := testChannelId(t, 0x01)
	custBal := zkabacus.CustomerBalance(100)
	merchBal := zkabacus.MerchantBalance(50)

	sig := escrow.SignMutualClose(key, contractId, channelId, custBal, merchBal)
	require.True(t, escrow.VerifyMutualClose(key.PubKey(), sig, contractId, channelId, custBal, merchBal))

	// A signature over different balances must not verify.
	require.False(t, escrow.VerifyMutualClose(key.PubKey(), sig, contractId, channelId, custBal+1, merchBal))

	// A signature checked against the wrong key must not verify.
	otherKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	require.False(t, escrow.VerifyMutualClose(otherKey.PubKey(), sig, contractId, channelId, custBal, merchBal))
}

func TestSimulatorFundingLifecycle(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()

	contractId, _, err := sim.Originate(ctx, escrow.ContractDetails{}, 0, 0)
	require.NoError(t, err)

	state, err := sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.AwaitingCustomerFunding, state.Status)

	status, _, err := sim.AddCustomerFunding(ctx, contractId, 100)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err = sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.AwaitingMerchantFunding, state.Status)

	// Customer funding can't be added twice.
	_, _, err = sim.AddCustomerFunding(ctx, contractId, 100)
	require.Error(t, err)

	status, _, err = sim.AddMerchantFunding(ctx, contractId, 50)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err = sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.Open, state.Status)
	require.Equal(t, zkabacus.CustomerBalance(100), state.CustomerBalance)
	require.Equal(t, zkabacus.MerchantBalance(50), state.MerchantBalance)
}

func TestSimulatorUnknownContractErrors(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()
	_, err := sim.GetContractState(ctx, escrow.ContractId{Address: "KT1Nonexistent"})
	require.Error(t, err)
}

// TestSimulatorCustomerCloseDisputeFlow walks a merchant dispute against a
// posted customer close: a revocation secret opening the posted lock pays
// both balances to the merchant.
func TestSimulatorCustomerCloseDisputeFlow(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()

	contractId, _, err := sim.Originate(ctx, escrow.ContractDetails{}, 0, 0)
	require.NoError(t, err)
	_, _, err = sim.AddCustomerFunding(ctx, contractId, 100)
	require.NoError(t, err)
	_, _, err = sim.AddMerchantFunding(ctx, contractId, 50)
	require.NoError(t, err)

	channelId := testChannelId(t, 0x02)
	lock, secret, err := zkabacus.NewRevocationPair()
	require.NoError(t, err)

	closing := zkabacus.ClosingMessage{
		CloseState: zkabacus.CloseState{
			ChannelId:       channelId,
			CustomerBalance: 100,
			MerchantBalance: 50,
			RevocationLock:  lock,
		},
	}
	status, _, err := sim.CustomerClose(ctx, contractId, closing)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err := sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.CustomerClose, state.Status)
	require.False(t, state.TimeoutExpired(), "self-delay has not elapsed yet")

	// A claim before the self-delay elapses must be rejected.
	_, _, err = sim.CustomerClaim(ctx, contractId)
	require.Error(t, err)

	// An old revoked state's disclosed secret lets the merchant dispute
	// and take both balances.
	status, _, err = sim.MerchantDispute(ctx, contractId, secret)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err = sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.Closed, state.Status)
	require.Equal(t, zkabacus.CustomerBalance(0), state.CustomerBalance)
	require.Equal(t, zkabacus.MerchantBalance(150), state.MerchantBalance)
}

// TestSimulatorCustomerClaimAfterSelfDelay checks CustomerClaim succeeds
// only once the simulated chain has advanced past the self-delay.
func TestSimulatorCustomerClaimAfterSelfDelay(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()
	sim.SelfDelay = 3

	contractId, _, err := sim.Originate(ctx, escrow.ContractDetails{}, 0, 0)
	require.NoError(t, err)
	_, _, err = sim.AddCustomerFunding(ctx, contractId, 100)
	require.NoError(t, err)
	_, _, err = sim.AddMerchantFunding(ctx, contractId, 0)
	require.NoError(t, err)

	channelId := testChannelId(t, 0x03)
	closing := zkabacus.ClosingMessage{
		CloseState: zkabacus.CloseState{
			ChannelId:       channelId,
			CustomerBalance: 100,
			MerchantBalance: 0,
		},
	}
	_, _, err = sim.CustomerClose(ctx, contractId, closing)
	require.NoError(t, err)

	_, _, err = sim.CustomerClaim(ctx, contractId)
	require.Error(t, err, "self-delay has not elapsed")

	sim.AdvanceLevel(3)
	status, _, err := sim.CustomerClaim(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err := sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.Closed, state.Status)
}

func TestSimulatorMutualClose(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()

	contractId, _, err := sim.Originate(ctx, escrow.ContractDetails{}, 0, 0)
	require.NoError(t, err)
	_, _, err = sim.AddCustomerFunding(ctx, contractId, 100)
	require.NoError(t, err)
	_, _, err = sim.AddMerchantFunding(ctx, contractId, 50)
	require.NoError(t, err)

	state := zkabacus.CloseState{CustomerBalance: 80, MerchantBalance: 70}
	status, _, err := sim.MutualClose(ctx, contractId, state, escrow.AuthorizationSignature{})
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	final, err := sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.Closed, final.Status)
	require.Equal(t, zkabacus.CustomerBalance(80), final.CustomerBalance)
	require.Equal(t, zkabacus.MerchantBalance(70), final.MerchantBalance)

	// A second mutual close against an already-closed contract fails.
	_, _, err = sim.MutualClose(ctx, contractId, state, escrow.AuthorizationSignature{})
	require.Error(t, err)
}

func TestSimulatorReclaimBeforeOpen(t *testing.T) {
	ctx := context.Background()
	sim := escrow.NewSimulator()

	contractId, _, err := sim.Originate(ctx, escrow.ContractDetails{}, 0, 0)
	require.NoError(t, err)
	_, _, err = sim.AddCustomerFunding(ctx, contractId, 100)
	require.NoError(t, err)

	status, _, err := sim.ReclaimCustomerFunding(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.OperationConfirmed, status)

	state, err := sim.GetContractState(ctx, contractId)
	require.NoError(t, err)
	require.Equal(t, escrow.FundingReclaimed, state.Status)
}
