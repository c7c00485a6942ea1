package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

func openTestStore(t *testing.T) *store.CustomerStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "customer.db")
	db, err := store.OpenCustomerStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

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

func TestNewChannelAndGet(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x01)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{Bytes: []byte("sig")}, zkabacus.RevocationLock{})

	require.NoError(t, db.NewChannel(ctx, "coffee-shop", "merchant.example:2611", inactive))

	record, err := db.Get(ctx, "coffee-shop")
	require.NoError(t, err)
	require.Equal(t, zkabacus.ChannelName("coffee-shop"), record.Label)
	require.Equal(t, "merchant.example:2611", record.Address)
	require.Equal(t, zkabacus.StateInactive, record.State.StateName())
	require.Equal(t, channelId, record.State.ChannelId())
	require.Nil(t, record.ContractId)
}

func TestNewChannelRejectsDuplicateLabel(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x02)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "addr1", inactive))

	err := db.NewChannel(ctx, "shop", "addr2", inactive)
	require.ErrorIs(t, err, store.ErrChannelExists)
}

func TestGetUnknownLabel(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	_, err := db.Get(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNoSuchChannel)
}

func TestWithChannelStateAppliesTransition(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x03)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "addr", inactive))

	token := zkabacus.PayToken{Bytes: []byte("tok")}
	out, err := db.WithChannelState(ctx, "shop", func(s zkabacus.State) (zkabacus.State, interface{}, error) {
		current, ok := s.(zkabacus.Inactive)
		require.True(t, ok)
		ready, _, err := current.Activate(token, true)
		return ready, ready.StateName(), err
	})
	require.NoError(t, err)
	require.Equal(t, zkabacus.StateReady, out)

	record, err := db.Get(ctx, "shop")
	require.NoError(t, err)
	require.Equal(t, zkabacus.StateReady, record.State.StateName())
}

// TestWithChannelStateRollsBackOnError checks that a failing transition
// leaves the stored state untouched.
func TestWithChannelStateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x04)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "addr", inactive))

	_, err := db.WithChannelState(ctx, "shop", func(s zkabacus.State) (zkabacus.State, interface{}, error) {
		current := s.(zkabacus.Inactive)
		_, _, activateErr := current.Activate(zkabacus.PayToken{}, false)
		return nil, nil, activateErr
	})
	require.Error(t, err)

	record, err := db.Get(ctx, "shop")
	require.NoError(t, err)
	require.Equal(t, zkabacus.StateInactive, record.State.StateName())
}

func TestWithCloseableChannelRejectsClosedState(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x05)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{Bytes: []byte("sig")}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "addr", inactive))

	_, pendingClose, err := inactive.Close(nil)
	require.NoError(t, err)
	closed := pendingClose.ToClosed()
	_, err = db.WithChannelState(ctx, "shop", func(zkabacus.State) (zkabacus.State, interface{}, error) {
		return closed, nil, nil
	})
	require.NoError(t, err)

	_, err = db.WithCloseableChannel(ctx, "shop", func(c zkabacus.Closeable) (zkabacus.ClosingMessage, zkabacus.PendingClose, error) {
		t.Fatal("f must not be called for a non-Closeable state")
		return zkabacus.ClosingMessage{}, zkabacus.PendingClose{}, nil
	})
	require.ErrorIs(t, err, store.ErrUncloseableState)
}

func TestRelabelAndReaddressChannel(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x06)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "old-addr", inactive))

	require.NoError(t, db.RelabelChannel(ctx, "shop", "shop (1)"))
	_, err := db.Get(ctx, "shop")
	require.ErrorIs(t, err, store.ErrNoSuchChannel)

	record, err := db.Get(ctx, "shop (1)")
	require.NoError(t, err)
	require.Equal(t, "old-addr", record.Address)

	require.NoError(t, db.ReaddressChannel(ctx, "shop (1)", "new-addr"))
	record, err = db.Get(ctx, "shop (1)")
	require.NoError(t, err)
	require.Equal(t, "new-addr", record.Address)

	err = db.RelabelChannel(ctx, "nonexistent", "whatever")
	require.ErrorIs(t, err, store.ErrNoSuchChannel)
}

func TestSetContractDetailsAndRecordFinalBalances(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	channelId := testChannelId(t, 0x07)
	inactive := zkabacus.NewInactive(channelId, 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "shop", "addr", inactive))

	contractId := escrow.ContractId{Address: "KT1Test"}
	require.NoError(t, db.SetContractDetails(ctx, "shop", contractId, 10, []byte("merchant-pubkey")))

	record, err := db.Get(ctx, "shop")
	require.NoError(t, err)
	require.NotNil(t, record.ContractId)
	require.Equal(t, contractId.Address, record.ContractId.Address)
	require.NotNil(t, record.ContractLevel)
	require.Equal(t, uint64(10), *record.ContractLevel)

	require.NoError(t, db.SetContractLevel(ctx, "shop", 42))
	record, err = db.Get(ctx, "shop")
	require.NoError(t, err)
	require.Equal(t, uint64(42), *record.ContractLevel)

	require.NoError(t, db.RecordFinalBalances(ctx, "shop", 30, 70))
	record, err = db.Get(ctx, "shop")
	require.NoError(t, err)
	require.Equal(t, zkabacus.CustomerBalance(30), *record.FinalCustomerBalance)
	require.Equal(t, zkabacus.MerchantBalance(70), *record.FinalMerchantBalance)
}

func TestListLabels(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	inactive := zkabacus.NewInactive(testChannelId(t, 0x08), 100, 0, zkabacus.ClosingSignature{}, zkabacus.RevocationLock{})
	require.NoError(t, db.NewChannel(ctx, "beta", "addr", inactive))
	require.NoError(t, db.NewChannel(ctx, "alpha", "addr", inactive))

	labels, err := db.ListLabels(ctx)
	require.NoError(t, err)
	require.Equal(t, []zkabacus.ChannelName{"alpha", "beta"}, labels)
}
