package closer

import (
	"context"
	"fmt"

	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// FinalizeCustomerClose transitions label from PendingClose to Closed and
// records the channel's final balances, once a posted close has confirmed
// without challenge.
func FinalizeCustomerClose(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName) error {
	var final zkabacus.Closed
	_, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		pending, ok := current.(zkabacus.PendingClose)
		if !ok {
			return nil, nil, fmt.Errorf("closer: channel %v is not PendingClose", label)
		}
		final = pending.ToClosed()
		return final, nil, nil
	})
	if err != nil {
		return err
	}
	return db.RecordFinalBalances(ctx, label, final.CustomerBalance(), final.MerchantBalance())
}

// FinalizeCustomerClaim transitions label from PendingCustomerClaim to
// Closed once the custClaim operation confirms.
func FinalizeCustomerClaim(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName) error {
	var final zkabacus.Closed
	_, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		claim, ok := current.(zkabacus.PendingCustomerClaim)
		if !ok {
			return nil, nil, fmt.Errorf("closer: channel %v is not PendingCustomerClaim", label)
		}
		final = claim.ToClosed()
		return final, nil, nil
	})
	if err != nil {
		return err
	}
	return db.RecordFinalBalances(ctx, label, final.CustomerBalance(), final.MerchantBalance())
}

// MarkDispute transitions label from PendingClose to Dispute once the
// chain-watching loop observes the contract Closed while the merchant's
// balance is already recorded locally (spec.md §4.H's "Closed" row).
func MarkDispute(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName) error {
	_, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		pending, ok := current.(zkabacus.PendingClose)
		if !ok {
			return nil, nil, fmt.Errorf("closer: channel %v is not PendingClose", label)
		}
		return pending.ToDispute(), nil, nil
	})
	return err
}

// ToPendingCustomerClaim transitions label from PendingClose to
// PendingCustomerClaim once custClaim has been posted following an expired
// custClose timelock.
func ToPendingCustomerClaim(ctx context.Context, db *store.CustomerStore, label zkabacus.ChannelName) error {
	_, err := db.WithChannelState(ctx, label, func(current zkabacus.State) (zkabacus.State, interface{}, error) {
		pending, ok := current.(zkabacus.PendingClose)
		if !ok {
			return nil, nil, fmt.Errorf("closer: channel %v is not PendingClose", label)
		}
		return pending.ToPendingCustomerClaim(), nil, nil
	})
	return err
}
