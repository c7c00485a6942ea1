package main

import (
	"context"
	"log"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// loggingOnlyClient wraps an escrow.Client, printing each operation it
// posts before forwarding it to the wrapped client. GetContractState is
// forwarded without printing. `run --off-chain` uses it so an operator can
// watch the operations the watcher posts to its in-process Simulator.
type loggingOnlyClient struct {
	escrow.Client
}

func (c loggingOnlyClient) Originate(ctx context.Context, details escrow.ContractDetails, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (escrow.ContractId, uint64, error) {
	log.Printf("watcher(off-chain): originate customer=%d merchant=%d", customerBalance, merchantBalance)
	return c.Client.Originate(ctx, details, customerBalance, merchantBalance)
}

func (c loggingOnlyClient) AddCustomerFunding(ctx context.Context, contractId escrow.ContractId, amount zkabacus.CustomerBalance) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): add_customer_funding contract=%s amount=%d", contractId, amount)
	return c.Client.AddCustomerFunding(ctx, contractId, amount)
}

func (c loggingOnlyClient) AddMerchantFunding(ctx context.Context, contractId escrow.ContractId, amount zkabacus.MerchantBalance) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): add_merchant_funding contract=%s amount=%d", contractId, amount)
	return c.Client.AddMerchantFunding(ctx, contractId, amount)
}

func (c loggingOnlyClient) ReclaimCustomerFunding(ctx context.Context, contractId escrow.ContractId) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): reclaim_customer_funding contract=%s", contractId)
	return c.Client.ReclaimCustomerFunding(ctx, contractId)
}

func (c loggingOnlyClient) ReclaimMerchantFunding(ctx context.Context, contractId escrow.ContractId) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): reclaim_merchant_funding contract=%s", contractId)
	return c.Client.ReclaimMerchantFunding(ctx, contractId)
}

func (c loggingOnlyClient) Expiry(ctx context.Context, contractId escrow.ContractId) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): expiry contract=%s", contractId)
	return c.Client.Expiry(ctx, contractId)
}

func (c loggingOnlyClient) CustomerClose(ctx context.Context, contractId escrow.ContractId, closing zkabacus.ClosingMessage) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): custclose contract=%s", contractId)
	return c.Client.CustomerClose(ctx, contractId, closing)
}

func (c loggingOnlyClient) MerchantDispute(ctx context.Context, contractId escrow.ContractId, secret zkabacus.RevocationSecret) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): dispute contract=%s", contractId)
	return c.Client.MerchantDispute(ctx, contractId, secret)
}

func (c loggingOnlyClient) CustomerClaim(ctx context.Context, contractId escrow.ContractId) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): custclaim contract=%s", contractId)
	return c.Client.CustomerClaim(ctx, contractId)
}

func (c loggingOnlyClient) MerchantClaim(ctx context.Context, contractId escrow.ContractId) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): merchclaim contract=%s", contractId)
	return c.Client.MerchantClaim(ctx, contractId)
}

func (c loggingOnlyClient) MutualClose(ctx context.Context, contractId escrow.ContractId, state zkabacus.CloseState, merchantAuth escrow.AuthorizationSignature) (escrow.OperationStatus, uint64, error) {
	log.Printf("watcher(off-chain): mutual_close contract=%s", contractId)
	return c.Client.MutualClose(ctx, contractId, state, merchantAuth)
}
