package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/simcrypto"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

var establishCommand = cli.Command{
	Name:      "establish",
	Usage:     "open a new channel with a merchant",
	ArgsUsage: "--merchant <address> --deposit <amount>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "merchant", Usage: "host:port of the merchant to connect to"},
		cli.Int64Flag{Name: "deposit", Usage: "customer deposit, in minor units"},
		cli.Int64Flag{Name: "merchant-deposit", Usage: "merchant deposit, in minor units"},
		cli.StringFlag{Name: "note", Usage: "free-text note attached to the establish request"},
		cli.StringFlag{Name: "label", Usage: "local name for the new channel; defaults to the merchant address"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		address := ctx.String("merchant")
		if address == "" {
			address = cfg.MerchantAddress
		}
		if address == "" {
			return fmt.Errorf("establish: --merchant is required")
		}
		if !ctx.IsSet("deposit") {
			return fmt.Errorf("establish: --deposit is required")
		}
		label := ctx.String("label")
		if label == "" {
			label = address
		}

		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("establish: opening store: %w", err)
		}
		defer db.Close()

		zkKey, err := simcrypto.LoadSharedKey(cfg.ZkAbacusKeyPath)
		if err != nil {
			return fmt.Errorf("establish: loading zkAbacus key: %w", err)
		}
		crypto := simcrypto.NewCustomerCrypto(zkKey)

		ch, params, err := dial(cfg, address)
		if err != nil {
			return err
		}
		defer ch.Close()

		req := establish.CustomerRequest{
			Label:                zkabacus.ChannelName(label),
			Address:              address,
			CustomerDeposit:      zkabacus.CustomerBalance(ctx.Int64("deposit")),
			MerchantDeposit:      zkabacus.MerchantBalance(ctx.Int64("merchant-deposit")),
			Note:                 ctx.String("note"),
			CustomerTezosAddress: cfg.CustomerTezosAddress,
		}

		chain := escrow.NewSimulator()
		fund := func(ctx context.Context, channelId zkabacus.ChannelId) (escrow.ContractId, uint64, error) {
			details := escrow.ContractDetails{MerchantTezosPublicKey: params.TezosPublicKey}
			contractId, level, err := chain.Originate(ctx, details, req.CustomerDeposit, req.MerchantDeposit)
			if err != nil {
				return escrow.ContractId{}, 0, err
			}
			if req.CustomerDeposit > 0 {
				status, fundLevel, err := chain.AddCustomerFunding(ctx, contractId, req.CustomerDeposit)
				if err != nil {
					return escrow.ContractId{}, 0, err
				}
				if status != escrow.OperationConfirmed {
					return escrow.ContractId{}, 0, fmt.Errorf("establish: ledger rejected customer funding for channel %v", channelId)
				}
				level = fundLevel
			}
			return contractId, level, nil
		}

		if err := establish.RunCustomer(context.Background(), ch, db, crypto.Establish, params, req, fund); err != nil {
			return err
		}
		fmt.Printf("Established channel %q with %s\n", label, address)
		return nil
	},
}
