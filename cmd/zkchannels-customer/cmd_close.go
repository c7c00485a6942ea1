package main

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/urfave/cli"

	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

var closeCommand = cli.Command{
	Name:      "close",
	Usage:     "close an existing channel",
	ArgsUsage: "--label <name>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "label", Usage: "local channel to close"},
		cli.BoolFlag{Name: "force", Usage: "close unilaterally instead of negotiating with the merchant"},
		cli.BoolFlag{Name: "off-chain", Usage: "with --force, emit a close document instead of posting on chain"},
	},
	Action: func(ctx *cli.Context) error {
		label := ctx.String("label")
		if label == "" {
			return fmt.Errorf("close: --label is required")
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("close: opening store: %w", err)
		}
		defer db.Close()

		chain := escrow.NewSimulator()

		if ctx.Bool("force") {
			onChain := !ctx.Bool("off-chain")
			if err := closer.RunCustomerUnilateralClose(context.Background(), db, chain, zkabacus.ChannelName(label), onChain, cfg.DataDir); err != nil {
				return err
			}
			fmt.Printf("Closed channel %q unilaterally\n", label)
			return nil
		}

		record, err := db.Get(context.Background(), zkabacus.ChannelName(label))
		if err != nil {
			return fmt.Errorf("close: loading channel %q: %w", label, err)
		}
		if record.MerchantTezosPublicKey == nil {
			return fmt.Errorf("close: channel %q has no recorded merchant key; use --force", label)
		}
		merchantPublicKey, err := parseTezosPublicKey(record.MerchantTezosPublicKey)
		if err != nil {
			return fmt.Errorf("close: parsing merchant public key: %w", err)
		}

		ch, err := dialSession(cfg, record.Address)
		if err != nil {
			return err
		}
		defer ch.Close()

		if err := closer.RunCustomerMutualClose(context.Background(), ch, db, chain, merchantPublicKey, zkabacus.ChannelName(label)); err != nil {
			return err
		}
		fmt.Printf("Closed channel %q mutually\n", label)
		return nil
	},
}

func parseTezosPublicKey(raw escrow.TezosPublicKey) (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(raw)
}
