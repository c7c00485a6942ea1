package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/boltlabs-inc/zkchannels/pay"
	"github.com/boltlabs-inc/zkchannels/simcrypto"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

var payCommand = cli.Command{
	Name:      "pay",
	Usage:     "make a payment on an existing channel",
	ArgsUsage: "--label <name> --amount <amount>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "label", Usage: "local channel to pay on"},
		cli.Int64Flag{Name: "amount", Usage: "minor units to move from customer to merchant; negative refunds"},
		cli.StringFlag{Name: "note", Usage: "free-text note attached to the payment"},
	},
	Action: func(ctx *cli.Context) error {
		return runPay(ctx, ctx.Int64("amount"))
	},
}

var refundCommand = cli.Command{
	Name:      "refund",
	Usage:     "request a refund on an existing channel, equivalent to pay --amount -<amount>",
	ArgsUsage: "--label <name> --amount <amount>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "label", Usage: "local channel to refund on"},
		cli.Int64Flag{Name: "amount", Usage: "minor units to move from merchant back to customer"},
	},
	Action: func(ctx *cli.Context) error {
		return runPay(ctx, -ctx.Int64("amount"))
	},
}

func runPay(ctx *cli.Context, amount int64) error {
	label := ctx.String("label")
	if label == "" {
		return fmt.Errorf("pay: --label is required")
	}
	if !ctx.IsSet("amount") {
		return fmt.Errorf("pay: --amount is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("pay: opening store: %w", err)
	}
	defer db.Close()

	record, err := db.Get(context.Background(), zkabacus.ChannelName(label))
	if err != nil {
		return fmt.Errorf("pay: loading channel %q: %w", label, err)
	}

	zkKey, err := simcrypto.LoadSharedKey(cfg.ZkAbacusKeyPath)
	if err != nil {
		return fmt.Errorf("pay: loading zkAbacus key: %w", err)
	}
	crypto := simcrypto.NewCustomerCrypto(zkKey)

	ch, err := dialSession(cfg, record.Address)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := pay.RunCustomer(context.Background(), ch, db, crypto.Pay, zkabacus.ChannelName(label), amount, ctx.String("note")); err != nil {
		return err
	}
	fmt.Printf("Paid %d on channel %q\n", amount, label)
	return nil
}
