package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/escrow"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run the chain-watching control loop, reconciling local state with on-chain status",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "off-chain", Usage: "log each on-chain operation the watcher posts; operations are still posted to the in-process simulator"},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("run: opening store: %w", err)
		}
		defer db.Close()

		var chain escrow.Client = escrow.NewSimulator()
		if ctx.Bool("off-chain") {
			chain = loggingOnlyClient{chain}
		}

		watcher := closer.NewWatcher(db, chain, closer.DefaultPollInterval)
		watcher.Start()
		defer watcher.Stop()

		fmt.Println("zkchannels-customer: chain watcher running, press Ctrl-C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("zkchannels-customer: shutting down")
		return nil
	},
}
