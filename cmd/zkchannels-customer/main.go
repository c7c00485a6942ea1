// Command zkchannels-customer is the customer's control CLI: it dials a
// merchant, drives one protocol sub-session to completion, and exits,
// except for `run`, which launches the chain-watching control loop as a
// long-lived process.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/config"
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/pay"
	"github.com/boltlabs-inc/zkchannels/store"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[zkchannels-customer] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "zkchannels-customer"
	app.Usage = "establish, pay on, and close zkChannels with a merchant"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "configfile", Usage: "path to a customer config file"},
	}
	app.Commands = []cli.Command{
		establishCommand,
		payCommand,
		refundCommand,
		closeCommand,
		runCommand,
		channelsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// loadConfig parses a CustomerConfig, the daemon-level settings (data
// directory, merchant address, Tezos identities, TLS) that live in an ini
// file rather than on a per-invocation command line. Per-command flags
// like --label or --amount are urfave/cli's concern, not go-flags'; only
// --configfile crosses between the two.
func loadConfig(ctx *cli.Context) (*config.CustomerConfig, error) {
	var args []string
	if path := ctx.GlobalString("configfile"); path != "" {
		args = []string{"--configfile", path}
	}
	return config.LoadCustomerConfig(args)
}

// openStore opens the customer store named by cfg, applying subsystem log
// levels the way zkchannels-merchantd does for its own daemon process.
func openStore(cfg *config.CustomerConfig) (*store.CustomerStore, error) {
	establish.SetLogLevel(cfg.LogLevel)
	pay.SetLogLevel(cfg.LogLevel)
	closer.SetLogLevel(cfg.LogLevel)
	store.SetLogLevel(cfg.LogLevel)

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "customer.db")
	}
	return store.OpenCustomerStore(context.Background(), dbPath)
}
