// Command zkchannels-merchantd runs the merchant side of zkChannels: a
// TCP listener accepting session-typed connections from customers,
// dispatched per SPEC_FULL.md §4.I, plus a Prometheus metrics endpoint and
// systemd readiness notification.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/boltlabs-inc/zkchannels/closer"
	"github.com/boltlabs-inc/zkchannels/config"
	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/merchant"
	"github.com/boltlabs-inc/zkchannels/pay"
	"github.com/boltlabs-inc/zkchannels/simcrypto"
	"github.com/boltlabs-inc/zkchannels/store"
	"github.com/boltlabs-inc/zkchannels/transport"
	"github.com/boltlabs-inc/zkchannels/zkabacus"
	"github.com/boltlabs-inc/zkchannels/zkchanlog"
)

var log = zkchanlog.NewSubsystemLogger("MRCD")

func main() {
	if err := merchantdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// merchantdMain is the true entry point: it is nested under main so
// deferred cleanup always runs, even when a later step returns an error.
func merchantdMain() error {
	cfg, err := config.LoadMerchantConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.LogDir != "" {
		if err := zkchanlog.InitLogRotator(cfg.LogDir+"/zkchannels-merchantd.log", 3); err != nil {
			return fmt.Errorf("merchantd: initializing log rotator: %w", err)
		}
	}
	applySubsystemLogLevels(cfg.LogLevel)

	log.Infof("Starting zkchannels-merchantd, listening on %s", cfg.ListenAddress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.OpenMerchantStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("merchantd: opening store: %w", err)
	}
	defer db.Close()

	signingKey, err := loadOrGenerateSigningKey(cfg.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("merchantd: loading signing key: %w", err)
	}

	zkKey, err := simcrypto.LoadSharedKey(cfg.ZkAbacusKeyPath)
	if err != nil {
		return fmt.Errorf("merchantd: loading zkAbacus key: %w", err)
	}
	crypto := simcrypto.NewMerchantCrypto(zkKey)

	chain := escrow.NewSimulator()

	identity := establish.MerchantIdentity{
		ZkAbacusPublicKey:   zkAbacusIdentity(zkKey),
		TezosFundingAddress: cfg.TezosNetwork,
	}
	tezosPublicKey := escrow.TezosPublicKey(signingKey.PubKey().SerializeCompressed())
	keyHash := escrow.NewKeyHash(identity.ZkAbacusPublicKey, escrow.TezosFundingAddress(identity.TezosFundingAddress), tezosPublicKey)
	parameters := transport.ParametersMsg{
		ZkAbacusPublicKey: identity.ZkAbacusPublicKey,
		TezosPublicKey:    tezosPublicKey,
		KeyHash:           keyHash,
	}

	// fundMerchant posts the merchant's half of a channel's on-chain
	// funding. The merchant runs its own in-process Simulator rather
	// than sharing the customer's: the concrete Tezos RPC invocations
	// are out of scope (spec.md §1), so this demo backend originates a
	// second, independently-tracked contract entry mirroring the one
	// the customer originated, instead of wiring a cross-process chain.
	// A deployment against a real Tezos node replaces both Simulators
	// with one shared RPC client and this asymmetry disappears.
	fundMerchant := func(ctx context.Context, channelId zkabacus.ChannelId, _ string, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (escrow.ContractId, error) {
		details := escrow.ContractDetails{MerchantTezosPublicKey: tezosPublicKey}
		contractId, _, err := chain.Originate(ctx, details, customerBalance, merchantBalance)
		if err != nil {
			return escrow.ContractId{}, err
		}
		if customerBalance > 0 {
			if status, _, err := chain.AddCustomerFunding(ctx, contractId, customerBalance); err != nil {
				return escrow.ContractId{}, err
			} else if status != escrow.OperationConfirmed {
				return escrow.ContractId{}, fmt.Errorf("merchantd: ledger rejected customer funding mirror for channel %v", channelId)
			}
		}
		status, _, err := chain.AddMerchantFunding(ctx, contractId, merchantBalance)
		if err != nil {
			return escrow.ContractId{}, err
		}
		if status != escrow.OperationConfirmed {
			return escrow.ContractId{}, fmt.Errorf("merchantd: ledger rejected merchant funding for channel %v", channelId)
		}
		return contractId, nil
	}

	dispatcher := merchant.NewDispatcher(db, crypto, identity, fundMerchant, signingKey, parameters, cfg.DispatchConcurrency)
	defer dispatcher.Stop()
	go dispatcher.Run()

	listener, err := listen(cfg)
	if err != nil {
		return fmt.Errorf("merchantd: listening on %s: %w", cfg.ListenAddress, err)
	}
	defer listener.Close()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return acceptLoop(gctx, listener, dispatcher)
	})

	if cfg.MetricsListen != "" {
		metricsServer := &http.Server{Addr: cfg.MetricsListen, Handler: promhttp.Handler()}
		group.Go(func() error {
			log.Infof("Serving metrics on %s", cfg.MetricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		go func() {
			<-gctx.Done()
			metricsServer.Close()
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("Failed to notify systemd of readiness: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	group.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Infof("Received signal %v, shutting down", sig)
		case <-gctx.Done():
		}
		listener.Close()
		cancel()
		return nil
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	log.Infof("Shutdown complete")
	return nil
}

func acceptLoop(ctx context.Context, listener net.Listener, dispatcher *merchant.Dispatcher) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		key, err := transport.NewSessionKey()
		if err != nil {
			log.Errorf("Failed to generate session key for %v: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}
		dispatcher.Accept(transport.NewChan(conn, key))
	}
}

func listen(cfg *config.MerchantConfig) (net.Listener, error) {
	if cfg.UnsafeDisableTLS {
		log.Warnf("TLS disabled (unsafedisabletls); accepting plaintext connections")
		return net.Listen("tcp", cfg.ListenAddress)
	}
	tlsCert, err := loadOrGenerateTLSCert(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", cfg.ListenAddress, &tls.Config{Certificates: []tls.Certificate{tlsCert}})
}

func loadOrGenerateSigningKey(path string) (*secp256k1.PrivateKey, error) {
	if b, err := os.ReadFile(path); err == nil {
		key := secp256k1.PrivKeyFromBytes(b)
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key.Serialize(), 0o600); err != nil {
		return nil, err
	}
	log.Infof("Generated new on-chain signing key at %s", path)
	return key, nil
}

// zkAbacusIdentity derives a public identity tag for the merchant's
// symmetric zkAbacus key, for inclusion in the Parameters exchange and the
// KeyHash binding. It deliberately does not reveal the key itself.
func zkAbacusIdentity(key simcrypto.SharedKey) []byte {
	tag := simcrypto.PublicTag(key)
	return tag[:]
}

func applySubsystemLogLevels(level string) {
	establish.SetLogLevel(level)
	pay.SetLogLevel(level)
	closer.SetLogLevel(level)
	store.SetLogLevel(level)
	merchant.SetLogLevel(level)
}

// loadOrGenerateTLSCert loads a TLS keypair from disk, generating a fresh
// self-signed one on first run. TLS/transport setup is treated as external
// plumbing (spec.md §1); this is the minimal bootstrap a local deployment
// needs rather than a hardened certificate authority.
func loadOrGenerateTLSCert(certPath, keyPath string) (tls.Certificate, error) {
	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		return cert, nil
	}
	return generateSelfSignedCert(certPath, keyPath)
}
