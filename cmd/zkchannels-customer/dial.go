package main

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/boltlabs-inc/zkchannels/config"
	"github.com/boltlabs-inc/zkchannels/escrow"
	"github.com/boltlabs-inc/zkchannels/establish"
	"github.com/boltlabs-inc/zkchannels/transport"
)

// dial opens a fresh session to address and returns both the Chan and the
// merchant's public key material, reading it off the Parameters branch
// (transport.ChoiceParameters) before the caller selects its own branch.
func dial(cfg *config.CustomerConfig, address string) (*transport.Chan, establish.MerchantParameters, error) {
	conn, err := dialConn(cfg, address)
	if err != nil {
		return nil, establish.MerchantParameters{}, fmt.Errorf("dial: connecting to %s: %w", address, err)
	}

	key, err := transport.NewSessionKey()
	if err != nil {
		conn.Close()
		return nil, establish.MerchantParameters{}, fmt.Errorf("dial: generating session key: %w", err)
	}
	ch := transport.NewChan(conn, key)

	if err := ch.Choose(transport.ChoiceParameters); err != nil {
		conn.Close()
		return nil, establish.MerchantParameters{}, fmt.Errorf("dial: selecting parameters branch: %w", err)
	}
	var paramsMsg transport.ParametersMsg
	if err := ch.Recv(&paramsMsg); err != nil {
		conn.Close()
		return nil, establish.MerchantParameters{}, fmt.Errorf("dial: receiving parameters: %w", err)
	}

	fundingAddress := escrow.TezosFundingAddress(cfg.MerchantTezosAddress)
	wantHash := escrow.NewKeyHash(paramsMsg.ZkAbacusPublicKey, fundingAddress, paramsMsg.TezosPublicKey)
	if wantHash != paramsMsg.KeyHash {
		conn.Close()
		return nil, establish.MerchantParameters{}, fmt.Errorf("dial: merchant KeyHash does not match its advertised key material (wanted merchanttezosaddress=%q)", cfg.MerchantTezosAddress)
	}

	params := establish.MerchantParameters{
		ZkAbacusPublicKey:   paramsMsg.ZkAbacusPublicKey,
		TezosPublicKey:      paramsMsg.TezosPublicKey,
		TezosFundingAddress: cfg.MerchantTezosAddress,
		KeyHash:             paramsMsg.KeyHash,
	}
	return ch, params, nil
}

// dialSession opens a fresh connection for a sub-protocol that does not
// need the Parameters branch (Pay, Close). It skips the Parameters branch
// and its KeyHash check, so it makes no check of the merchant's identity.
func dialSession(cfg *config.CustomerConfig, address string) (*transport.Chan, error) {
	conn, err := dialConn(cfg, address)
	if err != nil {
		return nil, fmt.Errorf("dial: connecting to %s: %w", address, err)
	}
	key, err := transport.NewSessionKey()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial: generating session key: %w", err)
	}
	return transport.NewChan(conn, key), nil
}

func dialConn(cfg *config.CustomerConfig, address string) (net.Conn, error) {
	if cfg.UnsafeDisableTLS {
		return net.DialTimeout("tcp", address, cfg.ConnectionTimeout)
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectionTimeout}
	// The merchant's certificate is typically self-signed (see
	// cmd/zkchannels-merchantd/tls.go); there is no CA to validate it
	// against, so the certificate is not verified. The KeyHash check in
	// dial is the only check of the merchant's identity; sessions opened by
	// dialSession get none. TLS here still encrypts the session in transit.
	return tls.DialWithDialer(dialer, "tcp", address, &tls.Config{InsecureSkipVerify: true})
}
