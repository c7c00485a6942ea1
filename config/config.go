// Package config defines the customer and merchant daemon configuration
// structs, parsed from the command line and an optional ini config file via
// jessevdk/go-flags, the way lnd's own config.go layers CLI flags over a
// config file of the same shape.
package config

import "time"

const (
	// Organization and Application name the project directory the
	// customer daemon's default paths live under.
	Organization = "Bolt Labs"
	Application  = "zkchannels"

	// DefaultPort is the merchant daemon's default listen port.
	DefaultPort = 2611

	// DefaultMaxPendingConnectionRetries bounds how many times the
	// customer's transport reconnects a dropped session before giving up.
	DefaultMaxPendingConnectionRetries = 4

	// DefaultMaxMessageLength bounds a single transport message, guarding
	// against a misbehaving peer forcing unbounded allocation.
	DefaultMaxMessageLength = 1024 * 16

	// DefaultMaxNoteLength bounds a Pay request's free-text note.
	DefaultMaxNoteLength = 1024 * 8

	// DefaultConnectionTimeout bounds how long the customer waits to
	// establish a session before giving up.
	DefaultConnectionTimeout = 60 * time.Second

	// DefaultBackoffDelay is the customer's initial reconnect backoff.
	DefaultBackoffDelay = 1 * time.Second
)

// CustomerConfigFile and MerchantConfigFile are the default config file
// names searched for under each daemon's config directory, mirroring lnd's
// lnd.conf convention (jessevdk/go-flags' ini parser, not the original
// implementation's TOML, since the ini parser ships with the flags library
// already in use rather than pulling in a dedicated TOML dependency).
const (
	CustomerConfigFile = "zkchannels-customer.conf"
	MerchantConfigFile = "zkchannels-merchantd.conf"
)
