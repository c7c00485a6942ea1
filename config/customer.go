package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// CustomerConfig is the customer daemon/CLI's full configuration, loaded by
// LoadCustomerConfig.
type CustomerConfig struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	DataDir  string `long:"datadir" description:"Directory holding the customer's channel database"`
	DBPath   string `long:"dbpath" description:"Path to the sqlite channel database, overriding datadir"`
	LogDir   string `long:"logdir" description:"Directory to log output to"`
	LogLevel string `long:"loglevel" description:"Logging level for all subsystems" default:"info"`

	MerchantAddress string        `long:"merchant" description:"host:port of the merchant to connect to"`
	MaxMessageLength int          `long:"maxmsglen" description:"Maximum transport message length in bytes" default:"16384"`
	MaxNoteLength    int          `long:"maxnotelen" description:"Maximum Pay request note length in bytes" default:"8192"`
	ConnectionTimeout time.Duration `long:"conntimeout" description:"Timeout for establishing a session with the merchant" default:"60s"`
	BackoffDelay      time.Duration `long:"backoff" description:"Initial delay between reconnect attempts" default:"1s"`
	MaxRetries        int           `long:"maxretries" description:"Maximum reconnect attempts before giving up" default:"4"`

	UnsafeDisableTLS bool `long:"unsafedisabletls" description:"Connect over plaintext, for local testing only"`

	TezosNetwork         string `long:"tezosnetwork" description:"Tezos network to submit contract operations to"`
	TezosRPCURL          string `long:"tezosrpcurl" description:"Tezos node RPC endpoint"`
	MerchantTezosAddress string `long:"merchanttezosaddress" description:"Merchant's Tezos funding address, shared out of band, used to verify its Parameters KeyHash"`
	CustomerTezosAddress string `long:"customertezosaddress" description:"Customer's own Tezos funding address"`

	ZkAbacusKeyPath string `long:"zkabacuskeypath" description:"Path to the zkAbacus key shared with the merchant out of band"`

	MetricsListen string `long:"metricslisten" description:"host:port to expose Prometheus metrics on, empty to disable"`
}

// DefaultCustomerConfig returns a CustomerConfig populated with the same
// defaults as the reference implementation's defaults::customer module.
func DefaultCustomerConfig() *CustomerConfig {
	dataDir := defaultDataDir("customer")
	return &CustomerConfig{
		DataDir:           dataDir,
		DBPath:            filepath.Join(dataDir, "customer.db"),
		ZkAbacusKeyPath:   filepath.Join(dataDir, "zkabacus.key"),
		LogDir:            defaultLogDir("customer"),
		LogLevel:          "info",
		MaxMessageLength:  DefaultMaxMessageLength,
		MaxNoteLength:     DefaultMaxNoteLength,
		ConnectionTimeout:  DefaultConnectionTimeout,
		BackoffDelay:       DefaultBackoffDelay,
		MaxRetries:         DefaultMaxPendingConnectionRetries,
	}
}

// LoadCustomerConfig parses args over the defaults, first loading an ini
// config file if one is found (either at the path the caller passed on the
// command line, or at the default location under the customer's data
// directory), then re-parsing args so the command line always wins.
func LoadCustomerConfig(args []string) (*CustomerConfig, error) {
	cfg := DefaultCustomerConfig()

	preCfg := *cfg
	if _, err := flags.NewParser(&preCfg, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}

	configPath := preCfg.ConfigFile
	if configPath == "" {
		configPath = filepath.Join(cfg.DataDir, CustomerConfigFile)
	}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := os.Stat(configPath); err == nil {
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(configPath); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CustomerConfig) validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: maxmsglen must be positive")
	}
	if c.MaxNoteLength > c.MaxMessageLength {
		return fmt.Errorf("config: maxnotelen cannot exceed maxmsglen")
	}
	return nil
}
