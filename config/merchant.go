package config

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

// MerchantConfig is the merchant daemon's full configuration, loaded by
// LoadMerchantConfig.
type MerchantConfig struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	ListenAddress string `long:"listen" description:"host:port to accept customer connections on" default:"[::1]:2611"`
	LogDir        string `long:"logdir" description:"Directory to log output to"`
	LogLevel      string `long:"loglevel" description:"Logging level for all subsystems" default:"info"`

	TLSCertPath string `long:"tlscertpath" description:"Path to the TLS certificate served to customers"`
	TLSKeyPath  string `long:"tlskeypath" description:"Path to the TLS certificate's private key"`

	DatabaseDSN string `long:"databasedsn" description:"Postgres connection string for the merchant's channel store"`

	DispatchConcurrency int `long:"dispatchconcurrency" description:"Buffer size of the queue of accepted sessions awaiting dispatch" default:"64"`
	MaxMessageLength    int `long:"maxmsglen" description:"Maximum transport message length in bytes" default:"16384"`

	TezosNetwork string `long:"tezosnetwork" description:"Tezos network to submit contract operations to"`
	TezosRPCURL  string `long:"tezosrpcurl" description:"Tezos node RPC endpoint"`
	SigningKeyPath string `long:"signingkeypath" description:"Path to the merchant's on-chain mutual-close signing key"`
	ZkAbacusKeyPath string `long:"zkabacuskeypath" description:"Path to the zkAbacus key shared with customers out of band"`

	MetricsListen string `long:"metricslisten" description:"host:port to expose Prometheus metrics on, empty to disable"`

	UnsafeDisableTLS bool `long:"unsafedisabletls" description:"Accept plaintext connections, for local testing only"`
}

// DefaultMerchantConfig returns a MerchantConfig populated with the same
// defaults as the reference implementation's defaults::merchant module.
func DefaultMerchantConfig() *MerchantConfig {
	dataDir := defaultDataDir("merchant")
	return &MerchantConfig{
		ListenAddress:       fmt.Sprintf("[::1]:%d", DefaultPort),
		LogDir:              defaultLogDir("merchant"),
		LogLevel:            "info",
		TLSCertPath:         filepath.Join(dataDir, "tls.cert"),
		TLSKeyPath:          filepath.Join(dataDir, "tls.key"),
		SigningKeyPath:      filepath.Join(dataDir, "signing.key"),
		ZkAbacusKeyPath:     filepath.Join(dataDir, "zkabacus.key"),
		DispatchConcurrency: 64,
		MaxMessageLength:    DefaultMaxMessageLength,
	}
}

// LoadMerchantConfig parses args over the defaults, first loading an ini
// config file the same way LoadCustomerConfig does.
func LoadMerchantConfig(args []string) (*MerchantConfig, error) {
	cfg := DefaultMerchantConfig()

	preCfg := *cfg
	if _, err := flags.NewParser(&preCfg, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}

	configPath := preCfg.ConfigFile
	if configPath == "" {
		configPath = filepath.Join(defaultDataDir("merchant"), MerchantConfigFile)
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

func (c *MerchantConfig) validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: databasedsn is required")
	}
	if !c.UnsafeDisableTLS && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return fmt.Errorf("config: tlscertpath and tlskeypath are required unless unsafedisabletls is set")
	}
	return nil
}
