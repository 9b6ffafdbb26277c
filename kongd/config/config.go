// Package config holds the process-wide configuration surface, grounded on
// blinklabs-io-shai/internal/config: a YAML-backed struct overridable by
// environment variables via envconfig.
package config

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the root configuration object loaded at process startup.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Settings SettingsConfig `yaml:"settings"`
	Mining   MiningConfig   `yaml:"mining"`
	Hubs     HubsConfig     `yaml:"hubs"`
	Etl      EtlConfig      `yaml:"etl"`
	RPC      RPCConfig      `yaml:"rpc"`
}

// LoggingConfig controls the ambient logging stack (kongd/logger).
type LoggingConfig struct {
	Level   string `yaml:"level" envconfig:"LOGGING_LEVEL"`
	LogFile string `yaml:"logFile" envconfig:"LOG_FILE"`
}

// SettingsConfig is the "Settings surface" of spec.md §6.
type SettingsConfig struct {
	MaintenanceMode        bool    `yaml:"maintenanceMode" envconfig:"MAINTENANCE_MODE"`
	DefaultMaxSlippage     float64 `yaml:"defaultMaxSlippage" envconfig:"DEFAULT_MAX_SLIPPAGE"`
	DefaultLPFeeBps        uint8   `yaml:"defaultLpFeeBps" envconfig:"DEFAULT_LP_FEE_BPS"`
	DefaultKongFeeBps      uint8   `yaml:"defaultKongFeeBps" envconfig:"DEFAULT_KONG_FEE_BPS"`
	ClaimsIntervalSecs     uint64  `yaml:"claimsIntervalSecs" envconfig:"CLAIMS_INTERVAL_SECS"`
	TransferExpiryNanosecs uint64  `yaml:"transferExpiryNanosecs" envconfig:"TRANSFER_EXPIRY_NANOSECS"`
	ArchiveToKongData      bool    `yaml:"archiveToKongData" envconfig:"ARCHIVE_TO_KONG_DATA"`
	RewriteDuplicatePrincipals bool `yaml:"rewriteDuplicatePrincipals" envconfig:"REWRITE_DUPLICATE_PRINCIPALS"`
}

// MiningConfig seeds the mining engine (kongd/mining). Only TargetTimeSec,
// HalvingInterval and InitialReward are passed to it; GenesisDifficulty and
// SubmissionCycles are not read (genesis starts at difficulty 5 and the
// submission cost is the fixed kongd/mining constant).
type MiningConfig struct {
	GenesisDifficulty uint32 `yaml:"genesisDifficulty" envconfig:"MINING_GENESIS_DIFFICULTY"`
	TargetTimeSec     uint64 `yaml:"targetTimeSec" envconfig:"MINING_TARGET_TIME_SEC"`
	HalvingInterval   uint64 `yaml:"halvingInterval" envconfig:"MINING_HALVING_INTERVAL"`
	InitialReward     uint64 `yaml:"initialReward" envconfig:"MINING_INITIAL_REWARD"`
	SubmissionCycles  uint64 `yaml:"submissionCycles" envconfig:"MINING_SUBMISSION_CYCLES"`
}

// HubsConfig names the intermediate hub symbols used for 2/3-hop routing.
type HubsConfig struct {
	Hub1 string `yaml:"hub1" envconfig:"HUB1_SYMBOL"`
	Hub2 string `yaml:"hub2" envconfig:"HUB2_SYMBOL"`
}

// EtlConfig controls the optional kong_data archiver (kongd/etl), active
// only when Settings.ArchiveToKongData is set.
type EtlConfig struct {
	DSN string `yaml:"dsn" envconfig:"ETL_DSN"`
}

// RPCConfig controls the admin HTTP surface (kongd/adminrpc).
type RPCConfig struct {
	ListenAddr string `yaml:"listenAddr" envconfig:"RPC_LISTEN_ADDR"`
}

// Default returns the built-in defaults, matching spec.md's worked example
// constants (§8 scenario 1/5) where not overridden by file or environment.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", LogFile: "kongd.log"},
		Settings: SettingsConfig{
			DefaultMaxSlippage:     2.0,
			DefaultLPFeeBps:        30,
			DefaultKongFeeBps:      0,
			ClaimsIntervalSecs:     3600,
			TransferExpiryNanosecs: 3600_000_000_000,
		},
		Mining: MiningConfig{
			GenesisDifficulty: 5,
			TargetTimeSec:     10,
			HalvingInterval:   210_000,
			InitialReward:     5_000_000_000,
			SubmissionCycles:  1_000_000_000,
		},
		Hubs: HubsConfig{Hub1: "ckUSDT", Hub2: "ICP"},
		RPC:  RPCConfig{ListenAddr: ":8080"},
	}
}

// Load reads path as YAML over the defaults, then applies environment
// variable overrides, following blinklabs-io-shai's layered config resolution.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("KONG", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
