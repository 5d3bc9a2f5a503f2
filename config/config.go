package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"taobridge/core/types"

	"github.com/BurntSushi/toml"
)

// Staking holds the staking policy parameters. When Enabled is false native
// transfers settle against the vault account instead of the stake pool.
type Staking struct {
	Enabled       bool     `toml:"Enabled"`
	RewardRateWei string   `toml:"RewardRateWei"`
	StakeInterval uint64   `toml:"StakeInterval"`
	Participants  []string `toml:"Participants"`
}

// Log holds the logging parameters. An empty File logs to stdout.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type Config struct {
	ListenAddress string  `toml:"ListenAddress"`
	DataDir       string  `toml:"DataDir"`
	LocalChainID  uint64  `toml:"LocalChainID"`
	MaxBatch      int     `toml:"MaxBatch"`
	Admin         string  `toml:"Admin"`
	Authority     string  `toml:"Authority"`
	ProjectionDSN string  `toml:"ProjectionDSN"`
	Staking       Staking `toml:"staking"`
	Log           Log     `toml:"log"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./taobridge-data"
	}
	if cfg.LocalChainID == 0 {
		cfg.LocalChainID = 31337
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = 100
	}
	if cfg.Staking.StakeInterval == 0 {
		cfg.Staking.StakeInterval = 7200
	}
	if cfg.Staking.Participants == nil {
		cfg.Staking.Participants = []string{}
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./taobridge-data",
		LocalChainID:  31337,
		MaxBatch:      100,
		Staking: Staking{
			Enabled:       true,
			StakeInterval: 7200,
			Participants:  []string{},
		},
		Log: Log{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// AdminAddress parses the configured admin address.
func (c *Config) AdminAddress() (types.Address, error) {
	return parseAddress("Admin", c.Admin)
}

// AuthorityAddress parses the configured batch execution authority.
func (c *Config) AuthorityAddress() (types.Address, error) {
	return parseAddress("Authority", c.Authority)
}

// ParticipantAddresses parses the configured reward participants.
func (c *Config) ParticipantAddresses() ([]types.Address, error) {
	addrs := make([]types.Address, 0, len(c.Staking.Participants))
	for i, raw := range c.Staking.Participants {
		addr, err := parseAddress(fmt.Sprintf("staking.Participants[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// RewardRate parses the configured per-block reward rate. A nil return means
// the engine default applies.
func (c *Config) RewardRate() (*big.Int, error) {
	raw := strings.TrimSpace(c.Staking.RewardRateWei)
	if raw == "" {
		return nil, nil
	}
	rate, ok := new(big.Int).SetString(raw, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("invalid staking.RewardRateWei %q", c.Staking.RewardRateWei)
	}
	return rate, nil
}

func parseAddress(field, raw string) (types.Address, error) {
	addr, err := types.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid %s address %q: %w", field, raw, err)
	}
	return addr, nil
}
