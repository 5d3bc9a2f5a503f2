package config

import (
	"fmt"
	"strings"
)

// MaxBatchCeiling bounds the MaxBatch override; larger batches defeat the
// purpose of the per-batch compute budget.
const MaxBatchCeiling = 100

func (c *Config) Validate() error {
	if c.LocalChainID == 0 {
		return fmt.Errorf("LocalChainID must be non-zero")
	}
	if c.MaxBatch <= 0 || c.MaxBatch > MaxBatchCeiling {
		return fmt.Errorf("MaxBatch must be in 1..%d", MaxBatchCeiling)
	}
	if _, err := c.AdminAddress(); err != nil {
		return err
	}
	if _, err := c.AuthorityAddress(); err != nil {
		return err
	}
	if _, err := c.ParticipantAddresses(); err != nil {
		return err
	}
	if _, err := c.RewardRate(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.Level must be one of debug, info, warn, error")
	}
	return nil
}
