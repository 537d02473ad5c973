package config

import (
	"errors"
	"fmt"
)

// Sync configures the ingestion pipeline.
type Sync struct {
	DBPath            string  `mapstructure:"db-path"`
	RPCURL            string  `mapstructure:"rpc-url"`
	MinSlot           uint64  `mapstructure:"min-slot"`
	MaxSlot           uint64  `mapstructure:"max-slot"`
	RateLimitRequests int64   `mapstructure:"rl-requests"`
	RateLimitSeconds  float64 `mapstructure:"rl-seconds"`
	WithChains        bool    `mapstructure:"with-chains"`
}

func (c Sync) Validate() error {
	if c.DBPath == "" {
		return errors.New("database path is not set")
	}
	if c.RPCURL == "" {
		return errors.New("rpc endpoint is not set")
	}
	if c.RateLimitRequests <= 0 {
		return errors.New("rate limit requests must be positive")
	}
	if c.RateLimitSeconds <= 0 {
		return errors.New("rate limit seconds must be positive")
	}
	return nil
}

// ConfRule configures the confirmation driver.
type ConfRule struct {
	DBPath      string    `mapstructure:"db-path"`
	Quorums     []float64 `mapstructure:"quorum"`
	MinSlot     uint64    `mapstructure:"min-slot"`
	MaxSlot     uint64    `mapstructure:"max-slot"`
	CheckChains bool      `mapstructure:"check-chains"`
}

func (c ConfRule) Validate() error {
	if c.DBPath == "" {
		return errors.New("database path is not set")
	}
	if len(c.Quorums) == 0 {
		return errors.New("at least one quorum is required")
	}
	for _, q := range c.Quorums {
		if q <= 0 || q > 1 {
			return fmt.Errorf("quorum %v outside (0, 1]", q)
		}
	}
	return nil
}
