// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package orchestrator

import (
	"errors"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-committer/util/retry"
)

type Config struct {
	PollAttempts    int           `koanf:"poll-attempts"`
	PollInterval    time.Duration `koanf:"poll-interval"`
	PollMaxInterval time.Duration `koanf:"poll-max-interval"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	PollAttempts:    10,
	PollInterval:    2 * time.Second,
	PollMaxInterval: 30 * time.Second,
}

var TestConfig = Config{
	PollAttempts:    4,
	PollInterval:    time.Millisecond,
	PollMaxInterval: 5 * time.Millisecond,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".poll-attempts", DefaultConfig.PollAttempts, "how many times to ask for a snapshot that is not ready yet")
	f.Duration(prefix+".poll-interval", DefaultConfig.PollInterval, "wait after the first not-ready answer, doubled after each further one")
	f.Duration(prefix+".poll-max-interval", DefaultConfig.PollMaxInterval, "upper bound of the wait between snapshot polls")
}

func (c *Config) Validate() error {
	if c.PollAttempts < 1 {
		return errors.New("poll attempts must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.PollMaxInterval < c.PollInterval {
		return errors.New("poll max interval must not be below poll interval")
	}
	return nil
}

func (c *Config) backoff() retry.Backoff {
	return retry.Backoff{
		Attempts:    c.PollAttempts,
		Interval:    c.PollInterval,
		MaxInterval: c.PollMaxInterval,
	}
}
