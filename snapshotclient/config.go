// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package snapshotclient

import (
	"errors"
	"regexp"
	"time"

	flag "github.com/spf13/pflag"
)

type Config struct {
	URL         string        `koanf:"url"`
	Namespace   string        `koanf:"namespace"`
	Timeout     time.Duration `koanf:"timeout"`
	Retries     uint          `koanf:"retries"`
	RetryDelay  time.Duration `koanf:"retry-delay"`
	ArgLogLimit uint          `koanf:"arg-log-limit"`
	RetryErrors string        `koanf:"retry-errors"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	URL:         "",
	Namespace:   "snapshot",
	Timeout:     30 * time.Second,
	Retries:     3,
	RetryDelay:  time.Second,
	ArgLogLimit: 2048,
	RetryErrors: "",
}

var TestConfig = Config{
	URL:         "",
	Namespace:   "snapshot",
	Timeout:     5 * time.Second,
	Retries:     2,
	RetryDelay:  time.Millisecond,
	ArgLogLimit: 2048,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "snapshot backend JSON-RPC endpoint")
	f.String(prefix+".namespace", DefaultConfig.Namespace, "JSON-RPC namespace of the snapshot service")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "per-request timeout (0-disabled)")
	f.Uint(prefix+".retries", DefaultConfig.Retries, "number of retries on transport failure (0 means one attempt)")
	f.Duration(prefix+".retry-delay", DefaultConfig.RetryDelay, "delay between transport retries")
	f.Uint(prefix+".arg-log-limit", DefaultConfig.ArgLogLimit, "limit size of arguments in log entries")
	f.String(prefix+".retry-errors", DefaultConfig.RetryErrors, "backend errors matching this regular expression are retried like transport failures")
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("snapshot backend url is required")
	}
	if c.Namespace == "" {
		return errors.New("snapshot backend namespace is required")
	}
	if c.RetryErrors != "" {
		if _, err := regexp.Compile(c.RetryErrors); err != nil {
			return err
		}
	}
	return nil
}
