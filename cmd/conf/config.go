// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package conf holds the configuration shared by the epoch-committer binaries
// and wires the components it describes.
package conf

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
	"github.com/offchainlabs/epoch-committer/cmd/util"
	"github.com/offchainlabs/epoch-committer/cmd/util/confighelpers"
	"github.com/offchainlabs/epoch-committer/distributor"
	"github.com/offchainlabs/epoch-committer/journal"
	"github.com/offchainlabs/epoch-committer/orchestrator"
	"github.com/offchainlabs/epoch-committer/redislock"
	"github.com/offchainlabs/epoch-committer/snapshotclient"
)

type CommitterConfig struct {
	Conf             genericconf.ConfConfig        `koanf:"conf"`
	LogLevel         string                        `koanf:"log-level"`
	LogType          string                        `koanf:"log-type"`
	FileLogging      genericconf.FileLoggingConfig `koanf:"file-logging"`
	Backend          snapshotclient.Config         `koanf:"backend"`
	Chain            distributor.Config            `koanf:"chain"`
	Wallet           genericconf.WalletConfig      `koanf:"wallet"`
	Orchestrator     orchestrator.Config           `koanf:"orchestrator"`
	Journal          journal.Config                `koanf:"journal"`
	RedisLock        redislock.Config              `koanf:"redis-lock"`
	util.MetricsOpts `koanf:",squash"`
}

var CommitterConfigDefault = CommitterConfig{
	Conf:         genericconf.ConfConfigDefault,
	LogLevel:     "info",
	LogType:      "plaintext",
	FileLogging:  genericconf.DefaultFileLoggingConfig,
	Backend:      snapshotclient.DefaultConfig,
	Chain:        distributor.DefaultConfig,
	Wallet:       genericconf.WalletConfigDefault,
	Orchestrator: orchestrator.DefaultConfig,
	Journal:      journal.DefaultConfig,
	RedisLock:    redislock.DefaultConfig,
	MetricsOpts: util.MetricsOpts{
		Metrics:       false,
		MetricsServer: genericconf.MetricsServerConfigDefault,
	},
}

func CommitterConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", CommitterConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", CommitterConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	snapshotclient.ConfigAddOptions("backend", f)
	distributor.ConfigAddOptions("chain", f)
	genericconf.WalletConfigAddOptions("wallet", f, CommitterConfigDefault.Wallet.Pathname)
	orchestrator.ConfigAddOptions("orchestrator", f)
	journal.ConfigAddOptions("journal", f)
	redislock.ConfigAddOptions("redis-lock", f)
	f.Bool("metrics", CommitterConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
}

func (c *CommitterConfig) Validate() error {
	if _, err := genericconf.ToSlogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := genericconf.HandlerFromLogType(c.LogType, io.Discard); err != nil {
		return fmt.Errorf("log-type %q: %w", c.LogType, err)
	}
	if err := c.Conf.S3.Validate(); err != nil {
		return err
	}
	if err := c.FileLogging.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Chain.Validate(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if c.Wallet.Pathname == "" && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet: --wallet.pathname or --wallet.private-key is required")
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	if err := c.RedisLock.Validate(); err != nil {
		return fmt.Errorf("redis-lock: %w", err)
	}
	return nil
}

// Parse decodes args into config, which must declare a key for every option
// registered on f. checkArgs, when set, vets the positional arguments before
// any configuration source is read; its error is a usage error. With
// --conf.dump set, the effective configuration is returned as JSON with
// secrets removed.
func Parse(f *flag.FlagSet, args []string, config interface{}, checkArgs func([]string) error) ([]byte, error) {
	if err := confighelpers.ParseFlags(f, args); err != nil {
		return nil, err
	}
	if dump, _ := f.GetBool("conf.dump"); !dump && checkArgs != nil {
		if err := checkArgs(f.Args()); err != nil {
			return nil, fmt.Errorf("%w: %v", confighelpers.ErrUsage, err)
		}
	}
	k, err := confighelpers.LoadCommonConfig(f)
	if err != nil {
		return nil, err
	}
	if err := confighelpers.EndCommonParse(k, config); err != nil {
		return nil, fmt.Errorf("%w: %v", confighelpers.ErrUsage, err)
	}
	if !k.Bool("conf.dump") {
		return nil, nil
	}
	if err := confighelpers.DumpConfig(k, map[string]interface{}{
		"redis-lock.url": "",
	}); err != nil {
		return nil, fmt.Errorf("error removing extra parameters before dump: %w", err)
	}
	dump, err := confighelpers.MarshalConfig(k)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal config file to JSON: %w", err)
	}
	return dump, nil
}
