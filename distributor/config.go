// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package distributor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
)

type Config struct {
	URL                 string        `koanf:"url"`
	ID                  uint64        `koanf:"id"`
	ProgramAddress      string        `koanf:"program-address"`
	DistributorAddress  string        `koanf:"distributor-address"`
	ReceiptPollInterval time.Duration `koanf:"receipt-poll-interval"`
	ConfirmTimeout      time.Duration `koanf:"confirm-timeout"`
	GasLimit            uint64        `koanf:"gas-limit"`
	GasMarginPercent    uint64        `koanf:"gas-margin-percent"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	URL:                 "",
	ID:                  0,
	ReceiptPollInterval: time.Second,
	ConfirmTimeout:      0,
	GasLimit:            0,
	GasMarginPercent:    20,
}

var TestConfig = Config{
	ReceiptPollInterval: 5 * time.Millisecond,
	ConfirmTimeout:      5 * time.Second,
	GasMarginPercent:    20,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "chain JSON-RPC endpoint")
	f.Uint64(prefix+".id", DefaultConfig.ID, "chain id (0 queries the endpoint)")
	f.String(prefix+".program-address", DefaultConfig.ProgramAddress, "address of the distributor program contract")
	f.String(prefix+".distributor-address", DefaultConfig.DistributorAddress, "distributor whose epoch roots are updated")
	f.Duration(prefix+".receipt-poll-interval", DefaultConfig.ReceiptPollInterval, "interval between receipt queries when head subscriptions are unavailable")
	f.Duration(prefix+".confirm-timeout", DefaultConfig.ConfirmTimeout, "give up waiting for a sent transaction to be mined after this long, reporting it unconfirmed (0 waits until it is mined)")
	f.Uint64(prefix+".gas-limit", DefaultConfig.GasLimit, "gas limit for root updates (0 estimates)")
	f.Uint64(prefix+".gas-margin-percent", DefaultConfig.GasMarginPercent, "percentage added to the gas estimate")
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("chain url is required")
	}
	if !common.IsHexAddress(c.ProgramAddress) {
		return fmt.Errorf("invalid program address %q", c.ProgramAddress)
	}
	if !common.IsHexAddress(c.DistributorAddress) {
		return fmt.Errorf("invalid distributor address %q", c.DistributorAddress)
	}
	if c.ReceiptPollInterval <= 0 {
		return errors.New("receipt poll interval must be positive")
	}
	if c.ConfirmTimeout < 0 {
		return errors.New("confirm timeout must not be negative")
	}
	return nil
}

func (c *Config) Program() common.Address {
	return common.HexToAddress(c.ProgramAddress)
}

func (c *Config) Distributor() common.Address {
	return common.HexToAddress(c.DistributorAddress)
}
