// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package util

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
)

type MetricsOpts struct {
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
}

// StartMetrics exposes the metrics registry over HTTP when enabled.
func StartMetrics(opts *MetricsOpts) error {
	if !opts.Metrics {
		return nil
	}
	if !metrics.Enabled {
		return errors.New("metrics must be enabled via command line by adding --metrics, json config has no effect")
	}
	if opts.MetricsServer.Addr == "" {
		return errors.New("metrics is enabled, but missing --metrics-server.addr")
	}
	go metrics.CollectProcessMetrics(opts.MetricsServer.UpdateInterval)
	exp.Setup(fmt.Sprintf("%v:%v", opts.MetricsServer.Addr, opts.MetricsServer.Port))
	return nil
}
