// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-committer/cmd/conf"
	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
	"github.com/offchainlabs/epoch-committer/cmd/util"
	"github.com/offchainlabs/epoch-committer/cmd/util/confighelpers"
	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/orchestrator"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(mainImpl(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func printSampleUsage(w io.Writer, progname string) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Sample usage:                  %s [flags] <epoch>\n", progname)
	fmt.Fprintf(w, "                               %s --help\n", progname)
}

func parseEpoch(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one epoch argument, got %d", len(args))
	}
	epoch, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("epoch %q is not a non-negative integer", args[0])
	}
	return epoch, nil
}

func printSummary(w io.Writer, res *orchestrator.Result) {
	fmt.Fprintf(w, "epoch:   %d\n", res.Epoch)
	fmt.Fprintf(w, "leaves:  %d\n", res.Metadata.LeavesCount)
	fmt.Fprintf(w, "root:    %s\n", res.Metadata.Root.Hex())
	if res.Receipt.AlreadyCommitted {
		fmt.Fprintf(w, "tx:      already committed\n")
	} else {
		fmt.Fprintf(w, "tx:      %s (block %d)\n", res.Receipt.TxHash.Hex(), res.Receipt.BlockNumber)
	}
	fmt.Fprintf(w, "elapsed: %v\n", res.Duration)
}

// mainImpl commits one epoch and returns the process exit code.
func mainImpl(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f := flag.NewFlagSet("epoch-commit", flag.ContinueOnError)
	f.SetOutput(stderr)
	conf.CommitterConfigAddOptions(f)

	var config conf.CommitterConfig
	var epoch uint64
	dump, err := conf.Parse(f, args, &config, func(positional []string) error {
		var err error
		epoch, err = parseEpoch(positional)
		return err
	})
	if errors.Is(err, flag.ErrHelp) {
		printSampleUsage(stdout, f.Name())
		return exitSuccess
	}
	if errors.Is(err, confighelpers.ErrUsage) {
		fmt.Fprintf(stderr, "%v\n", err)
		printSampleUsage(stderr, f.Name())
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "Fatal configuration error: %v\n", err)
		return exitFailure
	}
	if dump != nil {
		fmt.Fprintln(stdout, string(dump))
		return exitSuccess
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		printSampleUsage(stderr, f.Name())
		return exitUsage
	}

	pathResolver := genericconf.DefaultPathResolver("")
	if err := genericconf.InitLog(stderr, config.LogType, config.LogLevel, &config.FileLogging, pathResolver); err != nil {
		fmt.Fprintf(stderr, "error initializing logging: %v\n", err)
		return exitUsage
	}
	defer func() {
		if err := genericconf.CloseFileLogger(); err != nil {
			fmt.Fprintf(stderr, "error closing log file: %v\n", err)
		}
	}()
	vcsRevision, vcsTime := confighelpers.GetVersion()
	log.Info("starting epoch-commit", "revision", vcsRevision, "vcs.time", vcsTime, "epoch", epoch)

	if err := util.StartMetrics(&config.MetricsOpts); err != nil {
		fmt.Fprintf(stderr, "error starting metrics: %v\n", err)
		return exitFailure
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	committer, err := conf.NewCommitter(ctx, &config, pathResolver)
	if err != nil {
		fmt.Fprintf(stderr, "epoch %d: setup failed [%s]: %v\n", epoch, commitment.Kind(err), err)
		return exitFailure
	}
	defer committer.Close()

	res, err := committer.Orchestrator.Commit(ctx, epoch)
	if err != nil {
		fmt.Fprintf(stderr, "%v [%s]\n", err, commitment.Kind(err))
		return exitFailure
	}
	printSummary(stdout, res)
	return exitSuccess
}
