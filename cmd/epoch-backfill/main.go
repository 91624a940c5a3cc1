// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/offchainlabs/epoch-committer/cmd/conf"
	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
	"github.com/offchainlabs/epoch-committer/cmd/util"
	"github.com/offchainlabs/epoch-committer/cmd/util/confighelpers"
	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/journal"
	"github.com/offchainlabs/epoch-committer/orchestrator"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

type BackfillConfig struct {
	conf.CommitterConfig `koanf:",squash"`
	From                 uint64 `koanf:"from"`
	To                   uint64 `koanf:"to"`
	SkipBuild            bool   `koanf:"skip-build"`
	SkipJournaled        bool   `koanf:"skip-journaled"`
	Parallelism          int    `koanf:"parallelism"`
}

var BackfillConfigDefault = BackfillConfig{
	CommitterConfig: conf.CommitterConfigDefault,
	From:            0,
	To:              0,
	SkipBuild:       false,
	SkipJournaled:   false,
	Parallelism:     4,
}

func BackfillConfigAddOptions(f *flag.FlagSet) {
	conf.CommitterConfigAddOptions(f)
	f.Uint64("from", BackfillConfigDefault.From, "first epoch to commit")
	f.Uint64("to", BackfillConfigDefault.To, "last epoch to commit (0 means no upper bound)")
	f.Bool("skip-build", BackfillConfigDefault.SkipBuild, "do not ask the backend to build listed epochs")
	f.Bool("skip-journaled", BackfillConfigDefault.SkipJournaled, "skip epochs the journal already records as published")
	f.Int("parallelism", BackfillConfigDefault.Parallelism, "number of epochs committed concurrently")
}

func (c *BackfillConfig) Validate() error {
	if err := c.CommitterConfig.Validate(); err != nil {
		return err
	}
	if c.Parallelism < 1 {
		return errors.New("parallelism must be at least 1")
	}
	if c.To != 0 && c.To < c.From {
		return fmt.Errorf("--to %d is below --from %d", c.To, c.From)
	}
	if c.SkipJournaled && !c.Journal.Enable {
		return errors.New("--skip-journaled needs the journal enabled")
	}
	return nil
}

func (c *BackfillConfig) upperBound() uint64 {
	if c.To == 0 {
		return math.MaxUint64
	}
	return c.To
}

func main() {
	os.Exit(mainImpl(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func printSampleUsage(w io.Writer, progname string) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Sample usage:                  %s [flags] --from <epoch> --to <epoch>\n", progname)
	fmt.Fprintf(w, "                               %s --help\n", progname)
}

func noPositionalArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments %q", args)
	}
	return nil
}

// selectEpochs returns the distinct epochs of listed within [from, to] in
// ascending order.
func selectEpochs(listed []*commitment.Metadata, from, to uint64) []uint64 {
	seen := make(map[uint64]bool)
	var epochs []uint64
	for _, md := range listed {
		if md.Epoch < from || md.Epoch > to || seen[md.Epoch] {
			continue
		}
		seen[md.Epoch] = true
		epochs = append(epochs, md.Epoch)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs
}

// dropJournaled removes epochs the journal records as published.
func dropJournaled(ctx context.Context, j *journal.Journal, epochs []uint64) ([]uint64, error) {
	if len(epochs) == 0 {
		return epochs, nil
	}
	entries, err := j.Entries(ctx, epochs[0], math.MaxInt32)
	if err != nil {
		return nil, err
	}
	published := make(map[uint64]bool)
	for _, entry := range entries {
		if entry.CommitmentState() == commitment.Published {
			published[entry.Epoch] = true
		}
	}
	var remaining []uint64
	for _, epoch := range epochs {
		if published[epoch] {
			log.Info("skipping epoch published by an earlier run", "epoch", epoch)
			continue
		}
		remaining = append(remaining, epoch)
	}
	return remaining, nil
}

type committer interface {
	Commit(ctx context.Context, epoch uint64) (*orchestrator.Result, error)
	CommitBuilt(ctx context.Context, epoch uint64) (*orchestrator.Result, error)
}

type outcome struct {
	epoch  uint64
	result *orchestrator.Result
	err    error
}

// backfill commits every epoch with at most parallelism in flight. A failed
// epoch does not stop the others.
func backfill(ctx context.Context, c committer, epochs []uint64, skipBuild bool, parallelism int) []outcome {
	outcomes := make([]outcome, len(epochs))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, epoch := range epochs {
		i, epoch := i, epoch
		g.Go(func() error {
			commit := c.Commit
			if skipBuild {
				commit = c.CommitBuilt
			}
			res, err := commit(ctx, epoch)
			outcomes[i] = outcome{epoch: epoch, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func printSummary(w io.Writer, outcomes []outcome) int {
	failed := 0
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			failed++
			fmt.Fprintf(w, "%d\tfailed\t%v [%s]\n", o.epoch, o.err, commitment.Kind(o.err))
		case o.result.Receipt.AlreadyCommitted:
			fmt.Fprintf(w, "%d\talready committed\t%s\t%d\n", o.epoch, o.result.Metadata.Root.Hex(), o.result.Metadata.LeavesCount)
		default:
			fmt.Fprintf(w, "%d\tpublished\t%s\t%d\t%s\n", o.epoch, o.result.Metadata.Root.Hex(), o.result.Metadata.LeavesCount, o.result.Receipt.TxHash.Hex())
		}
	}
	fmt.Fprintf(w, "%d epochs, %d failed\n", len(outcomes), failed)
	return failed
}

// mainImpl commits every listed epoch in range and returns the process exit
// code.
func mainImpl(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f := flag.NewFlagSet("epoch-backfill", flag.ContinueOnError)
	f.SetOutput(stderr)
	BackfillConfigAddOptions(f)

	var config BackfillConfig
	dump, err := conf.Parse(f, args, &config, noPositionalArgs)
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
	if err := util.StartMetrics(&config.MetricsOpts); err != nil {
		fmt.Fprintf(stderr, "error starting metrics: %v\n", err)
		return exitFailure
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := conf.NewCommitter(ctx, &config.CommitterConfig, pathResolver)
	if err != nil {
		fmt.Fprintf(stderr, "setup failed [%s]: %v\n", commitment.Kind(err), err)
		return exitFailure
	}
	defer c.Close()

	listed, err := c.Backend.List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "listing epochs failed [%s]: %v\n", commitment.Kind(err), err)
		return exitFailure
	}
	epochs := selectEpochs(listed, config.From, config.upperBound())
	if config.SkipJournaled {
		epochs, err = dropJournaled(ctx, c.Journal, epochs)
		if err != nil {
			fmt.Fprintf(stderr, "reading journal failed: %v\n", err)
			return exitFailure
		}
	}
	if c.Journal != nil {
		if n, err := c.Journal.Length(ctx); err == nil {
			log.Info("journal opened", "entries", n)
		}
	}
	log.Info("backfilling epochs", "listed", len(listed), "selected", len(epochs), "from", config.From, "to", config.To, "parallelism", config.Parallelism)

	outcomes := backfill(ctx, c.Orchestrator, epochs, config.SkipBuild, config.Parallelism)
	if printSummary(stdout, outcomes) > 0 {
		return exitFailure
	}
	return exitSuccess
}
