// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package distributor_test

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/distributor"
	"github.com/offchainlabs/epoch-committer/distributor/chaintest"
	"github.com/offchainlabs/epoch-committer/util/testhelpers"
)

var testChainID = big.NewInt(412346)

type testEnv struct {
	chain  *chaintest.Chain
	config distributor.Config
	opts   *bind.TransactOpts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, testChainID)
	require.NoError(t, err)
	config := distributor.TestConfig
	config.URL = "in-process"
	config.ProgramAddress = testhelpers.RandomAddress().Hex()
	config.DistributorAddress = testhelpers.RandomAddress().Hex()
	require.NoError(t, config.Validate())
	return &testEnv{
		chain:  chaintest.New(testChainID, config.Program(), opts.From),
		config: config,
		opts:   opts,
	}
}

func (e *testEnv) distributor(backend distributor.Backend) *distributor.Distributor {
	return distributor.New(func() *distributor.Config { return &e.config }, backend, e.opts)
}

func randomRecord(epoch uint64) *commitment.Record {
	return &commitment.Record{Epoch: epoch, Root: testhelpers.RandomHash(), LeavesCount: epoch * 10}
}

func TestUpdateAndRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)

	got, err := d.EpochRoot(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, got)

	rec := randomRecord(1)
	sub, err := d.Update(ctx, rec)
	require.NoError(t, err)
	require.NotZero(t, sub.BlockNumber)
	require.Equal(t, rec, sub.Event)
	require.Equal(t, 1, env.chain.Sent())

	got, err = d.EpochRoot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestZeroLeavesIsPublished(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)

	rec := &commitment.Record{Epoch: 3, Root: testhelpers.RandomHash(), LeavesCount: 0}
	_, err := d.Update(ctx, rec)
	require.NoError(t, err)
	got, err := d.EpochRoot(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestSecondUpdateIsRejectedBeforeSending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)

	_, err := d.Update(ctx, randomRecord(2))
	require.NoError(t, err)
	_, err = d.Update(ctx, randomRecord(2))
	require.ErrorIs(t, err, distributor.ErrAlreadySet)
	require.Equal(t, 1, env.chain.Sent())
}

func TestUnauthorizedSigner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	env.opts, err = bind.NewKeyedTransactorWithChainID(key, testChainID)
	require.NoError(t, err)
	d := env.distributor(env.chain)

	_, err = d.Update(ctx, randomRecord(4))
	require.ErrorIs(t, err, distributor.ErrUnauthorized)
	require.ErrorIs(t, err, commitment.ErrAuth)
	require.Equal(t, 0, env.chain.Sent())
}

func TestRevertWhileMining(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)
	rival := randomRecord(5)
	env.chain.BeforeMine = func(*types.Transaction) {
		env.chain.SetRecord(env.config.Distributor(), rival.Epoch, rival.Root, rival.LeavesCount)
	}

	_, err := d.Update(ctx, randomRecord(5))
	require.ErrorIs(t, err, distributor.ErrAlreadySet)
	require.Equal(t, 1, env.chain.Sent())
	got, err := d.EpochRoot(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, rival, got)
}

func TestConfirmWaitsForReceipt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)
	env.chain.HideReceipts(3)

	_, err := d.Update(ctx, randomRecord(6))
	require.NoError(t, err)
}

func TestConfirmTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.config.ConfirmTimeout = 30 * time.Millisecond
	d := env.distributor(env.chain)
	env.chain.HideReceipts(1 << 20)

	_, err := d.Update(context.Background(), randomRecord(7))
	require.ErrorIs(t, err, distributor.ErrUnconfirmed)
	require.True(t, commitment.IsRetryable(err))
}

func TestConfirmWithoutTimeoutWaitsUntilMined(t *testing.T) {
	env := newTestEnv(t)
	env.config.ConfirmTimeout = 0
	require.NoError(t, env.config.Validate())
	d := env.distributor(env.chain)
	// 40 polls outlast the 30ms timeout of TestConfirmTimeout
	env.chain.HideReceipts(40)

	rec := randomRecord(9)
	sub, err := d.Update(context.Background(), rec)
	require.NoError(t, err)
	require.NotNil(t, sub.Event)
	require.True(t, sub.Event.Matches(&commitment.Metadata{Epoch: 9, Root: rec.Root, LeavesCount: rec.LeavesCount}))
}

func TestConfirmIgnoresCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	d := env.distributor(env.chain)
	ctx, cancel := context.WithCancel(context.Background())
	rec := randomRecord(8)
	tx, err := d.Send(ctx, rec)
	require.NoError(t, err)
	cancel()

	env.chain.HideReceipts(2)
	sub, err := d.Confirm(ctx, rec, tx)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), sub.TxHash)
}

func TestOverJSONRPC(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client, err := ethclient.DialContext(ctx, env.chain.Start(t))
	require.NoError(t, err)
	defer client.Close()
	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	require.Equal(t, testChainID.Uint64(), chainID.Uint64())

	d := env.distributor(client)
	rec := randomRecord(9)
	sub, err := d.Update(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, rec, sub.Event)

	got, err := d.EpochRoot(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	_, err = d.Update(ctx, randomRecord(9))
	require.ErrorIs(t, err, distributor.ErrAlreadySet)
	require.Equal(t, 1, env.chain.Sent())
}

func TestExecutionReverted(t *testing.T) {
	executionRevertedErrors := []string{
		"execution reverted",
		"execution reverted: FOO",
		"Execution reverted",
		"VM execution error.",
	}
	for _, errString := range executionRevertedErrors {
		require.True(t, distributor.IsExecutionReverted(errors.New(errString)), errString)
	}
	require.False(t, distributor.IsExecutionReverted(errors.New(io.ErrUnexpectedEOF.Error())))
	require.False(t, distributor.IsExecutionReverted(nil))
	require.True(t, distributor.IsExecutionReverted(&chaintest.RevertError{}))
}

func TestConcurrentUpdatesFromOneSender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	d := env.distributor(env.chain)

	var g errgroup.Group
	for epoch := uint64(1); epoch <= 6; epoch++ {
		rec := randomRecord(epoch)
		g.Go(func() error {
			_, err := d.Update(ctx, rec)
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 6, env.chain.Sent())
	for epoch := uint64(1); epoch <= 6; epoch++ {
		require.NotNil(t, env.chain.Record(env.config.Distributor(), epoch))
	}
}
