// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-committer/distributor/chaintest"
	"github.com/offchainlabs/epoch-committer/snapshotclient/backendtest"
	"github.com/offchainlabs/epoch-committer/util/testhelpers"
)

type testEnv struct {
	backend     *backendtest.Backend
	chain       *chaintest.Chain
	distributor common.Address
	args        []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "admin.key")
	require.NoError(t, os.WriteFile(keyFile, []byte(hexutil.Encode(crypto.FromECDSA(key))), 0600))

	program := testhelpers.RandomAddress()
	env := &testEnv{
		backend:     backendtest.New(),
		chain:       chaintest.New(big.NewInt(421614), program, crypto.PubkeyToAddress(key.PublicKey)),
		distributor: testhelpers.RandomAddress(),
	}
	env.args = []string{
		"--backend.url", env.backend.Start(t),
		"--backend.retry-delay", "1ms",
		"--chain.url", env.chain.Start(t),
		"--chain.program-address", program.Hex(),
		"--chain.distributor-address", env.distributor.Hex(),
		"--chain.receipt-poll-interval", "5ms",
		"--wallet.pathname", keyFile,
		"--journal.directory", filepath.Join(t.TempDir(), "journal"),
		"--orchestrator.poll-attempts", "3",
		"--orchestrator.poll-interval", "1ms",
		"--orchestrator.poll-max-interval", "2ms",
		"--log-level", "warn",
	}
	return env
}

func (env *testEnv) run(extra ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	args := append(append([]string{}, env.args...), extra...)
	code := mainImpl(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCommitThenRerun(t *testing.T) {
	env := newTestEnv(t)
	root := testhelpers.RandomHash()
	env.backend.Plan(1, root, 3)

	code, stdout, stderr := env.run("1")
	require.Equal(t, exitSuccess, code, stderr)
	require.Contains(t, stdout, "epoch:   1")
	require.Contains(t, stdout, "leaves:  3")
	require.Contains(t, stdout, root.Hex())
	require.NotContains(t, stdout, "already committed")
	require.Equal(t, 1, env.chain.Sent())
	require.Equal(t, root, env.chain.Record(env.distributor, 1).Root)

	code, stdout, stderr = env.run("1")
	require.Equal(t, exitSuccess, code, stderr)
	require.Contains(t, stdout, "already committed")
	require.Equal(t, 1, env.chain.Sent(), "rerun must not send a transaction")
}

func TestConflictingRootExitsNonZero(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Plan(2, testhelpers.RandomHash(), 5)
	existing := testhelpers.RandomHash()
	env.chain.SetRecord(env.distributor, 2, existing, 5)

	code, stdout, stderr := env.run("2")
	require.Equal(t, exitFailure, code)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "epoch 2")
	require.Contains(t, stderr, "publish")
	require.Contains(t, stderr, "consistency")
	require.Equal(t, 0, env.chain.Sent())
	require.Equal(t, existing, env.chain.Record(env.distributor, 2).Root)
}

func TestBuildRejectionNamesPhase(t *testing.T) {
	env := newTestEnv(t)

	code, _, stderr := env.run("3")
	require.Equal(t, exitFailure, code)
	require.Contains(t, stderr, "epoch 3: build phase failed")
	require.Contains(t, stderr, "no claimable rewards")
}

func TestUsageErrorsTouchNoNetwork(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Plan(4, testhelpers.RandomHash(), 1)
	for name, extra := range map[string][]string{
		"no epoch":       {},
		"two epochs":     {"4", "5"},
		"not a number":   {"four"},
		"fraction":       {"4.5"},
		"negative":       {"--", "-4"},
		"shorthand flag": {"-4"},
		"overflow":       {"18446744073709551616"},
		"unknown flag":   {"--no-such-flag", "4"},
		"negative buf":   {"--file-logging.enable", "--file-logging.buf-size", "-1", "4"},
	} {
		code, stdout, stderr := env.run(extra...)
		require.Equal(t, exitUsage, code, "%s: %s", name, stderr)
		require.Empty(t, stdout, name)
		require.Contains(t, stderr, "Sample usage", name)
	}
	require.Equal(t, 0, env.backend.Calls("buildEpochSnapshot"))
	require.Equal(t, 0, env.backend.Calls("getEpochMeta"))
	require.Equal(t, 0, env.chain.Sent())
}

func TestMissingSettingIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := mainImpl(context.Background(), []string{"--chain.url", "http://127.0.0.1:1", "1"}, &stdout, &stderr)
	require.Equal(t, exitUsage, code)
	require.Contains(t, stderr.String(), "backend")
}

func TestMissingCredentialIsAuthFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.Plan(5, testhelpers.RandomHash(), 1)

	code, _, stderr := env.run("--wallet.pathname", filepath.Join(t.TempDir(), "missing.key"), "5")
	require.Equal(t, exitFailure, code)
	require.Contains(t, stderr, "[auth]")
	require.Equal(t, 0, env.backend.Calls("buildEpochSnapshot"))
	require.Equal(t, 0, env.chain.Sent())
}

func TestDumpConfigHidesSecrets(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := env.run("--wallet.private-key", "0x01", "--conf.dump")
	require.Equal(t, exitSuccess, code, stderr)

	var dumped map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &dumped))
	wallet, ok := dumped["wallet"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "", wallet["private-key"])
	backend, ok := dumped["backend"].(map[string]interface{})
	require.True(t, ok)
	require.NotEmpty(t, backend["url"])
	require.Equal(t, 0, env.backend.Calls("buildEpochSnapshot"))
}
