// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package util

import (
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
	"github.com/offchainlabs/epoch-committer/commitment"
)

func writeFile(t *testing.T, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, contents, 0600))
	return path
}

func TestOpenKeyFromHexFile(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	path := writeFile(t, "admin.key", []byte("0x"+hex.EncodeToString(crypto.FromECDSA(key))+"\n"))

	loaded, err := OpenKey("admin", &genericconf.WalletConfig{Pathname: path}, nil)
	require.NoError(t, err)
	require.Equal(t, AddressOf(key), AddressOf(loaded))
}

func TestOpenKeyFromKeystore(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ks := &keystore.Key{
		Id:         uuid.New(),
		Address:    AddressOf(key),
		PrivateKey: key,
	}
	encrypted, err := keystore.EncryptKey(ks, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	path := writeFile(t, "keystore.json", encrypted)

	loaded, err := OpenKey("admin", &genericconf.WalletConfig{Pathname: path, Password: "hunter2"}, nil)
	require.NoError(t, err)
	require.Equal(t, ks.Address, AddressOf(loaded))

	_, err = OpenKey("admin", &genericconf.WalletConfig{Pathname: path, Password: "wrong"}, nil)
	require.ErrorIs(t, err, commitment.ErrAuth)

	_, err = OpenKey("admin", &genericconf.WalletConfig{Pathname: path, Password: genericconf.PASSWORD_NOT_SET}, nil)
	require.ErrorIs(t, err, commitment.ErrAuth)
}

func TestOpenKeyFailures(t *testing.T) {
	cases := map[string]*genericconf.WalletConfig{
		"nothing configured": {Password: genericconf.PASSWORD_NOT_SET},
		"missing file":       {Pathname: filepath.Join(t.TempDir(), "absent.key")},
		"empty file":         {Pathname: writeFile(t, "empty.key", nil)},
		"garbage file":       {Pathname: writeFile(t, "garbage.key", []byte("not a key"))},
		"bad inline key":     {PrivateKey: "0x1234"},
	}
	for name, walletConfig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := OpenKey("admin", walletConfig, nil)
			require.ErrorIs(t, err, commitment.ErrAuth)
		})
	}
}

func TestOpenWallet(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	walletConfig := &genericconf.WalletConfig{PrivateKey: hex.EncodeToString(crypto.FromECDSA(key))}
	opts, err := OpenWallet("admin", walletConfig, big.NewInt(1337), nil)
	require.NoError(t, err)
	require.Equal(t, AddressOf(key), opts.From)
}
