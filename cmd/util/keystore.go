// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package util

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
	"github.com/offchainlabs/epoch-committer/commitment"
)

// OpenKey loads the signing key described by walletConfig. Every failure is an
// auth error: the run cannot proceed without operator intervention.
func OpenKey(description string, walletConfig *genericconf.WalletConfig, pathResolver func(string) string) (*ecdsa.PrivateKey, error) {
	if walletConfig.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(walletConfig.PrivateKey), "0x"))
		if err != nil {
			return nil, commitment.Authf("%s: invalid private key: %v", description, err)
		}
		return key, nil
	}
	if walletConfig.Pathname == "" {
		return nil, commitment.Authf("%s: no wallet pathname or private key configured", description)
	}
	path := walletConfig.Pathname
	if pathResolver != nil {
		path = pathResolver(path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, commitment.Authf("%s: reading credential %s: %v", description, path, err)
	}
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 {
		return nil, commitment.Authf("%s: credential file %s is empty", description, path)
	}
	if trimmed[0] == '{' && json.Valid(trimmed) {
		pwd := walletConfig.Pwd()
		if pwd == nil {
			return nil, commitment.Authf("%s: keystore %s requires a password", description, path)
		}
		key, err := keystore.DecryptKey(trimmed, *pwd)
		if err != nil {
			return nil, commitment.Authf("%s: decrypting keystore %s: %v", description, path, err)
		}
		return key.PrivateKey, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(string(trimmed), "0x"))
	if err != nil {
		return nil, commitment.Authf("%s: malformed key file %s: %v", description, path, err)
	}
	return key, nil
}

// OpenWallet loads the key once and wraps it in transaction options for chainId.
func OpenWallet(description string, walletConfig *genericconf.WalletConfig, chainId *big.Int, pathResolver func(string) string) (*bind.TransactOpts, error) {
	key, err := OpenKey(description, walletConfig, pathResolver)
	if err != nil {
		return nil, err
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(key, chainId)
	if err != nil {
		return nil, commitment.Authf("%s: creating transactor: %v", description, err)
	}
	log.Info("loaded signing key", "wallet", description, "address", txOpts.From)
	return txOpts, nil
}

func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
