// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	flag "github.com/spf13/pflag"
)

const PASSWORD_NOT_SET = "PASSWORD_NOT_SET"

// WalletConfig locates the admin signing key. Pathname is either a go-ethereum
// keystore JSON file (decrypted with Password) or a file holding a hex private key.
type WalletConfig struct {
	Pathname   string `koanf:"pathname"`
	Password   string `koanf:"password"`
	PrivateKey string `koanf:"private-key"`
}

func (w *WalletConfig) Pwd() *string {
	if w.Password == PASSWORD_NOT_SET {
		return nil
	}
	return &w.Password
}

var WalletConfigDefault = WalletConfig{
	Pathname:   "",
	Password:   PASSWORD_NOT_SET,
	PrivateKey: "",
}

func WalletConfigAddOptions(prefix string, f *flag.FlagSet, defaultPathname string) {
	f.String(prefix+".pathname", defaultPathname, "path to the admin keystore file or hex private key file")
	f.String(prefix+".password", WalletConfigDefault.Password, "keystore passphrase")
	f.String(prefix+".private-key", WalletConfigDefault.PrivateKey, "hex private key, used instead of pathname when set")
}
