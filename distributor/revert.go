// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package distributor

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// go-ethereum and most other execution clients return "execution reverted",
// besu capitalizes it and nethermind returns "VM execution error."
var executionRevertedRegexp = regexp.MustCompile("(?i)execution reverted|VM execution error")

func IsExecutionReverted(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == executionRevertCode {
		return true
	}
	return executionRevertedRegexp.MatchString(err.Error())
}

// revertData extracts the raw revert payload from an RPC error, if any.
func revertData(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return nil
	}
	return data
}

// customErrorName names the contract error err carries, preferring the
// selector in the revert payload over the decoded message.
func customErrorName(err error) string {
	if data := revertData(err); len(data) >= 4 {
		for name, abiErr := range ABI.Errors {
			if bytes.Equal(abiErr.ID[:4], data[:4]) {
				return name
			}
		}
	}
	msg := err.Error()
	for _, name := range []string{alreadySetError, unauthorizedError} {
		if strings.Contains(msg, name) {
			return name
		}
	}
	return ""
}
