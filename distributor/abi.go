// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package distributor

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const ABIJSON = `[
	{"type":"function","name":"updateEpochRoot","stateMutability":"nonpayable",
	 "inputs":[{"name":"distributor","type":"address"},{"name":"epoch","type":"uint64"},{"name":"root","type":"bytes32"},{"name":"leavesCount","type":"uint64"}],
	 "outputs":[]},
	{"type":"function","name":"epochRoot","stateMutability":"view",
	 "inputs":[{"name":"distributor","type":"address"},{"name":"epoch","type":"uint64"}],
	 "outputs":[{"name":"root","type":"bytes32"},{"name":"leavesCount","type":"uint64"},{"name":"exists","type":"bool"}]},
	{"type":"event","name":"EpochRootUpdated","anonymous":false,
	 "inputs":[{"name":"distributor","type":"address","indexed":true},{"name":"epoch","type":"uint64","indexed":true},{"name":"root","type":"bytes32","indexed":false},{"name":"leavesCount","type":"uint64","indexed":false}]},
	{"type":"error","name":"EpochAlreadySet","inputs":[{"name":"epoch","type":"uint64"}]},
	{"type":"error","name":"Unauthorized","inputs":[{"name":"caller","type":"address"}]}
]`

const (
	updateMethod        = "updateEpochRoot"
	readMethod          = "epochRoot"
	updatedEvent        = "EpochRootUpdated"
	alreadySetError     = "EpochAlreadySet"
	unauthorizedError   = "Unauthorized"
	executionRevertCode = 3
)

var (
	ABI              abi.ABI
	epochRootUpdated common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(err)
	}
	event, ok := parsed.Events[updatedEvent]
	if !ok {
		panic("distributor ABI missing EpochRootUpdated event")
	}
	ABI = parsed
	epochRootUpdated = event.ID
}
