// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package chaintest emulates a chain hosting the distributor program, enough
// for the contract binding to read, estimate, send and confirm root updates.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/offchainlabs/epoch-committer/commitment"
	"github.com/offchainlabs/epoch-committer/distributor"
)

const (
	updateGas = 60_000
	gwei      = 1_000_000_000
)

// RevertError mimics the error a node returns for a reverted call.
type RevertError struct {
	data []byte
}

func (e *RevertError) Error() string  { return "execution reverted" }
func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.data) }

type recordKey struct {
	distributor common.Address
	epoch       uint64
}

type record struct {
	root   common.Hash
	leaves uint64
}

type Chain struct {
	mu       sync.Mutex
	chainID  *big.Int
	program  common.Address
	admin    common.Address
	signer   types.Signer
	records  map[recordKey]record
	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
	block    uint64
	sent     int
	hidden   int

	// BeforeMine runs after a transaction is accepted and before it executes.
	BeforeMine func(tx *types.Transaction)
}

func New(chainID *big.Int, program, admin common.Address) *Chain {
	return &Chain{
		chainID:  chainID,
		program:  program,
		admin:    admin,
		signer:   types.LatestSignerForChainID(chainID),
		records:  make(map[recordKey]record),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
		block:    1,
	}
}

func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// SetRecord writes an epoch record directly, as another committer would.
func (c *Chain) SetRecord(distributorAddr common.Address, epoch uint64, root common.Hash, leaves uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[recordKey{distributorAddr, epoch}] = record{root: root, leaves: leaves}
}

func (c *Chain) Record(distributorAddr common.Address, epoch uint64) *commitment.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[recordKey{distributorAddr, epoch}]
	if !ok {
		return nil
	}
	return &commitment.Record{Epoch: epoch, Root: r.root, LeavesCount: r.leaves}
}

// Sent returns the number of transactions accepted so far.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// HideReceipts makes the next n receipt queries report the transaction as pending.
func (c *Chain) HideReceipts(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden = n
}

func revert(name string, args ...interface{}) error {
	abiErr := distributor.ABI.Errors[name]
	packed, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		panic(err)
	}
	return &RevertError{data: append(common.CopyBytes(abiErr.ID[:4]), packed...)}
}

// execute runs calldata against the program. Callers hold c.mu.
func (c *Chain) execute(from common.Address, to *common.Address, data []byte, commit bool) ([]byte, []*types.Log, error) {
	if to == nil || *to != c.program {
		return nil, nil, nil
	}
	if len(data) < 4 {
		return nil, nil, &RevertError{}
	}
	method, err := distributor.ABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, &RevertError{}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, &RevertError{}
	}
	switch method.Name {
	case "epochRoot":
		key := recordKey{args[0].(common.Address), args[1].(uint64)}
		r, exists := c.records[key]
		out, err := method.Outputs.Pack([32]byte(r.root), r.leaves, exists)
		return out, nil, err
	case "updateEpochRoot":
		key := recordKey{args[0].(common.Address), args[1].(uint64)}
		if from != c.admin {
			return nil, nil, revert("Unauthorized", from)
		}
		if _, exists := c.records[key]; exists {
			return nil, nil, revert("EpochAlreadySet", key.epoch)
		}
		root := common.Hash(args[2].([32]byte))
		leaves := args[3].(uint64)
		if !commit {
			return nil, nil, nil
		}
		c.records[key] = record{root: root, leaves: leaves}
		event := distributor.ABI.Events["EpochRootUpdated"]
		logData, err := event.Inputs.NonIndexed().Pack([32]byte(root), leaves)
		if err != nil {
			return nil, nil, err
		}
		return nil, []*types.Log{{
			Address: c.program,
			Topics: []common.Hash{
				event.ID,
				common.BytesToHash(key.distributor.Bytes()),
				common.BigToHash(new(big.Int).SetUint64(key.epoch)),
			},
			Data: logData,
		}}, nil
	}
	return nil, nil, &RevertError{}
}

func (c *Chain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if account == c.program {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.CodeAt(ctx, account, nil)
}

func (c *Chain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, _, err := c.execute(call.From, call.To, call.Data, false)
	return out, err
}

func (c *Chain) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, _, err := c.execute(call.From, call.To, call.Data, false); err != nil {
		return 0, err
	}
	return updateGas, nil
}

func (c *Chain) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header(), nil
}

func (c *Chain) header() *types.Header {
	return &types.Header{
		Number:     new(big.Int).SetUint64(c.block),
		Difficulty: common.Big0,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(gwei),
		Time:       c.block,
	}
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2 * gwei), nil
}

func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(gwei), nil
}

// SendTransaction mines tx into its own block immediately.
func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	c.mu.Lock()
	if tx.Nonce() != c.nonces[from] {
		expected := c.nonces[from]
		c.mu.Unlock()
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), expected)
	}
	c.nonces[from]++
	c.sent++
	hook := c.BeforeMine
	c.mu.Unlock()

	if hook != nil {
		hook(tx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	_, logs, execErr := c.execute(from, tx.To(), tx.Data(), true)
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: updateGas,
		GasUsed:           updateGas,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
		BlockHash:         crypto.Keccak256Hash(new(big.Int).SetUint64(c.block).Bytes()),
		Logs:              logs,
	}
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	if execErr != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Logs = []*types.Log{}
	}
	for i, l := range receipt.Logs {
		l.TxHash = tx.Hash()
		l.BlockNumber = c.block
		l.BlockHash = receipt.BlockHash
		l.Index = uint(i)
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden > 0 {
		c.hidden--
		return nil, ethereum.NotFound
	}
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var logs []types.Log
	for _, receipt := range c.receipts {
		for _, l := range receipt.Logs {
			logs = append(logs, *l)
		}
	}
	return logs, nil
}

func (c *Chain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("subscriptions not supported")
}
