// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package distributor binds the reward distributor program contract: reading
// the root recorded for an epoch and submitting a new one.
package distributor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/offchainlabs/epoch-committer/commitment"
)

var (
	ErrAlreadySet = errors.New("epoch root already set on-chain")
	// ErrTxReverted is a commitment.ErrRejected: the chain refused the update
	// for a reason other than the known custom errors.
	ErrTxReverted = fmt.Errorf("%w: transaction reverted", commitment.ErrRejected)
	// ErrUnauthorized is a commitment.ErrAuth.
	ErrUnauthorized = fmt.Errorf("%w: signer is not authorized to update epoch roots", commitment.ErrAuth)
	// ErrUnconfirmed means the outcome of a sent transaction is unknown. It is
	// a commitment.ErrTransport.
	ErrUnconfirmed = fmt.Errorf("%w: transaction not confirmed", commitment.ErrTransport)
)

// Backend to interact with the underlying blockchain.
type Backend interface {
	bind.ContractBackend
	ReceiptFetcher
}

// Submission describes a mined root update.
type Submission struct {
	TxHash      common.Hash
	BlockNumber uint64
	// Event is the EpochRootUpdated log emitted by the update, if found.
	Event *commitment.Record
}

type Distributor struct {
	// sendMutex keeps nonce assignment and broadcast of one update together.
	sendMutex   sync.Mutex
	config      ConfigFetcher
	backend     Backend
	contract    *bind.BoundContract
	txOpts      *bind.TransactOpts
	program     common.Address
	distributor common.Address
}

func New(config ConfigFetcher, backend Backend, txOpts *bind.TransactOpts) *Distributor {
	cfg := config()
	program := cfg.Program()
	return &Distributor{
		config:      config,
		backend:     backend,
		contract:    bind.NewBoundContract(program, ABI, backend, backend, backend),
		txOpts:      txOpts,
		program:     program,
		distributor: cfg.Distributor(),
	}
}

func (d *Distributor) Sender() common.Address {
	if d.txOpts == nil {
		return common.Address{}
	}
	return d.txOpts.From
}

// EpochRoot returns the record stored for epoch, or nil if none was written.
func (d *Distributor) EpochRoot(ctx context.Context, epoch uint64) (*commitment.Record, error) {
	var out []interface{}
	err := d.contract.Call(&bind.CallOpts{Context: ctx}, &out, readMethod, d.distributor, epoch)
	if err != nil {
		return nil, commitment.Transportf(err, "reading root of epoch %d", epoch)
	}
	if len(out) != 3 {
		return nil, commitment.Malformedf("epochRoot returned %d values", len(out))
	}
	root := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	leaves := *abi.ConvertType(out[1], new(uint64)).(*uint64)
	exists := *abi.ConvertType(out[2], new(bool)).(*bool)
	if !exists {
		return nil, nil
	}
	return &commitment.Record{
		Epoch:       epoch,
		Root:        root,
		LeavesCount: leaves,
	}, nil
}

func (d *Distributor) handleUpdateError(err error, epoch uint64, action string) error {
	switch customErrorName(err) {
	case alreadySetError:
		return errors.Wrapf(ErrAlreadySet, "%s epoch %d", action, epoch)
	case unauthorizedError:
		return errors.Wrapf(ErrUnauthorized, "%s epoch %d as %v", action, epoch, d.Sender())
	}
	if IsExecutionReverted(err) {
		return errors.Wrapf(ErrTxReverted, "%s epoch %d: %v", action, epoch, err)
	}
	return commitment.Transportf(err, "%s epoch %d", action, epoch)
}

func (d *Distributor) packUpdate(rec *commitment.Record) ([]byte, error) {
	return ABI.Pack(updateMethod, d.distributor, rec.Epoch, [32]byte(rec.Root), rec.LeavesCount)
}

// Send signs and broadcasts one root update without waiting for it to be
// mined. Reverts detected during gas estimation are classified and nothing is
// sent.
func (d *Distributor) Send(ctx context.Context, rec *commitment.Record) (*types.Transaction, error) {
	if d.txOpts == nil {
		return nil, commitment.Authf("no signing key configured")
	}
	input, err := d.packUpdate(rec)
	if err != nil {
		return nil, err
	}
	config := d.config()
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	opts := *d.txOpts
	opts.Context = ctx
	opts.GasLimit = config.GasLimit
	if opts.GasLimit == 0 {
		estimate, err := d.backend.EstimateGas(ctx, ethereum.CallMsg{
			From: opts.From,
			To:   &d.program,
			Data: input,
		})
		if err != nil {
			return nil, d.handleUpdateError(err, rec.Epoch, "estimating update of")
		}
		opts.GasLimit = estimate + estimate*config.GasMarginPercent/100
	}
	tx, err := d.contract.RawTransact(&opts, input)
	if err != nil {
		return nil, d.handleUpdateError(err, rec.Epoch, "sending update of")
	}
	log.Info("sent epoch root update", "epoch", rec.Epoch, "root", rec.Root, "leaves", rec.LeavesCount, "tx", tx.Hash(), "gas", opts.GasLimit)
	return tx, nil
}

// Confirm waits until tx is mined. Waiting is not cancelled with ctx: once a
// transaction is out its outcome must be learned. A positive confirm timeout
// bounds the wait and turns an unmined tx into ErrUnconfirmed.
func (d *Distributor) Confirm(ctx context.Context, rec *commitment.Record, tx *types.Transaction) (*Submission, error) {
	config := d.config()
	waitCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if config.ConfirmTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(waitCtx, config.ConfirmTimeout)
	}
	defer cancel()
	receipt, err := WaitForTx(waitCtx, d.backend, tx.Hash(), config.ReceiptPollInterval)
	if err != nil {
		return nil, errors.Wrapf(ErrUnconfirmed, "tx %v for epoch %d: %v", tx.Hash(), rec.Epoch, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		callMsg := ethereum.CallMsg{
			From: d.Sender(),
			To:   tx.To(),
			Data: tx.Data(),
		}
		if _, err := d.backend.CallContract(waitCtx, callMsg, receipt.BlockNumber); err != nil {
			return nil, d.handleUpdateError(err, rec.Epoch, "mined update of")
		}
		return nil, errors.Wrapf(ErrTxReverted, "tx %v for epoch %d", tx.Hash(), rec.Epoch)
	}
	sub := &Submission{
		TxHash: tx.Hash(),
		Event:  d.findUpdatedEvent(receipt, rec.Epoch),
	}
	if receipt.BlockNumber != nil {
		sub.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return sub, nil
}

// Update sends a root update and waits for it to be mined.
func (d *Distributor) Update(ctx context.Context, rec *commitment.Record) (*Submission, error) {
	tx, err := d.Send(ctx, rec)
	if err != nil {
		return nil, err
	}
	return d.Confirm(ctx, rec, tx)
}

type epochRootUpdatedLog struct {
	Distributor common.Address
	Epoch       uint64
	Root        [32]byte
	LeavesCount uint64
}

func (d *Distributor) findUpdatedEvent(receipt *types.Receipt, epoch uint64) *commitment.Record {
	for _, ethLog := range receipt.Logs {
		if ethLog == nil || ethLog.Address != d.program || len(ethLog.Topics) == 0 || ethLog.Topics[0] != epochRootUpdated {
			continue
		}
		var parsed epochRootUpdatedLog
		if err := d.contract.UnpackLog(&parsed, updatedEvent, *ethLog); err != nil {
			log.Warn("failed to parse EpochRootUpdated log", "tx", receipt.TxHash, "err", err)
			continue
		}
		if parsed.Distributor != d.distributor || parsed.Epoch != epoch {
			continue
		}
		return &commitment.Record{
			Epoch:       parsed.Epoch,
			Root:        parsed.Root,
			LeavesCount: parsed.LeavesCount,
		}
	}
	return nil
}
