// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package distributor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type headSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// WaitForTx returns the receipt of txHash once it is mined. The receipt is
// looked up again on every new head when the backend streams heads, and every
// pollInterval otherwise or once the stream fails.
func WaitForTx(ctx context.Context, client ReceiptFetcher, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	var heads chan *types.Header
	var headErrs <-chan error
	if subscriber, ok := client.(headSubscriber); ok {
		heads = make(chan *types.Header, 1)
		if sub, err := subscriber.SubscribeNewHead(ctx, heads); err == nil {
			defer sub.Unsubscribe()
			headErrs = sub.Err()
			ticker.Stop()
		} else {
			heads = nil
		}
	}
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for tx %v", txHash)
		case err := <-headErrs:
			log.Warn("head subscription ended, polling for receipt", "tx", txHash, "err", err)
			heads, headErrs = nil, nil
			ticker.Reset(pollInterval)
		case <-heads:
		case <-ticker.C:
		}
	}
}
