// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package chaintest

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a *callArgs) msg() ethereum.CallMsg {
	msg := ethereum.CallMsg{To: a.To}
	if a.From != nil {
		msg.From = *a.From
	}
	if a.Input != nil {
		msg.Data = *a.Input
	} else if a.Data != nil {
		msg.Data = *a.Data
	}
	return msg
}

type ethAPI struct {
	chain *Chain
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.chain.ChainID())
}

func (api *ethAPI) Call(ctx context.Context, args callArgs, _ *string) (hexutil.Bytes, error) {
	return api.chain.CallContract(ctx, args.msg(), nil)
}

func (api *ethAPI) EstimateGas(ctx context.Context, args callArgs, _ *string) (hexutil.Uint64, error) {
	gas, err := api.chain.EstimateGas(ctx, args.msg())
	return hexutil.Uint64(gas), err
}

func (api *ethAPI) GetCode(ctx context.Context, account common.Address, _ *string) (hexutil.Bytes, error) {
	return api.chain.CodeAt(ctx, account, nil)
}

func (api *ethAPI) GetTransactionCount(ctx context.Context, account common.Address, _ *string) (hexutil.Uint64, error) {
	nonce, err := api.chain.PendingNonceAt(ctx, account)
	return hexutil.Uint64(nonce), err
}

func (api *ethAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	price, err := api.chain.SuggestGasPrice(ctx)
	return (*hexutil.Big)(price), err
}

func (api *ethAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	tip, err := api.chain.SuggestGasTipCap(ctx)
	return (*hexutil.Big)(tip), err
}

func (api *ethAPI) GetBlockByNumber(ctx context.Context, _ string, _ bool) (*types.Header, error) {
	return api.chain.HeaderByNumber(ctx, nil)
}

func (api *ethAPI) SendRawTransaction(ctx context.Context, encoded hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(encoded); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), api.chain.SendTransaction(ctx, tx)
}

func (api *ethAPI) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := api.chain.TransactionReceipt(ctx, txHash)
	if err == ethereum.NotFound {
		return nil, nil
	}
	return receipt, err
}

// Start serves the chain's eth namespace over HTTP until the test ends and
// returns its URL.
func (c *Chain) Start(t testing.TB) string {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{chain: c}); err != nil {
		t.Fatal(err)
	}
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}
