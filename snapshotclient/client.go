// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package snapshotclient talks to the snapshot backend: it asks the backend to
// build an epoch's Merkle snapshot and reads the resulting metadata back.
package snapshotclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/offchainlabs/epoch-committer/commitment"
)

const (
	buildMethod = "buildEpochSnapshot"
	metaMethod  = "getEpochMeta"
	listMethod  = "listEpochs"
)

// AlreadyBuiltCode is the JSON-RPC error code the backend answers a build of
// an existing snapshot with.
const AlreadyBuiltCode = -32010

var errNotConnected = errors.New("not connected")

type Client struct {
	config ConfigFetcher
	client *rpc.Client
	logId  uint64
}

func NewClient(config ConfigFetcher) *Client {
	return &Client{config: config}
}

// Start dials the backend. HTTP endpoints connect lazily, so a reachable URL
// is only proven by the first call.
func (c *Client) Start(ctx context.Context) error {
	url := c.config().URL
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return commitment.Transportf(err, "dialing snapshot backend %s", url)
	}
	c.client = client
	return nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// limitString shortens str to limit bytes around "..". Limits too small to
// keep anything of either end leave str whole.
func limitString(limit int, str string) string {
	if limit < 4 || len(str) <= limit {
		return str
	}
	prefix := str[:limit/2-1]
	postfix := str[len(str)-limit/2+1:]
	return fmt.Sprintf("%v..%v", prefix, postfix)
}

// backendError returns the JSON-RPC error object carried by err, if the
// backend answered with one.
func backendError(err error) (rpc.Error, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

func (c *Client) retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	retryErrors := c.config().RetryErrors
	if retryErrors != "" {
		match, regexErr := regexp.MatchString(retryErrors, err.Error())
		if regexErr != nil {
			log.Warn("snapshotclient: bad value for retry-errors. Not retrying.", "err", err, "value", retryErrors)
			return false
		}
		if match {
			return true
		}
	}
	_, isBackendErr := backendError(err)
	return !isBackendErr
}

// call performs one backend request, retrying transport failures. A
// JSON-RPC error object is returned unchanged and never retried unless it
// matches retry-errors.
func (c *Client) call(ctxIn context.Context, result interface{}, method string, args ...interface{}) error {
	if c.client == nil {
		return commitment.Transportf(errNotConnected, "calling %s", method)
	}
	config := c.config()
	fullMethod := config.Namespace + "_" + method
	logId := atomic.AddUint64(&c.logId, 1)
	argLimit := int(config.ArgLogLimit)
	log.Trace("sending snapshot backend request", "method", fullMethod, "logId", logId, "args", limitString(argLimit, fmt.Sprint(args...)))
	var err error
	for attempt := 0; attempt < int(config.Retries)+1; attempt++ {
		if ctxIn.Err() != nil {
			return ctxIn.Err()
		}
		if attempt > 0 && config.RetryDelay > 0 {
			select {
			case <-ctxIn.Done():
				return ctxIn.Err()
			case <-time.After(config.RetryDelay):
			}
		}
		var ctx context.Context
		var cancelCtx context.CancelFunc
		if config.Timeout > 0 {
			ctx, cancelCtx = context.WithTimeout(ctxIn, config.Timeout)
		} else {
			ctx, cancelCtx = context.WithCancel(ctxIn)
		}
		err = c.client.CallContext(ctx, result, fullMethod, args...)
		cancelCtx()
		if err == nil {
			log.Trace("snapshot backend response", "method", fullMethod, "logId", logId, "attempt", attempt)
			return nil
		}
		log.Info("snapshot backend request failed", "method", fullMethod, "logId", logId, "attempt", attempt, "err", err)
		if ctxIn.Err() != nil {
			return ctxIn.Err()
		}
		if !c.retryable(err) {
			return err
		}
	}
	if _, isBackendErr := backendError(err); isBackendErr {
		return err
	}
	return commitment.Transportf(err, "calling %s after %d attempts", fullMethod, config.Retries+1)
}

// isAlreadyBuilt recognizes AlreadyBuiltCode, and the message of backends
// that predate it.
func isAlreadyBuilt(rpcErr rpc.Error) bool {
	if rpcErr.ErrorCode() == AlreadyBuiltCode {
		return true
	}
	return strings.Contains(strings.ToLower(rpcErr.Error()), "already exists")
}

// Build asks the backend to materialize the snapshot for epoch. A backend that
// reports the snapshot as already built is treated as an acknowledgement.
func (c *Client) Build(ctx context.Context, epoch uint64) error {
	var ack json.RawMessage
	err := c.call(ctx, &ack, buildMethod, hexutil.Uint64(epoch))
	if err == nil {
		log.Info("snapshot build acknowledged", "epoch", epoch)
		return nil
	}
	if rpcErr, ok := backendError(err); ok {
		if isAlreadyBuilt(rpcErr) {
			log.Info("snapshot already built", "epoch", epoch)
			return nil
		}
		return fmt.Errorf("%w: building epoch %d: %v (code %d)", commitment.ErrRejected, epoch, rpcErr.Error(), rpcErr.ErrorCode())
	}
	return err
}

// Fetch returns the decoded snapshot metadata for epoch. A null answer or an
// unlocked snapshot is commitment.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, epoch uint64) (*commitment.Metadata, error) {
	var raw json.RawMessage
	err := c.call(ctx, &raw, metaMethod, hexutil.Uint64(epoch))
	if err != nil {
		if rpcErr, ok := backendError(err); ok {
			return nil, fmt.Errorf("%w: fetching epoch %d: %v (code %d)", commitment.ErrRejected, epoch, rpcErr.Error(), rpcErr.ErrorCode())
		}
		return nil, err
	}
	md, err := DecodeMetadata(raw, &epoch)
	if err != nil {
		return nil, err
	}
	if !md.Locked {
		return nil, fmt.Errorf("%w: epoch %d snapshot is not locked yet", commitment.ErrNotFound, epoch)
	}
	return md, nil
}

// List returns the metadata of every snapshot the backend knows, in backend order.
func (c *Client) List(ctx context.Context) ([]*commitment.Metadata, error) {
	var raws []json.RawMessage
	if err := c.call(ctx, &raws, listMethod); err != nil {
		if rpcErr, ok := backendError(err); ok {
			return nil, fmt.Errorf("%w: listing epochs: %v (code %d)", commitment.ErrRejected, rpcErr.Error(), rpcErr.ErrorCode())
		}
		return nil, err
	}
	result := make([]*commitment.Metadata, 0, len(raws))
	for i, raw := range raws {
		md, err := DecodeMetadata(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		result = append(result, md)
	}
	return result, nil
}
