// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package backendtest runs an in-process snapshot backend speaking the same
// JSON-RPC methods as the real service.
package backendtest

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const Namespace = "snapshot"

// AlreadyBuiltCode answers a build of an existing snapshot.
const AlreadyBuiltCode = -32010

type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return e.msg }
func (e *codedError) ErrorCode() int { return e.code }

type snapshot struct {
	root      []byte
	leaves    uint64
	createdAt uint64
}

type Backend struct {
	mu        sync.Mutex
	planned   map[uint64]*snapshot
	built     map[uint64]*snapshot
	raw       map[uint64]map[string]interface{}
	rejects   map[uint64]string
	notReady  map[uint64]int
	failHTTP  int
	uncoded   bool
	calls     map[string]int
	rpcServer *rpc.Server
}

func New() *Backend {
	return &Backend{
		planned:  make(map[uint64]*snapshot),
		built:    make(map[uint64]*snapshot),
		raw:      make(map[uint64]map[string]interface{}),
		rejects:  make(map[uint64]string),
		notReady: make(map[uint64]int),
		calls:    make(map[string]int),
	}
}

// Plan makes the next build of epoch produce the given root and leaf count.
func (b *Backend) Plan(epoch uint64, root common.Hash, leaves uint64) {
	b.PlanRaw(epoch, root.Bytes(), leaves)
}

// PlanRaw is Plan with an arbitrary length digest.
func (b *Backend) PlanRaw(epoch uint64, root []byte, leaves uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.planned[epoch] = &snapshot{root: common.CopyBytes(root), leaves: leaves}
}

// Put stores an already built and locked snapshot.
func (b *Backend) Put(epoch uint64, root common.Hash, leaves uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built[epoch] = &snapshot{root: root.Bytes(), leaves: leaves, createdAt: uint64(time.Now().UnixNano())}
}

// SetNotReady makes the next n metadata reads of a built epoch report an
// unlocked snapshot.
func (b *Backend) SetNotReady(epoch uint64, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notReady[epoch] = n
}

// SetRawMeta replaces the metadata object served for epoch, bypassing encoding.
func (b *Backend) SetRawMeta(epoch uint64, obj map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw[epoch] = obj
}

// UncodedErrors makes the backend report an existing snapshot by message only.
func (b *Backend) UncodedErrors() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uncoded = true
}

// RejectBuild makes builds of epoch fail with a backend error carrying msg.
func (b *Backend) RejectBuild(epoch uint64, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejects[epoch] = msg
}

// FailRequests answers the next n HTTP requests with 503.
func (b *Backend) FailRequests(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failHTTP = n
}

// Calls returns how many times the named method, without namespace, was served.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail := b.failHTTP > 0
	if fail {
		b.failHTTP--
	}
	b.mu.Unlock()
	if fail {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
		return
	}
	b.rpcServer.ServeHTTP(w, r)
}

// Start serves the backend over HTTP until the test ends and returns its URL.
func (b *Backend) Start(t testing.TB) string {
	t.Helper()
	b.rpcServer = rpc.NewServer()
	if err := b.rpcServer.RegisterName(Namespace, &api{b}); err != nil {
		t.Fatal(err)
	}
	httpServer := httptest.NewServer(b)
	t.Cleanup(func() {
		httpServer.Close()
		b.rpcServer.Stop()
	})
	return httpServer.URL
}

func encode(epoch uint64, s *snapshot, locked bool) map[string]interface{} {
	return map[string]interface{}{
		"epoch":        hexutil.Uint64(epoch),
		"root":         hexutil.Bytes(s.root),
		"leaves_count": hexutil.Uint64(s.leaves),
		"locked":       locked,
		"created_at":   hexutil.Uint64(s.createdAt),
	}
}

type api struct {
	b *Backend
}

func (a *api) BuildEpochSnapshot(epoch hexutil.Uint64) (map[string]interface{}, error) {
	b := a.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["buildEpochSnapshot"]++
	e := uint64(epoch)
	if msg, ok := b.rejects[e]; ok {
		return nil, fmt.Errorf("%s", msg)
	}
	if _, ok := b.built[e]; ok {
		msg := fmt.Sprintf("epoch %d snapshot already exists", e)
		if b.uncoded {
			return nil, errors.New(msg)
		}
		return nil, &codedError{code: AlreadyBuiltCode, msg: "snapshot already built"}
	}
	plan, ok := b.planned[e]
	if !ok {
		return nil, fmt.Errorf("no claimable rewards found for epoch %d", e)
	}
	s := &snapshot{root: plan.root, leaves: plan.leaves, createdAt: uint64(time.Now().UnixNano())}
	b.built[e] = s
	return encode(e, s, b.notReady[e] == 0), nil
}

func (a *api) GetEpochMeta(epoch hexutil.Uint64) (interface{}, error) {
	b := a.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["getEpochMeta"]++
	e := uint64(epoch)
	if obj, ok := b.raw[e]; ok {
		return obj, nil
	}
	s, ok := b.built[e]
	if !ok {
		return nil, nil
	}
	if b.notReady[e] > 0 {
		b.notReady[e]--
		return encode(e, s, false), nil
	}
	return encode(e, s, true), nil
}

func (a *api) ListEpochs() ([]interface{}, error) {
	b := a.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["listEpochs"]++
	epochs := make([]uint64, 0, len(b.built))
	for e := range b.built {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	result := make([]interface{}, 0, len(epochs))
	for _, e := range epochs {
		if obj, ok := b.raw[e]; ok {
			result = append(result, obj)
			continue
		}
		result = append(result, encode(e, b.built[e], b.notReady[e] == 0))
	}
	return result, nil
}
