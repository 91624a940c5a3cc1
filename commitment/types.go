// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package commitment holds the data contract shared by the snapshot backend,
// the distributor contract and the orchestrator that moves an epoch between them.
package commitment

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RootLength is the digest length produced by the backend's tree hash.
const RootLength = common.HashLength

// Metadata is the backend's description of a built epoch snapshot.
// Only Epoch, Root and LeavesCount take part in equality.
type Metadata struct {
	Epoch       uint64
	Root        common.Hash
	LeavesCount uint64
	Locked      bool
	CreatedAt   uint64
}

// Record is the distributor contract's stored state for one epoch.
type Record struct {
	Epoch       uint64
	Root        common.Hash
	LeavesCount uint64
}

func (m *Metadata) Record() *Record {
	return &Record{
		Epoch:       m.Epoch,
		Root:        m.Root,
		LeavesCount: m.LeavesCount,
	}
}

func (m *Metadata) String() string {
	return fmt.Sprintf("epoch %d root %v leaves %d", m.Epoch, m.Root, m.LeavesCount)
}

// Matches reports whether the record commits exactly the metadata's tuple.
func (r *Record) Matches(m *Metadata) bool {
	if r == nil || m == nil {
		return false
	}
	return r.Epoch == m.Epoch && r.Root == m.Root && r.LeavesCount == m.LeavesCount
}

func (r *Record) String() string {
	return fmt.Sprintf("epoch %d root %v leaves %d", r.Epoch, r.Root, r.LeavesCount)
}

// RootFromBytes converts a wire digest into a Hash, rejecting any length other
// than RootLength instead of padding or truncating.
func RootFromBytes(b []byte) (common.Hash, error) {
	if len(b) != RootLength {
		return common.Hash{}, Malformedf("root digest has %d bytes, want %d", len(b), RootLength)
	}
	return common.BytesToHash(b), nil
}
