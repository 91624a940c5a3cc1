// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package snapshotclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ccoveille/go-safecast"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/offchainlabs/epoch-committer/commitment"
)

// wireMetadata mirrors the backend's JSON object. Pointer fields distinguish
// an absent field from its zero value.
type wireMetadata struct {
	Epoch       *hexutil.Uint64 `json:"epoch"`
	Root        *hexutil.Bytes  `json:"root"`
	LeavesCount json.RawMessage `json:"leaves_count"`
	Locked      *bool           `json:"locked"`
	CreatedAt   *hexutil.Uint64 `json:"created_at"`
}

func errNotFound(epoch uint64) error {
	return fmt.Errorf("%w: backend has no snapshot for epoch %d", commitment.ErrNotFound, epoch)
}

// decodeLeavesCount accepts a hex quantity string or a JSON integer. Negative,
// fractional and out of range values are rejected.
func decodeLeavesCount(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, commitment.Malformedf("leaves_count missing")
	}
	if raw[0] == '"' {
		var q hexutil.Big
		if err := json.Unmarshal(raw, &q); err != nil {
			return 0, commitment.Malformedf("leaves_count %s: %v", raw, err)
		}
		b := (*big.Int)(&q)
		if !b.IsUint64() {
			return 0, commitment.Malformedf("leaves_count %s out of range", raw)
		}
		return b.Uint64(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var num json.Number
	if err := dec.Decode(&num); err != nil {
		return 0, commitment.Malformedf("leaves_count %s is not a number", raw)
	}
	if strings.ContainsAny(num.String(), ".eE") {
		return 0, commitment.Malformedf("leaves_count %s is not an integer", num)
	}
	signed, err := num.Int64()
	if err != nil {
		var unsigned big.Int
		if _, ok := unsigned.SetString(num.String(), 10); ok && unsigned.IsUint64() {
			return unsigned.Uint64(), nil
		}
		return 0, commitment.Malformedf("leaves_count %s out of range", num)
	}
	count, err := safecast.ToUint64(signed)
	if err != nil {
		return 0, commitment.Malformedf("leaves_count %d: %v", signed, err)
	}
	return count, nil
}

// DecodeMetadata validates and converts one backend metadata object. When
// wantEpoch is set the reported epoch must equal it. A JSON null decodes to
// commitment.ErrNotFound.
func DecodeMetadata(raw json.RawMessage, wantEpoch *uint64) (*commitment.Metadata, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		if wantEpoch != nil {
			return nil, errNotFound(*wantEpoch)
		}
		return nil, commitment.Malformedf("empty metadata entry")
	}
	var wire wireMetadata
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, commitment.Malformedf("decoding metadata: %v", err)
	}
	if wire.Epoch == nil {
		return nil, commitment.Malformedf("epoch missing")
	}
	epoch := uint64(*wire.Epoch)
	if wantEpoch != nil && epoch != *wantEpoch {
		return nil, commitment.Malformedf("backend answered for epoch %d, requested %d", epoch, *wantEpoch)
	}
	if wire.Root == nil {
		return nil, commitment.Malformedf("epoch %d: root missing", epoch)
	}
	root, err := commitment.RootFromBytes(*wire.Root)
	if err != nil {
		return nil, err
	}
	leaves, err := decodeLeavesCount(wire.LeavesCount)
	if err != nil {
		return nil, err
	}
	md := &commitment.Metadata{
		Epoch:       epoch,
		Root:        root,
		LeavesCount: leaves,
		Locked:      true,
	}
	if wire.Locked != nil {
		md.Locked = *wire.Locked
	}
	if wire.CreatedAt != nil {
		md.CreatedAt = uint64(*wire.CreatedAt)
	}
	return md, nil
}
