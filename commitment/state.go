// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package commitment

// State is the lifecycle position of one epoch within a single commit run.
type State uint8

const (
	Uncommitted State = iota
	SnapshotRequested
	SnapshotReady
	Published
	Failed
)

func (s State) String() string {
	switch s {
	case Uncommitted:
		return "uncommitted"
	case SnapshotRequested:
		return "snapshot-requested"
	case SnapshotReady:
		return "snapshot-ready"
	case Published:
		return "published"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Published || s == Failed
}
