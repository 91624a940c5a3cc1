// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package journal records what each run learned about an epoch so that later
// runs can detect a snapshot whose contents changed between builds.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	flag "github.com/spf13/pflag"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/offchainlabs/epoch-committer/commitment"
)

// ErrConcurrentUpdate means the stored entry is not the one Put was told to
// replace.
var ErrConcurrentUpdate = errors.New("journal entry updated concurrently")

type Config struct {
	Enable    bool   `koanf:"enable"`
	Directory string `koanf:"directory"`
}

var DefaultConfig = Config{
	Enable:    true,
	Directory: "epoch-journal",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultConfig.Enable, "record per-epoch progress and refuse metadata that changed since an earlier run")
	f.String(prefix+".directory", DefaultConfig.Directory, "leveldb directory of the journal, relative to the working directory (empty keeps it in memory for this run only, which disables the check against earlier runs)")
}

// Entry is the journal's view of one epoch.
type Entry struct {
	Epoch       uint64
	HasMetadata bool
	Root        common.Hash
	LeavesCount uint64
	State       uint8
	Phase       string
	Err         string
	TxHash      common.Hash
	UpdatedAt   uint64 // unix milliseconds
}

func (e *Entry) Metadata() *commitment.Metadata {
	if e == nil || !e.HasMetadata {
		return nil
	}
	return &commitment.Metadata{
		Epoch:       e.Epoch,
		Root:        e.Root,
		LeavesCount: e.LeavesCount,
		Locked:      true,
	}
}

func (e *Entry) CommitmentState() commitment.State {
	return commitment.State(e.State)
}

var entryCountKey = []byte(".entries")

const entryPrefix = "e"

// entryKey sorts entries by epoch.
func entryKey(epoch uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", entryPrefix, epoch))
}

// Journal stores one RLP encoded Entry per epoch in leveldb.
type Journal struct {
	lock sync.Mutex
	db   *leveldb.DB
}

// Open opens the journal described by config, in memory when no directory
// is given.
func Open(config *Config) (*Journal, error) {
	if config.Directory == "" {
		return NewMemory()
	}
	db, err := leveldb.OpenFile(config.Directory, nil)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", config.Directory, err)
	}
	return &Journal{db: db}, nil
}

func NewMemory() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func decodeEntry(data []byte) (*Entry, error) {
	entry := new(Entry)
	if err := rlp.DecodeBytes(data, entry); err != nil {
		return nil, fmt.Errorf("decoding journal entry: %w", err)
	}
	return entry, nil
}

func (j *Journal) read(key []byte) ([]byte, bool, error) {
	data, err := j.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return data, true, nil
}

// Get returns the entry for epoch, or nil if the journal has none.
func (j *Journal) Get(_ context.Context, epoch uint64) (*Entry, error) {
	data, found, err := j.read(entryKey(epoch))
	if err != nil || !found {
		return nil, err
	}
	return decodeEntry(data)
}

// Put replaces prev with next for next.Epoch. prev must equal what is stored,
// nil meaning no entry, otherwise ErrConcurrentUpdate is returned.
func (j *Journal) Put(_ context.Context, prev *Entry, next *Entry) error {
	j.lock.Lock()
	defer j.lock.Unlock()

	key := entryKey(next.Epoch)
	stored, found, err := j.read(key)
	if err != nil {
		return err
	}
	if found != (prev != nil) {
		return fmt.Errorf("%w: epoch %d entry present %v, caller expected %v", ErrConcurrentUpdate, next.Epoch, found, prev != nil)
	}
	if found {
		expected, err := rlp.EncodeToBytes(prev)
		if err != nil {
			return fmt.Errorf("encoding previous entry: %w", err)
		}
		if !bytes.Equal(stored, expected) {
			return fmt.Errorf("%w: epoch %d entry changed since it was read", ErrConcurrentUpdate, next.Epoch)
		}
	}
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(key, encoded)
	if !found {
		count, err := j.count()
		if err != nil {
			return err
		}
		batch.Put(entryCountKey, []byte(strconv.Itoa(count+1)))
	}
	return j.db.Write(batch, nil)
}

func (j *Journal) count() (int, error) {
	data, found, err := j.read(entryCountKey)
	if err != nil || !found {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// Length is the number of epochs with an entry.
func (j *Journal) Length(_ context.Context) (int, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.count()
}

// Entries returns up to maxResults entries starting at epoch from, in epoch order.
func (j *Journal) Entries(_ context.Context, from uint64, maxResults int) ([]*Entry, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	var entries []*Entry
	iter := j.db.NewIterator(&util.Range{Start: entryKey(from), Limit: []byte(entryPrefix + ":")}, nil)
	defer iter.Release()
	for len(entries) < maxResults && iter.Next() {
		entry, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, iter.Error()
}
