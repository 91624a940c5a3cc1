// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package testhelpers holds fixtures shared by the committer's tests.
package testhelpers

import (
	"context"
	"crypto/rand"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// RequireImpl fails t if err is set.
func RequireImpl(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatal(printables, err)
	}
}

func randomBytes(out []byte) {
	if _, err := rand.Read(out); err != nil {
		panic(err)
	}
}

// RandomHash is a fresh snapshot root or tx hash.
func RandomHash() common.Hash {
	var hash common.Hash
	randomBytes(hash[:])
	return hash
}

func RandomAddress() common.Address {
	var address common.Address
	randomBytes(address[:])
	return address
}

// messageLog is shared by a LogHandler and the handlers derived from it.
type messageLog struct {
	mutex    sync.Mutex
	messages []string
}

// LogHandler prints records to stderr and remembers their messages.
type LogHandler struct {
	t       *testing.T
	seen    *messageLog
	printer slog.Handler
}

func (h *LogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	h.seen.mutex.Lock()
	h.seen.messages = append(h.seen.messages, record.Message)
	h.seen.mutex.Unlock()
	return h.printer.Handle(ctx, record)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{t: h.t, seen: h.seen, printer: h.printer.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{t: h.t, seen: h.seen, printer: h.printer.WithGroup(name)}
}

// WasLogged reports whether any message so far matches pattern.
func (h *LogHandler) WasLogged(pattern string) bool {
	re, err := regexp.Compile(pattern)
	RequireImpl(h.t, err)
	h.seen.mutex.Lock()
	defer h.seen.mutex.Unlock()
	for _, message := range h.seen.messages {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// InitTestLog routes the default logger through a recording handler at level
// until the test ends.
func InitTestLog(t *testing.T, level slog.Level) *LogHandler {
	handler := &LogHandler{
		t:       t,
		seen:    &messageLog{},
		printer: log.NewTerminalHandler(os.Stderr, false),
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	previous := log.Root()
	log.SetDefault(log.NewLogger(glogger))
	t.Cleanup(func() { log.SetDefault(previous) })
	return handler
}
