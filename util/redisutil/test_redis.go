// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package redisutil

import (
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/offchainlabs/epoch-committer/util/testhelpers"
)

// CreateTestRedis returns the URL in TEST_REDIS when set. Otherwise it starts
// an in-memory server stopped at the end of t.
func CreateTestRedis(t *testing.T) string {
	if external := os.Getenv("TEST_REDIS"); external != "" {
		return external
	}
	server, err := miniredis.Run()
	testhelpers.RequireImpl(t, err)
	t.Cleanup(server.Close)
	return "redis://" + server.Addr() + "/0"
}
