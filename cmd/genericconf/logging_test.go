// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestInitLogMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	config := DefaultFileLoggingConfig
	config.Enable = true
	config.Compress = false
	config.File = "committer.log"
	resolve := func(p string) string { return filepath.Join(dir, p) }

	var console bytes.Buffer
	require.NoError(t, InitLog(&console, "json", "info", &config, resolve))
	log.Info("epoch committed", "epoch", 12)
	log.Debug("hidden below info")
	require.NoError(t, CloseFileLogger())
	log.Info("after close")

	written, err := os.ReadFile(filepath.Join(dir, "committer.log"))
	require.NoError(t, err)
	require.Contains(t, string(written), `"msg":"epoch committed"`)
	require.NotContains(t, string(written), "hidden below info")
	require.NotContains(t, string(written), "after close")
	require.Contains(t, console.String(), `"epoch":12`)
	require.Contains(t, console.String(), "after close")
}

func TestInitLogRejectsUnknownSettings(t *testing.T) {
	config := DefaultFileLoggingConfig
	var console bytes.Buffer
	require.Error(t, InitLog(&console, "xml", "info", &config, DefaultPathResolver("")))
	require.Error(t, InitLog(&console, "plaintext", "loud", &config, DefaultPathResolver("")))
}

func TestFileLoggingRejectsNegativeSizes(t *testing.T) {
	for name, mutate := range map[string]func(*FileLoggingConfig){
		"buf-size":    func(c *FileLoggingConfig) { c.BufSize = -1 },
		"max-size":    func(c *FileLoggingConfig) { c.MaxSize = -1 },
		"max-age":     func(c *FileLoggingConfig) { c.MaxAge = -1 },
		"max-backups": func(c *FileLoggingConfig) { c.MaxBackups = -1 },
	} {
		config := DefaultFileLoggingConfig
		config.Enable = true
		mutate(&config)
		require.Error(t, config.Validate(), name)
		require.Error(t, InitLog(io.Discard, "plaintext", "info", &config, DefaultPathResolver(t.TempDir())), name)
	}
	config := DefaultFileLoggingConfig
	config.BufSize = 0
	require.NoError(t, config.Validate())
}

func TestS3ConfigValidate(t *testing.T) {
	require.NoError(t, (&S3Config{}).Validate())
	require.Error(t, (&S3Config{Bucket: "configs", Region: "us-east-1"}).Validate())
	require.NoError(t, (&S3Config{Bucket: "configs", Region: "us-east-1", ObjectKey: "committer.json"}).Validate())
}
