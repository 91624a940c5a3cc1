// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
)

// ConfConfig says where configuration comes from besides the command line.
type ConfConfig struct {
	Dump      bool     `koanf:"dump"`
	EnvPrefix string   `koanf:"env-prefix"`
	File      []string `koanf:"file"`
	S3        S3Config `koanf:"s3"`
	String    string   `koanf:"string"`
}

var ConfConfigDefault = ConfConfig{}

func ConfConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".dump", ConfConfigDefault.Dump, "print the resolved configuration as JSON and exit without committing")
	f.String(prefix+".env-prefix", ConfConfigDefault.EnvPrefix, "read settings from environment variables starting with this prefix (e.g. EPOCH_COMMIT)")
	f.StringSlice(prefix+".file", ConfConfigDefault.File, "JSON configuration files, later ones override earlier ones")
	S3ConfigAddOptions(prefix+".s3", f)
	f.String(prefix+".string", ConfConfigDefault.String, "inline JSON configuration applied after files and environment")
}

// S3Config locates a JSON configuration object shared by a fleet of
// committers. An empty bucket disables it.
type S3Config struct {
	AccessKey string `koanf:"access-key"`
	Bucket    string `koanf:"bucket"`
	ObjectKey string `koanf:"object-key"`
	Region    string `koanf:"region"`
	SecretKey string `koanf:"secret-key"`
}

var DefaultS3Config = S3Config{}

func S3ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".bucket", DefaultS3Config.Bucket, "S3 bucket holding the committer configuration")
	f.String(prefix+".object-key", DefaultS3Config.ObjectKey, "key of the configuration object inside the bucket")
	f.String(prefix+".region", DefaultS3Config.Region, "region of the configuration bucket")
	f.String(prefix+".access-key", DefaultS3Config.AccessKey, "access key for the configuration bucket")
	f.String(prefix+".secret-key", DefaultS3Config.SecretKey, "secret key for the configuration bucket")
}

func (c *S3Config) Enabled() bool {
	return c.Bucket != ""
}

func (c *S3Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.ObjectKey == "" {
		return fmt.Errorf("conf.s3.object-key is required with bucket %q", c.Bucket)
	}
	if c.Region == "" {
		return fmt.Errorf("conf.s3.region is required with bucket %q", c.Bucket)
	}
	return nil
}

var logTypes = map[string]func(io.Writer) slog.Handler{
	"plaintext": func(w io.Writer) slog.Handler { return log.NewTerminalHandler(w, false) },
	"json":      func(w io.Writer) slog.Handler { return log.JSONHandler(w) },
}

// HandlerFromLogType returns a handler formatting records as logType.
func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	newHandler, ok := logTypes[logType]
	if !ok {
		return nil, errors.New("invalid log type")
	}
	return newHandler(output), nil
}

var logLevels = map[string]slog.Level{
	"trace": log.LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"crit":  log.LevelCrit,
}

// ToSlogLevel parses a level name, ignoring case. Unknown names yield info
// together with an error.
func ToSlogLevel(str string) (slog.Level, error) {
	level, ok := logLevels[strings.ToLower(str)]
	if !ok {
		return log.LevelInfo, fmt.Errorf("invalid log-level %q", str)
	}
	return level, nil
}

// FileLoggingConfig mirrors the console log into a rotating file. Sizes are
// in megabytes and ages in days, zero meaning unlimited.
type FileLoggingConfig struct {
	Enable     bool   `koanf:"enable"`
	File       string `koanf:"file"`
	MaxSize    int    `koanf:"max-size"`
	MaxAge     int    `koanf:"max-age"`
	MaxBackups int    `koanf:"max-backups"`
	LocalTime  bool   `koanf:"local-time"`
	Compress   bool   `koanf:"compress"`
	BufSize    int    `koanf:"buf-size"`
}

var DefaultFileLoggingConfig = FileLoggingConfig{
	File:       "epoch-committer.log",
	MaxSize:    5,
	MaxBackups: 20,
	Compress:   true,
	BufSize:    512,
}

func FileLoggingConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultFileLoggingConfig.Enable, "also write the log to a rotating file")
	f.String(prefix+".file", DefaultFileLoggingConfig.File, "log file, relative paths resolve against the working directory")
	f.Int(prefix+".max-size", DefaultFileLoggingConfig.MaxSize, "rotate the log file once it grows past this many megabytes (0 = never)")
	f.Int(prefix+".max-age", DefaultFileLoggingConfig.MaxAge, "delete rotated files older than this many days (0 = keep)")
	f.Int(prefix+".max-backups", DefaultFileLoggingConfig.MaxBackups, "how many rotated files to keep (0 = all)")
	f.Bool(prefix+".local-time", DefaultFileLoggingConfig.LocalTime, "stamp rotated file names with local time instead of UTC")
	f.Bool(prefix+".compress", DefaultFileLoggingConfig.Compress, "gzip rotated log files")
	f.Int(prefix+".buf-size", DefaultFileLoggingConfig.BufSize, "records held for the file writer before new ones are dropped")
}

func (c *FileLoggingConfig) Validate() error {
	if c.BufSize < 0 {
		return fmt.Errorf("file-logging.buf-size %d is negative", c.BufSize)
	}
	if c.MaxSize < 0 || c.MaxAge < 0 || c.MaxBackups < 0 {
		return errors.New("file-logging max-size, max-age and max-backups must not be negative")
	}
	if c.Enable && c.File == "" {
		return errors.New("file-logging.file is required when file logging is enabled")
	}
	return nil
}

type MetricsServerConfig struct {
	Addr           string        `koanf:"addr"`
	Port           int           `koanf:"port"`
	UpdateInterval time.Duration `koanf:"update-interval"`
}

var MetricsServerConfigDefault = MetricsServerConfig{
	Addr:           "127.0.0.1",
	Port:           6070,
	UpdateInterval: 3 * time.Second,
}

func MetricsServerAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".addr", MetricsServerConfigDefault.Addr, "address the commit metrics are served on")
	f.Int(prefix+".port", MetricsServerConfigDefault.Port, "port the commit metrics are served on")
	f.Duration(prefix+".update-interval", MetricsServerConfigDefault.UpdateInterval, "how often runtime metrics are sampled")
}
