// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package confighelpers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/epoch-committer/cmd/genericconf"
)

const s3DownloadTimeout = time.Minute

// ErrUsage marks errors caused by the command line itself, before any
// configuration was applied.
var ErrUsage = errors.New("usage error")

func usageError(err error) error {
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

func applyFlagOverrides(f *flag.FlagSet, k *koanf.Koanf) error {
	// Explicitly set flags win over files and environment. With k passed in,
	// posflag skips unchanged flags whose keys are already present.
	return k.Load(posflag.Provider(f, ".", k), nil)
}

func loadS3Variables(k *koanf.Koanf) error {
	bucket := k.String("conf.s3.bucket")
	if bucket == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3DownloadTimeout)
	defer cancel()
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(k.String("conf.s3.region")),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			k.String("conf.s3.access-key"),
			k.String("conf.s3.secret-key"),
			"",
		)),
	)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	downloader := manager.NewDownloader(s3.NewFromConfig(cfg))
	buffer := manager.NewWriteAtBuffer(nil)
	objectKey := k.String("conf.s3.object-key")
	if _, err := downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("downloading config s3://%s/%s: %w", bucket, objectKey, err)
	}
	return k.Load(rawbytes.Provider(buffer.Bytes()), json.Parser())
}

func envKeyMapper(prefix string) func(string) string {
	return func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, prefix))
		s = strings.ReplaceAll(s, "__", "-")
		return strings.ReplaceAll(s, "_", ".")
	}
}

// BeginCommonParse parses args into f and layers configuration in the order
// flag defaults, config files, S3 object, environment, --conf.string and finally
// explicitly set flags. Positional arguments are left in f.Args().
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := ParseFlags(f, args); err != nil {
		return nil, err
	}
	return LoadCommonConfig(f)
}

// ParseFlags parses args into f without loading any configuration source.
// Errors other than flag.ErrHelp are usage errors.
func ParseFlags(f *flag.FlagSet, args []string) error {
	if err := f.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError(err)
	}
	return nil
}

// LoadCommonConfig is the second half of BeginCommonParse, for callers that
// check positional arguments before files, S3 or the environment are read.
func LoadCommonConfig(f *flag.FlagSet) (*koanf.Koanf, error) {
	var k = koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	for _, configFile := range k.Strings("conf.file") {
		if err := k.Load(file.Provider(configFile), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading local config file %s: %w", configFile, err)
		}
	}

	if err := loadS3Variables(k); err != nil {
		return nil, fmt.Errorf("error loading S3 settings: %w", err)
	}

	if envPrefix := k.String("conf.env-prefix"); envPrefix != "" {
		prefix := strings.ToUpper(envPrefix) + "_"
		if err := k.Load(env.Provider(prefix, ".", envKeyMapper(prefix)), nil); err != nil {
			return nil, fmt.Errorf("error loading environment variables: %w", err)
		}
	}

	if configString := k.String("conf.string"); configString != "" {
		if err := k.Load(rawbytes.Provider([]byte(configString)), json.Parser()); err != nil {
			return nil, fmt.Errorf("error loading --conf.string: %w", err)
		}
	}

	if err := applyFlagOverrides(f, k); err != nil {
		return nil, err
	}
	return k, nil
}

// EndCommonParse decodes k into config, rejecting keys config does not declare.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Metadata:         nil,
		Result:           config,
		WeaklyTypedInput: true,
	}
	err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{DecoderConfig: &decoderConfig})
	if err != nil {
		return err
	}
	return nil
}

// DumpConfig overwrites sensitive fields so the effective config can be printed.
func DumpConfig(k *koanf.Koanf, extraOverrideFields map[string]interface{}) error {
	overrideFields := map[string]interface{}{
		"conf.dump":          false,
		"conf.s3.access-key": "",
		"conf.s3.secret-key": "",
		"wallet.password":    genericconf.PASSWORD_NOT_SET,
		"wallet.private-key": "",
	}
	for key, value := range extraOverrideFields {
		overrideFields[key] = value
	}
	return k.Load(confmap.Provider(overrideFields, "."), nil)
}

// MarshalConfig renders k as JSON.
func MarshalConfig(k *koanf.Koanf) ([]byte, error) {
	return k.Marshal(json.Parser())
}

func GetVersion() (string, string) {
	vcsRevision := "development"
	vcsTime := "development"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				vcsRevision = setting.Value
			case "vcs.time":
				vcsTime = setting.Value
			}
		}
	}
	return vcsRevision, vcsTime
}
