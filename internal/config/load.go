package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "ENZYME_"

// SetupFlags declares the command-line flags. Flag names mirror koanf keys so
// posflag can merge them over file and environment values.
func SetupFlags() *pflag.FlagSet {
	f := pflag.NewFlagSet("enzyme-sync", pflag.ContinueOnError)
	f.String("config", "", "path to YAML config file")
	f.String("log.level", "info", "log level (debug, info, warn, error)")
	f.String("log.format", "text", "log format (text, json)")
	f.String("api.base_url", "http://localhost:8080", "enzyme API base URL")
	f.String("api.workspace_id", "", "workspace to stream events for")
	f.String("api.access_token", "", "bearer access token")
	f.StringSlice("api.channel_ids", nil, "channels whose messages are kept in sync")
	f.String("stream.probe_addr", "", "host:port dialed to check connectivity (default: check network interfaces)")
	f.String("paging.mode", "cursor", "pagination mode (cursor, offset)")
	f.String("cache.path", "./data/cache.db", "offline cache database path")
	f.Bool("status.enabled", false, "serve the local status endpoint")
	f.Int("status.port", 9090, "local status endpoint port")
	return f
}

// Load merges defaults, the optional YAML file, ENZYME_* environment variables
// and explicitly set flags, in that order, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// ENZYME_API__BASE_URL -> api.base_url
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
