package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Config represents the persistent observers configuration stored as
// config.toml in the .observers/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Docling   DoclingConfig   `toml:"docling"`
	Datasets  DatasetsConfig  `toml:"datasets"`
	Argilla   ArgillaConfig   `toml:"argilla"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// StorageConfig selects the local record store.
type StorageConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend     string `toml:"backend,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ProxyConfig holds recording proxy settings.
type ProxyConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Upstream   string `toml:"upstream,omitempty"`
	Listen     string `toml:"listen,omitempty"`
	ClientName string `toml:"client_name,omitempty"`
}

// DoclingConfig holds the docling-serve endpoint.
type DoclingConfig struct {
	Target string `toml:"target,omitempty"`
}

// DatasetsConfig holds dataset hub push settings. The token is read from
// HF_TOKEN and never stored.
type DatasetsConfig struct {
	Org     string `toml:"org,omitempty"`
	Repo    string `toml:"repo,omitempty"`
	Every   uint   `toml:"every,omitempty"`
	Private bool   `toml:"private,omitempty"`
}

// ArgillaConfig holds annotation platform settings. The API key is read
// from ARGILLA_API_KEY and never stored.
type ArgillaConfig struct {
	APIURL    string `toml:"api_url,omitempty"`
	Workspace string `toml:"workspace,omitempty"`
}

// KafkaConfig holds event stream settings.
type KafkaConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// TelemetryConfig overrides the OTEL_EXPORTER_OTLP_* environment.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	Insecure bool   `toml:"insecure,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.backend":      stringKey(func(c *Config) *string { return &c.Storage.Backend }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"proxy.provider":       stringKey(func(c *Config) *string { return &c.Proxy.Provider }),
	"proxy.upstream":       stringKey(func(c *Config) *string { return &c.Proxy.Upstream }),
	"proxy.listen":         stringKey(func(c *Config) *string { return &c.Proxy.Listen }),
	"proxy.client_name":    stringKey(func(c *Config) *string { return &c.Proxy.ClientName }),
	"docling.target":       stringKey(func(c *Config) *string { return &c.Docling.Target }),
	"datasets.org":         stringKey(func(c *Config) *string { return &c.Datasets.Org }),
	"datasets.repo":        stringKey(func(c *Config) *string { return &c.Datasets.Repo }),
	"datasets.every": {
		get: func(c *Config) string {
			if c.Datasets.Every == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Datasets.Every), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for datasets.every: %w", err)
			}
			c.Datasets.Every = uint(n)
			return nil
		},
	},
	"datasets.private":  boolKey("datasets.private", func(c *Config) *bool { return &c.Datasets.Private }),
	"argilla.api_url":   stringKey(func(c *Config) *string { return &c.Argilla.APIURL }),
	"argilla.workspace": stringKey(func(c *Config) *string { return &c.Argilla.Workspace }),
	"kafka.brokers": {
		get: func(c *Config) string { return strings.Join(c.Kafka.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Kafka.Brokers = lo.Compact(lo.Map(strings.Split(v, ","), func(b string, _ int) string {
				return strings.TrimSpace(b)
			}))
			return nil
		},
	},
	"kafka.topic":        stringKey(func(c *Config) *string { return &c.Kafka.Topic }),
	"telemetry.endpoint": stringKey(func(c *Config) *string { return &c.Telemetry.Endpoint }),
	"telemetry.insecure": boolKey("telemetry.insecure", func(c *Config) *bool { return &c.Telemetry.Insecure }),
}
