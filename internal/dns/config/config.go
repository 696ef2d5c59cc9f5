// Package config loads resolver configuration from defaults, an optional
// properties file, and DNS_-prefixed environment variables, in that order of
// precedence (later wins). The loaded value is immutable and passed into
// components at construction.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// defaultPropertiesFile is loaded when present; override the path with
// DNS_CONFIG_FILE.
const defaultPropertiesFile = "application.properties"

// AppConfig holds all configuration consumed by the resolver.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Server   ServerConfig   `koanf:"server"`
	Resolver ResolverConfig `koanf:"resolver"`
	Cache    CacheConfig    `koanf:"cache"`
}

// ServerConfig configures the UDP listener.
type ServerConfig struct {
	// Port is the network port the DNS server will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`

	Bind BindConfig `koanf:"bind"`

	// Workers is the size of the request worker pool.
	Workers int `koanf:"workers" validate:"required,gte=1"`
}

// BindConfig holds the listener bind address.
type BindConfig struct {
	Address string `koanf:"address" validate:"required,ip"`
}

// ResolverConfig configures the iterative resolution engine.
type ResolverConfig struct {
	Root RootConfig `koanf:"root"`

	// TimeoutMs is the per-hop UDP query timeout in milliseconds.
	TimeoutMs int `koanf:"timeout_ms" validate:"required,gte=1"`

	// MaxDepth bounds referral hops and CNAME/NS sub-resolutions.
	MaxDepth int `koanf:"max_depth" validate:"required,gte=1"`
}

// RootConfig holds the root nameserver addresses resolution starts from.
type RootConfig struct {
	Servers []string `koanf:"servers" validate:"required,min=1,dive,ip"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// MaxEntries is the hard entry-count bound.
	MaxEntries int `koanf:"max_entries" validate:"required,gte=1"`

	// MaxMemoryBytes is the approximate weight bound in octets.
	MaxMemoryBytes int64 `koanf:"max_memory_bytes" validate:"required,gte=1"`

	// MinTTLSeconds is the floor below which record sets are not cached.
	MinTTLSeconds int `koanf:"min_ttl_seconds" validate:"gte=0"`

	// StatsIntervalSeconds is the period of background cache statistics
	// logging; 0 disables it.
	StatsIntervalSeconds int `koanf:"stats_interval_seconds" validate:"gte=0"`
}

// Timeout returns the per-hop timeout as a duration.
func (c ResolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MinTTL returns the cache TTL floor as a duration.
func (c CacheConfig) MinTTL() time.Duration {
	return time.Duration(c.MinTTLSeconds) * time.Second
}

// StatsInterval returns the stats logging period as a duration.
func (c CacheConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

// DEFAULT_APP_CONFIG defines the default settings for the resolver: the 13
// canonical root server addresses, per-hop timeout, recursion depth, and
// cache bounds.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Server: ServerConfig{
		Port:    53,
		Bind:    BindConfig{Address: "0.0.0.0"},
		Workers: 8,
	},
	Resolver: ResolverConfig{
		Root: RootConfig{Servers: []string{
			"198.41.0.4",     // a.root-servers.net
			"199.9.14.201",   // b.root-servers.net
			"192.33.4.12",    // c.root-servers.net
			"199.7.91.13",    // d.root-servers.net
			"192.203.230.10", // e.root-servers.net
			"192.5.5.241",    // f.root-servers.net
			"192.112.36.4",   // g.root-servers.net
			"198.97.190.53",  // h.root-servers.net
			"192.36.148.17",  // i.root-servers.net
			"192.58.128.30",  // j.root-servers.net
			"193.0.14.129",   // k.root-servers.net
			"199.7.83.42",    // l.root-servers.net
			"202.12.27.33",   // m.root-servers.net
		}},
		TimeoutMs: 5000,
		MaxDepth:  16,
	},
	Cache: CacheConfig{
		MaxEntries:           10000,
		MaxMemoryBytes:       10485760, // 10 MiB
		MinTTLSeconds:        10,
		StatsIntervalSeconds: 300,
	},
}

// envKeyAliases maps DNS_-prefixed environment variable names (prefix
// stripped) to configuration key paths. The mapping is explicit because key
// paths mix dots and underscores (e.g. resolver.timeout_ms).
var envKeyAliases = map[string]string{
	"ENV":                          "env",
	"LOG_LEVEL":                    "log_level",
	"SERVER_PORT":                  "server.port",
	"SERVER_BIND_ADDRESS":          "server.bind.address",
	"SERVER_WORKERS":               "server.workers",
	"RESOLVER_ROOT_SERVERS":        "resolver.root.servers",
	"RESOLVER_TIMEOUT_MS":          "resolver.timeout_ms",
	"RESOLVER_MAX_DEPTH":           "resolver.max_depth",
	"CACHE_MAX_ENTRIES":            "cache.max_entries",
	"CACHE_MAX_MEMORY_BYTES":       "cache.max_memory_bytes",
	"CACHE_MIN_TTL_SECONDS":        "cache.min_ttl_seconds",
	"CACHE_STATS_INTERVAL_SECONDS": "cache.stats_interval_seconds",
}

// defaultLoader loads default values using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads the optional properties file. A missing file is not an
// error; a present but unreadable one is.
var fileLoader = func(k *koanf.Koanf) error {
	path := os.Getenv("DNS_CONFIG_FILE")
	if path == "" {
		path = defaultPropertiesFile
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// split dotted keys (resolver.max_depth) into nested key paths
	return k.Load(file.Provider(path), dotenv.ParserEnv("", ".", func(s string) string { return s }))
}

// envLoader loads environment variables with the prefix "DNS_", mapping
// variable names to key paths and splitting comma/space separated lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, "DNS_")
			if path, ok := envKeyAliases[key]; ok {
				key = path
			} else {
				key = strings.ToLower(key)
			}
			value = strings.TrimSpace(value)

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}
			return key, value
		},
	}), nil)
}

// Load assembles the configuration from defaults, the optional properties
// file, and the environment, then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading properties file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
