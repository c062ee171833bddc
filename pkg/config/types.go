package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent keepsake configuration stored as
// config.toml in the .keepsake/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Storage    StorageConfig    `toml:"storage"`
	API        APIConfig        `toml:"api"`
	Client     ClientConfig     `toml:"client"`
	LLM        LLMConfig        `toml:"llm"`
	Extraction ExtractionConfig `toml:"extraction"`
	Events     EventsConfig     `toml:"events"`
	Memory     MemoryConfig     `toml:"memory"`
}

// StorageConfig holds fact record store settings.
type StorageConfig struct {
	// Provider selects the store backend: "sqlite", "postgres", or
	// "inmemory".
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresURL string `toml:"postgres_url,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the
// running API server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// LLMConfig holds settings for the extraction and refactor-planning
// model calls.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// ExtractionConfig holds background extraction settings.
type ExtractionConfig struct {
	Enabled bool `toml:"enabled,omitempty"`
	Workers uint `toml:"workers,omitempty"`
}

// EventsConfig holds lifecycle event stream settings.
type EventsConfig struct {
	// Provider selects the eventstream backend: "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of Kafka bootstrap addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// MemoryConfig holds memory engine defaults.
type MemoryConfig struct {
	// DefaultPolicy is the ingestion policy used when a caller doesn't
	// name one: "opaque", "controlled", or "hybrid".
	DefaultPolicy string `toml:"default_policy,omitempty"`

	// ActiveScope is the scope identifier activated at startup.
	ActiveScope string `toml:"active_scope,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_url": {
		get: func(c *Config) string { return c.Storage.PostgresURL },
		set: func(c *Config, v string) error { c.Storage.PostgresURL = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"extraction.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Extraction.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for extraction.enabled: %w", err)
			}
			c.Extraction.Enabled = b
			return nil
		},
	},
	"extraction.workers": {
		get: func(c *Config) string {
			if c.Extraction.Workers == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Extraction.Workers), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for extraction.workers: %w", err)
			}
			c.Extraction.Workers = uint(n)
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"memory.default_policy": {
		get: func(c *Config) string { return c.Memory.DefaultPolicy },
		set: func(c *Config, v string) error { c.Memory.DefaultPolicy = v; return nil },
	},
	"memory.active_scope": {
		get: func(c *Config) string { return c.Memory.ActiveScope },
		set: func(c *Config, v string) error { c.Memory.ActiveScope = v; return nil },
	},
}
