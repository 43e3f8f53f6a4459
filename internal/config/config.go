// Package config loads the relay's static configuration. Everything
// here is read once at startup; a malformed file is fatal before any
// stream is opened.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imagesof/relay/internal/destination"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "3m" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Platform access.
	UserAgent    string   `yaml:"user_agent"`
	Token        string   `yaml:"token,omitempty"`
	Listing      string   `yaml:"listing,omitempty"`
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	// Global filter.
	NSFWOK     bool     `yaml:"nsfw_ok"`
	Domains    []string `yaml:"domains"`
	Extensions []string `yaml:"extensions"`

	// Master blacklists: wiki pages on the master subreddit, one
	// identifier per line behind a fixed 3-character prefix.
	MasterSubreddit   string `yaml:"master_subreddit"`
	UserBlacklistPage string `yaml:"user_blacklist_page"`
	SubBlacklistPage  string `yaml:"subreddit_blacklist_page"`

	Destinations []destination.Spec `yaml:"destinations"`

	Recency  RecencyConfig  `yaml:"recency,omitempty"`
	DocStore DocStoreConfig `yaml:"docstore,omitempty"`
	Stream   StreamConfig   `yaml:"stream,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`

	Backoff     Duration `yaml:"backoff,omitempty"`
	DryRun      bool     `yaml:"dry_run,omitempty"`
	MetricsAddr string   `yaml:"metrics_addr,omitempty"`
}

type RecencyConfig struct {
	Store    string   `yaml:"store,omitempty"` // memory (default), redis, noop
	Capacity int      `yaml:"capacity,omitempty"`
	RedisURL string   `yaml:"redis_url,omitempty"`
	TTL      Duration `yaml:"ttl,omitempty"`
}

type DocStoreConfig struct {
	Type   string `yaml:"type,omitempty"` // wiki (default), s3, memory
	Bucket string `yaml:"bucket,omitempty"`
	Region string `yaml:"region,omitempty"`
}

type StreamConfig struct {
	Backend string `yaml:"backend,omitempty"` // reddit (default), kafka
	Brokers string `yaml:"brokers,omitempty"`
	Topic   string `yaml:"topic,omitempty"`
	Group   string `yaml:"group,omitempty"`
}

type AuditConfig struct {
	Path   string `yaml:"path,omitempty"`
	Buffer int    `yaml:"buffer,omitempty"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listing == "" {
		c.Listing = "all"
	}
	if c.Backoff <= 0 {
		c.Backoff = Duration(3 * time.Minute)
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = 64
	}
	if c.Stream.Backend == "" {
		c.Stream.Backend = "reddit"
	}
}

func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("config: user_agent is required")
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("config: at least one recognized domain is required")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("config: at least one recognized extension is required")
	}
	if c.MasterSubreddit == "" {
		return fmt.Errorf("config: master_subreddit is required")
	}
	if c.UserBlacklistPage == "" || c.SubBlacklistPage == "" {
		return fmt.Errorf("config: master blacklist pages are required")
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("config: at least one destination is required")
	}
	seen := make(map[string]struct{}, len(c.Destinations))
	for _, d := range c.Destinations {
		if d.Name == "" {
			return fmt.Errorf("config: destination with empty name")
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("config: duplicate destination %s", d.Name)
		}
		seen[d.Name] = struct{}{}
		if _, err := d.Rule.Compile(); err != nil {
			return fmt.Errorf("config: destination %s: %w", d.Name, err)
		}
	}
	if c.Stream.Backend == "kafka" && (c.Stream.Brokers == "" || c.Stream.Topic == "") {
		return fmt.Errorf("config: kafka stream backend requires brokers and topic")
	}
	return nil
}
