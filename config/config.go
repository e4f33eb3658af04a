/*
Package config loads server configuration from a YAML file plus
flag/default overrides.

All knobs have workable defaults; a config file is only needed to change
tiers, partner offer wiring, or queue tuning.
*/
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/projection"
)

// Config is the full server configuration.
type Config struct {
	// Port the HTTP API listens on.
	Port int `yaml:"port"`

	// DBPath is the SQLite database path; ":memory:" for ephemeral runs.
	DBPath string `yaml:"db_path"`

	Queue  Queue  `yaml:"queue"`
	Review Review `yaml:"review"`

	// DedupMode selects how queue dedup tokens are derived:
	// "content" (default) or "random".
	DedupMode string `yaml:"dedup_mode"`

	// Tiers maps cumulative point thresholds to tier names.
	Tiers []projection.Tier `yaml:"tiers"`

	// PartnerOfferNames are the offer system names granted when a
	// partner signup event arrives.
	PartnerOfferNames []string `yaml:"partner_offer_names"`
}

// Queue tunes the in-process broker consumers.
type Queue struct {
	Workers       int `yaml:"workers"`
	MaxDeliveries int `yaml:"max_deliveries"`

	// DedupWindowSeconds bounds how long enqueue dedup tokens are
	// remembered. Zero disables dedup.
	DedupWindowSeconds int `yaml:"dedup_window_seconds"`
}

// Review configures the manual-review gate for direct submissions.
type Review struct {
	// AmountLimit is the amount above which a direct submission is
	// parked for review instead of enqueued. Kept as a string so YAML
	// round-trips it without float drift.
	AmountLimit string `yaml:"amount_limit"`
}

// Limit parses the configured review threshold.
func (r Review) Limit() (decimal.Decimal, error) {
	return decimal.NewFromString(r.AmountLimit)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Port:      8080,
		DBPath:    "loyalty.db",
		DedupMode: "content",
		Queue: Queue{
			Workers:            4,
			MaxDeliveries:      5,
			DedupWindowSeconds: 300,
		},
		Review: Review{
			AmountLimit: "1000",
		},
		Tiers: []projection.Tier{
			{Name: "member", Threshold: 0},
			{Name: "silver", Threshold: 1000},
			{Name: "gold", Threshold: 5000},
			{Name: "platinum", Threshold: 20000},
		},
		PartnerOfferNames: []string{"partner-signup"},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.MaxDeliveries < 0 {
		return fmt.Errorf("max deliveries cannot be negative, got %d", c.Queue.MaxDeliveries)
	}
	switch c.DedupMode {
	case "content", "random":
	default:
		return fmt.Errorf("unknown dedup mode %q", c.DedupMode)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	if _, err := c.Review.Limit(); err != nil {
		return fmt.Errorf("invalid review amount limit %q: %w", c.Review.AmountLimit, err)
	}
	return nil
}

// Dedup maps the configured mode string onto the enqueue dedup mode.
func (c Config) Dedup() ledger.DedupMode {
	if c.DedupMode == "random" {
		return ledger.DedupRandom
	}
	return ledger.DedupContent
}
