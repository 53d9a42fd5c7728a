package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode     string `yaml:"mode"`
	Exchange string `yaml:"exchange"`
	Session  struct {
		TickSeconds  int    `yaml:"tick_seconds"`
		MaxHoldings  int    `yaml:"max_holdings"`
		StartupBatch int    `yaml:"startup_batch"`
		CloseCutoff  string `yaml:"close_cutoff"` // "HH:MM", JST
	} `yaml:"session"`
	Order struct {
		AckTimeoutSeconds  int     `yaml:"ack_timeout_seconds"`
		FillTimeoutSeconds int     `yaml:"fill_timeout_seconds"`
		PartialFillMin     float64 `yaml:"partial_fill_min"`
	} `yaml:"order"`
	Risk struct {
		DailyLossLimit float64 `yaml:"daily_loss_limit"` // negative
		MaxTrades      int     `yaml:"max_trades"`
	} `yaml:"risk"`
	Exit struct {
		TrailTriggerPct  float64 `yaml:"trail_trigger_pct"`
		TrailDropPct     float64 `yaml:"trail_drop_pct"`
		EmergencyDropPct float64 `yaml:"emergency_drop_pct"`
		MaxHoldMinutes   int     `yaml:"max_hold_minutes"`
	} `yaml:"exit"`
	Broker struct {
		BaseURL string `yaml:"base_url"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"broker"`
	Store struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`
	Planner struct {
		CandidatesFile string `yaml:"candidates_file"`
	} `yaml:"planner"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Order.PartialFillMin < 0 || c.Order.PartialFillMin > 1 {
		return fmt.Errorf("order.partial_fill_min must be between 0 and 1, got %.2f", c.Order.PartialFillMin)
	}
	if c.Risk.DailyLossLimit > 0 {
		return fmt.Errorf("risk.daily_loss_limit must be zero or negative, got %.2f", c.Risk.DailyLossLimit)
	}
	if _, err := time.Parse("15:04", c.Session.CloseCutoff); err != nil {
		return fmt.Errorf("session.close_cutoff must be 'HH:MM', got '%s'", c.Session.CloseCutoff)
	}
	if c.Mode == "LIVE" && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required in LIVE mode")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Session.TickSeconds == 0 {
		c.Session.TickSeconds = 30
	}
	if c.Session.MaxHoldings == 0 {
		c.Session.MaxHoldings = 3
	}
	if c.Session.StartupBatch == 0 {
		c.Session.StartupBatch = 3
	}
	if c.Session.CloseCutoff == "" {
		c.Session.CloseCutoff = "14:45"
	}
	if c.Order.AckTimeoutSeconds == 0 {
		c.Order.AckTimeoutSeconds = 10
	}
	if c.Order.FillTimeoutSeconds == 0 {
		c.Order.FillTimeoutSeconds = 30
	}
	if c.Order.PartialFillMin == 0 {
		c.Order.PartialFillMin = 0.70
	}
	if c.Risk.MaxTrades == 0 {
		c.Risk.MaxTrades = 10
	}
	if c.Exit.TrailTriggerPct == 0 {
		c.Exit.TrailTriggerPct = 10.0
	}
	if c.Exit.TrailDropPct == 0 {
		c.Exit.TrailDropPct = 5.0
	}
	if c.Exit.EmergencyDropPct == 0 {
		c.Exit.EmergencyDropPct = 5.0
	}
	if c.Exit.MaxHoldMinutes == 0 {
		c.Exit.MaxHoldMinutes = 180
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "trades.db"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

// AckTimeout returns the acknowledgement wait budget as a duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Order.AckTimeoutSeconds) * time.Second
}

// FillTimeout returns the fill wait budget as a duration.
func (c *Config) FillTimeout() time.Duration {
	return time.Duration(c.Order.FillTimeoutSeconds) * time.Second
}

// TickInterval returns the scheduler tick period as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Session.TickSeconds) * time.Second
}

// MaxHold returns the position holding-time ceiling as a duration.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.Exit.MaxHoldMinutes) * time.Minute
}
