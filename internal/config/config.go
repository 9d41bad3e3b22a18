// Package config loads service configuration from a YAML file with
// environment variable overrides. Env vars always win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath   string `yaml:"db_path"`
	HTTPAddr string `yaml:"http_addr"`

	SlackBotToken     string   `yaml:"slack_bot_token"`
	SlackChannelID    string   `yaml:"slack_channel_id"`
	SlackStakeholders []string `yaml:"slack_stakeholders"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	PromotionThreshold  int     `yaml:"promotion_threshold"`
	DropThreshold       float64 `yaml:"drop_threshold"`
	MinSampleSize       int     `yaml:"min_sample_size"`
	CooldownMinutes     int     `yaml:"cooldown_minutes"`
	WindowHours         int     `yaml:"window_hours"`
	BatchSize           int     `yaml:"batch_size"`
	SampleBufferCap     int     `yaml:"sample_buffer_cap"`
	WorkerLimit         int     `yaml:"worker_limit"`
	RunBudgetMinutes    int     `yaml:"run_budget_minutes"`

	AnalysisSchedule   string `yaml:"analysis_schedule"`
	MonitoringSchedule string `yaml:"monitoring_schedule"`
	Timezone           string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

// Load reads the YAML file at path (a missing file is fine, env-only setups
// are supported), applies env overrides and defaults, then validates.
func Load(path string) (Config, error) {
	var cfg Config

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		path = envPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// Env vars override YAML values.
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
	envOverride(&cfg.AnalysisSchedule, "ANALYSIS_SCHEDULE")
	envOverride(&cfg.MonitoringSchedule, "MONITORING_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if err := envOverrideFloat(&cfg.SimilarityThreshold, "SIMILARITY_THRESHOLD"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.PromotionThreshold, "PROMOTION_THRESHOLD"); err != nil {
		return Config{}, err
	}
	if err := envOverrideFloat(&cfg.DropThreshold, "DROP_THRESHOLD"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.MinSampleSize, "MIN_SAMPLE_SIZE"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.CooldownMinutes, "COOLDOWN_MINUTES"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.WindowHours, "WINDOW_HOURS"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.BatchSize, "BATCH_SIZE"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.SampleBufferCap, "SAMPLE_BUFFER_CAP"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.WorkerLimit, "WORKER_LIMIT"); err != nil {
		return Config{}, err
	}
	if err := envOverrideInt(&cfg.RunBudgetMinutes, "RUN_BUDGET_MINUTES"); err != nil {
		return Config{}, err
	}
	if names := os.Getenv("SLACK_STAKEHOLDERS"); names != "" {
		cfg.SlackStakeholders = nil
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				cfg.SlackStakeholders = append(cfg.SlackStakeholders, name)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./ruleloop.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.8
	}
	if c.PromotionThreshold == 0 {
		c.PromotionThreshold = 3
	}
	if c.DropThreshold == 0 {
		c.DropThreshold = 0.10
	}
	if c.MinSampleSize == 0 {
		c.MinSampleSize = 10
	}
	if c.CooldownMinutes == 0 {
		c.CooldownMinutes = 60
	}
	if c.WindowHours == 0 {
		c.WindowHours = 24
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.SampleBufferCap == 0 {
		c.SampleBufferCap = 20
	}
	if c.WorkerLimit == 0 {
		c.WorkerLimit = 4
	}
	if c.RunBudgetMinutes == 0 {
		c.RunBudgetMinutes = 10
	}
	if c.AnalysisSchedule == "" {
		c.AnalysisSchedule = "0 2 * * *"
	}
	if c.MonitoringSchedule == "" {
		c.MonitoringSchedule = "0 * * * *"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

func (c Config) validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid similarity_threshold %v: must be between 0 and 1", c.SimilarityThreshold)
	}
	if c.DropThreshold <= 0 || c.DropThreshold > 1 {
		return fmt.Errorf("invalid drop_threshold %v: must be between 0 and 1", c.DropThreshold)
	}
	if c.PromotionThreshold < 1 {
		return fmt.Errorf("invalid promotion_threshold %d: must be >= 1", c.PromotionThreshold)
	}
	if c.MinSampleSize < 1 {
		return fmt.Errorf("invalid min_sample_size %d: must be >= 1", c.MinSampleSize)
	}
	if c.CooldownMinutes < 0 {
		return fmt.Errorf("invalid cooldown_minutes %d: must be >= 0", c.CooldownMinutes)
	}
	if c.WindowHours < 1 {
		return fmt.Errorf("invalid window_hours %d: must be >= 1", c.WindowHours)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch_size %d: must be >= 1", c.BatchSize)
	}
	if c.SampleBufferCap < 1 {
		return fmt.Errorf("invalid sample_buffer_cap %d: must be >= 1", c.SampleBufferCap)
	}
	if c.SlackBotToken != "" && c.SlackChannelID == "" {
		return fmt.Errorf("slack_channel_id is required when slack_bot_token is set")
	}
	return nil
}

// SlackConfigured reports whether alerting goes to Slack rather than the
// no-op gateway.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) AnthropicConfigured() bool {
	return c.AnthropicAPIKey != ""
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c Config) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetMinutes) * time.Minute
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
