package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SimilarityThreshold != 0.8 {
		t.Fatalf("similarity_threshold = %v, want 0.8", cfg.SimilarityThreshold)
	}
	if cfg.PromotionThreshold != 3 || cfg.MinSampleSize != 10 {
		t.Fatalf("promotion=%d min_sample=%d, want 3/10", cfg.PromotionThreshold, cfg.MinSampleSize)
	}
	if cfg.DropThreshold != 0.10 || cfg.CooldownMinutes != 60 || cfg.WindowHours != 24 {
		t.Fatalf("drop=%v cooldown=%d window=%d", cfg.DropThreshold, cfg.CooldownMinutes, cfg.WindowHours)
	}
	if cfg.AnalysisSchedule != "0 2 * * *" || cfg.MonitoringSchedule != "0 * * * *" {
		t.Fatalf("schedules = %q / %q", cfg.AnalysisSchedule, cfg.MonitoringSchedule)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("location = %v, want UTC", cfg.Location)
	}
	if cfg.Cooldown() != time.Hour || cfg.RunBudget() != 10*time.Minute {
		t.Fatalf("cooldown=%v budget=%v", cfg.Cooldown(), cfg.RunBudget())
	}
	if cfg.SlackConfigured() || cfg.AnthropicConfigured() {
		t.Fatal("nothing is configured in an empty setup")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
db_path: /data/loop.db
slack_bot_token: xoxb-test
slack_channel_id: C123
slack_stakeholders:
  - U1
  - U2
similarity_threshold: 0.9
drop_threshold: 0.2
timezone: Europe/Berlin
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/data/loop.db" {
		t.Fatalf("db_path = %q", cfg.DBPath)
	}
	if !cfg.SlackConfigured() || len(cfg.SlackStakeholders) != 2 {
		t.Fatalf("slack config not loaded: %+v", cfg)
	}
	if cfg.SimilarityThreshold != 0.9 || cfg.DropThreshold != 0.2 {
		t.Fatalf("thresholds = %v / %v", cfg.SimilarityThreshold, cfg.DropThreshold)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		t.Fatalf("location = %v", cfg.Location)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "db_path: /from/yaml.db\nmin_sample_size: 5\n")
	t.Setenv("DB_PATH", "/from/env.db")
	t.Setenv("MIN_SAMPLE_SIZE", "25")
	t.Setenv("SLACK_STAKEHOLDERS", "U7, U8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Fatalf("db_path = %q, env must win", cfg.DBPath)
	}
	if cfg.MinSampleSize != 25 {
		t.Fatalf("min_sample_size = %d, want 25", cfg.MinSampleSize)
	}
	if len(cfg.SlackStakeholders) != 2 || cfg.SlackStakeholders[0] != "U7" {
		t.Fatalf("stakeholders = %v", cfg.SlackStakeholders)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"similarity above one", "similarity_threshold: 1.5\n"},
		{"drop above one", "drop_threshold: 2\n"},
		{"negative cooldown", "cooldown_minutes: -5\n"},
		{"slack token without channel", "slack_bot_token: xoxb-test\n"},
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"malformed yaml", "db_path: [unclosed\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, c.body)); err == nil {
				t.Fatalf("expected %s to be rejected", c.name)
			}
		})
	}
}

func TestBadEnvValueIsRejected(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("non-numeric BATCH_SIZE must fail")
	}
}
