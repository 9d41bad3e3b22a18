package cli

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"ruleloop/internal/accuracy"
	"ruleloop/internal/alert"
	"ruleloop/internal/config"
	"ruleloop/internal/learning"
	"ruleloop/internal/storage/sqlite"
)

// app holds the wired service graph shared by all commands.
type app struct {
	cfg      config.Config
	db       *sql.DB
	store    *sqlite.Store
	gateway  alert.Gateway
	analyzer *learning.Analyzer
	engine   *accuracy.Engine
}

func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	store := sqlite.NewStore(db, cfg.SampleBufferCap)

	var gateway alert.Gateway = alert.NopGateway{}
	if cfg.SlackConfigured() {
		gateway = alert.NewSlackGateway(slack.New(cfg.SlackBotToken), cfg.SlackChannelID, cfg.SlackStakeholders)
		log.Printf("alerts to slack channel=%s stakeholders=%d", cfg.SlackChannelID, len(cfg.SlackStakeholders))
	} else {
		log.Println("slack not configured, alerts are log-only")
	}

	var digester alert.Digester
	if cfg.AnthropicConfigured() {
		digester = alert.NewAnthropicDigester(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}

	analyzer := learning.NewAnalyzer(learning.Config{
		BatchSize:           cfg.BatchSize,
		SimilarityThreshold: cfg.SimilarityThreshold,
		PromotionThreshold:  cfg.PromotionThreshold,
		SampleCap:           cfg.SampleBufferCap,
	}, store, store, store, gateway, digester)

	engine := accuracy.NewEngine(accuracy.Config{
		WindowHours:   cfg.WindowHours,
		MinSampleSize: cfg.MinSampleSize,
		DropThreshold: cfg.DropThreshold,
		Cooldown:      cfg.Cooldown(),
		WorkerLimit:   cfg.WorkerLimit,
	}, store, store, store, gateway)

	return &app{
		cfg:      cfg,
		db:       db,
		store:    store,
		gateway:  gateway,
		analyzer: analyzer,
		engine:   engine,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Printf("closing database: %v", err)
	}
}
