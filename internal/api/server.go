// Package api exposes the read-mostly HTTP surface: pattern review,
// rollback history, accuracy reports, and run diagnostics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"

	"ruleloop/internal/accuracy"
	"ruleloop/internal/domain"
)

// PatternStore serves the pattern review endpoints.
type PatternStore interface {
	ListPatterns(status domain.PatternStatus, forwarderID string, limit, offset int) ([]domain.Pattern, error)
	GetPattern(id int64) (domain.Pattern, error)
	UpdatePatternStatus(id int64, status domain.PatternStatus) error
	CorrectionsByPattern(patternID int64) ([]domain.Correction, error)
}

// HistoryStore serves rollback and run history.
type HistoryStore interface {
	RollbacksByRule(ruleID int64, trigger domain.RollbackTrigger, limit int) ([]domain.RollbackEvent, error)
	RollbackCountsByTrigger(since time.Time) (map[domain.RollbackTrigger]int, error)
	RecentAnalysisRuns(limit int) ([]domain.AnalysisRun, error)
}

// AccuracyReporter computes windowed accuracy on demand.
type AccuracyReporter interface {
	Calculate(ruleID int64, version, windowHours int) (accuracy.Report, error)
	Trend(ruleID int64, version, buckets int) ([]accuracy.Report, error)
}

type RuleReader interface {
	GetRule(id int64) (domain.Rule, error)
}

// Server is the HTTP API. Accuracy reads are cached briefly: the underlying
// aggregation scans application records and dashboards poll.
type Server struct {
	echo     *echo.Echo
	patterns PatternStore
	history  HistoryStore
	reporter AccuracyReporter
	rules    RuleReader
	cache    *gocache.Cache
}

func NewServer(patterns PatternStore, history HistoryStore, reporter AccuracyReporter, rules RuleReader) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Printf("http %s %s status=%d in %s",
				c.Request().Method, c.Request().RequestURI, c.Response().Status,
				time.Since(start).Round(time.Millisecond))
			return err
		}
	})

	s := &Server{
		echo:     e,
		patterns: patterns,
		history:  history,
		reporter: reporter,
		rules:    rules,
		cache:    gocache.New(30*time.Second, time.Minute),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/patterns", s.handleListPatterns)
	s.echo.GET("/patterns/:id", s.handleGetPattern)
	s.echo.PATCH("/patterns/:id/status", s.handlePatternStatus)
	s.echo.GET("/rules/:id/rollbacks", s.handleRollbacks)
	s.echo.GET("/rollbacks/stats", s.handleRollbackStats)
	s.echo.GET("/rules/:id/accuracy", s.handleAccuracy)
	s.echo.GET("/rules/:id/accuracy/trend", s.handleAccuracyTrend)
	s.echo.GET("/runs", s.handleRuns)
}

func (s *Server) Start(addr string) error {
	log.Printf("http listening on %s", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }

type patternResponse struct {
	ID              int64     `json:"id"`
	ForwarderID     string    `json:"forwarder_id"`
	FieldName       string    `json:"field_name"`
	OriginalValue   string    `json:"original_value"`
	CorrectedValue  string    `json:"corrected_value"`
	OccurrenceCount int       `json:"occurrence_count"`
	Status          string    `json:"status"`
	Confidence      float64   `json:"confidence"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

func toPatternResponse(p domain.Pattern) patternResponse {
	return patternResponse{
		ID:              p.ID,
		ForwarderID:     p.ForwarderID,
		FieldName:       p.FieldName,
		OriginalValue:   p.OriginalValue,
		CorrectedValue:  p.CorrectedValue,
		OccurrenceCount: p.OccurrenceCount,
		Status:          string(p.Status),
		Confidence:      p.Confidence,
		FirstSeenAt:     p.FirstSeenAt,
		LastSeenAt:      p.LastSeenAt,
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPatterns(c echo.Context) error {
	status := domain.PatternStatus(c.QueryParam("status"))
	if status != "" && !validPatternStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
	}
	limit := intParam(c, "limit", 50)
	offset := intParam(c, "offset", 0)
	if limit < 1 || limit > 500 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
	}

	patterns, err := s.patterns.ListPatterns(status, c.QueryParam("forwarder_id"), limit, offset)
	if err != nil {
		return internalError(err)
	}
	out := make([]patternResponse, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, toPatternResponse(p))
	}
	return c.JSON(http.StatusOK, out)
}

type patternDetailResponse struct {
	patternResponse
	Samples []domain.Sample  `json:"samples"`
	History []correctionItem `json:"corrections"`
}

type correctionItem struct {
	ID             int64     `json:"id"`
	OriginalValue  string    `json:"original_value"`
	CorrectedValue string    `json:"corrected_value"`
	CorrectedAt    time.Time `json:"corrected_at"`
}

func (s *Server) handleGetPattern(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := s.patterns.GetPattern(id)
	if errors.Is(err, domain.ErrPatternNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "pattern not found")
	}
	if err != nil {
		return internalError(err)
	}
	corrections, err := s.patterns.CorrectionsByPattern(id)
	if err != nil {
		return internalError(err)
	}

	resp := patternDetailResponse{
		patternResponse: toPatternResponse(p),
		Samples:         p.Samples.All(),
		History:         make([]correctionItem, 0, len(corrections)),
	}
	for _, cr := range corrections {
		resp.History = append(resp.History, correctionItem{
			ID:             cr.ID,
			OriginalValue:  cr.OriginalValue,
			CorrectedValue: cr.CorrectedValue,
			CorrectedAt:    cr.CorrectedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// handlePatternStatus moves a pattern through the review workflow. Only
// review outcomes are accepted here; DETECTED and CANDIDATE are owned by
// the analyzer.
func (s *Server) handlePatternStatus(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	status := domain.PatternStatus(req.Status)
	switch status {
	case domain.PatternSuggested, domain.PatternProcessed, domain.PatternIgnored:
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("status must be one of SUGGESTED, PROCESSED, IGNORED; got %q", req.Status))
	}

	if err := s.patterns.UpdatePatternStatus(id, status); err != nil {
		if errors.Is(err, domain.ErrPatternNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "pattern not found")
		}
		return internalError(err)
	}
	p, err := s.patterns.GetPattern(id)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, toPatternResponse(p))
}

type rollbackItem struct {
	ID             int64     `json:"id"`
	FromVersion    int       `json:"from_version"`
	ToVersion      int       `json:"to_version"`
	Trigger        string    `json:"trigger"`
	Reason         string    `json:"reason"`
	AccuracyBefore *float64  `json:"accuracy_before"`
	AccuracyAfter  *float64  `json:"accuracy_after"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Server) handleRollbacks(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	trigger := domain.RollbackTrigger(c.QueryParam("trigger"))
	switch trigger {
	case "", domain.TriggerAuto, domain.TriggerManual, domain.TriggerEmergency:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown trigger %q", trigger))
	}

	events, err := s.history.RollbacksByRule(id, trigger, intParam(c, "limit", 50))
	if err != nil {
		return internalError(err)
	}
	out := make([]rollbackItem, 0, len(events))
	for _, e := range events {
		out = append(out, rollbackItem{
			ID:             e.ID,
			FromVersion:    e.FromVersion,
			ToVersion:      e.ToVersion,
			Trigger:        string(e.Trigger),
			Reason:         e.Reason,
			AccuracyBefore: e.AccuracyBefore,
			AccuracyAfter:  e.AccuracyAfter,
			CreatedAt:      e.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type rollbackStatsResponse struct {
	SinceHours int            `json:"since_hours"`
	ByTrigger  map[string]int `json:"by_trigger"`
	Total      int            `json:"total"`
}

func (s *Server) handleRollbackStats(c echo.Context) error {
	sinceHours := intParam(c, "since_hours", 168)
	if sinceHours < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "since_hours must be positive")
	}
	counts, err := s.history.RollbackCountsByTrigger(time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour))
	if err != nil {
		return internalError(err)
	}
	resp := rollbackStatsResponse{SinceHours: sinceHours, ByTrigger: make(map[string]int, len(counts))}
	for trigger, n := range counts {
		resp.ByTrigger[string(trigger)] = n
		resp.Total += n
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAccuracy(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	version, windowHours, err := s.resolveVersion(c, id)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("accuracy/%d/%d/%d", id, version, windowHours)
	if cached, ok := s.cache.Get(key); ok {
		return c.JSON(http.StatusOK, cached)
	}
	report, err := s.reporter.Calculate(id, version, windowHours)
	if err != nil {
		return internalError(err)
	}
	s.cache.SetDefault(key, report)
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleAccuracyTrend(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	version, _, err := s.resolveVersion(c, id)
	if err != nil {
		return err
	}
	buckets := intParam(c, "buckets", 7)
	if buckets < 1 || buckets > 30 {
		return echo.NewHTTPError(http.StatusBadRequest, "buckets must be between 1 and 30")
	}

	key := fmt.Sprintf("trend/%d/%d/%d", id, version, buckets)
	if cached, ok := s.cache.Get(key); ok {
		return c.JSON(http.StatusOK, cached)
	}
	trend, err := s.reporter.Trend(id, version, buckets)
	if err != nil {
		return internalError(err)
	}
	s.cache.SetDefault(key, trend)
	return c.JSON(http.StatusOK, trend)
}

// resolveVersion reads ?version, defaulting to the rule's current version.
func (s *Server) resolveVersion(c echo.Context, ruleID int64) (version, windowHours int, err error) {
	windowHours = intParam(c, "window_hours", 0)
	if v := c.QueryParam("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil || version < 1 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
		}
		return version, windowHours, nil
	}
	rule, err := s.rules.GetRule(ruleID)
	if errors.Is(err, domain.ErrRuleNotFound) {
		return 0, 0, echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	if err != nil {
		return 0, 0, internalError(err)
	}
	return rule.CurrentVersion, windowHours, nil
}

type runItem struct {
	ID                  string     `json:"id"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at"`
	Status              string     `json:"status"`
	CorrectionsAnalyzed int        `json:"corrections_analyzed"`
	PatternsCreated     int        `json:"patterns_created"`
	PatternsUpdated     int        `json:"patterns_updated"`
	Promotions          int        `json:"promotions"`
	ErrorMessage        string     `json:"error_message,omitempty"`
}

func (s *Server) handleRuns(c echo.Context) error {
	runs, err := s.history.RecentAnalysisRuns(intParam(c, "limit", 20))
	if err != nil {
		return internalError(err)
	}
	out := make([]runItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, runItem{
			ID:                  r.ID,
			StartedAt:           r.StartedAt,
			FinishedAt:          r.FinishedAt,
			Status:              string(r.Status),
			CorrectionsAnalyzed: r.CorrectionsAnalyzed,
			PatternsCreated:     r.PatternsCreated,
			PatternsUpdated:     r.PatternsUpdated,
			Promotions:          r.Promotions,
			ErrorMessage:        r.ErrorMessage,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func validPatternStatus(s domain.PatternStatus) bool {
	switch s {
	case domain.PatternDetected, domain.PatternCandidate, domain.PatternSuggested,
		domain.PatternProcessed, domain.PatternIgnored:
		return true
	}
	return false
}

func internalError(err error) error {
	log.Printf("http handler error: %v", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

func intParam(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
