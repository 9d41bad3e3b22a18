// Package learning clusters field corrections into deduplicated patterns and
// promotes repeated ones for human review.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ruleloop/internal/alert"
	"ruleloop/internal/domain"
	"ruleloop/internal/similarity"
)

// CorrectionStore feeds the analyzer and records watermarks.
type CorrectionStore interface {
	UnanalyzedCorrections(limit int) ([]domain.Correction, error)
	LinkCorrections(ids []int64, patternID int64, at time.Time) error
}

// PatternStore is the upsert-by-identity-hash persistence boundary. The
// analyzer stays store-agnostic; tests run it against an in-memory fake.
type PatternStore interface {
	FindPatternByHash(hash string) (domain.Pattern, error)
	CreatePattern(p domain.Pattern) (int64, error)
	UpdatePattern(p domain.Pattern) error
	PromoteDetected(threshold int) ([]domain.Pattern, error)
}

// RunStore records the audit trail of analyzer executions.
type RunStore interface {
	InsertAnalysisRun(r domain.AnalysisRun) error
}

type Config struct {
	BatchSize           int     // max corrections per run
	SimilarityThreshold float64 // composite similarity to join a group
	PromotionThreshold  int     // occurrences to become CANDIDATE
	SampleCap           int     // bounded sample buffer capacity
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.8
	}
	if c.PromotionThreshold <= 0 {
		c.PromotionThreshold = 3
	}
	if c.SampleCap <= 0 {
		c.SampleCap = domain.DefaultSampleCap
	}
	return c
}

// Analyzer is the clustering & promotion engine. One Run consumes a bounded
// batch of unwatermarked corrections; re-running is idempotent because
// consumed records are watermarked and pattern upserts key on the identity
// hash.
type Analyzer struct {
	cfg         Config
	corrections CorrectionStore
	patterns    PatternStore
	runs        RunStore
	gateway     alert.Gateway
	digester    alert.Digester // optional
	now         func() time.Time
}

func NewAnalyzer(cfg Config, corrections CorrectionStore, patterns PatternStore, runs RunStore, gateway alert.Gateway, digester alert.Digester) *Analyzer {
	if gateway == nil {
		gateway = alert.NopGateway{}
	}
	return &Analyzer{
		cfg:         cfg.withDefaults(),
		corrections: corrections,
		patterns:    patterns,
		runs:        runs,
		gateway:     gateway,
		digester:    digester,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Result summarizes one analyzer run, with per-scope errors accumulated
// instead of aborting the batch.
type Result struct {
	RunID               string
	CorrectionsAnalyzed int
	PatternsCreated     int
	PatternsUpdated     int
	Promotions          int
	ScopeErrors         []string
}

// Run executes one full analysis pass: fetch batch, cluster per scope,
// upsert patterns, watermark corrections, promotion sweep, audit record,
// candidate alert.
func (a *Analyzer) Run(ctx context.Context) (Result, error) {
	started := a.now()
	result := Result{RunID: uuid.NewString()}

	batch, err := a.corrections.UnanalyzedCorrections(a.cfg.BatchSize)
	if err != nil {
		a.recordRun(result, started, domain.RunFailed, fmt.Sprintf("fetch corrections: %v", err))
		return result, fmt.Errorf("fetch corrections: %w", err)
	}
	log.Printf("analysis run=%s batch=%d", result.RunID, len(batch))

	// Scopes are independent; one bad scope must not starve the rest.
	for _, scope := range partitionByScope(batch) {
		if err := ctx.Err(); err != nil {
			result.ScopeErrors = append(result.ScopeErrors, fmt.Sprintf("run budget exhausted: %v", err))
			break
		}
		if err := a.analyzeScope(scope, &result); err != nil {
			log.Printf("analysis run=%s scope=%s error: %v", result.RunID, scope[0].ScopeKey(), err)
			result.ScopeErrors = append(result.ScopeErrors, fmt.Sprintf("%s: %v", scope[0].ScopeKey(), err))
		}
	}

	// Promotion sweeps the whole table, not just patterns touched this run:
	// a pattern can cross the threshold via records from an earlier run.
	promoted, err := a.patterns.PromoteDetected(a.cfg.PromotionThreshold)
	if err != nil {
		result.ScopeErrors = append(result.ScopeErrors, fmt.Sprintf("promotion sweep: %v", err))
	}
	result.Promotions = len(promoted)

	a.recordRun(result, started, domain.RunCompleted, strings.Join(result.ScopeErrors, "; "))

	if len(promoted) > 0 {
		a.notifyCandidates(ctx, promoted)
	}

	log.Printf("analysis run=%s analyzed=%d created=%d updated=%d promoted=%d errors=%d",
		result.RunID, result.CorrectionsAnalyzed, result.PatternsCreated,
		result.PatternsUpdated, result.Promotions, len(result.ScopeErrors))
	return result, nil
}

// partitionByScope groups the batch by (forwarder, field), preserving
// oldest-first order inside each scope and a stable scope order across runs.
func partitionByScope(batch []domain.Correction) [][]domain.Correction {
	byScope := make(map[string][]domain.Correction)
	for _, c := range batch {
		key := c.ScopeKey()
		byScope[key] = append(byScope[key], c)
	}
	keys := make([]string, 0, len(byScope))
	for k := range byScope {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]domain.Correction, 0, len(keys))
	for _, k := range keys {
		out = append(out, byScope[k])
	}
	return out
}

// analyzeScope clusters one scope's records and upserts the resulting
// patterns. Every consumed record is watermarked, including malformed ones,
// so nothing is retried forever.
func (a *Analyzer) analyzeScope(records []domain.Correction, result *Result) error {
	now := a.now()

	var usable, malformed []domain.Correction
	for _, c := range records {
		if strings.TrimSpace(c.CorrectedValue) == "" {
			malformed = append(malformed, c)
			continue
		}
		usable = append(usable, c)
	}

	for _, group := range cluster(usable, a.cfg.SimilarityThreshold) {
		patternID, created, err := a.upsertGroup(group, now)
		if err != nil {
			return err
		}
		if created {
			result.PatternsCreated++
		} else {
			result.PatternsUpdated++
		}
		if err := a.corrections.LinkCorrections(idsOf(group), patternID, now); err != nil {
			return fmt.Errorf("watermark group: %w", err)
		}
		result.CorrectionsAnalyzed += len(group)
	}

	if len(malformed) > 0 {
		if err := a.corrections.LinkCorrections(idsOf(malformed), 0, now); err != nil {
			return fmt.Errorf("watermark malformed: %w", err)
		}
		result.CorrectionsAnalyzed += len(malformed)
	}
	return nil
}

// cluster greedily single-links records in order: each unclustered record
// seeds a group and absorbs every later unclustered record similar enough to
// the seed. O(n²) per scope, bounded by the batch cap; the goal is catching
// an obviously-repeated fix, not optimal clustering.
func cluster(records []domain.Correction, threshold float64) [][]domain.Correction {
	var groups [][]domain.Correction
	used := make([]bool, len(records))

	for i := range records {
		if used[i] {
			continue
		}
		used[i] = true
		group := []domain.Correction{records[i]}
		seed := records[i]
		for j := i + 1; j < len(records); j++ {
			if used[j] {
				continue
			}
			sim := similarity.Composite(
				seed.OriginalValue, seed.CorrectedValue,
				records[j].OriginalValue, records[j].CorrectedValue,
			)
			if sim >= threshold {
				used[j] = true
				group = append(group, records[j])
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// representative picks the group's most frequent normalized value pair,
// ties broken by first occurrence, and returns the raw form first seen.
func representative(group []domain.Correction) (original, corrected string) {
	type entry struct {
		count int
		first int
		orig  string
		corr  string
	}
	counts := make(map[string]*entry)
	for i, c := range group {
		key := domain.NormalizeValue(c.OriginalValue) + "\x00" + domain.NormalizeValue(c.CorrectedValue)
		if e, ok := counts[key]; ok {
			e.count++
		} else {
			counts[key] = &entry{count: 1, first: i, orig: c.OriginalValue, corr: c.CorrectedValue}
		}
	}
	var best *entry
	for _, e := range counts {
		if best == nil || e.count > best.count || (e.count == best.count && e.first < best.first) {
			best = e
		}
	}
	return best.orig, best.corr
}

// upsertGroup creates or merges the pattern for one cluster, keyed by the
// identity hash. Returns the pattern id and whether a new row was created.
func (a *Analyzer) upsertGroup(group []domain.Correction, now time.Time) (int64, bool, error) {
	scope := group[0]
	orig, corr := representative(group)
	hash := domain.IdentityHash(scope.ForwarderID, scope.FieldName, orig, corr)

	p, err := a.patterns.FindPatternByHash(hash)
	switch {
	case errors.Is(err, domain.ErrPatternNotFound):
		p = domain.Pattern{
			ForwarderID:     scope.ForwarderID,
			FieldName:       scope.FieldName,
			IdentityHash:    hash,
			OriginalValue:   orig,
			CorrectedValue:  corr,
			OccurrenceCount: len(group),
			Status:          domain.PatternDetected,
			Confidence:      confidence(len(group)),
			Samples:         domain.NewSampleBuffer(a.cfg.SampleCap),
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		addSamples(&p, group)
		id, err := a.patterns.CreatePattern(p)
		if err != nil {
			return 0, false, fmt.Errorf("create pattern: %w", err)
		}
		return id, true, nil
	case err != nil:
		return 0, false, fmt.Errorf("find pattern: %w", err)
	}

	p.OccurrenceCount += len(group)
	p.LastSeenAt = now
	if c := confidence(p.OccurrenceCount); c > p.Confidence {
		p.Confidence = c
	}
	addSamples(&p, group)
	if err := a.patterns.UpdatePattern(p); err != nil {
		return 0, false, fmt.Errorf("update pattern: %w", err)
	}
	return p.ID, false, nil
}

// confidence is monotonic in sample size and capped at 1.
func confidence(occurrences int) float64 {
	c := float64(occurrences) / 10
	if c > 1 {
		c = 1
	}
	return c
}

func addSamples(p *domain.Pattern, group []domain.Correction) {
	for _, c := range group {
		p.Samples.Add(domain.Sample{
			Original:  c.OriginalValue,
			Corrected: c.CorrectedValue,
			SourceID:  c.ID,
		})
	}
}

func idsOf(records []domain.Correction) []int64 {
	ids := make([]int64, len(records))
	for i, c := range records {
		ids[i] = c.ID
	}
	return ids
}

func (a *Analyzer) recordRun(result Result, started time.Time, status domain.RunStatus, errMsg string) {
	finished := a.now()
	run := domain.AnalysisRun{
		ID:                  result.RunID,
		StartedAt:           started,
		FinishedAt:          &finished,
		Status:              status,
		CorrectionsAnalyzed: result.CorrectionsAnalyzed,
		PatternsCreated:     result.PatternsCreated,
		PatternsUpdated:     result.PatternsUpdated,
		Promotions:          result.Promotions,
		ErrorMessage:        errMsg,
	}
	if err := a.runs.InsertAnalysisRun(run); err != nil {
		log.Printf("analysis run=%s audit record error: %v", result.RunID, err)
	}
}

// notifyCandidates raises the promotion alert, with an optional model-written
// digest. Both steps are best-effort.
func (a *Analyzer) notifyCandidates(ctx context.Context, promoted []domain.Pattern) {
	alertPayload := alert.CandidatesAlert{Count: len(promoted), Patterns: promoted}
	if a.digester != nil {
		digest, err := a.digester.Digest(ctx, promoted)
		if err != nil {
			log.Printf("candidate digest error: %v", err)
		} else {
			alertPayload.Digest = digest
		}
	}
	if err := a.gateway.CandidatesAvailable(ctx, alertPayload); err != nil {
		log.Printf("candidate alert error: %v", err)
	}
}
