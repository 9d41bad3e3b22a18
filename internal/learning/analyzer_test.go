package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ruleloop/internal/alert"
	"ruleloop/internal/domain"
)

// --- in-memory fakes ---

type fakeCorrectionStore struct {
	records []domain.Correction
}

func (f *fakeCorrectionStore) UnanalyzedCorrections(limit int) ([]domain.Correction, error) {
	var out []domain.Correction
	for _, c := range f.records {
		if c.Class == domain.CorrectionNormal && c.AnalyzedAt == nil {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCorrectionStore) LinkCorrections(ids []int64, patternID int64, at time.Time) error {
	for _, id := range ids {
		for i := range f.records {
			if f.records[i].ID == id {
				t := at
				f.records[i].AnalyzedAt = &t
				if patternID != 0 {
					pid := patternID
					f.records[i].PatternID = &pid
				}
			}
		}
	}
	return nil
}

type fakePatternStore struct {
	byHash   map[string]*domain.Pattern
	nextID   int64
	failHash string // CreatePattern/UpdatePattern fail for this hash
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{byHash: make(map[string]*domain.Pattern)}
}

func (f *fakePatternStore) FindPatternByHash(hash string) (domain.Pattern, error) {
	if p, ok := f.byHash[hash]; ok {
		return *p, nil
	}
	return domain.Pattern{}, domain.ErrPatternNotFound
}

func (f *fakePatternStore) CreatePattern(p domain.Pattern) (int64, error) {
	if p.IdentityHash == f.failHash {
		return 0, fmt.Errorf("store unavailable")
	}
	f.nextID++
	p.ID = f.nextID
	f.byHash[p.IdentityHash] = &p
	return p.ID, nil
}

func (f *fakePatternStore) UpdatePattern(p domain.Pattern) error {
	if p.IdentityHash == f.failHash {
		return fmt.Errorf("store unavailable")
	}
	f.byHash[p.IdentityHash] = &p
	return nil
}

func (f *fakePatternStore) PromoteDetected(threshold int) ([]domain.Pattern, error) {
	var promoted []domain.Pattern
	for _, p := range f.byHash {
		if p.Status == domain.PatternDetected && p.OccurrenceCount >= threshold {
			p.Status = domain.PatternCandidate
			promoted = append(promoted, *p)
		}
	}
	return promoted, nil
}

type fakeRunStore struct {
	runs []domain.AnalysisRun
}

func (f *fakeRunStore) InsertAnalysisRun(r domain.AnalysisRun) error {
	f.runs = append(f.runs, r)
	return nil
}

type recordingGateway struct {
	candidates []alert.CandidatesAlert
}

func (g *recordingGateway) CandidatesAvailable(_ context.Context, a alert.CandidatesAlert) error {
	g.candidates = append(g.candidates, a)
	return nil
}

func (g *recordingGateway) RuleRolledBack(context.Context, alert.RollbackAlert) error { return nil }

// --- helpers ---

func corrections(scope [2]string, pairs ...[2]string) []domain.Correction {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	out := make([]domain.Correction, len(pairs))
	for i, p := range pairs {
		out[i] = domain.Correction{
			ID:             int64(i + 1),
			ForwarderID:    scope[0],
			FieldName:      scope[1],
			OriginalValue:  p[0],
			CorrectedValue: p[1],
			Class:          domain.CorrectionNormal,
			CorrectedAt:    base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func newTestAnalyzer(cs *fakeCorrectionStore, ps *fakePatternStore, rs *fakeRunStore, gw alert.Gateway) *Analyzer {
	return NewAnalyzer(Config{}, cs, ps, rs, gw, nil)
}

// --- tests ---

func TestClusterRepeatedFixIntoOnePattern(t *testing.T) {
	cs := &fakeCorrectionStore{records: corrections(
		[2]string{"DHL", "invoice_number"},
		[2]string{"INV-001", "INV001"},
		[2]string{"INV-002", "INV002"},
		[2]string{"INV-003", "INV003"},
	)}
	ps := newFakePatternStore()
	rs := &fakeRunStore{}
	gw := &recordingGateway{}

	result, err := newTestAnalyzer(cs, ps, rs, gw).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.CorrectionsAnalyzed != 3 || result.PatternsCreated != 1 {
		t.Fatalf("result = %+v, want 3 analyzed / 1 created", result)
	}
	if len(ps.byHash) != 1 {
		t.Fatalf("expected one pattern, got %d", len(ps.byHash))
	}
	var p domain.Pattern
	for _, v := range ps.byHash {
		p = *v
	}
	if p.OccurrenceCount != 3 {
		t.Fatalf("occurrence count = %d, want 3", p.OccurrenceCount)
	}
	if p.OriginalValue != "INV-001" || p.CorrectedValue != "INV001" {
		t.Fatalf("representative = (%q, %q), want first occurrence", p.OriginalValue, p.CorrectedValue)
	}
	if p.Status != domain.PatternCandidate {
		t.Fatalf("status = %s, want CANDIDATE after promotion sweep", p.Status)
	}
	if p.Samples.Len() != 3 {
		t.Fatalf("samples = %d, want 3", p.Samples.Len())
	}

	for _, c := range cs.records {
		if c.AnalyzedAt == nil || c.PatternID == nil {
			t.Fatalf("correction %d not watermarked/linked: %+v", c.ID, c)
		}
	}

	if len(gw.candidates) != 1 || gw.candidates[0].Count != 1 {
		t.Fatalf("expected one candidates alert, got %+v", gw.candidates)
	}
	if len(rs.runs) != 1 || rs.runs[0].Status != domain.RunCompleted {
		t.Fatalf("expected one completed run record, got %+v", rs.runs)
	}
	if rs.runs[0].Promotions != 1 {
		t.Fatalf("run promotions = %d, want 1", rs.runs[0].Promotions)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	cs := &fakeCorrectionStore{records: corrections(
		[2]string{"DHL", "invoice_number"},
		[2]string{"INV-001", "INV001"},
		[2]string{"INV-002", "INV002"},
	)}
	ps := newFakePatternStore()
	rs := &fakeRunStore{}
	a := newTestAnalyzer(cs, ps, rs, alert.NopGateway{})

	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	var after1 domain.Pattern
	for _, v := range ps.byHash {
		after1 = *v
	}

	result, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.CorrectionsAnalyzed != 0 {
		t.Fatalf("second run consumed %d corrections, want 0", result.CorrectionsAnalyzed)
	}
	var after2 domain.Pattern
	for _, v := range ps.byHash {
		after2 = *v
	}
	if after1.OccurrenceCount != after2.OccurrenceCount || after1.Confidence != after2.Confidence {
		t.Fatalf("pattern state changed on re-run: %+v vs %+v", after1, after2)
	}
}

func TestUpsertMergesAcrossRuns(t *testing.T) {
	first := corrections(
		[2]string{"DHL", "invoice_number"},
		[2]string{"INV-001", "INV001"},
		[2]string{"INV-002", "INV002"},
	)
	cs := &fakeCorrectionStore{records: first}
	ps := newFakePatternStore()
	rs := &fakeRunStore{}
	gw := &recordingGateway{}
	a := newTestAnalyzer(cs, ps, rs, gw)

	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	var p domain.Pattern
	for _, v := range ps.byHash {
		p = *v
	}
	if p.OccurrenceCount != 2 {
		t.Fatalf("occurrences after first run = %d, want 2", p.OccurrenceCount)
	}
	if p.Status != domain.PatternDetected {
		t.Fatalf("two occurrences must stay DETECTED, got %s", p.Status)
	}
	if len(gw.candidates) != 0 {
		t.Fatal("no alert expected below the promotion threshold")
	}

	// A later batch adds a matching correction; the pattern is merged, not
	// duplicated, and crosses the promotion threshold.
	cs.records = append(cs.records, domain.Correction{
		ID:             10,
		ForwarderID:    "DHL",
		FieldName:      "invoice_number",
		OriginalValue:  "inv-001",
		CorrectedValue: "inv001",
		Class:          domain.CorrectionNormal,
		CorrectedAt:    time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
	})
	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(ps.byHash) != 1 {
		t.Fatalf("expected the same pattern row, got %d patterns", len(ps.byHash))
	}
	for _, v := range ps.byHash {
		p = *v
	}
	if p.OccurrenceCount != 3 {
		t.Fatalf("occurrences after merge = %d, want 3", p.OccurrenceCount)
	}
	if p.Status != domain.PatternCandidate {
		t.Fatalf("status after crossing threshold = %s, want CANDIDATE", p.Status)
	}
	if len(gw.candidates) != 1 {
		t.Fatalf("expected exactly one candidates alert, got %d", len(gw.candidates))
	}
}

func TestScopesAreIndependent(t *testing.T) {
	records := corrections(
		[2]string{"DHL", "invoice_number"},
		[2]string{"INV-001", "INV001"},
	)
	records = append(records, domain.Correction{
		ID:             5,
		ForwarderID:    "FEDEX",
		FieldName:      "amount",
		OriginalValue:  "1.234,56",
		CorrectedValue: "1234.56",
		Class:          domain.CorrectionNormal,
		CorrectedAt:    time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
	})
	cs := &fakeCorrectionStore{records: records}
	ps := newFakePatternStore()
	ps.failHash = domain.IdentityHash("DHL", "invoice_number", "INV-001", "INV001")
	rs := &fakeRunStore{}

	result, err := newTestAnalyzer(cs, ps, rs, alert.NopGateway{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.ScopeErrors) != 1 {
		t.Fatalf("expected one scope error, got %v", result.ScopeErrors)
	}
	// The healthy scope still went through.
	if result.PatternsCreated != 1 {
		t.Fatalf("patterns created = %d, want 1 from the healthy scope", result.PatternsCreated)
	}
	if rs.runs[0].ErrorMessage == "" {
		t.Fatal("run record should carry the scope error")
	}
}

func TestMalformedCorrectionsAreWatermarkedNotClustered(t *testing.T) {
	records := corrections(
		[2]string{"DHL", "invoice_number"},
		[2]string{"INV-001", "INV001"},
	)
	records = append(records, domain.Correction{
		ID:             9,
		ForwarderID:    "DHL",
		FieldName:      "invoice_number",
		OriginalValue:  "garbage",
		CorrectedValue: "   ",
		Class:          domain.CorrectionNormal,
		CorrectedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	cs := &fakeCorrectionStore{records: records}
	ps := newFakePatternStore()

	result, err := newTestAnalyzer(cs, ps, &fakeRunStore{}, alert.NopGateway{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.CorrectionsAnalyzed != 2 {
		t.Fatalf("analyzed = %d, want 2 (incl. malformed)", result.CorrectionsAnalyzed)
	}
	var malformed domain.Correction
	for _, c := range cs.records {
		if c.ID == 9 {
			malformed = c
		}
	}
	if malformed.AnalyzedAt == nil {
		t.Fatal("malformed correction must be watermarked so it is never retried")
	}
	if malformed.PatternID != nil {
		t.Fatal("malformed correction must not be linked to a pattern")
	}
	for _, p := range ps.byHash {
		if p.OccurrenceCount != 1 {
			t.Fatalf("malformed record leaked into clustering: %+v", p)
		}
	}
}

func TestDissimilarCorrectionsSplitPatterns(t *testing.T) {
	cs := &fakeCorrectionStore{records: corrections(
		[2]string{"DHL", "consignee"},
		[2]string{"ACME LOGISTICS GMBH", "ACME Logistics GmbH"},
		[2]string{"Globex Shipping Ltd", "GLOBEX SHIPPING LTD."},
	)}
	ps := newFakePatternStore()

	result, err := newTestAnalyzer(cs, ps, &fakeRunStore{}, alert.NopGateway{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PatternsCreated != 2 {
		t.Fatalf("patterns created = %d, want 2 distinct clusters", result.PatternsCreated)
	}
}

func TestNumericValuesClusterByMagnitude(t *testing.T) {
	// Different textual forms of near-identical amounts must land together.
	cs := &fakeCorrectionStore{records: corrections(
		[2]string{"DHL", "total_amount"},
		[2]string{"1,234.56", "1234.56"},
		[2]string{"1.234,56", "1234.56"},
		[2]string{"USD 1,234.56", "1234.56"},
	)}
	ps := newFakePatternStore()

	result, err := newTestAnalyzer(cs, ps, &fakeRunStore{}, alert.NopGateway{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PatternsCreated != 1 {
		t.Fatalf("patterns created = %d, want 1 numeric cluster", result.PatternsCreated)
	}
}
