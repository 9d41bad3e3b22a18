package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CorrectionClass separates corrections that should feed learning from
// one-off exceptions that never should.
type CorrectionClass string

const (
	CorrectionNormal    CorrectionClass = "NORMAL"
	CorrectionException CorrectionClass = "EXCEPTION"
)

// Correction is one human edit of an extracted field value. Created by the
// review workflow; the analyzer only ever sets AnalyzedAt and PatternID.
type Correction struct {
	ID             int64
	ForwarderID    string
	FieldName      string
	OriginalValue  string // empty when the extractor produced nothing
	CorrectedValue string
	Class          CorrectionClass
	CorrectedAt    time.Time
	AnalyzedAt     *time.Time // nil until consumed by the analyzer
	PatternID      *int64
	CreatedAt      time.Time
}

// ScopeKey returns the (forwarder, field) partition this correction belongs to.
func (c Correction) ScopeKey() string {
	return c.ForwarderID + "/" + c.FieldName
}

type PatternStatus string

const (
	PatternDetected  PatternStatus = "DETECTED"
	PatternCandidate PatternStatus = "CANDIDATE"
	PatternSuggested PatternStatus = "SUGGESTED"
	PatternProcessed PatternStatus = "PROCESSED"
	PatternIgnored   PatternStatus = "IGNORED"
)

// Pattern is a deduplicated cluster of similar corrections within one scope.
type Pattern struct {
	ID                 int64
	ForwarderID        string
	FieldName          string
	IdentityHash       string
	OriginalValue      string // representative
	CorrectedValue     string // representative
	OccurrenceCount    int
	Status             PatternStatus
	Confidence         float64
	Samples            SampleBuffer
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
}

// NormalizeValue is the canonical form used for identity hashing and
// representative selection: case-folded, trimmed, inner whitespace collapsed.
func NormalizeValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IdentityHash is a pure function of scope key and normalized representative
// values. Two patterns in the same scope can never share a hash.
func IdentityHash(forwarderID, fieldName, original, corrected string) string {
	h := sha256.New()
	h.Write([]byte(forwarderID))
	h.Write([]byte{0})
	h.Write([]byte(fieldName))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeValue(original)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeValue(corrected)))
	return hex.EncodeToString(h.Sum(nil))
}

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// AnalysisRun is the append-only audit record of one analyzer execution.
type AnalysisRun struct {
	ID                  string // uuid
	StartedAt           time.Time
	FinishedAt          *time.Time
	Status              RunStatus
	CorrectionsAnalyzed int
	PatternsCreated     int
	PatternsUpdated     int
	Promotions          int
	ErrorMessage        string
}

type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleDisabled RuleStatus = "disabled"
)

// Rule is the logical identity of one extraction rule. Its current
// configuration mirrors the content of the RuleVersion it points at;
// CurrentVersion only ever increases.
type Rule struct {
	ID                  int64
	ForwarderID         string
	FieldName           string
	Name                string
	Status              RuleStatus
	CurrentVersion      int
	Kind                PayloadKind
	Payload             string // JSON, validated via ParsePayload
	ConfidenceThreshold float64
	Priority            int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RuleVersion is an immutable numbered snapshot of a rule's configuration.
// All versions are retained; rollback restores content as a new version.
type RuleVersion struct {
	ID                  int64
	RuleID              int64
	Version             int
	Kind                PayloadKind
	Payload             string
	ConfidenceThreshold float64
	Priority            int
	ChangeReason        string
	CreatedAt           time.Time
}

// ApplicationRecord is one sampled outcome of applying a rule version to a
// document. Accurate stays nil until a human verifies the extraction.
type ApplicationRecord struct {
	ID             int64
	RuleID         int64
	Version        int
	DocumentID     string
	ExtractedValue string
	Accurate       *bool // nil = unverified
	VerifiedBy     string
	VerifiedAt     *time.Time
	AppliedAt      time.Time
}

type RollbackTrigger string

const (
	TriggerAuto      RollbackTrigger = "AUTO"
	TriggerManual    RollbackTrigger = "MANUAL"
	TriggerEmergency RollbackTrigger = "EMERGENCY"
)

// RollbackEvent is the append-only audit record of one rollback, and the
// source of truth for cooldown enforcement.
type RollbackEvent struct {
	ID             int64
	RuleID         int64
	FromVersion    int
	ToVersion      int
	Trigger        RollbackTrigger
	Reason         string
	AccuracyBefore *float64
	AccuracyAfter  *float64
	Metadata       string // free-form JSON
	CreatedAt      time.Time
}
