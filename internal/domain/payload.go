package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PayloadKind identifies the extraction method a rule version uses. The
// payload JSON is loosely typed in the store; ParsePayload is the boundary
// that turns it into a validated, strongly typed variant.
type PayloadKind string

const (
	KindRegex      PayloadKind = "regex"
	KindKeyword    PayloadKind = "keyword"
	KindPosition   PayloadKind = "position"
	KindAzureField PayloadKind = "azure_field"
)

// Payload is the tagged variant behind a rule version's configuration.
type Payload interface {
	Kind() PayloadKind
	Validate() error
}

// RegexPayload extracts via a regular expression capture group.
type RegexPayload struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags,omitempty"`
	Group   int    `json:"group,omitempty"`
}

func (RegexPayload) Kind() PayloadKind { return KindRegex }

func (p RegexPayload) Validate() error {
	if strings.TrimSpace(p.Pattern) == "" {
		return fmt.Errorf("regex payload: empty pattern")
	}
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("regex payload: %w", err)
	}
	if p.Group < 0 {
		return fmt.Errorf("regex payload: negative capture group %d", p.Group)
	}
	return nil
}

// KeywordPayload extracts the value adjacent to one of a set of keywords.
type KeywordPayload struct {
	Keywords  []string `json:"keywords"`
	Direction string   `json:"direction,omitempty"` // "right", "below", defaults right
	MaxOffset int      `json:"max_offset,omitempty"`
}

func (KeywordPayload) Kind() PayloadKind { return KindKeyword }

func (p KeywordPayload) Validate() error {
	if len(p.Keywords) == 0 {
		return fmt.Errorf("keyword payload: no keywords")
	}
	switch p.Direction {
	case "", "right", "below":
	default:
		return fmt.Errorf("keyword payload: invalid direction %q", p.Direction)
	}
	return nil
}

// PositionPayload extracts from a fixed page region.
type PositionPayload struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (PositionPayload) Kind() PayloadKind { return KindPosition }

func (p PositionPayload) Validate() error {
	if p.Page < 1 {
		return fmt.Errorf("position payload: page %d out of range", p.Page)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("position payload: non-positive region %gx%g", p.Width, p.Height)
	}
	return nil
}

// AzureFieldPayload maps a prebuilt document-intelligence field directly.
type AzureFieldPayload struct {
	FieldName string `json:"field_name"`
}

func (AzureFieldPayload) Kind() PayloadKind { return KindAzureField }

func (p AzureFieldPayload) Validate() error {
	if strings.TrimSpace(p.FieldName) == "" {
		return fmt.Errorf("azure_field payload: empty field name")
	}
	return nil
}

// ParsePayload decodes and validates a raw payload for the given kind.
func ParsePayload(kind PayloadKind, raw string) (Payload, error) {
	var p Payload
	switch kind {
	case KindRegex:
		p = &RegexPayload{}
	case KindKeyword:
		p = &KeywordPayload{}
	case KindPosition:
		p = &PositionPayload{}
	case KindAzureField:
		p = &AzureFieldPayload{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
