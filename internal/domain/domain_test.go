package domain

import (
	"strings"
	"testing"
)

func TestIdentityHashIgnoresCasingAndWhitespace(t *testing.T) {
	a := IdentityHash("DHL", "invoice_number", "INV-001", "INV001")
	b := IdentityHash("DHL", "invoice_number", "  inv-001 ", "inv001")
	if a != b {
		t.Fatalf("expected identical hashes, got %s vs %s", a, b)
	}

	c := IdentityHash("DHL", "invoice_number", "INV-002", "INV001")
	if a == c {
		t.Fatal("different originals must not collide")
	}
	d := IdentityHash("FEDEX", "invoice_number", "INV-001", "INV001")
	if a == d {
		t.Fatal("different forwarders must not collide")
	}
}

func TestIdentityHashFieldBoundary(t *testing.T) {
	// Concatenation ambiguity: ("ab","c") vs ("a","bc") must differ.
	a := IdentityHash("f", "ab", "c", "x")
	b := IdentityHash("f", "a", "bc", "x")
	if a == b {
		t.Fatal("field boundary not preserved in hash")
	}
}

func TestNormalizeValue(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Hello   World ", "hello world"},
		{"INV-001", "inv-001"},
		{"", ""},
		{"\tA\nB", "a b"},
	}
	for _, c := range cases {
		if got := NormalizeValue(c.in); got != c.want {
			t.Errorf("NormalizeValue(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSampleBufferEvictionAndDedup(t *testing.T) {
	b := NewSampleBuffer(3)
	for i := int64(1); i <= 3; i++ {
		if !b.Add(Sample{Original: "o", Corrected: "c", SourceID: i}) {
			t.Fatalf("add %d suppressed unexpectedly", i)
		}
	}
	if b.Add(Sample{SourceID: 2}) {
		t.Fatal("duplicate source id should be suppressed")
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}

	b.Add(Sample{SourceID: 4})
	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len after eviction = %d, want 3", len(all))
	}
	if all[0].SourceID != 2 || all[2].SourceID != 4 {
		t.Fatalf("unexpected eviction order: %+v", all)
	}
}

func TestSampleBufferRoundTrip(t *testing.T) {
	b := NewSampleBuffer(5)
	b.Add(Sample{Original: "a", Corrected: "b", SourceID: 1})
	b.Add(Sample{Original: "c", Corrected: "d", SourceID: 2})

	data, err := b.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got, err := DecodeSamples(string(data), 5)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("decoded len = %d, want 2", got.Len())
	}
	if got.All()[1].Corrected != "d" {
		t.Fatalf("unexpected decoded entries: %+v", got.All())
	}

	// Stored history longer than the configured cap keeps the newest entries.
	trimmed, err := DecodeSamples(string(data), 1)
	if err != nil {
		t.Fatalf("decode trimmed failed: %v", err)
	}
	if trimmed.Len() != 1 || trimmed.All()[0].SourceID != 2 {
		t.Fatalf("expected newest entry kept, got %+v", trimmed.All())
	}
}

func TestParsePayloadVariants(t *testing.T) {
	cases := []struct {
		kind    PayloadKind
		raw     string
		wantErr bool
	}{
		{KindRegex, `{"pattern":"INV-(\\d+)","group":1}`, false},
		{KindRegex, `{"pattern":"("}`, true},
		{KindRegex, `{"pattern":""}`, true},
		{KindKeyword, `{"keywords":["Invoice No","Inv #"],"direction":"right"}`, false},
		{KindKeyword, `{"keywords":[]}`, true},
		{KindKeyword, `{"keywords":["x"],"direction":"diagonal"}`, true},
		{KindPosition, `{"page":1,"x":0.1,"y":0.2,"width":0.3,"height":0.05}`, false},
		{KindPosition, `{"page":0,"width":1,"height":1}`, true},
		{KindAzureField, `{"field_name":"InvoiceId"}`, false},
		{KindAzureField, `{"field_name":"  "}`, true},
		{PayloadKind("xpath"), `{}`, true},
	}
	for _, c := range cases {
		p, err := ParsePayload(c.kind, c.raw)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParsePayload(%s, %s): expected error", c.kind, c.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePayload(%s, %s) failed: %v", c.kind, c.raw, err)
			continue
		}
		if p.Kind() != c.kind {
			t.Errorf("kind mismatch: got %s want %s", p.Kind(), c.kind)
		}
	}
}

func TestParsePayloadRejectsUnknownFields(t *testing.T) {
	_, err := ParsePayload(KindRegex, `{"pattern":"x","tag":"oops"}`)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error for unknown field, got %v", err)
	}
}
