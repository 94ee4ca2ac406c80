package types

import "testing"

func TestParseAxiomFile_ParsesValidJSON(t *testing.T) {
	data := []byte(`{
		"axiom_id": "growth-positive",
		"name": "Favor growth",
		"description": "Prefer claims showing positive growth",
		"priority": 7,
		"matcher": {
			"positive_terms": ["grew", "growth"],
			"negative_terms": ["declined"],
			"predicates": ["growth_rate"],
			"numeric_rules": [{"field": "growth_rate", "operator": "gte", "threshold": 0, "polarity": 1}]
		}
	}`)

	axiom, err := ParseAxiomFile(data)
	if err != nil {
		t.Fatalf("ParseAxiomFile returned error: %v", err)
	}
	if axiom.ID != "growth-positive" {
		t.Errorf("ID = %q, want growth-positive", axiom.ID)
	}
	if axiom.Priority != 7 {
		t.Errorf("Priority = %d, want 7", axiom.Priority)
	}
	if len(axiom.Matcher.PositiveTerms) != 2 {
		t.Errorf("PositiveTerms = %v, want 2 entries", axiom.Matcher.PositiveTerms)
	}
}

func TestParseAxiomFile_RejectsMissingAxiomID(t *testing.T) {
	_, err := ParseAxiomFile([]byte(`{"name":"x","priority":5,"matcher":{}}`))
	if err == nil {
		t.Fatal("expected error for missing axiom_id")
	}
}

func TestParseAxiomFile_RejectsOutOfRangePriority(t *testing.T) {
	_, err := ParseAxiomFile([]byte(`{"axiom_id":"x","priority":11,"matcher":{}}`))
	if err == nil {
		t.Fatal("expected error for priority out of range")
	}
}

func TestParseAxiomFile_RejectsMalformedJSON(t *testing.T) {
	_, err := ParseAxiomFile([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestConflictStatusConstants(t *testing.T) {
	tests := []struct {
		status ConflictStatus
		want   string
	}{
		{ConflictOpen, "open"},
		{ConflictResolved, "resolved"},
		{ConflictEscalated, "escalated"},
		{ConflictBothDisputed, "both_disputed"},
	}
	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("ConflictStatus = %v, want %v", tt.status, tt.want)
		}
	}
}

func TestToTStatusConstants(t *testing.T) {
	tests := []struct {
		status ToTStatus
		want   string
	}{
		{ToTOpen, "open"},
		{ToTExpanded, "expanded"},
		{ToTAnswered, "answered"},
		{ToTPruned, "pruned"},
	}
	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("ToTStatus = %v, want %v", tt.status, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 1); got != 1 {
		t.Errorf("Clamp(5,0,1) = %v, want 1", got)
	}
	if got := Clamp(-5, 0, 1); got != 0 {
		t.Errorf("Clamp(-5,0,1) = %v, want 0", got)
	}
	if got := Clamp(0.5, 0, 1); got != 0.5 {
		t.Errorf("Clamp(0.5,0,1) = %v, want 0.5", got)
	}
}
