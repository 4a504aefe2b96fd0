package authorization

import (
	"testing"
)

func TestCELValidate(t *testing.T) {
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("NewCELEngine: %v", err)
	}

	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"department equality", "resource.department == subject.department", false},
		{"role membership", `"Manager" in subject.roles`, false},
		{"numeric comparison", "resource.amount < 1000.0", false},
		{"compound", `resource.department == subject.department && resource.amount < 500.0`, false},
		{"syntax error", "resource.department ==", true},
		{"non-boolean output", `resource.department`, true},
		{"unknown variable", "request.department == 'x'", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.expression)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.expression, err, tt.wantErr)
			}
		})
	}
}

func TestCELEvaluate(t *testing.T) {
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("NewCELEngine: %v", err)
	}

	resource := map[string]interface{}{"department": "Sales", "amount": 250.0}
	subject := map[string]interface{}{
		"id":         "alice",
		"department": "Sales",
		"roles":      []interface{}{"Manager", "Staff"},
	}

	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"matching department", "resource.department == subject.department", true},
		{"amount under limit", "resource.amount < 1000.0", true},
		{"amount over limit", "resource.amount > 1000.0", false},
		{"role check", `"Manager" in subject.roles`, true},
		{"missing role", `"Admin" in subject.roles`, false},
		{"subject id", `subject.id == "alice"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(tt.expression, resource, subject)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expression, got, tt.want)
			}
		})
	}
}

func TestCELEvaluateMissingAttribute(t *testing.T) {
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("NewCELEngine: %v", err)
	}

	// Referencing an absent key is an evaluation error, which the permission
	// engine surfaces rather than silently denying.
	_, err = engine.Evaluate("resource.department == subject.department",
		map[string]interface{}{}, map[string]interface{}{"department": "Sales"})
	if err == nil {
		t.Fatal("expected error for missing resource attribute")
	}
}

func TestCELProgramCaching(t *testing.T) {
	engine, err := NewCELEngine()
	if err != nil {
		t.Fatalf("NewCELEngine: %v", err)
	}

	const expr = "resource.amount < 100.0"
	resource := map[string]interface{}{"amount": 50.0}
	for i := 0; i < 3; i++ {
		got, err := engine.Evaluate(expr, resource, nil)
		if err != nil {
			t.Fatalf("Evaluate run %d: %v", i, err)
		}
		if !got {
			t.Fatalf("Evaluate run %d = false, want true", i)
		}
	}
	engine.mu.RLock()
	_, cached := engine.programs[expr]
	engine.mu.RUnlock()
	if !cached {
		t.Error("program was not cached after evaluation")
	}
}
