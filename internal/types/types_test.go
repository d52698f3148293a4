package types

import (
	"fmt"
	"testing"
)

func TestServiceError(t *testing.T) {
	err := NewServiceError(CodeTipOverflow, "tip of %d overflows", 7).WithDetail("amount", 7)

	if err.Error() != "tip of 7 overflows" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Details["amount"] != 7 {
		t.Errorf("Details[amount] = %v, want 7", err.Details["amount"])
	}
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"direct", NewServiceError(CodeUnauthorized, "no"), CodeUnauthorized, true},
		{"wrapped", fmt.Errorf("update: %w", NewServiceError(CodePortfolioNotFound, "missing")), CodePortfolioNotFound, true},
		{"other code", NewServiceError(CodeUnauthorized, "no"), CodeMissingSigner, false},
		{"plain error", fmt.Errorf("boom"), CodeUnauthorized, false},
		{"nil", nil, CodeUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
