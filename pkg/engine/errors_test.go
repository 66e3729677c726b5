package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"config not found", NewConfigNotFoundError("desktop", nil), ErrConfigNotFound, true},
		{"trait not found", NewTraitNotFoundError("base", nil), ErrTraitNotFound, true},
		{"pillar not found", NewPillarNotFoundError("gaming", nil), ErrPillarNotFound, true},
		{"validation", NewValidationError("desktop.yaml", nil), ErrValidation, true},
		{"wrapped", fmt.Errorf("loading: %w", NewConfigNotFoundError("x", nil)), ErrConfigNotFound, true},
		{"different code", NewTraitNotFoundError("base", nil), ErrConfigNotFound, false},
		{"plain error", errors.New("boom"), ErrConfigNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineError_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		fatal       bool
		recoverable bool
		warning     bool
	}{
		{"profile", NewConfigNotFoundError("p", nil), true, false, false},
		{"trait", NewTraitNotFoundError("t", nil), false, false, true},
		{"pillar", NewPillarNotFoundError("p", nil), false, true, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsFatal(tt.err) != tt.fatal {
				t.Errorf("IsFatal() = %v", IsFatal(tt.err))
			}
			if IsRecoverable(tt.err) != tt.recoverable {
				t.Errorf("IsRecoverable() = %v", IsRecoverable(tt.err))
			}
			if IsWarning(tt.err) != tt.warning {
				t.Errorf("IsWarning() = %v", IsWarning(tt.err))
			}
		})
	}
}

func TestEngineError_Message(t *testing.T) {
	cause := errors.New("no such file")
	err := NewConfigNotFoundError("desktop", cause).WithDetail("root", "/srv/mythos")

	msg := err.Error()
	for _, want := range []string{"fatal", "profile not found", "unit=desktop", "no such file"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if err.Details["root"] != "/srv/mythos" {
		t.Errorf("unexpected details %v", err.Details)
	}
}
