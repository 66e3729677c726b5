package policy

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()
	file := writePolicy(t, dir, "strict.rego", abortAllRego)

	stepFailure := engine.Failure{Unit: "gaming/steam", Kind: engine.UnitStep}

	tests := []struct {
		name    string
		opts    Options
		want    engine.Decision
		wantErr string
	}{
		{name: "continue", opts: Options{Name: NameContinue}, want: engine.DecisionContinue},
		{name: "abort", opts: Options{Name: NameAbort}, want: engine.DecisionAbort},
		{name: "default prompt", opts: Options{}, want: engine.DecisionAbort},
		{name: "builtin rego", opts: Options{Name: NameRego}, want: engine.DecisionContinue},
		{name: "file implies rego", opts: Options{File: file}, want: engine.DecisionAbort},
		{name: "file with rego", opts: Options{Name: NameRego, File: file}, want: engine.DecisionAbort},
		{name: "file with abort", opts: Options{Name: NameAbort, File: file}, wantErr: "requires the rego policy"},
		{name: "missing file", opts: Options{File: filepath.Join(dir, "nope.rego")}, wantErr: "failed to read policy"},
		{name: "unknown", opts: Options{Name: "maybe"}, wantErr: "unknown policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = zerolog.Nop()
			p, err := New(context.Background(), tt.opts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("New() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := p.ShouldContinue(context.Background(), stepFailure); got != tt.want {
				t.Errorf("ShouldContinue() = %s, want %s", got, tt.want)
			}
		})
	}
}
