package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mythos-linux/mythos/pkg/config"
	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/mythos-linux/mythos/pkg/stores"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

// writeRepo creates a repository with one profile, one trait, a bootstrap
// script and a gaming pillar whose "broken" step fails.
func writeRepo(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"profiles/work.yaml":        "description: Work machine\ntraits: [base]\npillars:\n  gaming: [steam, broken]\n",
		"traits/base.yaml":          "bootstrap: true\ntheme: greek\n",
		"bootstrap/arch.sh":         "echo bootstrapped\n",
		"pillars/gaming/steam.sh":   "echo steam installed\n",
		"pillars/gaming/broken.sh":  "echo 'error: target not found: broken' >&2\nexit 3\n",
		"pillars/developer/go.sh":   "echo go installed\n",
		"policies/abort-steps.rego": "package mythos.failure\n\nimport rego.v1\n\ndefault decision := \"abort\"\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// isolate clears the environment the settings loader reads.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvRoot, "")
	t.Setenv(config.EnvTheme, "")
	t.Setenv(config.EnvPolicy, "")
	t.Setenv(config.EnvHistory, "off")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv("XDG_STATE_HOME", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProvisionProfile(t *testing.T) {
	requireBash(t)
	isolate(t)
	root := writeRepo(t)

	out, err := execute(t, "provision", "--root", root, "--profile", "work", "--policy", "continue")
	if err != nil {
		t.Fatalf("provision error = %v\n%s", err, out)
	}

	for _, want := range []string{
		"MythOS - Greek (Olympian) Edition",
		"● Provisioning work",
		"✓ bootstrap",
		"⚔️ Ares - God of War",
		"✓ gaming/steam",
		"✗ gaming/broken",
		"error: target not found: broken",
		"continuing after gaming/broken failed",
		"Run completed (2 succeeded, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Explicit steps run in declared order.
	if strings.Index(out, "gaming/steam") > strings.Index(out, "gaming/broken") {
		t.Errorf("steps ran out of order:\n%s", out)
	}
}

func TestProvisionAborted(t *testing.T) {
	requireBash(t)
	isolate(t)
	root := writeRepo(t)

	tests := []struct {
		name string
		args []string
	}{
		{"abort policy", []string{"--policy", "abort"}},
		{"rego policy file", []string{"--policy-file", filepath.Join(root, "policies", "abort-steps.rego")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"provision", "--root", root, "--profile", "work"}, tt.args...)
			out, err := execute(t, args...)

			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != CodeAborted {
				t.Fatalf("error = %v, want exit code %d", err, CodeAborted)
			}
			if !strings.Contains(out, "stopping after gaming/broken failed") {
				t.Errorf("output missing abort decision:\n%s", out)
			}
			if strings.Contains(out, "Run completed") {
				t.Errorf("aborted run reported completion:\n%s", out)
			}
		})
	}
}

func TestProvisionFlagsJSON(t *testing.T) {
	requireBash(t)
	isolate(t)
	root := writeRepo(t)

	out, err := execute(t, "provision", "--root", root, "--dev", "--pillar", "gaming", "--policy", "continue", "--output", "json")
	if err != nil {
		t.Fatalf("provision error = %v", err)
	}

	var events []engine.Event
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var e engine.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line is not JSON: %q", line)
		}
		events = append(events, e)
	}
	if events[0].Type != engine.EventTypeRunStarted || events[len(events)-1].Type != engine.EventTypeRunFinished {
		t.Fatalf("unexpected first/last events: %s, %s", events[0].Type, events[len(events)-1].Type)
	}
	if events[0].Profile != engine.AdhocProfile {
		t.Errorf("profile = %q", events[0].Profile)
	}

	var units []string
	for _, e := range events {
		if e.Type == engine.EventTypeStepFinished {
			units = append(units, e.Unit)
		}
	}
	// No bootstrap without --bootstrap; pillar steps in lexicographic order.
	want := []string{"developer/go", "gaming/broken", "gaming/steam"}
	if strings.Join(units, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", units, want)
	}
}

func TestProvisionDryRun(t *testing.T) {
	isolate(t)
	root := writeRepo(t)

	out, err := execute(t, "provision", "--root", root, "--profile", "work", "--policy", "abort", "--dry-run", "--theme", "plain")
	if err != nil {
		t.Fatalf("dry run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "MythOS Provisioner") || !strings.Contains(out, "Run completed (3 succeeded, 0 failed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestProvisionHistory(t *testing.T) {
	requireBash(t)
	isolate(t)
	root := writeRepo(t)
	dbPath := filepath.Join(t.TempDir(), "history.db")
	t.Setenv(config.EnvHistory, dbPath)

	if _, err := execute(t, "provision", "--root", root, "--profile", "work", "--policy", "continue"); err != nil {
		t.Fatalf("provision error = %v", err)
	}

	out, err := execute(t, "history", "--root", root, "--output", "json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var runs []*stores.RunRecord
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Status != "completed" || runs[0].Failed != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	out, err = execute(t, "history", "--root", root, "--run", runs[0].ID)
	if err != nil {
		t.Fatalf("history --run error = %v", err)
	}
	for _, want := range []string{"completed", "bootstrap", "gaming/broken", "continue"} {
		if !strings.Contains(out, want) {
			t.Errorf("history --run missing %q:\n%s", want, out)
		}
	}
}

func TestProvisionErrors(t *testing.T) {
	isolate(t)
	root := writeRepo(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"nothing selected", []string{}, "nothing to provision"},
		{"profile and flags", []string{"--profile", "work", "--gaming"}, "cannot be combined"},
		{"bad output", []string{"--gaming", "--output", "xml"}, "unknown output format"},
		{"missing profile", []string{"--profile", "nope", "--policy", "continue"}, "nope"},
		{"bad policy", []string{"--gaming", "--policy", "maybe"}, "unknown policy"},
		{"bad theme", []string{"--gaming", "--theme", "roman"}, "unknown theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"provision", "--root", root}, tt.args...)
			_, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				t.Errorf("configuration errors must not be reported as aborted runs")
			}
		})
	}
}

func TestPlan(t *testing.T) {
	isolate(t)
	root := writeRepo(t)

	out, err := execute(t, "plan", "--root", root, "--profile", "work")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	for _, want := range []string{
		"Profile work - Work machine",
		"Traits: base",
		"trait:base",
		"profile",
		filepath.Join("bootstrap", "arch.sh"),
		filepath.Join("pillars", "gaming", "broken.sh"),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "plan", "--root", root, "--profile", "work", "--output", "json")
	if err != nil {
		t.Fatalf("plan --output json error = %v", err)
	}
	var plan engine.Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("plan output is not JSON: %v", err)
	}
	if plan.Bootstrap == nil || len(plan.Pillars) != 1 || len(plan.Pillars[0].Steps) != 2 {
		t.Errorf("unexpected plan: %+v", plan)
	}
	if plan.Provenance[engine.KeyBootstrap] != "trait:base" {
		t.Errorf("bootstrap provenance = %q", plan.Provenance[engine.KeyBootstrap])
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	root := writeRepo(t)

	out, err := execute(t, "validate", "--root", root, "--policy-file", filepath.Join(root, "policies", "abort-steps.rego"))
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 profiles, 1 traits, 0 problems") || !strings.Contains(out, "ok") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if err := os.WriteFile(filepath.Join(root, "profiles", "broken.yaml"), []byte("colour: red\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "validate", "--root", root)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `unknown key "colour"`) {
		t.Errorf("output missing problem:\n%s", out)
	}
}

func TestListings(t *testing.T) {
	isolate(t)
	root := writeRepo(t)

	tests := []struct {
		command string
		want    []string
	}{
		{"profiles", []string{"PROFILE", "work", "base", "gaming", "Work machine"}},
		{"traits", []string{"TRAIT", "base", "bootstrap, theme"}},
		{"themes", []string{"greek", "norse", "egyptian", "plain", "⚡ Thor", "🦅 Horus", "⚪ Gaming"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			out, err := execute(t, tt.command, "--root", root)
			if err != nil {
				t.Fatalf("%s error = %v", tt.command, err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("%s output missing %q:\n%s", tt.command, want, out)
				}
			}
		})
	}
}

func TestAdhocPillars(t *testing.T) {
	opts := &provisionOptions{
		gaming:    true,
		aesthetic: true,
		pillars:   []string{"extras", "gaming", "extras"},
	}
	got := strings.Join(opts.adhocPillars(), ",")
	if got != "gaming,aesthetic,extras" {
		t.Errorf("adhocPillars() = %s", got)
	}
}
