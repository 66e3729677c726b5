package theme

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
)

func sampleRun() []*engine.Event {
	ok := engine.Succeeded()
	ok.Duration = 1500 * time.Millisecond
	failed := engine.Failed("resolving dependencies...\nerror: target not found: steam\n")
	missing := engine.Failed("pillar not found: aesthetic")

	return []*engine.Event{
		{Type: engine.EventTypeRunStarted, RunID: "r1", Profile: "workstation"},
		{Type: engine.EventTypePhaseChanged, RunID: "r1"},
		{Type: engine.EventTypeTraitMissing, RunID: "r1", Message: "trait laptop not found"},
		{Type: engine.EventTypeStepStarted, RunID: "r1", Unit: "bootstrap", Kind: engine.UnitBootstrap},
		{Type: engine.EventTypeStepFinished, RunID: "r1", Unit: "bootstrap", Kind: engine.UnitBootstrap, Outcome: &ok},
		{Type: engine.EventTypePillarStarted, RunID: "r1", Unit: "gaming", Pillar: "gaming", Message: "2 steps"},
		{Type: engine.EventTypeStepStarted, RunID: "r1", Unit: "gaming/steam", Pillar: "gaming", Kind: engine.UnitStep},
		{Type: engine.EventTypeStepFinished, RunID: "r1", Unit: "gaming/steam", Pillar: "gaming", Kind: engine.UnitStep, Outcome: &failed},
		{Type: engine.EventTypeDecisionMade, RunID: "r1", Unit: "gaming/steam", Decision: engine.DecisionContinue},
		{Type: engine.EventTypePillarMissing, RunID: "r1", Unit: "aesthetic", Pillar: "aesthetic", Message: "pillar not found: aesthetic", Outcome: &missing},
		{Type: engine.EventTypeDecisionMade, RunID: "r1", Unit: "aesthetic", Decision: engine.DecisionAbort},
		{Type: engine.EventTypeRunFinished, RunID: "r1", Status: "aborted", Message: "aborted: pillar aesthetic: not found",
			Details: map[string]interface{}{"succeeded": 1, "failed": 2, "duration": "3s"}},
	}
}

func TestRendererPlain(t *testing.T) {
	themes, err := NewManager("norse")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	r := NewRenderer(&buf, themes, false)

	for _, e := range sampleRun() {
		r.Publish(context.Background(), e)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"MythOS - Norse (Valhalla) Edition",
		"● Provisioning workstation\n",
		"! trait laptop not found\n",
		"  ● Forge bootstrap\n",
		"  ✓ bootstrap (1.5s)\n",
		"⚡ Thor - God of Thunder (gaming, 2 steps)\n",
		"  ● Summon gaming/steam\n",
		"  ✗ gaming/steam\n    error: target not found: steam\n",
		"  ! continuing after gaming/steam failed\n",
		"✗ pillar not found: aesthetic\n",
		"  ! stopping after aesthetic failed\n",
		"✗ Run aborted: pillar aesthetic: not found (1 succeeded, 2 failed in 3s)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains escape sequences")
	}
}

func TestRendererCompleted(t *testing.T) {
	themes, _ := NewManager("")
	var buf bytes.Buffer
	r := NewRenderer(&buf, themes, false)

	r.Publish(context.Background(), &engine.Event{
		Type:    engine.EventTypeRunFinished,
		Status:  "completed",
		Details: map[string]interface{}{"succeeded": 3, "failed": 0},
	})
	if got := buf.String(); got != "\n✓ Run completed (3 succeeded, 0 failed)\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRendererTable(t *testing.T) {
	themes, _ := NewManager("")
	var buf bytes.Buffer
	r := NewRenderer(&buf, themes, false)

	out := r.Table([]string{"THEME", "GAMING"}, [][]string{{"greek", "Ares"}, {"norse", "Thor"}})
	for _, want := range []string{"THEME", "GAMING", "greek", "Thor", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if err := r.Print(out); err != nil || buf.String() != out {
		t.Errorf("Print() = %v", err)
	}
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONRenderer(&buf)

	events := sampleRun()
	for _, e := range events {
		r.Publish(context.Background(), e)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(events) {
		t.Fatalf("got %d lines, want %d", len(lines), len(events))
	}
	var last engine.Event
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line is not JSON: %v", err)
	}
	if last.Type != engine.EventTypeRunFinished || last.Status != "aborted" {
		t.Errorf("last event = %+v", last)
	}
}

func TestRendererSetTheme(t *testing.T) {
	plain, _ := NewManager("")
	greek, _ := NewManager("greek")
	var buf bytes.Buffer
	r := NewRenderer(&buf, plain, false)

	pillar := &engine.Event{Type: engine.EventTypePillarStarted, Pillar: "gaming", Message: "1 steps"}
	r.Publish(context.Background(), pillar)
	r.SetTheme(greek)
	r.Publish(context.Background(), pillar)

	out := buf.String()
	if !strings.Contains(out, "⚪ Gaming (gaming, 1 steps)") || !strings.Contains(out, "⚔️ Ares - God of War") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
