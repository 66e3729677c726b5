package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// writeDoc writes a profile or trait document under root.
func writeDoc(t *testing.T, root, dir, file, content string) {
	t.Helper()
	path := filepath.Join(root, dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	return NewFileStore(StoreConfig{Root: root, EvalTimeout: time.Second}, zerolog.Nop()), root
}

const gamerYAML = `description: Gaming rig
bootstrap: true
traits: [base]
pillars:
  gaming: [steam, gamemode]
  developer: []
  aesthetic: []
`

const gamerTOML = `description = "Gaming rig"
bootstrap = true
traits = ["base"]

[pillars]
gaming = ["steam", "gamemode"]
developer = []
aesthetic = []
`

const gamerCUE = `description: "Gaming rig"
bootstrap:   true
traits: ["base"]
pillars: {
	gaming: ["steam", "gamemode"]
	developer: []
	aesthetic: []
}
`

const gamerStarlark = `description = "Gaming rig"
bootstrap = True
traits = ["base"]
pillars = {
    "gaming": ["steam", "gamemode"],
    "developer": [],
    "aesthetic": [],
}
`

func TestLoadProfileFormats(t *testing.T) {
	want := engine.PillarList{
		{Name: "gaming", Steps: []string{"steam", "gamemode"}},
		{Name: "developer", Steps: []string{}},
		{Name: "aesthetic", Steps: []string{}},
	}

	tests := []struct {
		file    string
		content string
	}{
		{"gamer.yaml", gamerYAML},
		{"gamer.yml", gamerYAML},
		{"gamer.toml", gamerTOML},
		{"gamer.cue", gamerCUE},
		{"gamer.star", gamerStarlark},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			store, root := newTestStore(t)
			writeDoc(t, root, ProfilesDir, tt.file, tt.content)

			profile, err := store.LoadProfile(context.Background(), "gamer")
			if err != nil {
				t.Fatalf("LoadProfile() error = %v", err)
			}

			if profile.Description != "Gaming rig" {
				t.Errorf("Description = %q", profile.Description)
			}
			if profile.Settings.Bootstrap == nil || !*profile.Settings.Bootstrap {
				t.Errorf("Bootstrap = %v, want true", profile.Settings.Bootstrap)
			}
			if !reflect.DeepEqual(profile.Traits, []string{"base"}) {
				t.Errorf("Traits = %v", profile.Traits)
			}
			if !reflect.DeepEqual(profile.Settings.Pillars, want) {
				t.Errorf("Pillars = %#v, want %#v", profile.Settings.Pillars, want)
			}
			if profile.Source != filepath.Join(root, ProfilesDir, tt.file) {
				t.Errorf("Source = %q", profile.Source)
			}
		})
	}
}

func TestLoadProfileExtensionPriority(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "gamer.toml", `theme = "norse"`)
	writeDoc(t, root, ProfilesDir, "gamer.yaml", `theme: greek`)

	profile, err := store.LoadProfile(context.Background(), "gamer")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got := *profile.Settings.Theme; got != "greek" {
		t.Errorf("Theme = %q, want greek from the yaml file", got)
	}
}

func TestLoadProfilePillarList(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "dev.yaml", "pillars: [developer, gaming]\n")

	profile, err := store.LoadProfile(context.Background(), "dev")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got := profile.Settings.Pillars.Names(); !reflect.DeepEqual(got, []string{"developer", "gaming"}) {
		t.Errorf("Pillars = %v", got)
	}
	for _, p := range profile.Settings.Pillars {
		if p.HasExplicitSteps() {
			t.Errorf("pillar %s has explicit steps", p.Name)
		}
	}
	if profile.Settings.Bootstrap != nil {
		t.Error("Bootstrap should be absent")
	}
}

func TestLoadProfileEmptyPillars(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "bare.yaml", "pillars:\n")

	profile, err := store.LoadProfile(context.Background(), "bare")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if profile.Settings.Pillars == nil || len(profile.Settings.Pillars) != 0 {
		t.Errorf("Pillars = %#v, want present but empty", profile.Settings.Pillars)
	}
	if !profile.Settings.Has(engine.KeyPillars) {
		t.Error("expected pillars key to be present")
	}
}

func TestLoadProfileNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.LoadProfile(context.Background(), "ghost")
	if !engine.IsConfigNotFound(err) {
		t.Fatalf("error = %v, want ConfigNotFound", err)
	}
	if !engine.IsFatal(err) {
		t.Error("expected fatal class")
	}
}

func TestLoadProfileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{"unknown key", "p.yaml", "colour: red\n", `unknown key "colour"`},
		{"bootstrap type", "p.yaml", "bootstrap: maybe\n", "expected bool"},
		{"name mismatch", "p.yaml", "name: other\n", "does not match"},
		{"pillar separator", "p.yaml", "pillars: [a/b]\n", "path separators"},
		{"step separator", "p.yaml", "pillars:\n  gaming: [../steam]\n", "path separators"},
		{"duplicate pillar", "p.yaml", "pillars: [gaming, gaming]\n", "declared twice"},
		{"empty trait name", "p.yaml", "traits: ['']\n", "required"},
		{"pillars scalar", "p.yaml", "pillars: gaming\n", "expected mapping or list"},
		{"yaml syntax", "p.yaml", "pillars: [\n", "decode yaml"},
		{"toml syntax", "p.toml", "pillars = \n", "decode toml"},
		{"cue incomplete", "p.cue", "theme: string\n", "decode cue"},
		{"starlark extra global", "p.star", "colour = 'red'\n", `unknown key "colour"`},
		{"starlark error", "p.star", "pillars = 1 + 'a'\n", "starlark execution failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, root := newTestStore(t)
			writeDoc(t, root, ProfilesDir, tt.file, tt.content)

			_, err := store.LoadProfile(context.Background(), "p")
			if !engine.IsValidation(err) {
				t.Fatalf("error = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoadProfileBadName(t *testing.T) {
	store, _ := newTestStore(t)
	for _, name := range []string{"", "../etc", "a/b", ".."} {
		if _, err := store.LoadProfile(context.Background(), name); !engine.IsValidation(err) {
			t.Errorf("LoadProfile(%q) error = %v, want validation error", name, err)
		}
	}
}

func TestLoadTrait(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, TraitsDir, "base.yaml", "bootstrap: true\ntraits: [ignored]\ntheme: egyptian\n")

	trait, err := store.LoadTrait(context.Background(), "base")
	if err != nil {
		t.Fatalf("LoadTrait() error = %v", err)
	}
	if trait.Name != "base" || !*trait.Settings.Bootstrap || *trait.Settings.Theme != "egyptian" {
		t.Errorf("unexpected trait: %+v", trait)
	}
}

func TestLoadTraitMissing(t *testing.T) {
	store, _ := newTestStore(t)

	trait, err := store.LoadTrait(context.Background(), "ghost")
	if !engine.IsTraitNotFound(err) || !engine.IsWarning(err) {
		t.Fatalf("error = %v, want TraitNotFound warning", err)
	}
	if trait == nil || trait.Name != "ghost" || len(trait.Settings.Keys()) != 0 {
		t.Errorf("trait = %+v, want empty trait", trait)
	}
}

func TestStarlarkHost(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "host.star", `
pillars = {"developer": []}
if host.os == "`+runtime.GOOS+`":
    pillars["gaming"] = ["steam"]
_unused = file
`)

	profile, err := store.LoadProfile(context.Background(), "host")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got := profile.Settings.Pillars.Names(); !reflect.DeepEqual(got, []string{"developer", "gaming"}) {
		t.Errorf("Pillars = %v", got)
	}
}

func TestStarlarkTimeout(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(StoreConfig{Root: root, EvalTimeout: 50 * time.Millisecond}, zerolog.Nop())
	writeDoc(t, root, ProfilesDir, "spin.star", "while True:\n    pass\n")

	_, err := store.LoadProfile(context.Background(), "spin")
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func TestListDocuments(t *testing.T) {
	store, root := newTestStore(t)

	names, err := store.ListProfiles()
	if err != nil || len(names) != 0 {
		t.Fatalf("ListProfiles() on empty root = %v, %v", names, err)
	}

	writeDoc(t, root, ProfilesDir, "workstation.toml", "")
	writeDoc(t, root, ProfilesDir, "gamer.yaml", "")
	writeDoc(t, root, ProfilesDir, "gamer.cue", "")
	writeDoc(t, root, ProfilesDir, "README.md", "")
	writeDoc(t, root, TraitsDir, "base.star", "")

	names, err = store.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"gamer", "workstation"}) {
		t.Errorf("ListProfiles() = %v", names)
	}

	traits, err := store.ListTraits()
	if err != nil {
		t.Fatalf("ListTraits() error = %v", err)
	}
	if !reflect.DeepEqual(traits, []string{"base"}) {
		t.Errorf("ListTraits() = %v", traits)
	}
}

func TestValidateReport(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "gamer.yaml", gamerYAML)
	writeDoc(t, root, ProfilesDir, "broken.yaml", "colour: red\n")
	writeDoc(t, root, TraitsDir, "dev.yaml", "pillars: [developer]\n")

	report, err := store.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !report.HasErrors() {
		t.Error("expected errors")
	}
	if len(report.Problems) != 2 {
		t.Fatalf("Problems = %v, want 2", report.Problems)
	}

	byName := map[string]Problem{}
	for _, p := range report.Problems {
		byName[p.Name] = p
	}
	if p := byName["broken"]; p.Severity != SeverityError {
		t.Errorf("broken problem = %+v", p)
	}
	if p := byName["gamer"]; p.Severity != SeverityWarning || !strings.Contains(p.Message, `"base"`) {
		t.Errorf("gamer problem = %+v", p)
	}
}

func TestWatch(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, ProfilesDir, "gamer.yaml", "pillars: [gaming]\n")
	if err := os.MkdirAll(filepath.Join(root, TraitsDir), 0755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reports := make(chan *Report, 4)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(r *Report) { reports <- r })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeDoc(t, root, ProfilesDir, "gamer.yaml", "colour: red\n")

	select {
	case r := <-reports:
		if !r.HasErrors() {
			t.Errorf("expected the rewritten profile to be invalid: %+v", r)
		}
	case <-ctx.Done():
		t.Fatal("no report received")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatchNothing(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Watch(context.Background(), func(*Report) {}); err == nil {
		t.Error("expected error when no directories exist")
	}
}
