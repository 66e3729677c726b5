package engine

import (
	"time"
)

// Setting keys understood by profiles and traits.
const (
	KeyBootstrap = "bootstrap"
	KeyPillars   = "pillars"
	KeyTheme     = "theme"
)

// settingKeys is the canonical key order used for iteration and provenance.
var settingKeys = []string{KeyBootstrap, KeyPillars, KeyTheme}

// PillarSpec names a pillar and, optionally, the explicit steps to run in it.
type PillarSpec struct {
	// Name is the pillar name (e.g., "gaming", "developer").
	Name string `json:"name" validate:"required,excludesall=/\\"`

	// Steps lists explicit step identifiers in execution order.
	// An empty list means every step known for the pillar.
	Steps []string `json:"steps,omitempty" validate:"dive,required,excludesall=/\\"`
}

// HasExplicitSteps reports whether the pillar is restricted to named steps.
func (p PillarSpec) HasExplicitSteps() bool {
	return len(p.Steps) > 0
}

// PillarList is an ordered list of pillar specs, in declaration order.
type PillarList []PillarSpec

// Names returns the pillar names in declaration order.
func (l PillarList) Names() []string {
	names := make([]string, 0, len(l))
	for _, p := range l {
		names = append(names, p.Name)
	}
	return names
}

// Lookup returns the PillarSpec for the named pillar.
func (l PillarList) Lookup(name string) (PillarSpec, bool) {
	for _, p := range l {
		if p.Name == name {
			return p, true
		}
	}
	return PillarSpec{}, false
}

// Settings is the typed set of keys a profile or trait may define.
// A nil field means the key is absent from the source.
type Settings struct {
	// Bootstrap controls whether the bootstrap phase runs.
	Bootstrap *bool `json:"bootstrap,omitempty"`

	// Pillars maps pillar names to optional step lists. Nil means absent;
	// a non-nil empty list means "present, no pillars".
	Pillars PillarList `json:"pillars,omitempty" validate:"omitempty,dive"`

	// Theme is the display theme used by renderers.
	Theme *string `json:"theme,omitempty"`
}

// Has reports whether the key is defined.
func (s Settings) Has(key string) bool {
	switch key {
	case KeyBootstrap:
		return s.Bootstrap != nil
	case KeyPillars:
		return s.Pillars != nil
	case KeyTheme:
		return s.Theme != nil
	default:
		return false
	}
}

// Keys returns the defined keys in canonical order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(settingKeys))
	for _, k := range settingKeys {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	out := Settings{}
	if s.Bootstrap != nil {
		v := *s.Bootstrap
		out.Bootstrap = &v
	}
	if s.Theme != nil {
		v := *s.Theme
		out.Theme = &v
	}
	if s.Pillars != nil {
		out.Pillars = make(PillarList, 0, len(s.Pillars))
		for _, p := range s.Pillars {
			spec := PillarSpec{Name: p.Name}
			if p.Steps != nil {
				spec.Steps = append([]string{}, p.Steps...)
			}
			out.Pillars = append(out.Pillars, spec)
		}
	}
	return out
}

// copyKey copies a single key from src into s.
func (s *Settings) copyKey(key string, src Settings) {
	c := src.Clone()
	switch key {
	case KeyBootstrap:
		s.Bootstrap = c.Bootstrap
	case KeyPillars:
		s.Pillars = c.Pillars
	case KeyTheme:
		s.Theme = c.Theme
	}
}

// Profile is a named top-level configuration selecting what to provision.
type Profile struct {
	// Name is the profile identifier.
	Name string `json:"name" validate:"required"`

	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`

	// Settings are the keys the profile defines explicitly.
	Settings Settings `json:"settings"`

	// Traits lists trait names merged under this profile, in precedence order.
	Traits []string `json:"traits,omitempty" validate:"dive,required"`

	// Source is the file the profile was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// Trait is a named, reusable set of default settings.
type Trait struct {
	// Name is the trait identifier.
	Name string `json:"name" validate:"required"`

	// Settings are the default values this trait provides.
	Settings Settings `json:"settings"`

	// Source is the file the trait was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// ProvenanceProfile marks a key supplied by the profile itself.
const ProvenanceProfile = "profile"

// ProvenanceTrait returns the provenance label for a trait-supplied key.
func ProvenanceTrait(name string) string {
	return "trait:" + name
}

// EffectiveConfig is the result of merging a profile with its traits.
type EffectiveConfig struct {
	// Profile is the name of the profile this configuration was built from.
	Profile string `json:"profile"`

	// Description is carried over from the profile.
	Description string `json:"description,omitempty"`

	// Settings are the merged settings.
	Settings Settings `json:"settings"`

	// Traits are the trait names as listed by the profile.
	Traits []string `json:"traits,omitempty"`

	// Provenance records which source supplied each defined key.
	Provenance map[string]string `json:"provenance,omitempty"`

	// Warnings collects non-fatal problems found while resolving.
	Warnings []string `json:"warnings,omitempty"`
}

// BootstrapEnabled reports whether the bootstrap phase should run.
// Bootstrap defaults to true when no source defines it.
func (c *EffectiveConfig) BootstrapEnabled() bool {
	if c.Settings.Bootstrap == nil {
		return true
	}
	return *c.Settings.Bootstrap
}

// PillarSpecs returns the declared pillars in declaration order.
func (c *EffectiveConfig) PillarSpecs() PillarList {
	return c.Settings.Pillars
}

// ThemeName returns the configured theme or an empty string.
func (c *EffectiveConfig) ThemeName() string {
	if c.Settings.Theme == nil {
		return ""
	}
	return *c.Settings.Theme
}

// AsProfile converts the effective configuration back into a profile so it
// can be merged again.
func (c *EffectiveConfig) AsProfile() *Profile {
	return &Profile{
		Name:        c.Profile,
		Description: c.Description,
		Settings:    c.Settings.Clone(),
		Traits:      append([]string{}, c.Traits...),
	}
}

// Step is one atomic external action.
type Step struct {
	// ID is the step identifier, unique within its pillar.
	ID string `json:"id"`

	// Pillar is the pillar the step belongs to.
	Pillar string `json:"pillar"`

	// Description is a human-readable description.
	Description string `json:"description,omitempty"`

	// Source locates the step for the runner (script path, module path).
	Source string `json:"source,omitempty"`
}

// Key returns the qualified "pillar/id" name of the step.
func (s Step) Key() string {
	if s.Pillar == "" {
		return s.ID
	}
	return s.Pillar + "/" + s.ID
}

// Label returns the description when set, otherwise the step ID.
func (s Step) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return s.ID
}

// Pillar is a named group of steps in execution order.
type Pillar struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Outcome is the result reported by a step runner.
type Outcome struct {
	// Status is success or failure.
	Status OutcomeStatus `json:"status"`

	// Diagnostic is the captured diagnostic text for failures.
	Diagnostic string `json:"diagnostic,omitempty"`

	// ExitCode is the process exit code when the runner has one.
	ExitCode int `json:"exit_code"`

	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return Outcome{Status: OutcomeSuccess}
}

// Failed returns a failed outcome with the given diagnostic.
func Failed(diagnostic string) Outcome {
	return Outcome{Status: OutcomeFailure, Diagnostic: diagnostic}
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Status != OutcomeSuccess
}

// OutcomeRecord is one entry in a run's outcome log.
type OutcomeRecord struct {
	// Unit is the step key, pillar name or "bootstrap".
	Unit string `json:"unit"`

	// Kind is the granularity of the unit.
	Kind UnitKind `json:"kind"`

	// Pillar is the pillar the unit belongs to, if any.
	Pillar string `json:"pillar,omitempty"`

	// Outcome is what happened.
	Outcome Outcome `json:"outcome"`

	// Decision is the policy decision taken after a failure.
	Decision Decision `json:"decision,omitempty"`

	// RecordedAt is when the outcome was recorded.
	RecordedAt time.Time `json:"recorded_at"`
}

// PillarResult is the result of running one pillar.
type PillarResult struct {
	Name     string          `json:"name"`
	Status   PillarStatus    `json:"status"`
	Outcomes []OutcomeRecord `json:"outcomes,omitempty"`
}

// Failures counts failed outcomes in the pillar.
func (r PillarResult) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome.Failed() {
			n++
		}
	}
	return n
}

// Run tracks one provisioning invocation.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Profile is the profile (or synthesized name) being provisioned.
	Profile string `json:"profile"`

	// Phase is the current phase of the state machine.
	Phase Phase `json:"phase"`

	// Pillar is the pillar being run while Phase is PhaseRunningPillar.
	Pillar string `json:"pillar,omitempty"`

	// Status is the final status once the run is terminal.
	Status RunStatus `json:"status"`

	// AbortReason explains why the run was aborted.
	AbortReason string `json:"abort_reason,omitempty"`

	// Outcomes is the outcome log in recording order.
	Outcomes []OutcomeRecord `json:"outcomes"`

	// Pillars holds per-pillar results in execution order.
	Pillars []PillarResult `json:"pillars"`

	// Warnings carries the configuration warnings.
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal phase.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Summary counts outcomes by status.
func (r *Run) Summary() RunSummary {
	s := RunSummary{Pillars: len(r.Pillars)}
	for _, o := range r.Outcomes {
		if o.Outcome.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	Pillars   int `json:"pillars"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Plan is the resolved, not yet executed, shape of a run.
type Plan struct {
	Profile        string            `json:"profile"`
	Bootstrap      *Step             `json:"bootstrap,omitempty"`
	BootstrapError string            `json:"bootstrap_error,omitempty"`
	Pillars        []PlanPillar      `json:"pillars"`
	Provenance     map[string]string `json:"provenance,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// PlanPillar is one pillar of a plan.
type PlanPillar struct {
	Name     string `json:"name"`
	Explicit bool   `json:"explicit"`
	Steps    []Step `json:"steps"`
	Missing  bool   `json:"missing,omitempty"`
	Error    string `json:"error,omitempty"`
}
