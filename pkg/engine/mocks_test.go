package engine

import (
	"context"
	"sort"
	"sync"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func pillars(specs ...PillarSpec) PillarList { return PillarList(specs) }

// Mock config store for testing
type mockStore struct {
	profiles map[string]*Profile
	traits   map[string]*Trait
	traitErr map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles: make(map[string]*Profile),
		traits:   make(map[string]*Trait),
		traitErr: make(map[string]error),
	}
}

func (m *mockStore) LoadProfile(ctx context.Context, name string) (*Profile, error) {
	p, ok := m.profiles[name]
	if !ok {
		return nil, NewConfigNotFoundError(name, nil)
	}
	return p, nil
}

func (m *mockStore) LoadTrait(ctx context.Context, name string) (*Trait, error) {
	if err, ok := m.traitErr[name]; ok {
		return &Trait{Name: name}, err
	}
	t, ok := m.traits[name]
	if !ok {
		return &Trait{Name: name}, NewTraitNotFoundError(name, nil)
	}
	return t, nil
}

// Mock step registry for testing
type mockRegistry struct {
	bootstrapErr error
	pillars      map[string][]string
}

func newMockRegistry(p map[string][]string) *mockRegistry {
	return &mockRegistry{pillars: p}
}

func (m *mockRegistry) Bootstrap() (Step, error) {
	if m.bootstrapErr != nil {
		return Step{}, m.bootstrapErr
	}
	return Step{ID: "arch", Description: "base system"}, nil
}

func (m *mockRegistry) Steps(pillar string) ([]Step, error) {
	ids, ok := m.pillars[pillar]
	if !ok {
		return nil, NewPillarNotFoundError(pillar, nil)
	}
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	steps := make([]Step, 0, len(sorted))
	for _, id := range sorted {
		steps = append(steps, Step{ID: id, Pillar: pillar})
	}
	return steps, nil
}

func (m *mockRegistry) Resolve(pillar string, ids []string) ([]Step, error) {
	if _, ok := m.pillars[pillar]; !ok {
		return nil, NewPillarNotFoundError(pillar, nil)
	}
	steps := make([]Step, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, Step{ID: id, Pillar: pillar})
	}
	return steps, nil
}

// Mock step runner recording invocation order
type mockRunner struct {
	mu       sync.Mutex
	failures map[string]string
	executed []string
}

func newMockRunner() *mockRunner {
	return &mockRunner{failures: make(map[string]string)}
}

func (m *mockRunner) fail(key, diagnostic string) *mockRunner {
	m.failures[key] = diagnostic
	return m
}

func (m *mockRunner) Run(ctx context.Context, step Step) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := step.Key()
	m.executed = append(m.executed, key)
	if diag, ok := m.failures[key]; ok {
		return Failed(diag)
	}
	return Succeeded()
}

// Mock event sink collecting events
type mockSink struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockSink) Publish(ctx context.Context, event *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
}

func (m *mockSink) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockSink) count(t EventType) int {
	n := 0
	for _, et := range m.types() {
		if et == t {
			n++
		}
	}
	return n
}

// recordingPolicy returns a fixed decision and records each failure it saw.
type recordingPolicy struct {
	decision Decision
	seen     []Failure
}

func (p *recordingPolicy) ShouldContinue(ctx context.Context, f Failure) Decision {
	p.seen = append(p.seen, f)
	return p.decision
}
