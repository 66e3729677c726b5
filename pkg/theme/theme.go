package theme

import (
	"fmt"
	"sort"
	"strings"
)

// Action verbs a theme may translate.
const (
	ActionInstall   = "install"
	ActionConfigure = "configure"
	ActionVerify    = "verify"
)

// Plain is the name of the untranslated default theme.
const Plain = "plain"

// Patron is the figure a theme assigns to a pillar.
type Patron struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Symbol string `json:"symbol"`
}

// Theme maps pillars to patrons and actions to themed verbs.
type Theme struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	Banner  string            `json:"banner"`
	Patrons map[string]Patron `json:"patrons"`
	Actions map[string]string `json:"actions"`
}

// pillars are the pillars every built-in theme has a patron for.
var pillars = []string{"gaming", "developer", "aesthetic"}

// Pillars returns the pillars with patrons, in display order.
func Pillars() []string {
	return append([]string(nil), pillars...)
}

var builtin = map[string]*Theme{
	"greek": {
		Name:   "greek",
		Title:  "Greek (Olympian)",
		Banner: "🏛️",
		Patrons: map[string]Patron{
			"gaming":    {Name: "Ares", Title: "God of War", Symbol: "⚔️"},
			"developer": {Name: "Hephaestus", Title: "God of the Forge", Symbol: "🔨"},
			"aesthetic": {Name: "Aphrodite", Title: "Goddess of Beauty", Symbol: "✨"},
		},
		Actions: map[string]string{
			ActionInstall:   "Summon",
			ActionConfigure: "Enchant",
			ActionVerify:    "Consult the Oracle",
		},
	},
	"norse": {
		Name:   "norse",
		Title:  "Norse (Valhalla)",
		Banner: "⚔️",
		Patrons: map[string]Patron{
			"gaming":    {Name: "Thor", Title: "God of Thunder", Symbol: "⚡"},
			"developer": {Name: "Odin", Title: "The All-Father", Symbol: "📚"},
			"aesthetic": {Name: "Freya", Title: "Goddess of Beauty", Symbol: "✨"},
		},
		Actions: map[string]string{
			ActionInstall:   "Summon",
			ActionConfigure: "Forge",
			ActionVerify:    "Consult the Norns",
		},
	},
	"egyptian": {
		Name:   "egyptian",
		Title:  "Egyptian (Pharaoh)",
		Banner: "𓀭",
		Patrons: map[string]Patron{
			"gaming":    {Name: "Horus", Title: "God of War", Symbol: "🦅"},
			"developer": {Name: "Thoth", Title: "God of Wisdom", Symbol: "📖"},
			"aesthetic": {Name: "Hathor", Title: "Goddess of Beauty", Symbol: "💎"},
		},
		Actions: map[string]string{
			ActionInstall:   "Consecrate",
			ActionConfigure: "Inscribe",
			ActionVerify:    "Consult the Sphinx",
		},
	},
}

// Names returns the built-in theme names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a built-in theme.
func Lookup(name string) (*Theme, bool) {
	t, ok := builtin[strings.ToLower(name)]
	return t, ok
}

// Manager translates pillar names and actions through a theme. A Manager
// without a theme leaves everything untranslated.
type Manager struct {
	theme *Theme
}

// NewManager returns a manager for the named theme. An empty name or
// "plain" selects the untranslated default.
func NewManager(name string) (*Manager, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, Plain) {
		return &Manager{}, nil
	}
	t, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown theme %q (available: %s, %s)", name, strings.Join(Names(), ", "), Plain)
	}
	return &Manager{theme: t}, nil
}

// Name returns the active theme name.
func (m *Manager) Name() string {
	if m.theme == nil {
		return Plain
	}
	return m.theme.Name
}

// Theme returns the active theme, or nil for plain output.
func (m *Manager) Theme() *Theme {
	return m.theme
}

// Patron returns the patron of a pillar. Pillars the theme does not cover
// get their own capitalized name.
func (m *Manager) Patron(pillar string) Patron {
	if m.theme != nil {
		if p, ok := m.theme.Patrons[pillar]; ok {
			return p
		}
	}
	return Patron{Name: capitalize(pillar), Symbol: "⚪"}
}

// Action translates an action verb; unknown verbs are returned capitalized.
func (m *Manager) Action(action string) string {
	if m.theme != nil {
		if verb, ok := m.theme.Actions[action]; ok {
			return verb
		}
	}
	return capitalize(action)
}

// Banner returns the multi-line run banner, ending in a blank line.
func (m *Manager) Banner() string {
	if m.theme == nil {
		return "\n🏛️ MythOS Provisioner\n\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s MythOS - %s Edition %s\n", m.theme.Banner, m.theme.Title, m.theme.Banner)
	sb.WriteString("\nYour Divine Patrons:\n")
	for _, pillar := range pillars {
		p := m.theme.Patrons[pillar]
		fmt.Fprintf(&sb, "  %s %s - %s\n", p.Symbol, p.Name, p.Title)
	}
	sb.WriteString("\n")
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
