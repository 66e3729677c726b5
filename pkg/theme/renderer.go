package theme

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mythos-linux/mythos/pkg/engine"
)

// Palette, muted and dark-terminal friendly.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

type styles struct {
	accent  lipgloss.Style
	success lipgloss.Style
	errs    lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		accent:  r.NewStyle().Foreground(purple),
		success: r.NewStyle().Foreground(green),
		errs:    r.NewStyle().Foreground(red),
		warn:    r.NewStyle().Foreground(yellow),
		muted:   r.NewStyle().Foreground(dim),
		bold:    r.NewStyle().Bold(true),
	}
}

// Renderer writes engine events as themed, styled text. It is safe for
// concurrent use.
type Renderer struct {
	renderer *lipgloss.Renderer
	styles   styles

	mu     sync.Mutex
	themes *Manager
	out    io.Writer
	err    error
}

// NewRenderer creates a renderer writing to out. Without colour the output
// is plain text.
func NewRenderer(out io.Writer, themes *Manager, colour bool) *Renderer {
	r := lipgloss.NewRenderer(out)
	if colour {
		r.SetColorProfile(termenv.ColorProfile())
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		themes:   themes,
		renderer: r,
		styles:   newStyles(r),
		out:      out,
	}
}

// Err returns the first write error, if any.
func (r *Renderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// SetTheme switches the theme used for subsequent events.
func (r *Renderer) SetTheme(themes *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.themes = themes
}

// Publish implements engine.EventSink.
func (r *Renderer) Publish(_ context.Context, event *engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if text := r.render(event); text != "" {
		_, r.err = io.WriteString(r.out, text)
	}
}

func (r *Renderer) render(event *engine.Event) string {
	s := r.styles

	switch event.Type {
	case engine.EventTypeRunStarted:
		return r.themes.Banner() +
			s.accent.Render("●") + " Provisioning " + s.bold.Render(event.Profile) + "\n"

	case engine.EventTypeTraitMissing:
		return s.warn.Render("!") + " " + event.Message + "\n"

	case engine.EventTypePillarStarted:
		p := r.themes.Patron(event.Pillar)
		title := ""
		if p.Title != "" {
			title = " - " + p.Title
		}
		return fmt.Sprintf("\n%s %s%s %s\n", p.Symbol, s.bold.Render(p.Name), title,
			s.muted.Render("("+event.Pillar+", "+event.Message+")"))

	case engine.EventTypePillarMissing:
		return s.errs.Render("✗") + " " + event.Message + "\n"

	case engine.EventTypeStepStarted:
		action := ActionInstall
		if event.Kind == engine.UnitBootstrap {
			action = ActionConfigure
		}
		return "  " + s.accent.Render("●") + " " + r.themes.Action(action) + " " + event.Unit + "\n"

	case engine.EventTypeStepFinished:
		if event.Outcome == nil {
			return ""
		}
		duration := ""
		if event.Outcome.Duration > 0 {
			duration = " " + s.muted.Render("("+event.Outcome.Duration.Round(time.Millisecond).String()+")")
		}
		if !event.Outcome.Failed() {
			return "  " + s.success.Render("✓") + " " + event.Unit + duration + "\n"
		}
		text := "  " + s.errs.Render("✗") + " " + event.Unit + duration + "\n"
		if line := lastLine(event.Outcome.Diagnostic); line != "" {
			text += "    " + s.muted.Render(line) + "\n"
		}
		return text

	case engine.EventTypeDecisionMade:
		if event.Decision == engine.DecisionContinue {
			return "  " + s.warn.Render("!") + " continuing after " + event.Unit + " failed\n"
		}
		return "  " + s.errs.Render("!") + " stopping after " + event.Unit + " failed\n"

	case engine.EventTypeRunFinished:
		counts := fmt.Sprintf("%v succeeded, %v failed", event.Details["succeeded"], event.Details["failed"])
		if d, ok := event.Details["duration"]; ok {
			counts += fmt.Sprintf(" in %v", d)
		}
		if event.Status == string(engine.RunStatusAborted) {
			return "\n" + s.errs.Render("✗") + " Run " + event.Message + " " + s.muted.Render("("+counts+")") + "\n"
		}
		return "\n" + s.success.Render("✓") + " Run completed " + s.muted.Render("("+counts+")") + "\n"
	}
	return ""
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s)
}
