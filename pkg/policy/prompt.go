package policy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/mythos-linux/mythos/pkg/engine"
	"github.com/rs/zerolog"
)

// EnvNoInteraction disables the interactive prompt when set.
const EnvNoInteraction = "MYTHOS_NO_INTERACTION"

// promptDiagnosticLines is how much of a diagnostic the prompt shows.
const promptDiagnosticLines = 5

// Interactive reports whether f is a terminal an operator can answer on.
// CI and MYTHOS_NO_INTERACTION force non-interactive mode.
func Interactive(f *os.File) bool {
	if os.Getenv("CI") != "" || os.Getenv(EnvNoInteraction) != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Prompt asks the operator whether to continue after each failure. It
// implements engine.FailurePolicy. Without a terminal every failure aborts.
type Prompt struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	pending     chan answer
	logger      zerolog.Logger
}

type answer struct {
	line string
	err  error
}

// NewPrompt creates a prompt reading answers from in and writing questions
// to out.
func NewPrompt(in io.Reader, out io.Writer, interactive bool, logger zerolog.Logger) *Prompt {
	return &Prompt{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
		logger:      logger.With().Str("component", "prompt-policy").Logger(),
	}
}

// ShouldContinue implements engine.FailurePolicy.
func (p *Prompt) ShouldContinue(ctx context.Context, failure engine.Failure) engine.Decision {
	if !p.interactive {
		p.logger.Warn().Str("unit", failure.Unit).Msg("No terminal to confirm, aborting")
		return engine.DecisionAbort
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s failed\n", describe(failure))
	if diag := lastLines(failure.Diagnostic, promptDiagnosticLines); diag != "" {
		for _, line := range strings.Split(diag, "\n") {
			fmt.Fprintf(p.out, "  %s\n", line)
		}
	}
	fmt.Fprint(p.out, "Continue anyway? [y/N] ")

	// A read interrupted by cancellation is picked up by the next prompt.
	if p.pending == nil {
		p.pending = make(chan answer, 1)
		go func(ch chan<- answer) {
			line, err := p.in.ReadString('\n')
			ch <- answer{line: line, err: err}
		}(p.pending)
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return engine.DecisionAbort
	case a := <-p.pending:
		p.pending = nil
		if a.err != nil && a.line == "" {
			fmt.Fprintln(p.out)
			return engine.DecisionAbort
		}
		if ParseAnswer(a.line) {
			return engine.DecisionContinue
		}
		return engine.DecisionAbort
	}
}

// ParseAnswer reports whether a reply to a [y/N] question means yes.
func ParseAnswer(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func describe(f engine.Failure) string {
	switch f.Kind {
	case engine.UnitBootstrap:
		return "Bootstrap"
	case engine.UnitPillar:
		return "Pillar " + f.Unit
	default:
		return "Step " + f.Unit
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
