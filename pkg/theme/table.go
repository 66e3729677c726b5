package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows with rounded borders in the renderer's colours.
func (r *Renderer) Table(headers []string, rows [][]string) string {
	headerStyle := r.renderer.NewStyle().
		Foreground(purple).
		Bold(true).
		Padding(0, 1)

	cellStyle := r.renderer.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)
	evenStyle := cellStyle

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.renderer.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String() + "\n"
}

// Print writes text to the renderer's output.
func (r *Renderer) Print(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	_, r.err = r.out.Write([]byte(text))
	return r.err
}

// Success styles a success marker followed by msg.
func (r *Renderer) Success(msg string) string {
	return r.styles.success.Render("✓") + " " + msg
}

// Failure styles a failure marker followed by msg.
func (r *Renderer) Failure(msg string) string {
	return r.styles.errs.Render("✗") + " " + msg
}

// Muted renders s in the muted colour.
func (r *Renderer) Muted(s string) string {
	return r.styles.muted.Render(s)
}
