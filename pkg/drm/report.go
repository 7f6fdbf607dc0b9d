package drm

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Reporter renders progress for a human operator.
type Reporter interface {
	Section(title string)
	Line(format string, args ...any)
	Success(id, message string)
	Failure(id string, err error)
}

const (
	green    = lipgloss.Color("#04B575")
	red      = lipgloss.Color("#FF4672")
	hotPink  = lipgloss.Color("#FF06B7")
	darkGray = lipgloss.Color("#767676")
)

type TextReporter struct {
	w       io.Writer
	title   lipgloss.Style
	detail  lipgloss.Style
	ok      lipgloss.Style
	failure lipgloss.Style
}

// NewTextReporter writes to w. Colors are only emitted when w is a
// terminal.
func NewTextReporter(w io.Writer) *TextReporter {
	r := lipgloss.NewRenderer(w)
	return &TextReporter{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(hotPink),
		detail:  r.NewStyle().Foreground(darkGray),
		ok:      r.NewStyle().Foreground(green),
		failure: r.NewStyle().Foreground(red),
	}
}

func (r *TextReporter) Section(title string) {
	fmt.Fprintln(r.w, r.title.Render(title))
}

func (r *TextReporter) Line(format string, args ...any) {
	fmt.Fprintln(r.w, r.detail.Render("  "+fmt.Sprintf(format, args...)))
}

func (r *TextReporter) Success(id, message string) {
	fmt.Fprintf(r.w, "%s %s: %s\n", r.ok.Render("ok"), id, message)
}

func (r *TextReporter) Failure(id string, err error) {
	fmt.Fprintf(r.w, "%s %s: %v\n", r.failure.Render("error"), id, err)
}

type nopReporter struct{}

func (nopReporter) Section(string)         {}
func (nopReporter) Line(string, ...any)    {}
func (nopReporter) Success(string, string) {}
func (nopReporter) Failure(string, error)  {}
