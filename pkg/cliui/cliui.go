// Package cliui provides the terminal helpers shared by parley commands:
// styles, a spinner for waiting on replies and markdown rendering.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	NameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const (
	frameInterval = 80 * time.Millisecond
	clearLine     = "\r\033[2K"
)

// Spinner animates a single line until it is stopped. Nothing else may write
// to the same writer while it runs.
type Spinner struct {
	w     io.Writer
	msg   string
	start time.Time

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// StartSpinner draws msg with an animated frame on w until Stop or Clear.
func StartSpinner(w io.Writer, msg string) *Spinner {
	s := &Spinner{
		w:       w,
		msg:     msg,
		start:   time.Now(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.animate()
	return s
}

func (s *Spinner) animate() {
	defer close(s.stopped)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		fmt.Fprintf(s.w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), s.msg)

		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

// halt stops the animation and waits for its last write. It reports the time
// since the spinner started.
func (s *Spinner) halt() time.Duration {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	return time.Since(s.start)
}

// Stop replaces the spinner with a ✓ or ✗ for err and the elapsed time.
func (s *Spinner) Stop(err error) {
	elapsed := s.halt()
	fmt.Fprintf(s.w, "%s  %s %s %s\n",
		clearLine,
		Mark(err),
		s.msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
}

// Clear stops the spinner and erases its line.
func (s *Spinner) Clear() {
	s.halt()
	fmt.Fprint(s.w, clearLine)
}

// Step runs fn behind a spinner, then leaves a ✓ or ✗ line with the elapsed
// time. It returns fn's error.
func Step(w io.Writer, msg string, fn func() error) error {
	s := StartSpinner(w, msg)
	err := fn()
	s.Stop(err)
	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown for a terminal width columns wide, 80 when
// width is not positive. On failure the content is returned unrendered along
// with the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return rendered, nil
}
