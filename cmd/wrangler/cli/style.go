// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color modes accepted by --color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ColorOptions is an embeddable parameter group adding --color.
type ColorOptions struct {
	Color string `flag:"color" desc:"colorize output: auto, always, or never" default:"auto"`
}

// Theme is the palette for human-facing reports. Colors are ANSI
// 256-color codes for broad terminal compatibility.
type Theme struct {
	Pass    lipgloss.Color
	Fail    lipgloss.Color
	Warn    lipgloss.Color
	State   lipgloss.Color
	Faint   lipgloss.Color
	Heading lipgloss.Color
}

// DefaultTheme is used by every report.
var DefaultTheme = Theme{
	Pass:    lipgloss.Color("42"),
	Fail:    lipgloss.Color("196"),
	Warn:    lipgloss.Color("214"),
	State:   lipgloss.Color("39"),
	Faint:   lipgloss.Color("245"),
	Heading: lipgloss.Color("255"),
}

// Styles are the theme's colors bound to one output's renderer.
type Styles struct {
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Warn    lipgloss.Style
	State   lipgloss.Style
	Faint   lipgloss.Style
	Heading lipgloss.Style
}

// NewStyles binds the theme to w. In auto mode the color profile is
// detected from w, so piped output is plain; always forces 256 colors
// and never forces plain text.
func (o *ColorOptions) NewStyles(w io.Writer) (*Styles, error) {
	renderer := lipgloss.NewRenderer(w)
	switch o.Color {
	case "", ColorAuto:
	case ColorAlways:
		renderer.SetColorProfile(termenv.ANSI256)
	case ColorNever:
		renderer.SetColorProfile(termenv.Ascii)
	default:
		return nil, Validation("--color must be auto, always, or never, got %q", o.Color)
	}
	theme := DefaultTheme
	return &Styles{
		Pass:    renderer.NewStyle().Foreground(theme.Pass),
		Fail:    renderer.NewStyle().Foreground(theme.Fail).Bold(true),
		Warn:    renderer.NewStyle().Foreground(theme.Warn),
		State:   renderer.NewStyle().Foreground(theme.State),
		Faint:   renderer.NewStyle().Foreground(theme.Faint),
		Heading: renderer.NewStyle().Foreground(theme.Heading).Bold(true),
	}, nil
}

// Verdict renders PASS or FAIL.
func (s *Styles) Verdict(passed bool) string {
	if passed {
		return s.Pass.Render("PASS")
	}
	return s.Fail.Render("FAIL")
}

// Severity renders a validation severity.
func (s *Styles) Severity(severity string) string {
	switch severity {
	case "error":
		return s.Fail.Render(severity)
	case "warning":
		return s.Warn.Render(severity)
	}
	return severity
}

// Headingf renders a formatted section heading.
func (s *Styles) Headingf(format string, args ...any) string {
	return s.Heading.Render(fmt.Sprintf(format, args...))
}
