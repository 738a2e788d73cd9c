// Package ui styles CLI output.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorGood   = 71  // green
	colorWarn   = 179 // amber
	colorBad    = 167 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderOutcome colors an attempt outcome: granted green, skipped amber,
// failed red. Unknown values are left plain.
func RenderOutcome(outcome string) string {
	switch outcome {
	case "granted":
		return paint(colorGood, outcome)
	case "skipped":
		return paint(colorWarn, outcome)
	case "failed":
		return paint(colorBad, outcome)
	}
	return outcome
}

// RenderStatus colors a health status or readiness word.
func RenderStatus(status string, ok bool) string {
	if ok {
		return paint(colorGood, status)
	}
	return paint(colorBad, status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
