package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// NO_COLOR wins over CLICOLOR_FORCE, which wins over CLICOLOR=0; otherwise
// color follows TTY detection.
func ShouldUseColor() bool {
	return shouldUseColor(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

func shouldUseColor(getenv func(string) string, isTerminal func() bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return isTerminal()
}
