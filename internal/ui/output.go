// Package ui provides colored terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgCyan)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Header prints a banner line for the start of a command.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	fmt.Fprintln(os.Stderr, line)
	headerColor.Fprintln(os.Stderr, center(text, headerWidth))
	fmt.Fprintln(os.Stderr, line)
}

// Step prints a numbered progress step.
func Step(n, total int, text string) {
	stepColor.Fprintf(os.Stderr, "[%d/%d] %s\n", n, total, text)
}

// Success prints a completed-action line.
func Success(text string) {
	successColor.Fprintf(os.Stderr, "✓ %s\n", text)
}

// Info prints an informational line.
func Info(text string) {
	infoColor.Fprintf(os.Stderr, "• %s\n", text)
}

// Warning prints a warning line.
func Warning(text string) {
	warningColor.Fprintf(os.Stderr, "! %s\n", text)
}

// Error prints an error line.
func Error(text string) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", text)
}

// BlueText returns the text wrapped in blue escape codes.
func BlueText(text string) string {
	return stepColor.Sprint(text)
}

// YellowText returns the text wrapped in yellow escape codes.
func YellowText(text string) string {
	return warningColor.Sprint(text)
}

// center left-pads the text so it sits in the middle of width columns.
// Text wider than the target is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return strings.Repeat(" ", (width-len(text))/2) + text
}
