package color

import (
	"os"

	"golang.org/x/term"
)

const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Gray    = "\033[90m"

	BrightRed = "\033[91m"
)

var colorEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" || !isTerminal() {
		colorEnabled = false
	}
}

// isTerminal reports whether stderr, where diagnostics go, is an interactive terminal
func isTerminal() bool {
	if t := os.Getenv("TERM"); t == "" || t == "dumb" {
		return false
	}

	return term.IsTerminal(int(os.Stderr.Fd()))
}

func EnableColor(enable bool) {
	colorEnabled = enable
}

func IsColorEnabled() bool {
	return colorEnabled
}

func Colorize(color, text string) string {
	if !colorEnabled {
		return text
	}
	return color + text + Reset
}

func RedText(text string) string {
	return Colorize(Red, text)
}

func BrightRedText(text string) string {
	return Colorize(BrightRed, text)
}

func GreenText(text string) string {
	return Colorize(Green, text)
}

func YellowText(text string) string {
	return Colorize(Yellow, text)
}

func BlueText(text string) string {
	return Colorize(Blue, text)
}

func GrayText(text string) string {
	return Colorize(Gray, text)
}

func BoldText(text string) string {
	return Colorize(Bold, text)
}

// Fault renders a runtime fault banner
func Fault(message string) string {
	if !colorEnabled {
		return "Fault: " + message
	}
	return BrightRedText(BoldText("Fault: ")) + message
}
