package logger

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Init installs the default logger on stderr. Without debug only warnings
// and errors are reported.
func Init(debug, noColor bool) {
	log.SetDefault(log.NewWithOptions(os.Stderr,
		log.Options{
			ReportCaller:    debug,
			ReportTimestamp: false,
			Prefix:          "VASM",
		}))

	log.SetLevel(log.WarnLevel)
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	log.SetColorProfile(termenv.ANSI256)
	if noColor {
		log.SetColorProfile(termenv.Ascii)
	}
}
