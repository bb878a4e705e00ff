package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hardyoyo/pad-dspace-infra/internal"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Creates the logger used before flags are parsed.
//
// The level is seeded from build-time linker flags and reconfigured by
// [Execute] once flags are known.
func NewLogger(w io.Writer) *slog.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix: internal.Name,
		Level:  logLevel(internal.IsDebug(), internal.IsQuiet()),
	})
	return slog.New(logger)
}

// Configures the global logger based on CLI flags.
func configureLogger(root *Root) {
	logger, ok := slog.Default().Handler().(*log.Logger)
	if !ok {
		return // Not a charmbracelet handler, nothing to configure
	}

	debug := root.Debug || internal.IsDebug()
	quiet := root.Quiet || internal.IsQuiet()
	verbose := root.Verbose || internal.IsVerbose()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)
	internal.SetVerbose(verbose)

	logger.SetLevel(logLevel(debug, quiet))
	logger.SetReportTimestamp(verbose)

	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger.SetColorProfile(termenv.Ascii)
	}
}

// Maps the debug and quiet modes to a log level. Debug wins over quiet.
func logLevel(debug, quiet bool) log.Level {
	switch {
	case debug:
		return log.DebugLevel
	case quiet:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}
