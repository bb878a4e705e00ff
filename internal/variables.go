package internal

import (
	"strconv"
	"sync/atomic"
)

// Output modes. A build may stamp rawQuiet, rawDebug or rawVerbose with
// "true" to change its default output; the -q, -v and -d flags override the
// stamped values at startup.
var (
	quiet   atomic.Bool
	debug   atomic.Bool
	verbose atomic.Bool
)

func init() {
	seed(&quiet, rawQuiet)
	seed(&debug, rawDebug)
	seed(&verbose, rawVerbose)
}

// Stores a stamped boolean; anything strconv cannot parse leaves the mode off.
func seed(mode *atomic.Bool, raw string) {
	if v, err := strconv.ParseBool(raw); err == nil {
		mode.Store(v)
	}
}

// Switches informational logging off.
func SetQuiet(enabled bool) { quiet.Store(enabled) }

// Reports whether only warnings and errors are logged.
func IsQuiet() bool { return quiet.Load() }

// Switches debug logging on.
func SetDebug(enabled bool) { debug.Store(enabled) }

// Reports whether debug messages are logged.
func IsDebug() bool { return debug.Load() }

// Switches log timestamps on.
func SetVerbose(enabled bool) { verbose.Store(enabled) }

// Reports whether log lines carry timestamps.
func IsVerbose() bool { return verbose.Load() }
