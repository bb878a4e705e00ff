// Parses flags, loads configuration, and runs tomcatconf commands.
//
// The root command accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	    --config    YAML config file.
//
// Values are taken, in order of precedence, from command-line flags,
// environment variables, the YAML config file, and the built-in defaults. The
// backend image honors BACKEND_IMAGE_TAG. Config file keys are flag names,
// with dashes or underscores; a mapping named after a command applies to that
// command only:
//
//	image: dspace/dspace:dspace-8_x
//	runtime: containerd
//	skip_existing: true
//	insert:
//	  indent: "  "
//
// A top-level output key applies to healthcheck and fetch. insert writes in
// place unless output is given on the command line or in its section.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the selected command runs.
package cli
