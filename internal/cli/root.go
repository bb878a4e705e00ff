package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/hardyoyo/pad-dspace-infra/internal"
	"github.com/hardyoyo/pad-dspace-infra/internal/image"
	"github.com/hardyoyo/pad-dspace-infra/internal/paths"
	"github.com/hardyoyo/pad-dspace-infra/internal/serverxml"
)

// Image server.xml is read from when neither a flag nor BACKEND_IMAGE_TAG is
// given.
const defaultImage = "dspace/dspace:dspace-7_x"

// Represents the root command for tomcatconf.
type Root struct {
	Quiet       bool            `short:"q" help:"Suppress informational output."`
	Verbose     bool            `short:"v" help:"Enable verbose output."`
	Debug       bool            `short:"d" help:"Enable debug output."`
	Config      kong.ConfigFlag `help:"YAML config file." placeholder:"PATH"`
	Healthcheck HealthcheckCmd  `cmd:"" default:"withargs" help:"Fetch server.xml from the backend image and add a HealthCheckValve."`
	Fetch       FetchCmd        `cmd:"" help:"Fetch server.xml from the backend image unchanged."`
	Insert      InsertCmd       `cmd:"" help:"Add a HealthCheckValve to a local server.xml."`
	Version     VersionCmd      `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var root Root
	parser, err := newParser(&root, []string{paths.ConfigFile()},
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(FetcherFactory(newFetcher)),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	configureLogger(&root)

	return kongCtx.Run()
}

// Builds the kong parser for root.
//
// Config files are loaded from configPaths when they exist, and from the
// --config flag.
func newParser(root *Root, configPaths []string, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name(internal.Name),
		kong.Description("Prepares Tomcat configuration for the DSpace backend.\n\nReads server.xml out of the backend container image and adds a HealthCheckValve to its last Host."),
		kong.UsageOnError(),
		kong.Configuration(yamlLoader, configPaths...),
		kong.Vars{
			"version":       internal.VersionString(),
			"default_image": defaultImage,
			"source":        paths.ContainerServerXML(),
			"output":        paths.LocalServerXML(),
			"marker":        serverxml.DefaultMarker,
			"valve_class":   serverxml.DefaultClassName,
			"indent":        serverxml.DefaultIndent,
			"containerd":    image.DefaultContainerdAddress,
			"namespace":     image.DefaultNamespace,
			"snapshotter":   image.DefaultSnapshotter,
		},
	}, options...)

	return kong.New(root, options...)
}
