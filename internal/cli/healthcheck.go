package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hardyoyo/pad-dspace-infra/internal/image"
	"github.com/hardyoyo/pad-dspace-infra/internal/paths"
	"github.com/hardyoyo/pad-dspace-infra/internal/serverxml"
)

// Represents the 'tomcatconf healthcheck' command, the default.
type HealthcheckCmd struct {
	FetchFlags `embed:""`
	PatchFlags `embed:""`
}

// Executes the healthcheck command.
//
// Reads server.xml out of the backend image, inserts the HealthCheckValve
// before the last </Host>, and writes the result to the output path. A
// document without </Host> is written unchanged unless --strict is set.
func (c *HealthcheckCmd) Run(ctx context.Context, newFetcher FetcherFactory) error {
	data, err := fetchServerXML(ctx, newFetcher, c.FetchFlags)
	if err != nil {
		return err
	}

	slog.Info("processing server.xml")

	if err := patchAndWrite(data, c.Output, c.PatchFlags); err != nil {
		return err
	}

	slog.Info("modification complete, the modified server.xml is saved locally", "path", c.Output)
	return nil
}

// Fetches server.xml with the fetcher selected by flags.
//
// A fetch process exiting non-zero is logged together with its stdout and
// stderr before the error is returned.
func fetchServerXML(ctx context.Context, newFetcher FetcherFactory, flags FetchFlags) ([]byte, error) {
	slog.Info("fetching server.xml from the backend image",
		"image", flags.Image,
		"runtime", flags.Runtime,
	)

	fetcher, err := newFetcher(flags)
	if err != nil {
		return nil, err
	}
	defer fetcher.Close()

	data, err := fetcher.Fetch(ctx, flags.Image, flags.Source)
	if err != nil {
		var exitErr *image.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("error fetching server.xml",
				"code", exitErr.Code,
				"stdout", exitErr.Stdout,
				"stderr", exitErr.Stderr,
			)
		}
		return nil, err
	}

	slog.Debug("server.xml fetched", "source", flags.Source, "bytes", len(data))
	return data, nil
}

// Inserts the valve into data and writes the result to output.
func patchAndWrite(data []byte, output string, flags PatchFlags) error {
	res, err := serverxml.Patch(data, flags.options())
	if err != nil {
		return err
	}

	switch {
	case res.Inserted:
		slog.Debug("valve inserted", "line", res.Line, "class", flags.ValveClass)
	case res.Existing:
		slog.Info("valve already present, leaving server.xml unchanged", "class", flags.ValveClass)
	default:
		slog.Warn("no line contains the marker, leaving server.xml unchanged", "marker", flags.Marker)
	}

	return paths.WriteFile(output, res.Content)
}
