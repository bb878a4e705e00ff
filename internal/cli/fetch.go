package cli

import (
	"context"
	"log/slog"

	"github.com/hardyoyo/pad-dspace-infra/internal/paths"
)

// Represents the 'tomcatconf fetch' command.
type FetchCmd struct {
	FetchFlags `embed:""`
}

// Executes the fetch command.
//
// Writes server.xml from the backend image to the output path as is.
func (c *FetchCmd) Run(ctx context.Context, newFetcher FetcherFactory) error {
	data, err := fetchServerXML(ctx, newFetcher, c.FetchFlags)
	if err != nil {
		return err
	}

	if err := paths.WriteFile(c.Output, data); err != nil {
		return err
	}

	slog.Info("server.xml saved locally", "path", c.Output)
	return nil
}
