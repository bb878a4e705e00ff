package cli

import (
	"log/slog"
	"os"
)

// Represents the 'tomcatconf insert' command.
type InsertCmd struct {
	File       string `arg:"" type:"existingfile" help:"server.xml to modify."`
	Output     string `short:"o" placeholder:"PATH" help:"Write the result here instead of modifying FILE in place."`
	PatchFlags `embed:""`
}

// Executes the insert command.
//
// Adds the valve to a server.xml already on disk, for example one fetched
// earlier with 'tomcatconf fetch'.
func (c *InsertCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	output := c.Output
	if output == "" {
		output = c.File
	}

	slog.Info("processing server.xml", "path", c.File)

	if err := patchAndWrite(data, output, c.PatchFlags); err != nil {
		return err
	}

	slog.Info("modification complete", "path", output)
	return nil
}
