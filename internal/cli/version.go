package cli

import (
	"fmt"

	"github.com/hardyoyo/pad-dspace-infra/internal"
)

// Represents the 'tomcatconf version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Println(internal.VersionString())
	return nil
}
