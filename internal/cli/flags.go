package cli

import (
	"errors"
	"fmt"

	"github.com/hardyoyo/pad-dspace-infra/internal/image"
	"github.com/hardyoyo/pad-dspace-infra/internal/serverxml"
)

// Supported values of --runtime.
const (
	runtimeDocker     = "docker"
	runtimeContainerd = "containerd"
	runtimeArchive    = "archive"
)

var (
	ErrArchiveRequired = errors.New("--archive is required with --runtime=archive")
)

// Creates the fetcher selected by the fetch flags.
type FetcherFactory func(FetchFlags) (image.Fetcher, error)

// Flags locating server.xml inside the backend image.
type FetchFlags struct {
	Image             string `short:"i" env:"BACKEND_IMAGE_TAG" default:"${default_image}" help:"Backend image to read server.xml from."`
	Source            string `env:"TOMCATCONF_SOURCE" default:"${source}" help:"Path of server.xml inside the image."`
	Output            string `short:"o" env:"TOMCATCONF_OUTPUT" default:"${output}" help:"Local path the result is written to."`
	Runtime           string `env:"TOMCATCONF_RUNTIME" enum:"docker,containerd,archive" default:"docker" help:"How to read the image (${enum})."`
	DockerBinary      string `env:"TOMCATCONF_DOCKER" default:"docker" help:"Container CLI used by the docker runtime."`
	ContainerdAddress string `env:"CONTAINERD_ADDRESS" default:"${containerd}" help:"containerd socket used by the containerd runtime."`
	Namespace         string `env:"CONTAINERD_NAMESPACE" default:"${namespace}" help:"containerd namespace."`
	Snapshotter       string `env:"TOMCATCONF_SNAPSHOTTER" default:"${snapshotter}" help:"containerd snapshotter."`
	Archive           string `env:"TOMCATCONF_ARCHIVE" placeholder:"PATH" help:"OCI image archive read by the archive runtime."`
	Platform          string `env:"TOMCATCONF_PLATFORM" help:"Image platform (e.g., linux/amd64). Defaults to the host."`
}

// Flags controlling how the valve is inserted.
type PatchFlags struct {
	Marker       string `default:"${marker}" help:"Insert before the last line containing this text."`
	ValveClass   string `default:"${valve_class}" help:"className of the inserted Valve."`
	Indent       string `default:"${indent}" help:"Indentation of the inserted line (default: four spaces, --indent= for none)."`
	Strict       bool   `help:"Fail when no line contains the marker."`
	SkipExisting bool   `help:"Do nothing if the valve is already present."`
}

// Returns the serverxml options described by the flags.
//
// The indent is always passed explicitly so an empty --indent is honored.
func (f PatchFlags) options() serverxml.Options {
	indent := f.Indent
	return serverxml.Options{
		Marker:       f.Marker,
		ClassName:    f.ValveClass,
		Indent:       &indent,
		Strict:       f.Strict,
		SkipExisting: f.SkipExisting,
	}
}

// Creates the fetcher for the selected runtime.
func newFetcher(f FetchFlags) (image.Fetcher, error) {
	switch f.Runtime {
	case runtimeDocker:
		return image.NewDocker(f.DockerBinary, f.Platform), nil
	case runtimeContainerd:
		return image.NewContainerd(image.ContainerdConfig{
			Address:     f.ContainerdAddress,
			Namespace:   f.Namespace,
			Snapshotter: f.Snapshotter,
			Platform:    f.Platform,
		})
	case runtimeArchive:
		if f.Archive == "" {
			return nil, ErrArchiveRequired
		}
		return image.NewArchive(f.Archive, f.Platform)
	default:
		return nil, fmt.Errorf("unknown runtime %q", f.Runtime)
	}
}
