package image

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"

	"github.com/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Reads a single file out of a container image.
type Fetcher interface {

	// Returns the contents of the file at path inside the image ref.
	Fetch(ctx context.Context, ref, path string) ([]byte, error)

	// Releases any connection held by the fetcher.
	Close() error
}

// Returns the default OCI platform for the host architecture.
func DefaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}

// Parses a platform string, using the host platform when empty.
func parsePlatform(platform string) (ocispec.Platform, error) {
	if platform == "" {
		platform = DefaultPlatform()
	}
	p, err := platforms.Parse(platform)
	if err != nil {
		return ocispec.Platform{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return p, nil
}

// Checks that path is absolute, as every fetcher resolves it from the image
// root.
func checkPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: path %q must be absolute", ErrFetch, path)
	}
	return nil
}
