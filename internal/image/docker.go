package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Fetches files by running cat in a disposable container through a container
// CLI.
type Docker struct {
	binary   string // CLI executable (docker, podman, nerdctl).
	platform string // Optional --platform value.
}

// Creates a fetcher that drives the given container CLI.
//
// An empty binary defaults to "docker". An empty platform leaves the choice
// to the CLI.
func NewDocker(binary, platform string) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{binary: binary, platform: platform}
}

// Runs "<binary> run --rm [--platform P] <ref> cat <path>" and returns its
// standard output.
//
// A non-zero exit status is returned as an [*ExitError] with both streams.
func (d *Docker) Fetch(ctx context.Context, ref, path string) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	args := d.args(ref, path)
	slog.Debug("running container cli", "cmd", d.binary+" "+strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Code:   exitErr.ExitCode(),
				Stdout: stdout.String(),
				Stderr: stderr.String(),
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return stdout.Bytes(), nil
}

// Nothing to release.
func (d *Docker) Close() error {
	return nil
}

// Builds the CLI arguments for a fetch.
func (d *Docker) args(ref, path string) []string {
	args := []string{"run", "--rm"}
	if d.platform != "" {
		args = append(args, "--platform", d.platform)
	}
	return append(args, ref, "cat", path)
}
