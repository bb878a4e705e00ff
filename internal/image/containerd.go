package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (

	// Default containerd socket.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for pulled images and fetch containers.
	DefaultNamespace = "tomcatconf"

	// Default snapshotter for unpacking image layers.
	DefaultSnapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Prefix of throw-away container IDs.
	containerPrefix = "tomcatconf-fetch-"
)

// Connection settings for a [Containerd] fetcher.
type ContainerdConfig struct {
	Address     string // Socket path of the containerd daemon.
	Namespace   string // Namespace scoping images and containers.
	Snapshotter string // Snapshotter used to unpack layers.
	Platform    string // Image platform, the host platform when empty.
}

// Fetches files by running cat in a throw-away container managed through a
// containerd client.
type Containerd struct {
	client      *containerd.Client // Containerd client for images and containers.
	snapshotter string             // Snapshotter used for unpacking and views.
	platform    string             // Normalized OCI platform (e.g., "linux/amd64").
}

// Creates a fetcher connected to the containerd socket described by cfg.
//
// Empty fields fall back to the package defaults. The fetcher must be closed
// when no longer needed.
func NewContainerd(cfg ContainerdConfig) (*Containerd, error) {
	cfg = cfg.withDefaults()

	p, err := parsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}

	client, err := containerd.New(cfg.Address, containerd.WithDefaultNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return &Containerd{
		client:      client,
		snapshotter: cfg.Snapshotter,
		platform:    platforms.Format(p),
	}, nil
}

// Closes the containerd client connection.
func (c *Containerd) Close() error {
	return c.client.Close()
}

// Runs "cat path" in a container created from ref and returns its output.
//
// The image is pulled and unpacked for the configured platform when it is
// not already present. The container gets a read-only view of the image
// rootfs and is removed, together with its snapshot, before returning.
func (c *Containerd) Fetch(ctx context.Context, ref, path string) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	image, err := c.resolveImage(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	id := containerID()
	ctr, err := c.create(ctx, id, image, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer c.remove(ctx, ctr)

	var stdout, stderr bytes.Buffer
	code, err := c.run(ctx, ctr, &stdout, &stderr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if code != 0 {
		return nil, &ExitError{
			Code:   code,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}

	slog.Debug("file fetched", "image", ref, "path", path, "bytes", stdout.Len())
	return stdout.Bytes(), nil
}

// Looks up ref in the image store, pulling it when missing, and makes sure
// its layers are unpacked for the configured platform.
func (c *Containerd) resolveImage(ctx context.Context, ref string) (containerd.Image, error) {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return nil, err
	}

	stored, err := c.client.ImageService().Get(ctx, ref)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return nil, err
		}

		slog.Info("pulling image", "image", ref, "platform", c.platform)
		return c.client.Pull(ctx, ref,
			containerd.WithPlatform(c.platform),
			containerd.WithPullUnpack,
			containerd.WithPullSnapshotter(c.snapshotter),
		)
	}

	image := containerd.NewImageWithPlatform(c.client, stored, platforms.Only(p))

	unpacked, err := image.IsUnpacked(ctx, c.snapshotter)
	if err != nil {
		return nil, err
	}
	if !unpacked {
		slog.Debug("unpacking image", "image", ref, "snapshotter", c.snapshotter)
		if err := image.Unpack(ctx, c.snapshotter); err != nil {
			return nil, err
		}
	}

	return image, nil
}

// Creates the fetch container with a read-only snapshot view and "cat path"
// as its process.
func (c *Containerd) create(ctx context.Context, id string, image containerd.Image, path string) (containerd.Container, error) {
	return c.client.NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(c.snapshotter),
		containerd.WithNewSnapshotView(id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(c.platform),
			oci.WithImageConfig(image),
			oci.WithRootFSReadonly(),
			oci.WithProcessArgs("cat", path),
			withUnprivilegedProcess,
		),
	)
}

// Starts the container's task, waits for it to exit, and returns the exit
// code.
//
// A non-zero exit code is not treated as an error; the caller decides. If ctx
// is cancelled while waiting the task is killed. The task is always deleted
// before returning, which also flushes the output streams.
func (c *Containerd) run(ctx context.Context, ctr containerd.Container, stdout, stderr io.Writer) (int, error) {
	task, err := ctr.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, stdout, stderr)))
	if err != nil {
		return 0, err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if _, err := task.Delete(cleanupCtx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("failed to delete fetch task", "id", ctr.ID(), "error", err)
		}
	}()

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, err
	}

	if err := task.Start(ctx); err != nil {
		return 0, err
	}

	var status containerd.ExitStatus
	select {
	case status = <-statusC:
	case <-ctx.Done():
		kill(cleanupCtx, task, ctr.ID())
		<-statusC
		return 0, ctx.Err()
	}

	code, _, err := status.Result()
	if err != nil {
		return 0, err
	}

	return int(code), nil
}

// Subset of a containerd task used to stop a cancelled fetch.
type killer interface {
	Kill(ctx context.Context, s syscall.Signal, opts ...containerd.KillOpts) error
}

// Sends SIGKILL to the task. A failure is logged; a task that already exited
// is not a failure.
func kill(ctx context.Context, task killer, id string) {
	if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
		slog.Debug("failed to kill fetch task", "id", id, "error", err)
	}
}

// Removes the fetch container and its snapshot view.
//
// Failures are logged rather than returned so they never mask the fetch
// result.
func (c *Containerd) remove(ctx context.Context, ctr containerd.Container) {
	ctx = context.WithoutCancel(ctx)

	var merr error
	if task, err := ctr.Task(ctx, nil); err == nil {
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			merr = multierror.Append(merr, err)
		}
	}
	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		merr = multierror.Append(merr, err)
	}

	if merr != nil {
		slog.Warn("failed to remove fetch container", "id", ctr.ID(), "error", merr)
	}
}

// Fills unset fields with the package defaults.
func (cfg ContainerdConfig) withDefaults() ContainerdConfig {
	if cfg.Address == "" {
		cfg.Address = DefaultContainerdAddress
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Snapshotter == "" {
		cfg.Snapshotter = DefaultSnapshotter
	}
	return cfg
}

// Returns a unique ID for a throw-away fetch container.
func containerID() string {
	return containerPrefix + uuid.NewString()
}

// Drops terminal allocation and privilege escalation from the process spec.
func withUnprivilegedProcess(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
	if s.Process == nil {
		s.Process = &specs.Process{}
	}
	s.Process.Terminal = false
	s.Process.NoNewPrivileges = true
	return nil
}
