// Package image reads single files out of container images.
//
// A [Fetcher] returns the bytes of a file at an absolute path inside an image
// reference. Three implementations are provided:
//
//   - [Docker] runs "<binary> run --rm <ref> cat <path>" through a container
//     CLI (docker, podman, nerdctl) and captures its output.
//   - [Containerd] talks to a containerd daemon directly, pulling and unpacking
//     the image when needed and running cat in a throw-away container on a
//     read-only snapshot view.
//   - [Archive] reads an OCI image-layout tarball from disk without any
//     runtime, walking the layers top-down and honoring whiteouts.
//
// A process that exits non-zero is reported as an [*ExitError] carrying the
// exit code and both output streams. All errors wrap [ErrFetch].
//
// Example usage:
//
//	f := image.NewDocker("docker", "")
//	defer f.Close()
//
//	data, err := f.Fetch(ctx, "dspace/dspace:dspace-7_x", "/usr/local/tomcat/conf/server.xml")
//	if err != nil {
//	    return err
//	}
package image
