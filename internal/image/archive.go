package image

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (

	// Name of the OCI image layout index at the archive root.
	indexFile = "index.json"

	// Annotation containerd writes with the full image name on export.
	annotationImageName = "io.containerd.image.name"

	// Upper bound for manifests, indexes, and configs read into memory.
	maxMetadataSize = 8 << 20
)

// Fetches files from an OCI image-layout tarball on disk, such as the output
// of "docker save" or "ctr image export", without any container runtime.
type Archive struct {
	open     func() (io.ReadCloser, error) // Opens a fresh reader over the archive.
	name     string                        // Archive path, for log and error messages.
	platform ocispec.Platform              // Platform used to pick manifests from an index.
}

// Creates a fetcher reading the OCI archive at path.
//
// An empty platform selects the host platform.
func NewArchive(path, platform string) (*Archive, error) {
	return newArchive(path, func() (io.ReadCloser, error) { return os.Open(path) }, platform)
}

// Creates a fetcher over an arbitrary archive source.
func newArchive(name string, open func() (io.ReadCloser, error), platform string) (*Archive, error) {
	p, err := parsePlatform(platform)
	if err != nil {
		return nil, err
	}
	return &Archive{open: open, name: name, platform: p}, nil
}

// Nothing to release; the archive is reopened for every read.
func (a *Archive) Close() error {
	return nil
}

// Returns the contents of path inside the image ref stored in the archive.
//
// The image is selected from index.json by its reference annotation; an
// archive holding a single image matches any ref. Layers are searched from
// the top down, so the first layer that contains the file, or a whiteout
// hiding it, decides the result.
func (a *Archive) Fetch(ctx context.Context, ref, filePath string) ([]byte, error) {
	if err := checkPath(filePath); err != nil {
		return nil, err
	}
	target := cleanEntryName(filePath)

	manifest, err := a.resolveManifest(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	for i := len(manifest.Layers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}

		layer := manifest.Layers[i]
		data, hidden, err := a.searchLayer(layer, target)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %w", ErrFetch, layer.Digest, err)
		}
		if data != nil {
			slog.Debug("file found in layer", "archive", a.name, "layer", layer.Digest, "path", filePath)
			return data, nil
		}
		if hidden {
			slog.Debug("file removed by whiteout", "archive", a.name, "layer", layer.Digest, "path", filePath)
			break
		}
	}

	return nil, fmt.Errorf("%w: %w: %s", ErrFetch, ErrNotFound, filePath)
}

// Reads index.json and follows it down to the image manifest for ref and the
// configured platform.
func (a *Archive) resolveManifest(ctx context.Context, ref string) (ocispec.Manifest, error) {
	raw, err := a.readEntry(indexFile, maxMetadataSize)
	if err != nil {
		return ocispec.Manifest{}, err
	}

	var root ocispec.Index
	if err := json.Unmarshal(raw, &root); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("%s: %w", indexFile, err)
	}

	desc, err := selectImage(root, ref)
	if err != nil {
		return ocispec.Manifest{}, err
	}

	for images.IsIndexType(desc.MediaType) {
		if err := ctx.Err(); err != nil {
			return ocispec.Manifest{}, err
		}

		var idx ocispec.Index
		if err := a.readJSON(desc, &idx); err != nil {
			return ocispec.Manifest{}, err
		}

		desc, err = a.matchPlatform(idx)
		if err != nil {
			return ocispec.Manifest{}, err
		}
	}

	if !images.IsManifestType(desc.MediaType) {
		return ocispec.Manifest{}, fmt.Errorf("%w: media type %q", ErrUnsupported, desc.MediaType)
	}

	var manifest ocispec.Manifest
	if err := a.readJSON(desc, &manifest); err != nil {
		return ocispec.Manifest{}, err
	}
	return manifest, nil
}

// Picks the index entry describing ref.
//
// Full image names, from containerd's image name annotation or a full OCI ref
// name annotation, are compared after Docker normalization and win outright.
// A bare tag in the ref name annotation matches ref by tag only, so it is used
// only when exactly one entry carries a matching tag. A lone entry matches any
// ref, including an empty one.
func selectImage(idx ocispec.Index, ref string) (ocispec.Descriptor, error) {
	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, ErrEmptyIndex
	}

	if ref != "" {
		want := normalizeRef(ref)

		for _, m := range idx.Manifests {
			if name := m.Annotations[annotationImageName]; name != "" && normalizeRef(name) == want {
				return m, nil
			}
			if name := m.Annotations[ocispec.AnnotationRefName]; name != "" && !isBareTag(name) && normalizeRef(name) == want {
				return m, nil
			}
		}

		var tagged []ocispec.Descriptor
		for _, m := range idx.Manifests {
			tag := m.Annotations[ocispec.AnnotationRefName]
			if isBareTag(tag) && (tag == ref || strings.HasSuffix(want, ":"+tag)) {
				tagged = append(tagged, m)
			}
		}
		switch len(tagged) {
		case 0:
		case 1:
			return tagged[0], nil
		default:
			return ocispec.Descriptor{}, fmt.Errorf("%w: %q matches %d images by tag", ErrNoImage, ref, len(tagged))
		}
	}

	if len(idx.Manifests) == 1 {
		return idx.Manifests[0], nil
	}

	return ocispec.Descriptor{}, fmt.Errorf("%w: %q", ErrNoImage, ref)
}

// Returns the fully qualified form of an image reference ("dspace/dspace"
// becomes "docker.io/dspace/dspace:latest"), or ref itself when it does not
// parse.
func normalizeRef(ref string) string {
	named, err := reference.ParseDockerRef(ref)
	if err != nil {
		return ref
	}
	return named.String()
}

// Whether a ref name annotation holds only a tag.
func isBareTag(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/:@")
}

// Selects the index entry for the configured platform.
//
// Entries with an explicit platform are matched first. If none match and the
// index holds a single entry without platform metadata, that entry is used.
func (a *Archive) matchPlatform(idx ocispec.Index) (ocispec.Descriptor, error) {
	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, ErrEmptyIndex
	}

	matcher := platforms.Only(a.platform)
	for _, m := range idx.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			return m, nil
		}
	}

	if len(idx.Manifests) == 1 && idx.Manifests[0].Platform == nil {
		return idx.Manifests[0], nil
	}

	return ocispec.Descriptor{}, fmt.Errorf("%w: no manifest for platform %s", ErrNoImage, platforms.Format(a.platform))
}

// Reads a metadata blob, verifies it against its descriptor, and decodes it.
func (a *Archive) readJSON(desc ocispec.Descriptor, v any) error {
	if desc.Size > maxMetadataSize {
		return fmt.Errorf("%w: blob %s is %d bytes", ErrUnsupported, desc.Digest, desc.Size)
	}

	name, err := blobPath(desc.Digest)
	if err != nil {
		return err
	}

	raw, err := a.readEntry(name, maxMetadataSize)
	if err != nil {
		return err
	}

	if int64(len(raw)) != desc.Size {
		return fmt.Errorf("blob %s: size %d, expected %d", desc.Digest, len(raw), desc.Size)
	}
	if actual := desc.Digest.Algorithm().FromBytes(raw); actual != desc.Digest {
		return fmt.Errorf("blob %s: digest mismatch (got %s)", desc.Digest, actual)
	}

	return json.Unmarshal(raw, v)
}

// Returns the archive entry name of a blob.
func blobPath(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	return path.Join("blobs", d.Algorithm().String(), d.Encoded()), nil
}

// Reads a whole archive entry, refusing entries larger than limit.
func (a *Archive) readEntry(name string, limit int64) ([]byte, error) {
	rc, err := a.openEntry(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnsupported, name, limit)
	}
	return data, nil
}

// Opens the archive and positions a reader at the named entry.
//
// The returned reader closes the underlying archive.
func (a *Archive) openEntry(name string) (io.ReadCloser, error) {
	f, err := a.open()
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("%s: %w in archive %s", name, os.ErrNotExist, a.name)
		}
		if err != nil {
			f.Close()
			return nil, err
		}
		if cleanEntryName(hdr.Name) == name && hdr.Typeflag == tar.TypeReg {
			return struct {
				io.Reader
				io.Closer
			}{tr, f}, nil
		}
	}
}

// Normalizes a tar entry name to a slash-separated path without a leading
// "./" or "/".
func cleanEntryName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
