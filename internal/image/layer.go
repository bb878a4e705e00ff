package image

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (

	// Prefix marking a file removed from lower layers.
	whiteoutPrefix = ".wh."

	// Marker hiding all lower-layer contents of its directory.
	opaqueWhiteout = ".wh..wh..opq"
)

// Scans one layer for target.
//
// Returns the file contents when the layer holds target as a regular file,
// or hidden=true when the layer carries a whiteout covering target (either
// the file itself, one of its parent directories, or an opaque marker on a
// parent). A layer that holds the file wins over its own opaque markers,
// which only affect lower layers.
func (a *Archive) searchLayer(desc ocispec.Descriptor, target string) (data []byte, hidden bool, err error) {
	name, err := blobPath(desc.Digest)
	if err != nil {
		return nil, false, err
	}

	blob, err := a.openEntry(name)
	if err != nil {
		return nil, false, err
	}
	defer blob.Close()

	layer, err := decompress(desc.MediaType, blob)
	if err != nil {
		return nil, false, err
	}
	defer layer.Close()

	tr := tar.NewReader(layer)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, hidden, nil
		}
		if err != nil {
			return nil, false, err
		}

		entry := cleanEntryName(hdr.Name)
		if entry == target {
			if hdr.Typeflag != tar.TypeReg {
				return nil, false, fmt.Errorf("%w: /%s is not a regular file (type %q)", ErrUnsupported, target, hdr.Typeflag)
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, false, err
			}
			return data, false, nil
		}

		if whitesOut(entry, target) {
			hidden = true
		}
	}
}

// Whether the whiteout entry hides target.
func whitesOut(entry, target string) bool {
	dir, base := path.Split(entry)
	if !strings.HasPrefix(base, whiteoutPrefix) {
		return false
	}

	dir = strings.TrimSuffix(dir, "/")
	if base == opaqueWhiteout {
		return dir == "" || strings.HasPrefix(target, dir+"/")
	}

	removed := path.Join(dir, strings.TrimPrefix(base, whiteoutPrefix))
	return target == removed || strings.HasPrefix(target, removed+"/")
}

// Wraps a layer blob in the decompressor its media type calls for.
//
// Media types ending in "gzip" or "zstd" are decompressed; plain tar media
// types are passed through.
func decompress(mediaType string, r io.Reader) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(mediaType, "gzip"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case strings.HasSuffix(mediaType, "zstd"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case strings.HasSuffix(mediaType, "tar"):
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("%w: layer media type %q", ErrUnsupported, mediaType)
	}
}
