package image

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverXML = "/usr/local/tomcat/conf/server.xml"

// One tar entry of a synthetic layer.
type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

// Builds an OCI image layout in memory.
type layoutBuilder struct {
	blobs map[digest.Digest][]byte
	index ocispec.Index
}

func newLayoutBuilder() *layoutBuilder {
	return &layoutBuilder{
		blobs: map[digest.Digest][]byte{},
		index: ocispec.Index{MediaType: ocispec.MediaTypeImageIndex},
	}
}

func (b *layoutBuilder) addBlob(mediaType string, data []byte) ocispec.Descriptor {
	d := digest.FromBytes(data)
	b.blobs[d] = data
	return ocispec.Descriptor{MediaType: mediaType, Digest: d, Size: int64(len(data))}
}

func (b *layoutBuilder) addJSON(t *testing.T, mediaType string, v any) ocispec.Descriptor {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return b.addBlob(mediaType, data)
}

// Stores a manifest (and its config) whose layers are given bottom-up.
func (b *layoutBuilder) addManifest(t *testing.T, platform ocispec.Platform, layers ...ocispec.Descriptor) ocispec.Descriptor {
	t.Helper()
	config := b.addJSON(t, ocispec.MediaTypeImageConfig, ocispec.Image{Platform: platform})
	manifest := ocispec.Manifest{
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    config,
		Layers:    layers,
	}
	manifest.SchemaVersion = 2
	return b.addJSON(t, ocispec.MediaTypeImageManifest, manifest)
}

func (b *layoutBuilder) tag(desc ocispec.Descriptor, annotations map[string]string) {
	desc.Annotations = annotations
	b.index.Manifests = append(b.index.Manifests, desc)
}

func (b *layoutBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	write := func(name string, data []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}

	write("oci-layout", []byte(`{"imageLayoutVersion":"1.0.0"}`))
	idx, err := json.Marshal(b.index)
	require.NoError(t, err)
	write("index.json", idx)
	for d, data := range b.blobs {
		write("blobs/"+d.Algorithm().String()+"/"+d.Encoded(), data)
	}

	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func (b *layoutBuilder) archive(t *testing.T, platform string) *Archive {
	t.Helper()
	data := b.bytes(t)
	a, err := newArchive("test.tar", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, platform)
	require.NoError(t, err)
	return a
}

func layerTar(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

var linuxAMD64 = ocispec.Platform{OS: "linux", Architecture: "amd64"}

func TestArchiveFetchLayers(t *testing.T) {
	tests := []struct {
		name     string
		layers   [][]tarEntry
		want     string
		notFound bool
	}{
		{
			name: "single layer",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
			},
			want: "base",
		},
		{
			name: "dot-slash entry names",
			layers: [][]tarEntry{
				{{name: "./usr/local/tomcat/conf/server.xml", body: "dotted"}},
			},
			want: "dotted",
		},
		{
			name: "upper layer overrides",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "etc/hostname", body: "x"}},
				{{name: "usr/local/tomcat/conf/server.xml", body: "custom"}},
			},
			want: "custom",
		},
		{
			name: "file whiteout",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/tomcat/conf/.wh.server.xml"}},
			},
			notFound: true,
		},
		{
			name: "parent directory whiteout",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/.wh.tomcat"}},
			},
			notFound: true,
		},
		{
			name: "opaque directory hides lower layers",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/tomcat/.wh..wh..opq"}, {name: "usr/local/tomcat/README", body: "r"}},
			},
			notFound: true,
		},
		{
			name: "opaque directory keeps its own layer",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/tomcat/conf/.wh..wh..opq"}, {name: "usr/local/tomcat/conf/server.xml", body: "fresh"}},
			},
			want: "fresh",
		},
		{
			name: "re-added after whiteout",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/tomcat/conf/.wh.server.xml"}},
				{{name: "usr/local/tomcat/conf/server.xml", body: "again"}},
			},
			want: "again",
		},
		{
			name: "unrelated whiteout",
			layers: [][]tarEntry{
				{{name: "usr/local/tomcat/conf/server.xml", body: "base"}},
				{{name: "usr/local/tomcat/conf/.wh.server.xml.bak"}, {name: "opt/.wh..wh..opq"}},
			},
			want: "base",
		},
		{
			name: "missing file",
			layers: [][]tarEntry{
				{{name: "etc/hostname", body: "x"}},
			},
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newLayoutBuilder()
			var layers []ocispec.Descriptor
			for _, entries := range tt.layers {
				layers = append(layers, b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, entries...)))
			}
			b.tag(b.addManifest(t, linuxAMD64, layers...), nil)

			data, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "any", serverXML)
			if tt.notFound {
				require.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, err, ErrFetch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestArchiveFetchCompressedLayers(t *testing.T) {
	b := newLayoutBuilder()
	base := layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "gzip"})
	upper := layerTar(t, tarEntry{name: "usr/local/tomcat/conf/web.xml", body: "zstd"})

	b.tag(b.addManifest(t, linuxAMD64,
		b.addBlob(ocispec.MediaTypeImageLayerGzip, gzipped(t, base)),
		b.addBlob(ocispec.MediaTypeImageLayerZstd, zstded(t, upper)),
	), nil)
	a := b.archive(t, "linux/amd64")

	data, err := a.Fetch(context.Background(), "", serverXML)
	require.NoError(t, err)
	assert.Equal(t, "gzip", string(data))

	data, err = a.Fetch(context.Background(), "", "/usr/local/tomcat/conf/web.xml")
	require.NoError(t, err)
	assert.Equal(t, "zstd", string(data))
}

func TestArchiveFetchDockerLayerMediaType(t *testing.T) {
	b := newLayoutBuilder()
	layer := layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "docker"})
	b.tag(b.addManifest(t, linuxAMD64,
		b.addBlob("application/vnd.docker.image.rootfs.diff.tar.gzip", gzipped(t, layer)),
	), nil)

	data, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "", serverXML)
	require.NoError(t, err)
	assert.Equal(t, "docker", string(data))
}

func TestArchiveFetchSelectsImageByRef(t *testing.T) {
	b := newLayoutBuilder()
	for _, img := range []struct{ tag, body string }{{"dspace-7_x", "seven"}, {"dspace-8_x", "eight"}} {
		layer := b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: img.body}))
		b.tag(b.addManifest(t, linuxAMD64, layer), map[string]string{
			ocispec.AnnotationRefName: img.tag,
			annotationImageName:       "docker.io/dspace/dspace:" + img.tag,
		})
	}
	a := b.archive(t, "linux/amd64")

	tests := []struct {
		ref  string
		want string
	}{
		{ref: "dspace/dspace:dspace-7_x", want: "seven"},
		{ref: "dspace-8_x", want: "eight"},
		{ref: "docker.io/dspace/dspace:dspace-8_x", want: "eight"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			data, err := a.Fetch(context.Background(), tt.ref, serverXML)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}

	_, err := a.Fetch(context.Background(), "dspace/dspace:dspace-9_x", serverXML)
	require.ErrorIs(t, err, ErrNoImage)

	_, err = a.Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrNoImage)
}

func TestArchiveFetchSharedTag(t *testing.T) {
	b := newLayoutBuilder()
	for _, img := range []struct{ name, body string }{{"a", "from a"}, {"b", "from b"}} {
		layer := b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: img.body}))
		b.tag(b.addManifest(t, linuxAMD64, layer), map[string]string{
			ocispec.AnnotationRefName: "latest",
			annotationImageName:       "docker.io/library/" + img.name + ":latest",
		})
	}
	a := b.archive(t, "linux/amd64")

	for _, ref := range []string{"b:latest", "b", "docker.io/library/b:latest"} {
		t.Run(ref, func(t *testing.T) {
			data, err := a.Fetch(context.Background(), ref, serverXML)
			require.NoError(t, err)
			assert.Equal(t, "from b", string(data))
		})
	}

	_, err := a.Fetch(context.Background(), "latest", serverXML)
	require.ErrorIs(t, err, ErrNoImage)
}

func TestSelectImageAmbiguousTag(t *testing.T) {
	entry := func(content string) ocispec.Descriptor {
		return ocispec.Descriptor{
			MediaType:   ocispec.MediaTypeImageManifest,
			Digest:      digest.FromString(content),
			Annotations: map[string]string{ocispec.AnnotationRefName: "latest"},
		}
	}
	idx := ocispec.Index{Manifests: []ocispec.Descriptor{entry("aa"), entry("bb")}}

	_, err := selectImage(idx, "b:latest")
	require.ErrorIs(t, err, ErrNoImage)
	assert.Contains(t, err.Error(), "matches 2 images")

	// A full ref name annotation still resolves exactly.
	idx.Manifests[1].Annotations[ocispec.AnnotationRefName] = "docker.io/library/b:latest"
	got, err := selectImage(idx, "b:latest")
	require.NoError(t, err)
	assert.Equal(t, idx.Manifests[1].Digest, got.Digest)
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"dspace/dspace:dspace-7_x", "docker.io/dspace/dspace:dspace-7_x"},
		{"b", "docker.io/library/b:latest"},
		{"registry.example:5000/x/y:1", "registry.example:5000/x/y:1"},
		{"Not A Ref", "Not A Ref"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeRef(tt.ref))
		})
	}
}

func TestArchiveFetchMultiPlatform(t *testing.T) {
	b := newLayoutBuilder()
	arm64 := ocispec.Platform{OS: "linux", Architecture: "arm64", Variant: "v8"}

	amdManifest := b.addManifest(t, linuxAMD64,
		b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "amd64"})))
	amdManifest.Platform = &linuxAMD64
	armManifest := b.addManifest(t, arm64,
		b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "arm64"})))
	armManifest.Platform = &arm64

	nested := ocispec.Index{MediaType: ocispec.MediaTypeImageIndex, Manifests: []ocispec.Descriptor{amdManifest, armManifest}}
	nested.SchemaVersion = 2
	b.tag(b.addJSON(t, ocispec.MediaTypeImageIndex, nested), nil)

	tests := []struct {
		platform string
		want     string
	}{
		{platform: "linux/amd64", want: "amd64"},
		{platform: "linux/arm64", want: "arm64"},
		{platform: "linux/arm64/v8", want: "arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			data, err := b.archive(t, tt.platform).Fetch(context.Background(), "", serverXML)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}

	_, err := b.archive(t, "linux/s390x").Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrNoImage)
}

func TestArchiveFetchRejectsTamperedManifest(t *testing.T) {
	b := newLayoutBuilder()
	desc := b.addManifest(t, linuxAMD64,
		b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "x"})))
	b.tag(desc, nil)

	// Same size, different bytes.
	tampered := bytes.Clone(b.blobs[desc.Digest])
	tampered[len(tampered)-1] = ' '
	b.blobs[desc.Digest] = tampered

	_, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestArchiveFetchSymlink(t *testing.T) {
	b := newLayoutBuilder()
	layer := layerTar(t,
		tarEntry{name: "etc/tomcat/server.xml", body: "real"},
		tarEntry{name: "usr/local/tomcat/conf/server.xml", typeflag: tar.TypeSymlink, linkname: "/etc/tomcat/server.xml"},
	)
	b.tag(b.addManifest(t, linuxAMD64, b.addBlob(ocispec.MediaTypeImageLayer, layer)), nil)

	_, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestArchiveFetchUnsupportedLayer(t *testing.T) {
	b := newLayoutBuilder()
	b.tag(b.addManifest(t, linuxAMD64, b.addBlob("application/vnd.example.layer.v1+lz4", []byte("??"))), nil)

	_, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestArchiveFetchEmptyIndex(t *testing.T) {
	b := newLayoutBuilder()
	_, err := b.archive(t, "linux/amd64").Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestArchiveFetchCancelled(t *testing.T) {
	b := newLayoutBuilder()
	b.tag(b.addManifest(t, linuxAMD64,
		b.addBlob(ocispec.MediaTypeImageLayer, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "x"}))), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.archive(t, "linux/amd64").Fetch(ctx, "", serverXML)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewArchiveFromFile(t *testing.T) {
	b := newLayoutBuilder()
	b.tag(b.addManifest(t, linuxAMD64,
		b.addBlob(ocispec.MediaTypeImageLayerGzip, gzipped(t, layerTar(t, tarEntry{name: "usr/local/tomcat/conf/server.xml", body: "on disk"})))), nil)

	path := filepath.Join(t.TempDir(), "image.tar")
	require.NoError(t, os.WriteFile(path, b.bytes(t), 0o644))

	a, err := NewArchive(path, "linux/amd64")
	require.NoError(t, err)
	defer a.Close()

	data, err := a.Fetch(context.Background(), "", serverXML)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(data))

	missing, err := NewArchive(filepath.Join(t.TempDir(), "nope.tar"), "")
	require.NoError(t, err)
	_, err = missing.Fetch(context.Background(), "", serverXML)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWhitesOut(t *testing.T) {
	target := "usr/local/tomcat/conf/server.xml"

	tests := []struct {
		entry string
		want  bool
	}{
		{entry: "usr/local/tomcat/conf/.wh.server.xml", want: true},
		{entry: "usr/local/tomcat/.wh.conf", want: true},
		{entry: "usr/.wh.local", want: true},
		{entry: ".wh.usr", want: true},
		{entry: "usr/local/tomcat/conf/.wh..wh..opq", want: true},
		{entry: "usr/local/.wh..wh..opq", want: true},
		{entry: ".wh..wh..opq", want: true},
		{entry: "usr/local/tomcat/conf/server.xml", want: false},
		{entry: "usr/local/tomcat/conf/.wh.web.xml", want: false},
		{entry: "usr/local/tomcat/.wh.con", want: false},
		{entry: "usr/local/tomcat/conf/server.xml/.wh..wh..opq", want: false},
		{entry: "opt/.wh..wh..opq", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			assert.Equal(t, tt.want, whitesOut(tt.entry, target))
		})
	}
}

func TestCleanEntryName(t *testing.T) {
	assert.Equal(t, "usr/local", cleanEntryName("./usr/local"))
	assert.Equal(t, "usr/local", cleanEntryName("/usr/local/"))
	assert.Equal(t, "usr/local", cleanEntryName("usr//local"))
	assert.Equal(t, "", cleanEntryName("./"))
}
