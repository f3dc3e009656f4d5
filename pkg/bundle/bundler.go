// Package bundle packages the four generated artifacts into one
// content-addressed archive (tar, optionally gzip) and extracts and
// verifies such archives. Artifact and Merkle hashes are always computed
// over the uncompressed canonical artifact bytes, so the compression choice
// changes only the bundle hash, never the integrity commitment.
package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/canonical"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/merkle"
)

// Compression selects the archive encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// Options configures bundle creation.
type Options struct {
	BuildID         string
	Compression     Compression
	IncludeMetadata bool
	// SigningKey, when set, signs the Merkle root into the bundle metadata.
	SigningKey ed25519.PrivateKey
}

// Metadata is the optional bundle.meta.json member.
type Metadata struct {
	BuildID         string      `json:"buildId"`
	CreatedAt       time.Time   `json:"createdAt"`
	Compression     Compression `json:"compression"`
	ArtifactCount   int         `json:"artifactCount"`
	Signature       string      `json:"signature,omitempty"`
	SignerPublicKey string      `json:"signerPublicKey,omitempty"`
}

// Bundle is the result of packaging one build.
type Bundle struct {
	Bytes    []byte          `json:"-"`
	Size     int64           `json:"size"`
	Hashes   ir.BundleHashes `json:"hashes"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// archiveEpoch is the fixed mtime for archive members. Header timestamps
// would otherwise make two identical builds produce different bundle bytes.
var archiveEpoch = time.Unix(0, 0).UTC()

// Create packages the artifacts into an in-memory archive.
func Create(artifacts *ir.GeneratedArtifacts, opts Options) (*Bundle, error) {
	var buf bytes.Buffer
	b, err := CreateTo(&buf, artifacts, opts)
	if err != nil {
		return nil, err
	}
	b.Bytes = buf.Bytes()
	return b, nil
}

// CreateTo streams the archive to w instead of buffering it, for large
// bundles. The returned Bundle carries hashes, size, and metadata but no
// Bytes.
func CreateTo(w io.Writer, artifacts *ir.GeneratedArtifacts, opts Options) (*Bundle, error) {
	if opts.BuildID == "" {
		return nil, fmt.Errorf("bundle: build id is required")
	}
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}

	members, hashes, err := serializeArtifacts(artifacts)
	if err != nil {
		return nil, err
	}
	leaves := hashes.Leaves()
	tree, err := merkle.Build(leaves[:])
	if err != nil {
		return nil, fmt.Errorf("bundle: building merkle tree: %w", err)
	}
	proofs := make(map[string][]string, len(ir.ArtifactOrder))
	for i, name := range ir.ArtifactOrder {
		proofs[name] = tree.Proofs[i]
	}

	var meta *Metadata
	if opts.IncludeMetadata {
		meta = &Metadata{
			BuildID:       opts.BuildID,
			CreatedAt:     time.Now().UTC(),
			Compression:   opts.Compression,
			ArtifactCount: len(members),
		}
		if opts.SigningKey != nil {
			meta.Signature = hex.EncodeToString(ed25519.Sign(opts.SigningKey, []byte(tree.Root)))
			meta.SignerPublicKey = hex.EncodeToString(opts.SigningKey.Public().(ed25519.PublicKey))
		}
	}

	// Hash the archive bytes as they stream out.
	digest := sha256.New()
	counter := &countingWriter{next: io.MultiWriter(w, digest)}
	if err := writeArchive(counter, members, meta, opts.Compression); err != nil {
		return nil, err
	}

	return &Bundle{
		Size: counter.n,
		Hashes: ir.BundleHashes{
			ArtifactHashes: hashes,
			BundleHash:     hex.EncodeToString(digest.Sum(nil)),
			MerkleRoot:     tree.Root,
			MerkleProofs:   proofs,
		},
		Metadata: meta,
	}, nil
}

type member struct {
	name string
	data []byte
}

// serializeArtifacts canonicalizes each artifact and digests the same bytes
// that go into the archive, so a file's content hash is its artifact hash.
func serializeArtifacts(a *ir.GeneratedArtifacts) ([]member, ir.ArtifactHashes, error) {
	files := []struct {
		artifact string
		name     string
		value    any
	}{
		{ir.ArtifactFlowDocument, ir.FlowsFileName, a.FlowDocument},
		{ir.ArtifactRuntimeSettings, ir.SettingsFileName, a.RuntimeSettings},
		{ir.ArtifactManifest, ir.ManifestFileName, a.Manifest},
		{ir.ArtifactCredentialsMap, ir.CredentialsMapFileName, a.CredentialsMap},
	}

	var hashes ir.ArtifactHashes
	members := make([]member, 0, len(files))
	for _, f := range files {
		data, err := canonical.Bytes(f.value)
		if err != nil {
			return nil, hashes, fmt.Errorf("bundle: serializing %s: %w", f.artifact, err)
		}
		digest := canonical.HashBytes(data)
		switch f.artifact {
		case ir.ArtifactFlowDocument:
			hashes.FlowDocument = digest
		case ir.ArtifactRuntimeSettings:
			hashes.RuntimeSettings = digest
		case ir.ArtifactManifest:
			hashes.Manifest = digest
		case ir.ArtifactCredentialsMap:
			hashes.CredentialsMap = digest
		}
		members = append(members, member{name: f.name, data: data})
	}
	return members, hashes, nil
}

func writeArchive(w io.Writer, members []member, meta *Metadata, compression Compression) error {
	var tw *tar.Writer
	var gz *gzip.Writer
	switch compression {
	case CompressionGzip:
		gz = gzip.NewWriter(w)
		tw = tar.NewWriter(gz)
	case CompressionNone:
		tw = tar.NewWriter(w)
	default:
		return fmt.Errorf("bundle: unknown compression %q", compression)
	}

	if meta != nil {
		raw, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("bundle: encoding metadata: %w", err)
		}
		members = append(members, member{name: ir.BundleMetadataFileName, data: raw})
	}

	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.name,
			Mode:    0o644,
			Size:    int64(len(m.data)),
			ModTime: archiveEpoch,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("bundle: writing header %s: %w", m.name, err)
		}
		if _, err := tw.Write(m.data); err != nil {
			return fmt.Errorf("bundle: writing %s: %w", m.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("bundle: closing archive: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("bundle: closing gzip stream: %w", err)
		}
	}
	return nil
}

type countingWriter struct {
	next io.Writer
	n    int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.next.Write(p)
	c.n += int64(n)
	return n, err
}
