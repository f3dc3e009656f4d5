// Package canonical provides RFC 8785 (JCS) canonical serialization and
// SHA-256 content addressing for compiled artifacts. Every digest in the
// system is computed over canonical bytes, so hashing is stable across
// processes and releases.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// Bytes returns the RFC 8785 canonical JSON encoding of v: lexicographically
// sorted keys, no HTML escaping, deterministic number formatting.
func Bytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hash returns the SHA-256 hex digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashArtifacts digests each of the four artifacts over its canonical
// serialization.
func HashArtifacts(a *ir.GeneratedArtifacts) (ir.ArtifactHashes, error) {
	var out ir.ArtifactHashes
	for _, name := range ir.ArtifactOrder {
		v, _ := a.ByName(name)
		digest, err := Hash(v)
		if err != nil {
			return ir.ArtifactHashes{}, fmt.Errorf("canonical: hashing %s: %w", name, err)
		}
		switch name {
		case ir.ArtifactFlowDocument:
			out.FlowDocument = digest
		case ir.ArtifactRuntimeSettings:
			out.RuntimeSettings = digest
		case ir.ArtifactManifest:
			out.Manifest = digest
		case ir.ArtifactCredentialsMap:
			out.CredentialsMap = digest
		}
	}
	return out, nil
}
