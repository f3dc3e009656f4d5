package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/canonical"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// ExtractResult carries the decoded artifacts and, when expected hashes were
// supplied, the itemized verification report.
type ExtractResult struct {
	Artifacts ir.GeneratedArtifacts      `json:"artifacts"`
	Metadata  *Metadata                  `json:"metadata,omitempty"`
	Verified  *canonical.IntegrityReport `json:"verified,omitempty"`
}

// Extract unpacks a bundle archive into destDir (skipped when destDir is
// empty) and decodes the artifacts. When expected is non-nil the extracted
// content is re-verified against it.
func Extract(path, destDir string, expected *ir.BundleHashes) (*ExtractResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: reading %s: %w", path, err)
	}
	return ExtractBytes(raw, destDir, expected)
}

// ExtractBytes is Extract over in-memory archive bytes.
func ExtractBytes(raw []byte, destDir string, expected *ir.BundleHashes) (*ExtractResult, error) {
	files, err := readArchive(raw)
	if err != nil {
		return nil, err
	}

	res := &ExtractResult{}
	if err := decodeArtifacts(files, res); err != nil {
		return nil, err
	}

	if destDir != "" {
		for name, data := range files {
			target := filepath.Join(destDir, filepath.Clean("/"+name))
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("bundle: creating %s: %w", filepath.Dir(target), err)
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return nil, fmt.Errorf("bundle: writing %s: %w", target, err)
			}
		}
	}

	if expected != nil {
		report, err := canonical.VerifyBundleIntegrity(&res.Artifacts, *expected, raw)
		if err != nil {
			return nil, err
		}
		res.Verified = report
	}
	return res, nil
}

// VerifySignature checks the ed25519 signature a signed bundle carries in
// its metadata against the given Merkle root.
func VerifySignature(meta *Metadata, merkleRoot string) error {
	if meta == nil || meta.Signature == "" {
		return errors.New("bundle: no signature present")
	}
	pub, err := hex.DecodeString(meta.SignerPublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("bundle: invalid signer public key")
	}
	sig, err := hex.DecodeString(meta.Signature)
	if err != nil {
		return fmt.Errorf("bundle: invalid signature encoding")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(merkleRoot), sig) {
		return errors.New("bundle: signature does not verify against merkle root")
	}
	return nil
}

// readArchive sniffs the compression from the magic bytes and unpacks every
// member into memory. Bundles hold four small JSON artifacts plus metadata,
// so full buffering here is fine; only creation needs the streaming path.
func readArchive(raw []byte) (map[string][]byte, error) {
	var reader io.Reader = bytes.NewReader(raw)
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("bundle: opening gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	files := make(map[string][]byte)
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("bundle: reading member %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = data
	}
	return files, nil
}

func decodeArtifacts(files map[string][]byte, res *ExtractResult) error {
	required := []string{ir.FlowsFileName, ir.SettingsFileName, ir.ManifestFileName, ir.CredentialsMapFileName}
	for _, name := range required {
		if _, ok := files[name]; !ok {
			return fmt.Errorf("bundle: archive missing %s", name)
		}
	}
	if err := json.Unmarshal(files[ir.FlowsFileName], &res.Artifacts.FlowDocument); err != nil {
		return fmt.Errorf("bundle: decoding %s: %w", ir.FlowsFileName, err)
	}
	if err := json.Unmarshal(files[ir.SettingsFileName], &res.Artifacts.RuntimeSettings); err != nil {
		return fmt.Errorf("bundle: decoding %s: %w", ir.SettingsFileName, err)
	}
	if err := json.Unmarshal(files[ir.ManifestFileName], &res.Artifacts.Manifest); err != nil {
		return fmt.Errorf("bundle: decoding %s: %w", ir.ManifestFileName, err)
	}
	if err := json.Unmarshal(files[ir.CredentialsMapFileName], &res.Artifacts.CredentialsMap); err != nil {
		return fmt.Errorf("bundle: decoding %s: %w", ir.CredentialsMapFileName, err)
	}
	if raw, ok := files[ir.BundleMetadataFileName]; ok {
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("bundle: decoding %s: %w", ir.BundleMetadataFileName, err)
		}
		res.Metadata = &meta
	}
	return nil
}
