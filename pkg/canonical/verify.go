package canonical

import (
	"fmt"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/merkle"
)

// IntegrityReport is the itemized result of re-verifying a bundle against
// its recorded hashes. Mismatches are reported per artifact, for the archive
// bytes, and for the Merkle root independently so a caller can tell exactly
// what diverged. Verification never returns a bare boolean and never errors
// on a mismatch.
type IntegrityReport struct {
	Valid          bool            `json:"valid"`
	ArtifactsMatch map[string]bool `json:"artifactsMatch"`
	BundleMatch    bool            `json:"bundleMatch"`
	MerkleMatch    bool            `json:"merkleMatch"`
	Errors         []string        `json:"errors,omitempty"`
}

// VerifyBundleIntegrity recomputes every digest from the artifacts (and the
// archive bytes, when supplied) and diffs them against expected. A nil
// bundleBytes skips the archive check without failing it.
func VerifyBundleIntegrity(a *ir.GeneratedArtifacts, expected ir.BundleHashes, bundleBytes []byte) (*IntegrityReport, error) {
	report := &IntegrityReport{
		ArtifactsMatch: make(map[string]bool, len(ir.ArtifactOrder)),
		BundleMatch:    true,
		MerkleMatch:    true,
	}

	recomputed, err := HashArtifacts(a)
	if err != nil {
		return nil, fmt.Errorf("canonical: recomputing artifact hashes: %w", err)
	}
	for _, name := range ir.ArtifactOrder {
		got, _ := recomputed.ByName(name)
		want, _ := expected.ArtifactHashes.ByName(name)
		match := got == want
		report.ArtifactsMatch[name] = match
		if !match {
			report.Errors = append(report.Errors,
				fmt.Sprintf("artifact %s digest mismatch: recomputed %s, recorded %s", name, got, want))
		}
	}

	if bundleBytes != nil {
		got := HashBytes(bundleBytes)
		report.BundleMatch = got == expected.BundleHash
		if !report.BundleMatch {
			report.Errors = append(report.Errors,
				fmt.Sprintf("bundle digest mismatch: recomputed %s, recorded %s", got, expected.BundleHash))
		}
	}

	leaves := recomputed.Leaves()
	tree, err := merkle.Build(leaves[:])
	if err != nil {
		return nil, fmt.Errorf("canonical: rebuilding merkle tree: %w", err)
	}
	report.MerkleMatch = tree.Root == expected.MerkleRoot
	if !report.MerkleMatch {
		report.Errors = append(report.Errors,
			fmt.Sprintf("merkle root mismatch: recomputed %s, recorded %s", tree.Root, expected.MerkleRoot))
	}
	for _, name := range ir.ArtifactOrder {
		leaf, _ := expected.ArtifactHashes.ByName(name)
		if proof, ok := expected.MerkleProofs[name]; ok {
			if !merkle.VerifyProof(leaf, proof, expected.MerkleRoot) {
				report.MerkleMatch = false
				report.Errors = append(report.Errors,
					fmt.Sprintf("merkle proof for %s does not replay to recorded root", name))
			}
		}
	}

	report.Valid = report.BundleMatch && report.MerkleMatch
	for _, match := range report.ArtifactsMatch {
		if !match {
			report.Valid = false
		}
	}
	return report, nil
}

// BuildBundleHashes digests the artifacts, builds the Merkle commitment, and
// binds the archive digest into one BundleHashes value.
func BuildBundleHashes(a *ir.GeneratedArtifacts, bundleBytes []byte) (ir.BundleHashes, error) {
	hashes, err := HashArtifacts(a)
	if err != nil {
		return ir.BundleHashes{}, err
	}
	leaves := hashes.Leaves()
	tree, err := merkle.Build(leaves[:])
	if err != nil {
		return ir.BundleHashes{}, err
	}
	proofs := make(map[string][]string, len(ir.ArtifactOrder))
	for i, name := range ir.ArtifactOrder {
		proofs[name] = tree.Proofs[i]
	}
	return ir.BundleHashes{
		ArtifactHashes: hashes,
		BundleHash:     HashBytes(bundleBytes),
		MerkleRoot:     tree.Root,
		MerkleProofs:   proofs,
	}, nil
}
