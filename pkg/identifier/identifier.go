// Package identifier derives the deterministic ids used across generated
// artifacts, and mints build ids for compile requests.
package identifier

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// derivedLen is the hex length of derived ids. 16 hex chars (64 bits) keeps
// ids short enough for flow documents while making collisions within one
// channel implausible.
const derivedLen = 16

// Derive returns a stable id for a (kind, seed) pair. The same inputs always
// produce the same id, which is what makes two generation runs of the same
// channel byte-identical.
func Derive(kind, seed string) string {
	h := sha256.Sum256([]byte("gj:id:" + kind + "\x00" + seed))
	return hex.EncodeToString(h[:])[:derivedLen]
}

// NodeID derives the id for a generated flow node.
func NodeID(stageID, templateNodeID string) string {
	return Derive("node", stageID+"-"+templateNodeID)
}

// FallbackNodeID derives the id of the placeholder node emitted when a
// stage's template cannot be generated.
func FallbackNodeID(stageID string) string {
	return Derive("fallback", stageID)
}

// NewBuildID mints a unique id for one compile request.
func NewBuildID() string {
	return "build-" + uuid.New().String()
}
