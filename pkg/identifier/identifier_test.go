package identifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := Derive("node", "stage-1-n0")
	b := Derive("node", "stage-1-n0")
	assert.Equal(t, a, b)
	assert.Len(t, a, derivedLen)
}

func TestDeriveSeparatesKinds(t *testing.T) {
	assert.NotEqual(t, Derive("node", "stage-1"), Derive("fallback", "stage-1"))
	assert.NotEqual(t, NodeID("s1", "n0"), NodeID("s1", "n1"))
	assert.NotEqual(t, NodeID("s1", "n0"), NodeID("s2", "n0"))
}

func TestNewBuildID(t *testing.T) {
	id := NewBuildID()
	assert.True(t, strings.HasPrefix(id, "build-"))
	assert.NotEqual(t, id, NewBuildID())
}
