package generate

import (
	"strings"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

const envVarPrefix = "GJ_SECRET_"

// credentialCollector extracts every secret-reference token from the stage
// tree into the credentials map, and redacts the same tokens out of
// generated nodes so a reference string only ever appears in
// credentials.map.json.
type credentialCollector struct {
	channelID string
	buildID   string
	entries   map[string]ir.CredentialEntry
	byRef     map[string]string // ref -> envVar, for node redaction
}

func newCredentialCollector(channelID, buildID string) *credentialCollector {
	return &credentialCollector{
		channelID: channelID,
		buildID:   buildID,
		entries:   make(map[string]ir.CredentialEntry),
		byRef:     make(map[string]string),
	}
}

// collectStageParams walks a stage's parameter tree and records every
// secret-reference token, keyed "<stageId>.<paramPath>".
func (c *credentialCollector) collectStageParams(stage ir.Stage) {
	for name, value := range stage.Params {
		c.walk(stage.ID, name, value.Decoded())
	}
}

func (c *credentialCollector) walk(stageID, path string, v any) {
	if tok, ok := ir.ClassifyToken(v); ok && tok.Kind == ir.ParamSecretRef {
		c.add(stageID, path, tok.Ref)
		return
	}
	if m, ok := v.(map[string]any); ok {
		for k, child := range m {
			c.walk(stageID, path+"."+k, child)
		}
	}
	// Secrets inside arrays have no stable dotted path and are not legal
	// channel documents, so array elements are not descended.
}

func (c *credentialCollector) add(stageID, paramPath, ref string) {
	key := stageID + "." + paramPath
	if _, ok := c.entries[key]; ok {
		return
	}
	envVar := EnvVarName(stageID, paramPath)
	c.entries[key] = ir.CredentialEntry{Type: "secretRef", Ref: ref, EnvVar: envVar}
	if _, ok := c.byRef[ref]; !ok {
		c.byRef[ref] = envVar
	}
}

// redactNode replaces secret-reference tokens inside a generated node with
// the runtime env-var placeholder. A token whose ref was never declared in
// stage params (one the template itself carried) is registered under the
// node field path first, so it still round-trips through the credentials map.
func (c *credentialCollector) redactNode(stageID string, node ir.GeneratedNode) {
	for k, v := range node {
		node[k] = c.redactValue(stageID, k, v)
	}
}

func (c *credentialCollector) redactValue(stageID, path string, v any) any {
	if tok, ok := ir.ClassifyToken(v); ok && tok.Kind == ir.ParamSecretRef {
		envVar, ok := c.byRef[tok.Ref]
		if !ok {
			c.add(stageID, path, tok.Ref)
			envVar = c.byRef[tok.Ref]
		}
		return "${" + envVar + "}"
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = c.redactValue(stageID, path+"."+k, child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = c.redactValue(stageID, path, child)
		}
		return t
	}
	return v
}

func (c *credentialCollector) result() ir.CredentialsMap {
	return ir.CredentialsMap{
		Version:     1,
		ChannelID:   c.channelID,
		BuildID:     c.buildID,
		Credentials: c.entries,
	}
}

// EnvVarName derives the runtime environment variable for a secret:
// GJ_SECRET_<STAGEID>_<PARAMPATH>, uppercased, every non-alphanumeric rune
// collapsed to underscore.
func EnvVarName(stageID, paramPath string) string {
	raw := stageID + "_" + paramPath
	var b strings.Builder
	b.Grow(len(envVarPrefix) + len(raw))
	b.WriteString(envVarPrefix)
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
