package ir

// Artifact names, in canonical bundle order. Every hash list, Merkle leaf
// set, and proof map uses exactly this order.
const (
	ArtifactFlowDocument    = "flowDocument"
	ArtifactRuntimeSettings = "runtimeSettings"
	ArtifactManifest        = "manifest"
	ArtifactCredentialsMap  = "credentialsMap"
)

// ArtifactOrder is the fixed leaf order for hashing and proofs.
var ArtifactOrder = [4]string{
	ArtifactFlowDocument,
	ArtifactRuntimeSettings,
	ArtifactManifest,
	ArtifactCredentialsMap,
}

// File names inside a bundle archive.
const (
	FlowsFileName          = "flows.json"
	SettingsFileName       = "settings.json"
	ManifestFileName       = "manifest.json"
	CredentialsMapFileName = "credentials.map.json"
	BundleMetadataFileName = "bundle.meta.json"
)

// GeneratedNode is one flow node emitted by the generator. Beyond the fixed
// keys (id, type, parentContainerId, x, y, wires) it carries whatever fields
// the template defined, so it stays an open map.
type GeneratedNode map[string]any

// ID returns the node's id field, or "".
func (n GeneratedNode) ID() string {
	s, _ := n["id"].(string)
	return s
}

// Wires returns the node's outgoing wire lists, decoding both the in-memory
// and the JSON-decoded representation.
func (n GeneratedNode) Wires() [][]string {
	switch w := n["wires"].(type) {
	case [][]string:
		return w
	case []any:
		out := make([][]string, 0, len(w))
		for _, port := range w {
			switch p := port.(type) {
			case []string:
				out = append(out, p)
			case []any:
				ids := make([]string, 0, len(p))
				for _, id := range p {
					if s, ok := id.(string); ok {
						ids = append(ids, s)
					}
				}
				out = append(out, ids)
			}
		}
		return out
	}
	return nil
}

// CompileMode selects generation behavior: production hardens the runtime
// settings, debug keeps verbose logging.
type CompileMode string

const (
	ModeProduction CompileMode = "production"
	ModeDebug      CompileMode = "debug"
)

// LogSettings configures runtime logging emitted into the settings artifact.
type LogSettings struct {
	Level        string `json:"level"`
	AuditEnabled bool   `json:"auditEnabled"`
	Console      bool   `json:"console"`
}

// RuntimeSettings is the execution-environment configuration artifact. The
// interactive editor and admin API are always disabled in generated output;
// production mode additionally forces HTTPS and conservative logging.
type RuntimeSettings struct {
	Version         int            `json:"version"`
	ChannelID       string         `json:"channelId"`
	BuildID         string         `json:"buildId"`
	Mode            CompileMode    `json:"mode"`
	Target          RuntimeTarget  `json:"target"`
	EditorEnabled   bool           `json:"editorEnabled"`
	AdminAPIEnabled bool           `json:"adminApiEnabled"`
	RequireHTTPS    bool           `json:"requireHttps"`
	Logging         LogSettings    `json:"logging"`
	Security        SecurityIntent `json:"security"`
}

// ArtifactPaths locates the artifact files inside a bundle.
type ArtifactPaths struct {
	FlowsJSONPath      string `json:"flowsJsonPath"`
	SettingsPath       string `json:"settingsPath"`
	CredentialsMapPath string `json:"credentialsMapPath"`
}

// BundleManifest records the bundle coordinates: which channel and build the
// archive belongs to and where each artifact lives inside it.
type BundleManifest struct {
	Version   int           `json:"version"`
	ChannelID string        `json:"channelId"`
	BuildID   string        `json:"buildId"`
	Mode      CompileMode   `json:"mode"`
	Artifacts ArtifactPaths `json:"artifacts"`
}

// CredentialEntry maps one secret reference to the environment variable the
// runtime resolves it from. The reference is opaque; no secret value ever
// appears here.
type CredentialEntry struct {
	Type   string `json:"type"`
	Ref    string `json:"ref"`
	EnvVar string `json:"envVar"`
}

// CredentialsMap is the artifact enumerating every secret reference found in
// the channel, keyed by "<stageId>.<paramPath>".
type CredentialsMap struct {
	Version     int                        `json:"version"`
	ChannelID   string                     `json:"channelId"`
	BuildID     string                     `json:"buildId"`
	Credentials map[string]CredentialEntry `json:"credentials"`
}

// GeneratedArtifacts is the complete output of artifact generation: exactly
// four members, each independently hashable.
type GeneratedArtifacts struct {
	FlowDocument    []GeneratedNode `json:"flowDocument"`
	RuntimeSettings RuntimeSettings `json:"runtimeSettings"`
	Manifest        BundleManifest  `json:"manifest"`
	CredentialsMap  CredentialsMap  `json:"credentialsMap"`
}

// ByName returns the artifact value for a canonical artifact name.
func (g *GeneratedArtifacts) ByName(name string) (any, bool) {
	switch name {
	case ArtifactFlowDocument:
		return g.FlowDocument, true
	case ArtifactRuntimeSettings:
		return g.RuntimeSettings, true
	case ArtifactManifest:
		return g.Manifest, true
	case ArtifactCredentialsMap:
		return g.CredentialsMap, true
	}
	return nil, false
}

// ArtifactHashes holds one SHA-256 hex digest per artifact.
type ArtifactHashes struct {
	FlowDocument    string `json:"flowDocument"`
	RuntimeSettings string `json:"runtimeSettings"`
	Manifest        string `json:"manifest"`
	CredentialsMap  string `json:"credentialsMap"`
}

// Leaves returns the digests in canonical leaf order.
func (h ArtifactHashes) Leaves() [4]string {
	return [4]string{h.FlowDocument, h.RuntimeSettings, h.Manifest, h.CredentialsMap}
}

// ByName returns the digest for a canonical artifact name.
func (h ArtifactHashes) ByName(name string) (string, bool) {
	switch name {
	case ArtifactFlowDocument:
		return h.FlowDocument, true
	case ArtifactRuntimeSettings:
		return h.RuntimeSettings, true
	case ArtifactManifest:
		return h.Manifest, true
	case ArtifactCredentialsMap:
		return h.CredentialsMap, true
	}
	return "", false
}

// BundleHashes is the integrity commitment for a bundle: per-artifact
// digests, the digest of the archive bytes, and a Merkle root with one
// inclusion proof per artifact, suitable for external anchoring.
type BundleHashes struct {
	ArtifactHashes ArtifactHashes      `json:"artifactHashes"`
	BundleHash     string              `json:"bundleHash"`
	MerkleRoot     string              `json:"merkleRoot"`
	MerkleProofs   map[string][]string `json:"merkleProofs"`
}
