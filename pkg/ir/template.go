package ir

// ParameterDef declares one parameter a template accepts.
type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Secret      bool   `json:"secret,omitempty"`
	Description string `json:"description,omitempty"`
}

// TemplateManifest is the identity and contract of a reusable template
// ("nexon"): what it is called, which version this is, and what it expects.
type TemplateManifest struct {
	ID            string         `json:"id"`
	Version       string         `json:"version"`
	Title         string         `json:"title"`
	Capabilities  []string       `json:"capabilities,omitempty"`
	ParameterDefs []ParameterDef `json:"parameterDefs,omitempty"`
}

// Template is a versioned code-generation unit. Nodes is a flat, ordered list
// of generation units; the generator substitutes parameters into each node
// and assigns deterministic ids.
type Template struct {
	Manifest TemplateManifest `json:"manifest"`
	Nodes    []map[string]any `json:"nodes"`
}

// Key returns the cache key for a template id at a version, with "" mapped
// to "latest".
func Key(templateID, version string) string {
	if version == "" {
		version = "latest"
	}
	return templateID + "@" + version
}
