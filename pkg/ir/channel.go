// Package ir defines the Channel intermediate representation: the declarative
// integration-workflow graph accepted by the compiler, plus the artifact and
// hash types the pipeline produces from it.
package ir

// RuntimeTarget selects the execution environment a channel is compiled for.
type RuntimeTarget string

const (
	TargetOnPrem RuntimeTarget = "on-prem"
	TargetCloud  RuntimeTarget = "cloud"
)

// Valid reports whether t is a known runtime target.
func (t RuntimeTarget) Valid() bool {
	return t == TargetOnPrem || t == TargetCloud
}

// SecurityIntent carries the channel author's declared exposure flags.
// Everything defaults to false (deny); the policy engine decides whether the
// organization tolerates what the author asked for.
type SecurityIntent struct {
	AllowInternetHTTPOut bool `json:"allowInternetHttpOut" yaml:"allowInternetHttpOut"`
	AllowInternetTCPOut  bool `json:"allowInternetTcpOut" yaml:"allowInternetTcpOut"`
	AllowInternetUDPOut  bool `json:"allowInternetUdpOut" yaml:"allowInternetUdpOut"`
	AllowPublicHTTPIn    bool `json:"allowHttpInPublic" yaml:"allowHttpInPublic"`
}

// EgressRequested reports whether any outbound internet flag is set.
func (s SecurityIntent) EgressRequested() bool {
	return s.AllowInternetHTTPOut || s.AllowInternetTCPOut || s.AllowInternetUDPOut
}

// Position is layout-only metadata. The compiler offsets generated node
// coordinates by it but never branches on it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stage is one instantiated template placed in the channel graph.
type Stage struct {
	ID              string                `json:"id"`
	TemplateID      string                `json:"templateId"`
	TemplateVersion string                `json:"templateVersion,omitempty"`
	Title           string                `json:"title,omitempty"`
	Params          map[string]ParamValue `json:"params,omitempty"`
	Position        Position              `json:"position"`
}

// Endpoint names one side of an edge. Outlet/Inlet are optional port hints
// for templates that expose more than one connection point.
type Endpoint struct {
	StageID string `json:"stageId"`
	Outlet  string `json:"outlet,omitempty"`
	Inlet   string `json:"inlet,omitempty"`
}

// Edge connects two stages. Both endpoints must name a declared stage id.
type Edge struct {
	ID   string   `json:"id"`
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// Channel is the compile unit: a titled graph of stages and edges with a
// runtime target and declared security intent. It is immutable input; the
// pipeline never mutates it.
type Channel struct {
	ChannelID      string         `json:"channelId"`
	Title          string         `json:"title"`
	RuntimeTarget  RuntimeTarget  `json:"runtimeTarget"`
	SecurityIntent SecurityIntent `json:"securityIntent"`
	Stages         []Stage        `json:"stages"`
	Edges          []Edge         `json:"edges"`
}

// StageByID returns the stage with the given id, or nil.
func (c *Channel) StageByID(id string) *Stage {
	for i := range c.Stages {
		if c.Stages[i].ID == id {
			return &c.Stages[i]
		}
	}
	return nil
}
