// Package generate turns a validated channel into the four deployable
// artifacts: the flow document, runtime settings, bundle manifest, and
// credentials map. Generation is deterministic for a fixed (channel,
// buildId) pair, and a single bad stage degrades to one visible fallback
// node instead of aborting the build.
package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/identifier"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/nexon"
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/subst"
)

// Options configures one generation run.
type Options struct {
	BuildID string
	Mode    ir.CompileMode
	Target  ir.RuntimeTarget
}

// Fallback records a stage that degraded to a placeholder node.
type Fallback struct {
	StageID string `json:"stageId"`
	Reason  string `json:"reason"`
}

// Result carries the artifacts plus everything the caller must see about
// how they were produced: degraded stages and unevaluated expressions are
// surfaced, never hidden.
type Result struct {
	Artifacts       ir.GeneratedArtifacts `json:"artifacts"`
	Fallbacks       []Fallback            `json:"fallbacks,omitempty"`
	ExpressionFlags []subst.Flag          `json:"expressionFlags,omitempty"`
}

// Generator assembles artifacts from templates fetched through the injected
// repository.
type Generator struct {
	repo   *nexon.Repository
	engine *subst.Engine
	logger *slog.Logger
}

// New creates a generator.
func New(repo *nexon.Repository, engine *subst.Engine) *Generator {
	return &Generator{
		repo:   repo,
		engine: engine,
		logger: slog.Default().With("component", "generate"),
	}
}

// Generate compiles every stage in declaration order, wires edges, and emits
// the settings, manifest, and credentials artifacts.
func (g *Generator) Generate(ctx context.Context, ch *ir.Channel, opts Options) (*Result, error) {
	if opts.BuildID == "" {
		return nil, fmt.Errorf("generate: build id is required")
	}
	if opts.Mode == "" {
		opts.Mode = ir.ModeProduction
	}
	if opts.Target == "" {
		opts.Target = ch.RuntimeTarget
	}

	res := &Result{}
	creds := newCredentialCollector(ch.ChannelID, opts.BuildID)
	tabID := identifier.Derive("tab", ch.ChannelID)

	flow := make([]ir.GeneratedNode, 0, len(ch.Stages))
	// first and last generated node id per stage, for edge wiring
	firstNode := make(map[string]string, len(ch.Stages))
	lastNode := make(map[string]string, len(ch.Stages))

	for _, stage := range ch.Stages {
		creds.collectStageParams(stage)

		nodes, flags, err := g.generateStage(ctx, ch, stage, opts)
		res.ExpressionFlags = append(res.ExpressionFlags, flags...)
		if err != nil {
			g.logger.WarnContext(ctx, "stage degraded to fallback node",
				"channel", ch.ChannelID, "stage", stage.ID, "error", err)
			res.Fallbacks = append(res.Fallbacks, Fallback{StageID: stage.ID, Reason: err.Error()})
			nodes = []ir.GeneratedNode{fallbackNode(stage, tabID, err)}
		}

		for _, n := range nodes {
			creds.redactNode(stage.ID, n)
		}

		firstNode[stage.ID] = nodes[0].ID()
		lastNode[stage.ID] = nodes[len(nodes)-1].ID()
		flow = append(flow, nodes...)
	}

	wireEdges(flow, ch.Edges, firstNode, lastNode)

	res.Artifacts = ir.GeneratedArtifacts{
		FlowDocument:    flow,
		RuntimeSettings: runtimeSettings(ch, opts),
		Manifest:        bundleManifest(ch, opts),
		CredentialsMap:  creds.result(),
	}
	return res, nil
}

// generateStage fetches, substitutes, and materializes the nodes for one
// stage. Any error here is recoverable: the caller swaps in a fallback node.
func (g *Generator) generateStage(ctx context.Context, ch *ir.Channel, stage ir.Stage, opts Options) ([]ir.GeneratedNode, []subst.Flag, error) {
	tpl, err := g.repo.Fetch(ctx, stage.TemplateID, stage.TemplateVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching template: %w", err)
	}

	sctx := &subst.Context{
		Parameters: decodedParams(stage.Params),
		Stage:      subst.StageInfo{ID: stage.ID, Title: stage.Title},
		Channel:    subst.ChannelInfo{ChannelID: ch.ChannelID, Title: ch.Title},
		Runtime:    &subst.RuntimeInfo{BuildID: opts.BuildID, Target: opts.Target},
	}

	var flags []subst.Flag
	tabID := identifier.Derive("tab", ch.ChannelID)

	// Template-local id -> derived id, for wire remapping.
	localIDs := make(map[string]string, len(tpl.Nodes))
	for i, raw := range tpl.Nodes {
		localIDs[localNodeID(raw, i)] = identifier.NodeID(stage.ID, localNodeID(raw, i))
	}

	nodes := make([]ir.GeneratedNode, 0, len(tpl.Nodes))
	for i, raw := range tpl.Nodes {
		substituted, nodeFlags, err := g.engine.Substitute(copyTree(raw), sctx)
		flags = append(flags, nodeFlags...)
		if err != nil {
			return nil, flags, fmt.Errorf("substituting node %s: %w", localNodeID(raw, i), err)
		}
		node, ok := substituted.(map[string]any)
		if !ok {
			return nil, flags, fmt.Errorf("node %s substituted to %T, want object", localNodeID(raw, i), substituted)
		}

		node["id"] = localIDs[localNodeID(raw, i)]
		node["parentContainerId"] = tabID
		offsetPosition(node, stage.Position)
		node["wires"] = remapWires(node["wires"], localIDs)
		nodes = append(nodes, ir.GeneratedNode(node))
	}

	if len(nodes) == 0 {
		return nil, flags, fmt.Errorf("template %s has no nodes", ir.Key(stage.TemplateID, stage.TemplateVersion))
	}
	return nodes, flags, nil
}

// fallbackNode is the placeholder emitted for a stage that failed to
// generate. It is inert (no wires out by itself) but keeps the stage visible
// and wireable in the flow document.
func fallbackNode(stage ir.Stage, tabID string, cause error) ir.GeneratedNode {
	return ir.GeneratedNode{
		"id":                identifier.FallbackNodeID(stage.ID),
		"type":              "fallback",
		"parentContainerId": tabID,
		"name":              fmt.Sprintf("%s (fallback)", stage.ID),
		"x":                 stage.Position.X,
		"y":                 stage.Position.Y,
		"wires":             [][]string{},
		"reason":            cause.Error(),
	}
}

// wireEdges connects the last node of each edge's source stage to the first
// node of its target stage. Appends are idempotent: an id already present on
// the port is not appended again.
func wireEdges(flow []ir.GeneratedNode, edges []ir.Edge, firstNode, lastNode map[string]string) {
	byID := make(map[string]ir.GeneratedNode, len(flow))
	for _, n := range flow {
		byID[n.ID()] = n
	}

	for _, e := range edges {
		srcID, ok := lastNode[e.From.StageID]
		if !ok {
			continue
		}
		dstID, ok := firstNode[e.To.StageID]
		if !ok {
			continue
		}
		src := byID[srcID]
		wires := src.Wires()
		if len(wires) == 0 {
			wires = [][]string{{}}
		}
		if !contains(wires[0], dstID) {
			wires[0] = append(wires[0], dstID)
		}
		src["wires"] = wires
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// localNodeID returns a template node's own id, or a positional fallback for
// templates that omit ids.
func localNodeID(raw map[string]any, index int) string {
	if id, ok := raw["id"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("n%d", index)
}

// offsetPosition shifts template-local coordinates by the stage's layout
// position. Missing coordinates default to the stage position itself.
func offsetPosition(node map[string]any, pos ir.Position) {
	node["x"] = toFloat(node["x"]) + pos.X
	node["y"] = toFloat(node["y"]) + pos.Y
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	}
	return 0
}

// remapWires rewrites template-local wire targets to derived node ids.
// Unknown targets are kept as-is; the wire may point at a node another
// mechanism provides.
func remapWires(wires any, localIDs map[string]string) [][]string {
	raw := ir.GeneratedNode{"wires": wires}.Wires()
	if raw == nil {
		return [][]string{}
	}
	out := make([][]string, len(raw))
	for i, port := range raw {
		out[i] = make([]string, len(port))
		for j, id := range port {
			if derived, ok := localIDs[id]; ok {
				out[i][j] = derived
			} else {
				out[i][j] = id
			}
		}
	}
	return out
}

// decodedParams lowers the typed params into the generic JSON tree
// substitution operates on, keeping tagged tokens in wire shape.
func decodedParams(params map[string]ir.ParamValue) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v.Decoded()
	}
	return out
}

// copyTree deep-copies a JSON tree so substitution never mutates the cached
// template.
func copyTree(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, child := range v {
		out[k] = copyValue(child)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyTree(t)
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = copyValue(c)
		}
		return out
	default:
		return v
	}
}
