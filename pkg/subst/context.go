// Package subst resolves template placeholders against a per-stage context.
// It walks arbitrary JSON structures, replaces "{{ path }}" strings by
// dot-segment lookup, passes secret-reference tokens through untouched, and
// defers expression tokens to an evaluator hook.
package subst

import (
	"fmt"
	"strings"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// StageInfo names the stage being generated.
type StageInfo struct {
	ID    string
	Title string
}

// ChannelInfo names the channel being compiled.
type ChannelInfo struct {
	ChannelID string
	Title     string
}

// RuntimeInfo carries build-time coordinates. Optional: templates compiled
// outside a build (previews, dry runs) have no runtime scope.
type RuntimeInfo struct {
	BuildID string
	Target  ir.RuntimeTarget
}

// Context is the resolution scope for one stage's substitution pass.
type Context struct {
	Parameters map[string]any
	Stage      StageInfo
	Channel    ChannelInfo
	Runtime    *RuntimeInfo
}

// tree flattens the context into the generic map that both placeholder
// lookup and expression evaluation operate on.
func (c *Context) tree() map[string]any {
	root := map[string]any{
		"parameters": c.Parameters,
		"stage": map[string]any{
			"id":    c.Stage.ID,
			"title": c.Stage.Title,
		},
		"channel": map[string]any{
			"channelId": c.Channel.ChannelID,
			"title":     c.Channel.Title,
		},
	}
	if c.Runtime != nil {
		root["runtime"] = map[string]any{
			"buildId": c.Runtime.BuildID,
			"target":  string(c.Runtime.Target),
		}
	}
	return root
}

// Resolve walks a dotted path into the context. Every segment must resolve;
// the error names the full requested path and the segment that failed.
func (c *Context) Resolve(path string) (any, error) {
	segments := strings.Split(path, ".")
	var current any = c.tree()
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("subst: empty segment in path %q", path)
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("subst: path %q: segment %q is not traversable", path, strings.Join(segments[:i], "."))
		}
		next, ok := m[seg]
		if !ok {
			return nil, fmt.Errorf("subst: path %q: segment %q not found", path, seg)
		}
		current = next
	}
	return current, nil
}
