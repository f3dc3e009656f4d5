package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// semantic runs the structural checks over a schema-valid channel,
// accumulating all findings into res.
func semantic(ch *ir.Channel, res *Result) {
	checkDuplicateIDs(ch, res)
	checkEdgeReferences(ch, res)
	checkOrphans(ch, res)
	checkCycles(ch, res)
}

func checkDuplicateIDs(ch *ir.Channel, res *Result) {
	seen := make(map[string]bool, len(ch.Stages))
	for i, st := range ch.Stages {
		if seen[st.ID] {
			res.Errors = append(res.Errors, Issue{
				Code:     CodeDuplicateStageID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("stage id %q declared more than once", st.ID),
				Path:     fmt.Sprintf("/stages/%d/id", i),
			})
		}
		seen[st.ID] = true
	}

	seenEdges := make(map[string]bool, len(ch.Edges))
	for i, e := range ch.Edges {
		if seenEdges[e.ID] {
			res.Errors = append(res.Errors, Issue{
				Code:     CodeDuplicateEdgeID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge id %q declared more than once", e.ID),
				Path:     fmt.Sprintf("/edges/%d/id", i),
			})
		}
		seenEdges[e.ID] = true
	}
}

func checkEdgeReferences(ch *ir.Channel, res *Result) {
	stages := make(map[string]bool, len(ch.Stages))
	for _, st := range ch.Stages {
		stages[st.ID] = true
	}
	for i, e := range ch.Edges {
		if !stages[e.From.StageID] {
			res.Errors = append(res.Errors, Issue{
				Code:     CodeDanglingEdge,
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge %q references unknown source stage %q", e.ID, e.From.StageID),
				Path:     fmt.Sprintf("/edges/%d/from/stageId", i),
			})
		}
		if !stages[e.To.StageID] {
			res.Errors = append(res.Errors, Issue{
				Code:     CodeDanglingEdge,
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge %q references unknown target stage %q", e.ID, e.To.StageID),
				Path:     fmt.Sprintf("/edges/%d/to/stageId", i),
			})
		}
	}
}

// checkOrphans flags stages no edge touches. Advisory: an orphan stage is
// legal but usually a forgotten leftover in the editor.
func checkOrphans(ch *ir.Channel, res *Result) {
	touched := make(map[string]bool, len(ch.Stages))
	for _, e := range ch.Edges {
		touched[e.From.StageID] = true
		touched[e.To.StageID] = true
	}
	for _, st := range ch.Stages {
		if !touched[st.ID] {
			res.Warnings = append(res.Warnings, Issue{
				Code:     CodeOrphanStage,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("stage %q is not connected to any edge", st.ID),
			})
		}
	}
}

// checkCycles runs a recursion-stack DFS over the edge adjacency list.
// Cycles are tolerated at validation time (feedback loops are a legitimate
// channel pattern) and only flagged.
func checkCycles(ch *ir.Channel, res *Result) {
	adj := make(map[string][]string, len(ch.Stages))
	for _, e := range ch.Edges {
		adj[e.From.StageID] = append(adj[e.From.StageID], e.To.StageID)
	}

	visited := make(map[string]bool, len(ch.Stages))
	onStack := make(map[string]bool, len(ch.Stages))
	var cycles [][]string

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)
		for _, next := range adj[node] {
			if onStack[next] {
				cycles = append(cycles, cyclePath(path, next))
				continue
			}
			if !visited[next] {
				dfs(next, path)
			}
		}
		onStack[node] = false
	}

	// Stable iteration keeps the reported cycle deterministic.
	ids := make([]string, 0, len(ch.Stages))
	for _, st := range ch.Stages {
		ids = append(ids, st.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !visited[id] {
			dfs(id, nil)
		}
	}

	for _, cyc := range cycles {
		res.Warnings = append(res.Warnings, Issue{
			Code:     CodeCycle,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("cycle detected: %s", strings.Join(cyc, " -> ")),
		})
	}
}

// cyclePath trims the DFS path to the segment starting at the revisited node
// and closes the loop.
func cyclePath(path []string, start string) []string {
	for i, id := range path {
		if id == start {
			cyc := append([]string(nil), path[i:]...)
			return append(cyc, start)
		}
	}
	return []string{start, start}
}
