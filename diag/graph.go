// ConnectedComponents (below) groups the macro names touched by a run
// into connected components of their expansion edges, grounded on the
// teacher's use of github.com/Emeline-1/basic_graph for the same
// computation over a different edge set (overlays_processing.go's
// aggregate/overlay edges, rib_analysis.go's per-file overlay edges):
// build a graph, add every edge, then iterate its connected components.
//
// The synthetic root edges (Parent "") are left out, so within one run
// each top-level object's subtree forms its own component unless it
// shares a set name with another; a top-level object that expanded into
// no set name appears in no component.
package diag

import (
	graph "github.com/Emeline-1/basic_graph"

	"github.com/Emeline-1/irrexpand/expander"
)

// ConnectedComponents groups the macro names appearing in edges into
// sets that are mutually reachable, ignoring edge direction — the same
// flattening the teacher applied to its overlay graphs.
func ConnectedComponents(edges []expander.Edge) [][]string {
	g := graph.New()
	for _, e := range edges {
		if e.Parent == "" {
			continue // synthetic root edge, not a real macro relationship
		}
		g.Add_edge(e.Parent, e.Child)
	}

	var components [][]string
	g.Set_iterator()
	for g.Next_connected_component() {
		cc := g.Connected_component()
		component := make([]string, len(cc))
		copy(component, cc)
		components = append(components, component)
	}
	return components
}
