// Package diag renders post-run diagnostics over an expander.Expander:
// an ASCII tree of the macro expansion call graph, and (via graph.go)
// its connected components.
//
// ExpansionTree is adapted from the teacher's tree/tree.go, which drew
// an ASCII tree of BGP AS-paths (BGP_heuristics.go's build_tree). The
// teacher's version keyed children by a bare map[string]Tree, giving
// nondeterministic print order and no protection against inserting the
// same node twice under different parents; this version keeps
// insertion order (a slice, recorded once in the dedup map) and keys
// nodes globally by name, which is safe here because the expander's
// own "already" set (see package nameset) guarantees every macro name
// is expanded at most once for the whole run.
package diag

import (
	"fmt"
	"io"

	"github.com/Emeline-1/irrexpand/expander"
)

type treeNode struct {
	name     string
	children []*treeNode
}

// ExpansionTree is the call tree of AS-set expansions issued during a
// run, rooted at a synthetic empty node whose children are the
// caller's top-level objects.
type ExpansionTree struct {
	root   treeNode
	byName map[string]*treeNode
}

// NewExpansionTree builds an ExpansionTree from edges — typically
// expander.Expander.Edges() after a run completes.
func NewExpansionTree(edges []expander.Edge) *ExpansionTree {
	t := &ExpansionTree{byName: make(map[string]*treeNode)}
	for _, e := range edges {
		t.addEdge(e.Parent, e.Child)
	}
	return t
}

func (t *ExpansionTree) addEdge(parent, child string) {
	if _, seen := t.byName[child]; seen {
		return
	}
	p := &t.root
	if parent != "" {
		if pn, ok := t.byName[parent]; ok {
			p = pn
		}
	}
	n := &treeNode{name: child}
	p.children = append(p.children, n)
	t.byName[child] = n
}

// Fprint writes the tree using the same box-drawing glyphs the teacher
// used (├ └ │), one line per expanded macro.
func (t *ExpansionTree) Fprint(w io.Writer) {
	for i, child := range t.root.children {
		fprintNode(w, child, "", i == len(t.root.children)-1)
	}
}

func fprintNode(w io.Writer, n *treeNode, prefix string, last bool) {
	connector := "├── "
	if last {
		connector = "└── "
	}
	fmt.Fprintf(w, "%s%s%s\n", prefix, connector, n.name)

	childPrefix := prefix + "│   "
	if last {
		childPrefix = prefix + "    "
	}
	for i, c := range n.children {
		fprintNode(w, c, childPrefix, i == len(n.children)-1)
	}
}
