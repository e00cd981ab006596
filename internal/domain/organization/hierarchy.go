package organization

import (
	"fmt"
	"sort"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// Hierarchy is an immutable index over organization nodes: by code and by
// parent code. It is built once per run and shared read-only by the
// calculator and the pipeline workers.
type Hierarchy struct {
	byCode   map[string]*Node
	children map[string][]*Node
}

// NewHierarchy indexes nodes and validates the tree: codes must be unique,
// parents must exist, and parent links must not form a cycle.
func NewHierarchy(nodes []*Node) (*Hierarchy, error) {
	h := &Hierarchy{
		byCode:   make(map[string]*Node, len(nodes)),
		children: make(map[string][]*Node),
	}

	for _, n := range nodes {
		if n.Code == "" {
			return nil, fmt.Errorf("organization with empty code")
		}
		if _, dup := h.byCode[n.Code]; dup {
			return nil, fmt.Errorf("duplicate organization code %q", n.Code)
		}
		h.byCode[n.Code] = n
	}

	for _, n := range nodes {
		if n.ParentCode == nil {
			continue
		}
		parent, ok := h.byCode[*n.ParentCode]
		if !ok {
			return nil, fmt.Errorf("organization %q references unknown parent %q", n.Code, *n.ParentCode)
		}
		h.children[parent.Code] = append(h.children[parent.Code], n)
	}

	for _, n := range nodes {
		if err := h.checkAncestry(n); err != nil {
			return nil, err
		}
	}

	for code := range h.children {
		sort.Slice(h.children[code], func(i, j int) bool {
			return h.children[code][i].Code < h.children[code][j].Code
		})
	}

	return h, nil
}

// checkAncestry walks parent links from n and fails on a cycle.
func (h *Hierarchy) checkAncestry(n *Node) error {
	seen := map[string]bool{n.Code: true}
	for cur := n; cur.ParentCode != nil; {
		cur = h.byCode[*cur.ParentCode]
		if seen[cur.Code] {
			return fmt.Errorf("organization hierarchy cycle through %q", cur.Code)
		}
		seen[cur.Code] = true
	}
	return nil
}

// Node returns the organization with the given code.
func (h *Hierarchy) Node(code string) (*Node, bool) {
	n, ok := h.byCode[code]
	return n, ok
}

// ParentOf returns the parent of the given organization, or nil at the top
// of the tree.
func (h *Hierarchy) ParentOf(code string) *Node {
	n, ok := h.byCode[code]
	if !ok || n.ParentCode == nil {
		return nil
	}
	return h.byCode[*n.ParentCode]
}

// ActiveLeaves returns every leaf organization active in the given month,
// sorted by code so callers iterate deterministically.
func (h *Hierarchy) ActiveLeaves(period prescribing.Period) []*Node {
	var leaves []*Node
	for _, n := range h.byCode {
		if n.IsLeaf() && n.ActiveIn(period) {
			leaves = append(leaves, n)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Code < leaves[j].Code })
	return leaves
}

// Aggregates returns every non-leaf organization, sorted by code.
func (h *Hierarchy) Aggregates() []*Node {
	var aggs []*Node
	for _, n := range h.byCode {
		if !n.IsLeaf() {
			aggs = append(aggs, n)
		}
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Code < aggs[j].Code })
	return aggs
}

// DescendantLeaves returns all leaf organizations below code, at any depth,
// sorted by code.
func (h *Hierarchy) DescendantLeaves(code string) []*Node {
	var leaves []*Node
	var walk func(string)
	walk = func(c string) {
		for _, child := range h.children[c] {
			if child.IsLeaf() {
				leaves = append(leaves, child)
			} else {
				walk(child.Code)
			}
		}
	}
	walk(code)
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Code < leaves[j].Code })
	return leaves
}
