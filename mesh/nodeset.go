package mesh

import "sort"

// NodeSelector identifies the nodes whose DOFs are rotated into a local frame
type NodeSelector interface {
	Selected(node int) bool
}

// SelectorFunc adapts a plain function to a NodeSelector
type SelectorFunc func(node int) bool

func (f SelectorFunc) Selected(node int) bool { return f(node) }

// NodeSet is a precomputed bitmap of selected nodes
type NodeSet struct {
	bits  []bool
	count int
}

func NewNodeSet(numNodes int, nodes ...int) *NodeSet {
	ns := &NodeSet{bits: make([]bool, numNodes)}
	for _, n := range nodes {
		ns.Add(n)
	}
	return ns
}

// Add marks node as selected, growing the bitmap if needed. Negative indices
// are ignored.
func (ns *NodeSet) Add(node int) {
	if node < 0 {
		return
	}
	if node >= len(ns.bits) {
		grown := make([]bool, max(node+1, 2*len(ns.bits)))
		copy(grown, ns.bits)
		ns.bits = grown
	}
	if !ns.bits[node] {
		ns.bits[node] = true
		ns.count++
	}
}

func (ns *NodeSet) Contains(node int) bool {
	return node >= 0 && node < len(ns.bits) && ns.bits[node]
}

func (ns *NodeSet) Selected(node int) bool { return ns.Contains(node) }

func (ns *NodeSet) Len() int { return ns.count }

// Nodes returns the selected nodes in ascending order
func (ns *NodeSet) Nodes() []int {
	nodes := make([]int, 0, ns.count)
	for n, ok := range ns.bits {
		if ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Union merges another set into this one
func (ns *NodeSet) Union(other *NodeSet) *NodeSet {
	for _, n := range other.Nodes() {
		ns.Add(n)
	}
	return ns
}

// SelectNodes builds a NodeSet from a predicate on node index and position
func SelectNodes(m *Mesh, pred func(node int, x []float64) bool) *NodeSet {
	ns := NewNodeSet(m.NumVertices())
	for n, x := range m.Vertices {
		if pred(n, x) {
			ns.Add(n)
		}
	}
	return ns
}

// NodesOf returns the sorted, de-duplicated nodes of the given selector that
// appear in the mesh
func NodesOf(m *Mesh, sel NodeSelector) []int {
	if ns, ok := sel.(*NodeSet); ok {
		return ns.Nodes()
	}
	var nodes []int
	for n := range m.Vertices {
		if sel.Selected(n) {
			nodes = append(nodes, n)
		}
	}
	sort.Ints(nodes)
	return nodes
}
