package geometry

// Node is a named position in a model tree. Geometries embed one so that
// assemblies can be organized hierarchically and addressed by path.
type Node struct {
	tag      string
	parent   *Node
	children []*Node
}

// NewNode creates a node with the given tag and attaches it to parent.
// A nil parent makes the node a root.
func NewNode(tag string, parent *Node) *Node {
	n := &Node{tag: tag, parent: parent}
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

// Tag returns the node name.
func (n *Node) Tag() string { return n.tag }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the direct children in attachment order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Root walks up to the top of the tree.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Path returns the slash-separated tags from the root down to this node.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/" + n.tag
	}
	return n.parent.Path() + "/" + n.tag
}

// Depth is the number of ancestors above this node.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}
