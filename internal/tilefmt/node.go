package tilefmt

// NodePtr is a FeaturePtr known to be a node (spec §3.3). A node body is
// empty unless the node is a relation member, in which case it points at
// a RelationTablePtr.
type NodePtr struct{ FeaturePtr }

// AsNode wraps a FeaturePtr as a NodePtr; the caller must have already
// checked p.IsNode().
func AsNode(p FeaturePtr) NodePtr { return NodePtr{p} }

// X and Y return the node's coordinate (a node's bbox collapses to a
// single point).
func (n NodePtr) X() int32 { return n.Bounds().MinX }
func (n NodePtr) Y() int32 { return n.Bounds().MinY }

// Relations returns the node's parent-relation table, valid only when
// HasRelations() is true.
func (n NodePtr) Relations() RelationTablePtr {
	return NewRelationTablePtr(n.tileBytes(), n.BodyOffset())
}

// tileBytes exposes the backing tile slice for constructing a sibling
// view (RelationTablePtr) at the feature's body offset.
func (p FeaturePtr) tileBytes() []byte { return p.tile }
