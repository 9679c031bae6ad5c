// Package construct indexes a CDK construct tree (tree.json).
package construct

import (
	"strings"

	"cdkop/internal/document"
	"cdkop/internal/treematch"
)

// DefaultStackType is the construct FQN of a CloudFormation stack.
const DefaultStackType = "aws-cdk-lib.Stack"

// Field names fixed by the tree.json format.
const (
	fieldID            = "id"
	fieldPath          = "path"
	fieldChildren      = "children"
	fieldConstructInfo = "constructInfo"
	fieldAttributes    = "attributes"
	fieldFQN           = "fqn"
	fieldVersion       = "version"
)

// Info identifies the class a construct was created from.
type Info struct {
	FQN     string `json:"fqn"`
	Version string `json:"version,omitempty"`
}

// Node is a typed view of one construct in the tree.
type Node struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	// Info is nil when the node carries no constructInfo.
	Info *Info `json:"constructInfo,omitempty"`

	raw *document.Mapping
}

// NodeFromMapping reads the construct fields present on m.
func NodeFromMapping(m *document.Mapping) Node {
	n := Node{raw: m}
	n.ID, _ = m.String(fieldID)
	n.Path, _ = m.String(fieldPath)
	if ci, ok := m.Mapping(fieldConstructInfo); ok {
		if fqn, ok := ci.String(fieldFQN); ok {
			n.Info = &Info{FQN: fqn}
			n.Info.Version, _ = ci.String(fieldVersion)
		}
	}
	return n
}

// FQN returns the construct's fully-qualified type name, or "" when unknown.
func (n Node) FQN() string {
	if n.Info == nil {
		return ""
	}
	return n.Info.FQN
}

// Attributes returns the node's attributes object, if any.
func (n Node) Attributes() (*document.Mapping, bool) {
	if n.raw == nil {
		return nil, false
	}
	return n.raw.Mapping(fieldAttributes)
}

// Children returns the node's direct children. tree.json stores them as an object keyed by
// child id; an array of nodes is accepted too.
func (n Node) Children() []Node {
	if n.raw == nil {
		return nil
	}
	v, ok := n.raw.Get(fieldChildren)
	if !ok {
		return nil
	}

	var children []Node
	switch c := v.(type) {
	case *document.Mapping:
		for _, e := range c.Entries() {
			if m, ok := e.Value.(*document.Mapping); ok {
				children = append(children, NodeFromMapping(m))
			}
		}
	case document.Sequence:
		for _, el := range c {
			if m, ok := el.(*document.Mapping); ok {
				children = append(children, NodeFromMapping(m))
			}
		}
	}
	return children
}

// Subtree returns an index over n and its descendants.
func (n Node) Subtree() *Index {
	if n.raw == nil {
		return NewIndex(nil)
	}
	return NewIndex(n.raw)
}

// ByPathSuffix matches nodes whose path ends with query.
func ByPathSuffix(query string) treematch.Predicate {
	return func(_ string, node *document.Mapping) bool {
		path, ok := node.String(fieldPath)
		return ok && strings.HasSuffix(path, query)
	}
}

// ByConstructType matches nodes whose constructInfo.fqn equals fqn.
func ByConstructType(fqn string) treematch.Predicate {
	return func(_ string, node *document.Mapping) bool {
		ci, ok := node.Mapping(fieldConstructInfo)
		if !ok {
			return false
		}
		got, ok := ci.String(fieldFQN)
		return ok && got == fqn
	}
}

// ByStack matches nodes of type fqn whose id or path equals id.
func ByStack(fqn, id string) treematch.Predicate {
	isType := ByConstructType(fqn)
	return func(key string, node *document.Mapping) bool {
		if !isType(key, node) {
			return false
		}
		nodeID, _ := node.String(fieldID)
		path, _ := node.String(fieldPath)
		return nodeID == id || path == id
	}
}

// Index answers construct lookups against one tree document.
type Index struct {
	doc document.Value
}

// NewIndex wraps a parsed tree.json document.
func NewIndex(doc document.Value) *Index {
	return &Index{doc: doc}
}

// FindByPath returns the first node in pre-order whose path ends with query.
func (i *Index) FindByPath(query string) (Node, bool) {
	m, ok := treematch.Find(i.doc, ByPathSuffix(query))
	if !ok {
		return Node{}, false
	}
	return NodeFromMapping(m.Node), true
}

// FindAllByPath returns every node whose path ends with query, in pre-order.
func (i *Index) FindAllByPath(query string) []Node {
	matches := treematch.FindAll(i.doc, ByPathSuffix(query))
	nodes := make([]Node, 0, len(matches))
	for _, m := range matches {
		nodes = append(nodes, NodeFromMapping(m.Node))
	}
	return nodes
}

// FindByType returns the first node whose constructInfo.fqn equals fqn.
func (i *Index) FindByType(fqn string) (Node, bool) {
	m, ok := treematch.Find(i.doc, ByConstructType(fqn))
	if !ok {
		return Node{}, false
	}
	return NodeFromMapping(m.Node), true
}

// FindStack returns the stack of type fqn with the given id or path. An empty id returns
// the first stack in tree order.
func (i *Index) FindStack(fqn, id string) (Node, bool) {
	if id == "" {
		return i.FindByType(fqn)
	}
	m, ok := treematch.Find(i.doc, ByStack(fqn, id))
	if !ok {
		return Node{}, false
	}
	return NodeFromMapping(m.Node), true
}

// FindAllByType returns every node whose constructInfo.fqn equals fqn.
func (i *Index) FindAllByType(fqn string) []Node {
	matches := treematch.FindAll(i.doc, ByConstructType(fqn))
	nodes := make([]Node, 0, len(matches))
	for _, m := range matches {
		nodes = append(nodes, NodeFromMapping(m.Node))
	}
	return nodes
}
