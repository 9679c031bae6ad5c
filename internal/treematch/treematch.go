// Package treematch searches parsed documents for the first mapping that satisfies a predicate.
package treematch

import (
	"strconv"

	"cdkop/internal/document"
)

// Predicate decides whether a mapping node matches. key is the node's key in its parent
// (the element index for sequence members, "" for the document root).
type Predicate func(key string, node *document.Mapping) bool

// Match is a node found by Find or FindAll.
type Match struct {
	Key  string
	Node *document.Mapping
}

// Find performs a depth-first pre-order traversal of doc and returns the first mapping
// satisfying pred. Children of a matching node are not visited.
func Find(doc document.Value, pred Predicate) (Match, bool) {
	var found Match
	ok := walk("", doc, func(key string, node *document.Mapping) bool {
		if pred(key, node) {
			found = Match{Key: key, Node: node}
			return true
		}
		return false
	})
	return found, ok
}

// FindAll returns every mapping satisfying pred, in the order Find would encounter them.
// Unlike Find it also descends into matching nodes.
func FindAll(doc document.Value, pred Predicate) []Match {
	var matches []Match
	walk("", doc, func(key string, node *document.Mapping) bool {
		if pred(key, node) {
			matches = append(matches, Match{Key: key, Node: node})
		}
		return false
	})
	return matches
}

// walk visits v and its descendants in pre-order until visit returns true.
func walk(key string, v document.Value, visit func(string, *document.Mapping) bool) bool {
	switch n := v.(type) {
	case *document.Mapping:
		if visit(key, n) {
			return true
		}
		for _, e := range n.Entries() {
			if walk(e.Key, e.Value, visit) {
				return true
			}
		}
	case document.Sequence:
		for i, el := range n {
			if walk(strconv.Itoa(i), el, visit) {
				return true
			}
		}
	case document.Scalar, nil:
	}
	return false
}
