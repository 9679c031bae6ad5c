// Package template looks up resources in a synthesized CloudFormation template.
package template

import (
	"cdkop/internal/document"
	"cdkop/internal/treematch"
)

// MetadataPathKey is the template metadata field carrying the construct path.
const MetadataPathKey = "aws:cdk:path"

const (
	fieldType     = "Type"
	fieldMetadata = "Metadata"
)

// Entry is a template resource together with its logical id.
type Entry struct {
	LogicalID string            `json:"logicalId"`
	Type      string            `json:"type"`
	Path      string            `json:"path"`
	Value     *document.Mapping `json:"-"`
}

// ByMetadataPath matches template entries whose Metadata["aws:cdk:path"] equals path.
func ByMetadataPath(path string) treematch.Predicate {
	return func(_ string, node *document.Mapping) bool {
		md, ok := node.Mapping(fieldMetadata)
		if !ok {
			return false
		}
		got, ok := md.String(MetadataPathKey)
		return ok && got == path
	}
}

// Index answers lookups against one template document.
type Index struct {
	doc document.Value
}

// NewIndex wraps a parsed template document.
func NewIndex(doc document.Value) *Index {
	return &Index{doc: doc}
}

// FindByMetadataPath returns the entry whose metadata path equals exactPath.
func (i *Index) FindByMetadataPath(exactPath string) (Entry, bool) {
	m, ok := treematch.Find(i.doc, ByMetadataPath(exactPath))
	if !ok {
		return Entry{}, false
	}
	e := Entry{
		LogicalID: m.Key,
		Path:      exactPath,
		Value:     m.Node,
	}
	e.Type, _ = m.Node.String(fieldType)
	return e, true
}

// Metadata returns the entry's Metadata object.
func (e Entry) Metadata() *document.Mapping {
	if e.Value == nil {
		return nil
	}
	md, _ := e.Value.Mapping(fieldMetadata)
	return md
}
