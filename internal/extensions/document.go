// Package extensions holds the index extensions served by the indexer and the
// content type they share.
package extensions

import (
	"path/filepath"
	"strings"
)

// Document is one input as delivered by the content producer.
type Document struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

var plainTextExts = map[string]struct{}{
	".txt": {}, ".md": {}, ".rst": {}, ".adoc": {},
}

// IsPlainText reports whether the document is prose rather than source code.
func (d Document) IsPlainText() bool {
	_, ok := plainTextExts[strings.ToLower(filepath.Ext(d.Path))]
	return ok
}
