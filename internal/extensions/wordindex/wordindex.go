// Package wordindex maps every identifier of a document to a mask of the
// places it occurs in: code, comments, strings or plain text.
package wordindex

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer/tokenizer"
)

const (
	Name    = "words"
	Version = 2
)

// Index is the concrete index type built from Extension.
type Index = index.MapReduceIndex[extensions.Document, string, uint8]

// Extension returns the word index. Unless caseSensitive is set, identifiers
// are lower-cased.
func Extension(caseSensitive bool) index.Extension[extensions.Document, string, uint8] {
	return index.Extension[extensions.Document, string, uint8]{
		Name:    Name,
		Version: Version,
		Indexer: index.DataIndexerFunc[extensions.Document, string, uint8](func(ctx context.Context, doc extensions.Document) (map[string]uint8, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if doc.IsPlainText() {
				return tokenizer.PlainText(doc.Text, !caseSensitive), nil
			}
			return tokenizer.Occurrences(doc.Text, !caseSensitive), nil
		}),
		Keys:   index.StringDescriptor{},
		Values: index.ByteDescriptor{},
	}
}

// ContextFilter keeps occurrences in any of the places set in mask. A zero
// mask keeps everything.
func ContextFilter(mask uint8) func(uint8) bool {
	if mask == 0 {
		return nil
	}
	return func(v uint8) bool { return v&mask != 0 }
}

// ParseContext turns names like "code" or "comments" into a context mask.
func ParseContext(names ...string) (uint8, bool) {
	var mask uint8
	for _, n := range names {
		switch n {
		case "code":
			mask |= tokenizer.InCode
		case "comments":
			mask |= tokenizer.InComments
		case "strings":
			mask |= tokenizer.InStrings
		case "text":
			mask |= tokenizer.InPlainText
		case "", "any":
		default:
			return 0, false
		}
	}
	return mask, true
}
