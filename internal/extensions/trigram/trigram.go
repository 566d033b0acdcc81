// Package trigram indexes the identifier trigrams of documents so that
// substring searches only have to look at candidate inputs.
package trigram

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

const (
	Name    = "trigrams"
	Version = 1
)

type Index = index.MapReduceIndex[extensions.Document, uint32, index.Unit]

func Extension() index.Extension[extensions.Document, uint32, index.Unit] {
	return index.Extension[extensions.Document, uint32, index.Unit]{
		Name:    Name,
		Version: Version,
		Indexer: index.DataIndexerFunc[extensions.Document, uint32, index.Unit](func(ctx context.Context, doc extensions.Document) (map[uint32]index.Unit, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			grams := tokenizer.Trigrams(doc.Text)
			out := make(map[uint32]index.Unit, len(grams))
			for t := range grams {
				out[t] = index.Unit{}
			}
			return out, nil
		}),
		Keys:   index.Uint32Descriptor{},
		Values: index.UnitExternalizer{},
	}
}

// Candidates returns the inputs containing every trigram of pattern. The
// result is a superset of the inputs containing pattern itself.
func Candidates(ctx context.Context, reader index.DataReader[uint32, index.Unit], pattern string, idFilter func(index.InputID) bool) (*roaring.Bitmap, error) {
	grams := tokenizer.TrigramsOf(pattern)
	if len(grams) == 0 {
		return nil, fmt.Errorf("%w: pattern %q has no trigrams", apperrors.ErrInvalidInput, pattern)
	}
	return index.CollectInputIDsContainingAllKeys(ctx, reader, grams, nil, idFilter)
}
