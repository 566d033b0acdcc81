package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/trigram"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/wordindex"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// Source evaluates requests against one index.
type Source interface {
	Name() string
	ModificationStamp() int64
	Generation() string
	Evaluate(ctx context.Context, req Request) (*roaring.Bitmap, error)
}

// Words answers identifier queries from the word index. Request.Context
// restricts matches to occurrences in code, comments, strings or text.
type Words struct {
	x             *wordindex.Index
	caseSensitive bool
}

func NewWords(x *wordindex.Index, caseSensitive bool) *Words {
	return &Words{x: x, caseSensitive: caseSensitive}
}

func (w *Words) Name() string { return w.x.Name() }

func (w *Words) ModificationStamp() int64 { return w.x.ModificationStamp() }

func (w *Words) Generation() string { return w.x.Generation() }

func (w *Words) Evaluate(ctx context.Context, req Request) (*roaring.Bitmap, error) {
	mask, ok := wordindex.ParseContext(req.Context...)
	if !ok {
		return nil, fmt.Errorf("%w: unknown context in %v", apperrors.ErrInvalidInput, req.Context)
	}
	keys := req.Keys
	if !w.caseSensitive {
		keys = make([]string, len(req.Keys))
		for i, k := range req.Keys {
			keys[i] = strings.ToLower(k)
		}
	}
	filter := wordindex.ContextFilter(mask)
	if req.Mode == ModeAny {
		return index.CollectInputIDsContainingAnyKey(ctx, w.x, keys, filter, nil)
	}
	return index.CollectInputIDsContainingAllKeys(ctx, w.x, keys, filter, nil)
}

// Trigrams answers substring queries: every key is a pattern and an input
// matches a pattern when it holds all of the pattern's trigrams.
type Trigrams struct {
	x *trigram.Index
}

func NewTrigrams(x *trigram.Index) *Trigrams {
	return &Trigrams{x: x}
}

func (t *Trigrams) Name() string { return t.x.Name() }

func (t *Trigrams) ModificationStamp() int64 { return t.x.ModificationStamp() }

func (t *Trigrams) Generation() string { return t.x.Generation() }

func (t *Trigrams) Evaluate(ctx context.Context, req Request) (*roaring.Bitmap, error) {
	var result *roaring.Bitmap
	for _, pattern := range req.Keys {
		ids, err := trigram.Candidates(ctx, t.x, pattern, nil)
		if err != nil {
			return nil, err
		}
		switch {
		case result == nil:
			result = ids
		case req.Mode == ModeAny:
			result.Or(ids)
		default:
			result.And(ids)
		}
	}
	if result == nil {
		result = roaring.New()
	}
	return result, nil
}
