package index

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
)

// CheckValue verifies that v equals itself and survives a marshal/unmarshal
// round trip through ext.
func CheckValue[V comparable](ext ValueExternalizer[V], v V) error {
	if !equal(v, v) {
		return fmt.Errorf("%w: value %v is not equal to itself", apperrors.ErrIntegrity, v)
	}
	data, err := ext.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshaling value %v: %w", apperrors.ErrIntegrity, v, err)
	}
	back, err := ext.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("%w: unmarshaling value %v: %w", apperrors.ErrIntegrity, v, err)
	}
	if !equal(v, back) {
		return fmt.Errorf("%w: value %v read back as %v", apperrors.ErrIntegrity, v, back)
	}
	return nil
}

func equal[V comparable](a, b V) bool { return a == b }

func (x *MapReduceIndex[I, K, V]) checkValueContract(id InputID, data map[K]V) {
	for k, v := range data {
		if err := CheckValue(x.ext.Values, v); err != nil {
			x.metrics.IntegrityViolation(x.ext.Name)
			x.logger.Error("value contract violated",
				"input_id", id,
				"key", k,
				"error", err,
			)
		}
	}
}
