package index

// StorageUpdate is computed index work that still has to be applied to
// storage. Update reports whether it was applied successfully.
type StorageUpdate interface {
	Update() bool
}

// StorageUpdateFunc adapts a function to StorageUpdate.
type StorageUpdateFunc func() bool

func (f StorageUpdateFunc) Update() bool { return f() }

// NoopUpdate applies nothing and always succeeds.
var NoopUpdate StorageUpdate = StorageUpdateFunc(func() bool { return true })

// Combine applies updates in order and stops at the first one that fails.
func Combine(updates ...StorageUpdate) StorageUpdate {
	return StorageUpdateFunc(func() bool {
		for _, u := range updates {
			if !u.Update() {
				return false
			}
		}
		return true
	})
}

// UpdateData is the result of the map phase for one input. Applying it takes
// the index write lock, reads the keys previously recorded for the input and
// writes the difference.
type UpdateData[I any, K comparable, V comparable] struct {
	index   *MapReduceIndex[I, K, V]
	id      InputID
	newData map[K]V
}

func (u *UpdateData[I, K, V]) Update() bool {
	return u.index.commit(u)
}
