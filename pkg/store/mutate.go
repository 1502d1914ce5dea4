package store

import (
	"reflect"
)

// Set replaces the snapshot with next.
func (s *Store[S]) Set(next S) {
	_ = s.commit("set", func(S) (S, error) { return next, nil })
}

// Update replaces the snapshot with fn(current). fn must not call back
// into the store's mutation methods.
func (s *Store[S]) Update(fn func(S) S) {
	_ = s.commit("update", func(cur S) (S, error) { return fn(cur), nil })
}

// Patch applies fn to a shallow copy of the current snapshot and commits
// the copy. Maps and pointed-to structs are copied one level deep, so fn
// may assign top-level fields without touching the previous snapshot.
func (s *Store[S]) Patch(fn func(draft *S)) {
	_ = s.commit("patch", func(cur S) (S, error) {
		draft := shallowCopy(cur)
		fn(&draft)
		return draft, nil
	})
}

// PatchValues replaces the named top-level fields. Keys are Go field names
// or json tag names for struct snapshots and map keys for map snapshots.
// Nothing is committed when any key or value is rejected.
func (s *Store[S]) PatchValues(fields map[string]any) error {
	return s.commit("patch", func(cur S) (S, error) {
		return mergeFields(cur, fields)
	})
}

// PatchValuesFunc is PatchValues with the fields derived from the current
// snapshot.
func (s *Store[S]) PatchValuesFunc(fn func(S) map[string]any) error {
	return s.commit("patch", func(cur S) (S, error) {
		return mergeFields(cur, fn(cur))
	})
}

// Updater binds fn to the store: each call of the returned function
// commits fn(current, payload).
func Updater[S, P any](s *Store[S], fn func(S, P) S) func(P) {
	return func(payload P) {
		_ = s.commit("updater", func(cur S) (S, error) { return fn(cur, payload), nil })
	}
}

func shallowCopy[S any](cur S) S {
	rv := reflect.ValueOf(&cur).Elem()
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return cur
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface().(S)
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return cur
		}
		out := reflect.New(rv.Elem().Type())
		out.Elem().Set(rv.Elem())
		return out.Interface().(S)
	}
	return cur
}
