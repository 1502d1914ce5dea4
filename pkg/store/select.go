package store

import (
	"sort"

	"github.com/vango-dev/statecell/internal/errors"
)

// ViewModel is the value of a SelectMap selector: one entry per input
// selector, keyed as given.
type ViewModel map[string]any

// Field returns vm[key] as a T, or the zero T when the entry is missing or
// of another type.
func Field[T any](vm ViewModel, key string) T {
	v, _ := vm[key].(T)
	return v
}

// Select derives a selector from the store's snapshot.
func Select[S, O any](s *Store[S], fn func(S) O, opts ...SelectOption) *Selector[O] {
	r := s.root
	return newSelector(s.core, []node{r}, func() O { return fn(r.value) }, opts)
}

// SelectMap combines selectors into a view-model that is recomputed
// whenever one of them emits. All selectors must belong to one store.
func SelectMap(selectors map[string]Readable, opts ...SelectOption) *Selector[ViewModel] {
	keys := make([]string, 0, len(selectors))
	inputs := make([]Readable, 0, len(selectors))
	for k := range selectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		inputs = append(inputs, selectors[k])
	}

	return combine(inputs, func() ViewModel {
		vm := make(ViewModel, len(keys))
		for i, k := range keys {
			vm[k] = inputs[i].read()
		}
		return vm
	}, opts)
}

// Combine2 projects two selectors into one. The projector runs at most
// once per propagation, however many of its inputs changed.
func Combine2[A, B, O any](a *Selector[A], b *Selector[B], project func(A, B) O, opts ...SelectOption) *Selector[O] {
	return combine([]Readable{a, b}, func() O {
		return project(a.value, b.value)
	}, opts)
}

// Combine3 projects three selectors into one.
func Combine3[A, B, C, O any](a *Selector[A], b *Selector[B], c *Selector[C], project func(A, B, C) O, opts ...SelectOption) *Selector[O] {
	return combine([]Readable{a, b, c}, func() O {
		return project(a.value, b.value, c.value)
	}, opts)
}

// Combine4 projects four selectors into one.
func Combine4[A, B, C, D, O any](a *Selector[A], b *Selector[B], c *Selector[C], d *Selector[D], project func(A, B, C, D) O, opts ...SelectOption) *Selector[O] {
	return combine([]Readable{a, b, c, d}, func() O {
		return project(a.value, b.value, c.value, d.value)
	}, opts)
}

// Combine5 projects five selectors into one.
func Combine5[A, B, C, D, E, O any](a *Selector[A], b *Selector[B], c *Selector[C], d *Selector[D], e *Selector[E], project func(A, B, C, D, E) O, opts ...SelectOption) *Selector[O] {
	return combine([]Readable{a, b, c, d, e}, func() O {
		return project(a.value, b.value, c.value, d.value, e.value)
	}, opts)
}

// CombineN projects any number of same-typed selectors into one.
func CombineN[T, O any](selectors []*Selector[T], project func([]T) O, opts ...SelectOption) *Selector[O] {
	inputs := make([]Readable, len(selectors))
	for i, sel := range selectors {
		inputs[i] = sel
	}
	return combine(inputs, func() O {
		values := make([]T, len(selectors))
		for i, sel := range selectors {
			values[i] = sel.value
		}
		return project(values)
	}, opts)
}

func combine[O any](inputs []Readable, compute func() O, opts []SelectOption) *Selector[O] {
	if len(inputs) == 0 {
		panic(errors.Newf(errors.CategoryMisuse, "combining selectors needs at least one input"))
	}
	c := inputs[0].owner()
	ups := make([]node, len(inputs))
	for i, in := range inputs {
		if in.owner() != c {
			panic(errors.New(errors.CodeForeignSelector))
		}
		ups[i] = in.graphNode()
	}
	return newSelector(c, ups, compute, opts)
}
