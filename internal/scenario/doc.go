// Package scenario drives a store from a YAML script and reports what its
// selectors emitted.
//
// A scenario declares an initial state, selectors written as expr-lang
// expressions, effects that patch the state, a list of steps and the
// expected outcome:
//
//	name: counter
//	state:
//	  count: 0
//	selectors:
//	  - name: count
//	    expr: count
//	  - name: doubled
//	    combine: [count]
//	    expr: count * 2
//	effects:
//	  - name: setCount
//	    patch:
//	      count: payload
//	steps:
//	  - effect: setCount
//	    payload: 3
//	  - destroy: true
//	expect:
//	  emissions:
//	    count: [0, 3]
//	  assert:
//	    - count == 3
//
// Selector expressions see the state's top-level fields as variables and
// the whole snapshot as state. Projector expressions (combine) see their
// inputs by name. Equality expressions see prev and next. Effect patch
// expressions additionally see payload.
package scenario
