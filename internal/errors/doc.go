// Package errors provides structured, coded errors for statecell.
//
// Every error carries a stable code (e.g. "S101") mapped to a category, a
// short message and an optional hint:
//
//   - misuse: calls the store rejects (mutation after destroy, foreign selectors)
//   - patch: field and JSON patches that do not fit the snapshot type
//   - selector: selector functions or equality predicates that panicked
//   - effect: pipeline failures
//   - scenario, config, cli: tooling errors
//
// # Usage
//
//	err := errors.New(errors.CodeUnknownField).
//	    WithDetailf("field %q", "nmae").
//	    WithSuggestion("did you mean \"name\"?")
//
//	fmt.Print(err.Format())
package errors
