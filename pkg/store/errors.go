package store

import (
	"github.com/vango-dev/statecell/internal/errors"
)

// Error is the structured error returned by store operations. Its Code is
// stable and listed by the errors registry.
type Error = errors.StoreError

// Codes callers commonly match on with errors.Is.
var (
	ErrUnknownField = errors.New(errors.CodeUnknownField)
	ErrFieldType    = errors.New(errors.CodeFieldType)
	ErrSnapshotKind = errors.New(errors.CodeSnapshotKind)
	ErrInvalidJSON  = errors.New(errors.CodeInvalidJSON)
	ErrJSONDecode   = errors.New(errors.CodeJSONDecode)
	ErrSelector     = errors.New(errors.CodeSelectorPanic)
	ErrUpstream     = errors.New(errors.CodeUpstreamError)
	ErrNotAnObject  = errors.New(errors.CodePatchNotAnObject)
)
