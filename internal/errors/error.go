package errors

import (
	"bufio"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryMisuse   Category = "misuse"
	CategorySelector Category = "selector"
	CategoryEffect   Category = "effect"
	CategoryPatch    Category = "patch"
	CategoryScenario Category = "scenario"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Location represents a position in a source file such as a scenario document.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// StoreError is a structured error carrying a stable code, a category and
// optional hints for the caller.
type StoreError struct {
	// Code is a unique error identifier (e.g., "S101").
	Code string

	// Category is the error type (misuse, selector, effect, ...).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the source position the error refers to, if any.
	Location *Location

	// Context contains surrounding source lines.
	Context []string

	// ContextStart is the line number of Context[0].
	ContextStart int

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a StoreError with the same code.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithLocation attaches a file position and reads the surrounding lines.
func (e *StoreError) WithLocation(file string, line, column int) *StoreError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context, e.ContextStart = readContextLines(file, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *StoreError) WithSuggestion(s string) *StoreError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *StoreError) WithDetail(d string) *StoreError {
	e.Detail = d
	return e
}

// WithDetailf formats the detail.
func (e *StoreError) WithDetailf(format string, args ...any) *StoreError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *StoreError) Wrap(err error) *StoreError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file
// and returns them with the number of the first line.
func readContextLines(filename string, targetLine, contextSize int) ([]string, int) {
	startLine := targetLine - contextSize/2
	if startLine < 1 {
		startLine = 1
	}
	endLine := targetLine + contextSize/2

	file, err := os.Open(filename)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines, startLine
}

// New creates a StoreError from a registered error code.
func New(code string) *StoreError {
	template, ok := GetTemplate(code)
	if !ok {
		return &StoreError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &StoreError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new StoreError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *StoreError {
	return &StoreError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a StoreError.
func FromError(err error, code string) *StoreError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StoreError); ok {
		return se
	}
	return New(code).Wrap(err)
}
