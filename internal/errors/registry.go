package errors

import (
	"sort"
	"sync"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// Codes used by the store runtime.
const (
	CodeMutateAfterDestroy = "S001"
	CodeForeignSelector    = "S002"
	CodeEqualType          = "S003"

	CodeUnknownField     = "S101"
	CodeFieldType        = "S102"
	CodeSnapshotKind     = "S103"
	CodeInvalidJSON      = "S104"
	CodeJSONDecode       = "S105"
	CodeJSONEncode       = "S106"
	CodePatchNotAnObject = "S107"

	CodeSelectorPanic = "S201"
	CodeEqualPanic    = "S202"
	CodeUpstreamError = "S203"

	CodePipelineError = "S301"
	CodePipelinePanic = "S302"

	CodeScenarioParse  = "S401"
	CodeScenarioExpr   = "S402"
	CodeScenarioRef    = "S403"
	CodeScenarioExpect = "S404"

	CodeConfigRead    = "S501"
	CodeConfigParse   = "S502"
	CodeConfigInvalid = "S503"
)

var (
	registryMu sync.RWMutex

	// registry maps error codes to their templates.
	registry = map[string]ErrorTemplate{
		// ============================================
		// Misuse (S001-S099)
		// ============================================

		CodeMutateAfterDestroy: {
			Category:   CategoryMisuse,
			Message:    "Mutation after destroy",
			Suggestion: "Stop calling mutation methods once the owning consumer has torn the store down.",
		},
		CodeForeignSelector: {
			Category:   CategoryMisuse,
			Message:    "Selector belongs to another store",
			Suggestion: "Combine only selectors created from the same store.",
		},
		CodeEqualType: {
			Category:   CategoryMisuse,
			Message:    "Equality function type does not match selector output",
			Suggestion: "Pass WithEqual with a func(prev, next T) bool where T is the selector's output type.",
		},

		// ============================================
		// Patch (S101-S199)
		// ============================================

		CodeUnknownField: {
			Category:   CategoryPatch,
			Message:    "Unknown snapshot field",
			Suggestion: "Use the Go field name or its json tag.",
		},
		CodeFieldType: {
			Category: CategoryPatch,
			Message:  "Patch value is not assignable to field",
		},
		CodeSnapshotKind: {
			Category:   CategoryPatch,
			Message:    "Snapshot kind does not support field patches",
			Suggestion: "Field patches need a struct, a pointer to a struct or a map[string]V snapshot; use Set or Patch otherwise.",
		},
		CodeInvalidJSON: {
			Category: CategoryPatch,
			Message:  "Invalid JSON patch",
		},
		CodeJSONDecode: {
			Category: CategoryPatch,
			Message:  "Patched document does not decode into the snapshot type",
		},
		CodeJSONEncode: {
			Category: CategoryPatch,
			Message:  "Snapshot cannot be encoded as JSON",
		},
		CodePatchNotAnObject: {
			Category: CategoryPatch,
			Message:  "JSON patch must be an object",
		},

		// ============================================
		// Selector (S201-S299)
		// ============================================

		CodeSelectorPanic: {
			Category: CategorySelector,
			Message:  "Selector function panicked",
		},
		CodeEqualPanic: {
			Category: CategorySelector,
			Message:  "Equality predicate panicked",
		},
		CodeUpstreamError: {
			Category: CategorySelector,
			Message:  "Upstream selector failed",
		},

		// ============================================
		// Effect (S301-S399)
		// ============================================

		CodePipelineError: {
			Category:   CategoryEffect,
			Message:    "Effect pipeline failed",
			Suggestion: "Catch errors inside the pipeline with stream.CatchError.",
		},
		CodePipelinePanic: {
			Category: CategoryEffect,
			Message:  "Effect pipeline panicked",
		},

		// ============================================
		// Scenario (S401-S499)
		// ============================================

		CodeScenarioParse: {
			Category: CategoryScenario,
			Message:  "Invalid scenario file",
		},
		CodeScenarioExpr: {
			Category:   CategoryScenario,
			Message:    "Invalid expression",
			Suggestion: "Expressions use expr-lang syntax and see the state fields as variables.",
		},
		CodeScenarioRef: {
			Category: CategoryScenario,
			Message:  "Unknown reference",
		},
		CodeScenarioExpect: {
			Category: CategoryScenario,
			Message:  "Expectation failed",
		},

		// ============================================
		// Config (S501-S599)
		// ============================================

		CodeConfigRead: {
			Category: CategoryConfig,
			Message:  "Cannot read config file",
		},
		CodeConfigParse: {
			Category: CategoryConfig,
			Message:  "Cannot parse config file",
		},
		CodeConfigInvalid: {
			Category: CategoryConfig,
			Message:  "Invalid configuration",
		},
	}
)

// GetAllCodes returns every registered code in order.
func GetAllCodes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for a code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, template ErrorTemplate) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = template
}
