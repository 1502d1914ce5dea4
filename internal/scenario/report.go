package scenario

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/pretty"
)

// SelectorLog is everything one selector delivered to its scenario
// subscriber.
type SelectorLog struct {
	Name      string `json:"name"`
	Values    []any  `json:"values"`
	Completed bool   `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Report is the outcome of a scenario run.
type Report struct {
	Name         string        `json:"name"`
	Steps        int           `json:"steps"`
	Selectors    []SelectorLog `json:"selectors"`
	EffectErrors []string      `json:"effect_errors,omitempty"`
	StepErrors   []string      `json:"step_errors,omitempty"`
	FinalState   State         `json:"final_state"`
	Failures     []string      `json:"failures,omitempty"`
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Selector returns the log of the named selector.
func (r *Report) Selector(name string) (SelectorLog, bool) {
	for _, log := range r.Selectors {
		if log.Name == name {
			return log, true
		}
	}
	return SelectorLog{}, false
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(data), nil
}

// Text renders the report in a stable, line-oriented form.
func (r *Report) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", r.Name)
	fmt.Fprintf(&b, "steps: %d\n", r.Steps)

	b.WriteString("\nselectors:\n")
	for _, log := range r.Selectors {
		values := make([]string, len(log.Values))
		for i, v := range log.Values {
			values[i] = canonical(v)
		}
		line := "  " + log.Name + ": [" + strings.Join(values, ", ") + "]"
		switch {
		case log.Code != "":
			line += " error " + log.Code
		case log.Error != "":
			line += " error"
		case log.Completed:
			line += " completed"
		}
		b.WriteString(line + "\n")
	}

	if len(r.StepErrors) > 0 {
		b.WriteString("\nstep errors:\n")
		for _, e := range r.StepErrors {
			b.WriteString("  - " + e + "\n")
		}
	}
	if len(r.EffectErrors) > 0 {
		b.WriteString("\neffect errors:\n")
		for _, e := range r.EffectErrors {
			b.WriteString("  - " + e + "\n")
		}
	}

	fmt.Fprintf(&b, "\nfinal state: %s\n", canonical(r.FinalState))

	if r.Passed() {
		b.WriteString("\nresult: PASS\n")
		return b.String()
	}
	b.WriteString("\nresult: FAIL\n")
	for _, f := range r.Failures {
		b.WriteString("  - " + f + "\n")
	}
	return b.String()
}

// canonical renders v as compact JSON with sorted object keys.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
