package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/statecell/internal/errors"
)

// Scenario is a scripted run against a Store[map[string]any].
type Scenario struct {
	// Name identifies the scenario in reports.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// State is the initial snapshot.
	State map[string]any `yaml:"state"`

	// Selectors are created in order; combine and view entries may only
	// reference selectors declared before them.
	Selectors []SelectorDef `yaml:"selectors"`

	// Effects bind named pipelines to the store.
	Effects []EffectDef `yaml:"effects,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect Expectations `yaml:"expect,omitempty"`

	path string
}

// SelectorDef declares a selector.
type SelectorDef struct {
	Name string `yaml:"name"`

	// Expr computes the value. Over the state unless Combine is set.
	Expr string `yaml:"expr,omitempty"`

	// Combine lists the selectors a projector expression reads.
	Combine []string `yaml:"combine,omitempty"`

	// View lists selectors combined into a view-model keyed by name.
	View []string `yaml:"view,omitempty"`

	// Equal replaces the default distinctness check; it must evaluate to
	// true when next should be suppressed.
	Equal string `yaml:"equal,omitempty"`

	Debounce bool `yaml:"debounce,omitempty"`

	// Lazy selectors are not subscribed until a subscribe step.
	Lazy bool `yaml:"lazy,omitempty"`
}

// EffectDef declares an effect. Each payload patches the state with the
// evaluated expressions.
type EffectDef struct {
	Name  string            `yaml:"name"`
	Patch map[string]string `yaml:"patch"`
}

// Step is one action. Exactly one action field must be set.
type Step struct {
	Set       map[string]any    `yaml:"set,omitempty"`
	Patch     map[string]any    `yaml:"patch,omitempty"`
	PatchJSON string            `yaml:"patch_json,omitempty"`
	Update    map[string]string `yaml:"update,omitempty"`

	Effect  string `yaml:"effect,omitempty"`
	Payload any    `yaml:"payload,omitempty"`
	// From feeds the effect from a selector instead of a payload.
	From   string `yaml:"from,omitempty"`
	Cancel string `yaml:"cancel,omitempty"`

	Batch []Step `yaml:"batch,omitempty"`

	Subscribe   string `yaml:"subscribe,omitempty"`
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	Flush   bool `yaml:"flush,omitempty"`
	Destroy bool `yaml:"destroy,omitempty"`
}

// Kind names the step's action.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (s Step) kinds() []string {
	var kinds []string
	add := func(set bool, kind string) {
		if set {
			kinds = append(kinds, kind)
		}
	}
	add(s.Set != nil, "set")
	add(s.Patch != nil, "patch")
	add(s.PatchJSON != "", "patch_json")
	add(s.Update != nil, "update")
	add(s.Effect != "", "effect")
	add(s.Cancel != "", "cancel")
	add(s.Batch != nil, "batch")
	add(s.Subscribe != "", "subscribe")
	add(s.Unsubscribe != "", "unsubscribe")
	add(s.Flush, "flush")
	add(s.Destroy, "destroy")
	return kinds
}

// Expectations are checked against the final report.
type Expectations struct {
	// Emissions maps selector names to every value they must have emitted.
	Emissions map[string][]any `yaml:"emissions,omitempty"`

	// Completed lists selectors that must have completed.
	Completed []string `yaml:"completed,omitempty"`

	// Errors maps selector names to the error code they must have failed with.
	Errors map[string]string `yaml:"errors,omitempty"`

	// State is a subset of the final snapshot.
	State map[string]any `yaml:"state,omitempty"`

	// Assert holds boolean expressions over the final snapshot.
	Assert []string `yaml:"assert,omitempty"`
}

// Path returns the file the scenario was loaded from.
func (sc *Scenario) Path() string {
	return sc.path
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeScenarioParse).WithDetail(path).Wrap(err)
	}

	sc, err := Parse(data)
	if err != nil {
		if se, ok := err.(*errors.StoreError); ok {
			if line := yamlLine(se.Wrapped); line > 0 {
				se.WithLocation(path, line, 0)
			}
		}
		return nil, err
	}

	sc.path = path
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse decodes and validates a scenario document. Unknown keys are
// rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, errors.New(errors.CodeScenarioParse).Wrap(err)
	}

	if err := validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func yamlLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	line, _ := strconv.Atoi(m[1])
	return line
}

func validate(sc *Scenario) error {
	if sc.State == nil {
		sc.State = map[string]any{}
	}

	seen := make(map[string]bool)
	for i, def := range sc.Selectors {
		at := fmt.Sprintf("selectors[%d]", i)
		if def.Name == "" {
			return invalid("%s: name is required", at)
		}
		if seen[def.Name] {
			return invalid("%s: duplicate selector %q", at, def.Name)
		}
		switch {
		case def.Expr == "" && len(def.View) == 0:
			return invalid("%s (%s): one of expr or view is required", at, def.Name)
		case def.Expr != "" && len(def.View) > 0:
			return invalid("%s (%s): expr and view are exclusive", at, def.Name)
		case len(def.Combine) > 0 && len(def.View) > 0:
			return invalid("%s (%s): combine and view are exclusive", at, def.Name)
		}
		for _, ref := range append(append([]string(nil), def.Combine...), def.View...) {
			if !seen[ref] {
				return errors.New(errors.CodeScenarioRef).WithDetailf("%s (%s): unknown selector %q", at, def.Name, ref)
			}
		}
		seen[def.Name] = true
	}

	effects := make(map[string]bool)
	for i, def := range sc.Effects {
		if def.Name == "" {
			return invalid("effects[%d]: name is required", i)
		}
		if effects[def.Name] {
			return invalid("effects[%d]: duplicate effect %q", i, def.Name)
		}
		effects[def.Name] = true
	}

	if err := validateSteps(sc.Steps, "steps", seen, effects); err != nil {
		return err
	}

	for name := range sc.Expect.Emissions {
		if !seen[name] {
			return errors.New(errors.CodeScenarioRef).WithDetailf("expect.emissions: unknown selector %q", name)
		}
	}
	for _, name := range sc.Expect.Completed {
		if !seen[name] {
			return errors.New(errors.CodeScenarioRef).WithDetailf("expect.completed: unknown selector %q", name)
		}
	}
	return nil
}

func validateSteps(steps []Step, path string, selectors, effects map[string]bool) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		kinds := step.kinds()
		if len(kinds) != 1 {
			return invalid("%s: exactly one action is required, got %v", at, kinds)
		}

		ref := func(names map[string]bool, name, kind string) error {
			if !names[name] {
				return errors.New(errors.CodeScenarioRef).WithDetailf("%s: unknown %s %q", at, kind, name)
			}
			return nil
		}

		var err error
		switch kinds[0] {
		case "effect":
			if err = ref(effects, step.Effect, "effect"); err == nil && step.From != "" {
				err = ref(selectors, step.From, "selector")
			}
		case "cancel":
			err = ref(effects, step.Cancel, "effect")
		case "subscribe":
			err = ref(selectors, step.Subscribe, "selector")
		case "unsubscribe":
			err = ref(selectors, step.Unsubscribe, "selector")
		case "batch":
			err = validateSteps(step.Batch, at+".batch", selectors, effects)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeScenarioParse).WithDetailf(format, args...)
}
