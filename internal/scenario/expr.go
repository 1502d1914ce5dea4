package scenario

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tidwall/gjson"

	"github.com/vango-dev/statecell/internal/errors"
)

// compiled is an expression compiled once and run against per-call
// environments.
type compiled struct {
	source  string
	program *vm.Program
}

// variables are the names an expression may read. Declared names shadow
// expr built-ins of the same name, such as count or max; undeclared names
// still compile and read as nil.
type variables map[string]struct{}

// declared collects every variable a scenario can refer to: state keys
// from its initial state, steps and expectations, selector names and the
// names bound by effects and equality expressions.
func declared(sc *Scenario) variables {
	v := variables{}
	v.add("state", "payload", "prev", "next")
	v.addKeys(sc.State)
	v.addKeys(sc.Expect.State)
	for _, def := range sc.Selectors {
		v.add(def.Name)
	}
	for _, def := range sc.Effects {
		v.addFields(def.Patch)
	}
	v.addSteps(sc.Steps)
	return v
}

func (v variables) add(names ...string) {
	for _, name := range names {
		v[name] = struct{}{}
	}
}

func (v variables) addKeys(m map[string]any) {
	for k := range m {
		v.add(k)
	}
}

func (v variables) addFields(m map[string]string) {
	for k := range m {
		v.add(k)
	}
}

func (v variables) addSteps(steps []Step) {
	for _, step := range steps {
		v.addKeys(step.Set)
		v.addKeys(step.Patch)
		v.addFields(step.Update)
		if step.PatchJSON != "" && gjson.Valid(step.PatchJSON) {
			gjson.Parse(step.PatchJSON).ForEach(func(key, _ gjson.Result) bool {
				v.add(key.String())
				return true
			})
		}
		v.addSteps(step.Batch)
	}
}

// with returns a copy of v extended by the keys of m.
func (v variables) with(m map[string]any) variables {
	out := make(variables, len(v)+len(m))
	for k := range v {
		out[k] = struct{}{}
	}
	out.addKeys(m)
	return out
}

func (v variables) env() map[string]any {
	env := make(map[string]any, len(v))
	for name := range v {
		env[name] = nil
	}
	return env
}

func compile(source string, vars variables) (*compiled, error) {
	program, err := expr.Compile(source,
		expr.Env(vars.env()),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, errors.New(errors.CodeScenarioExpr).WithDetail(source).Wrap(err)
	}
	return &compiled{source: source, program: program}, nil
}

func (c *compiled) eval(env map[string]any) (any, error) {
	out, err := expr.Run(c.program, env)
	if err != nil {
		return nil, errors.New(errors.CodeScenarioExpr).WithDetail(c.source).Wrap(err)
	}
	return out, nil
}

// mustEval is eval for callers that report failure by panicking, such as
// selector functions and effect operators.
func (c *compiled) mustEval(env map[string]any) any {
	out, err := c.eval(env)
	if err != nil {
		panic(err)
	}
	return out
}

func (c *compiled) evalBool(env map[string]any) (bool, error) {
	out, err := c.eval(env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, errors.New(errors.CodeScenarioExpr).WithDetailf("%s: got %T, want bool", c.source, out)
	}
	return b, nil
}

// fieldExprs is a set of named expressions evaluated together, in key
// order.
type fieldExprs struct {
	keys  []string
	exprs map[string]*compiled
}

func compileFields(fields map[string]string, vars variables) (*fieldExprs, error) {
	f := &fieldExprs{exprs: make(map[string]*compiled, len(fields))}
	for k, src := range fields {
		c, err := compile(src, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		f.keys = append(f.keys, k)
		f.exprs[k] = c
	}
	sort.Strings(f.keys)
	return f, nil
}

func (f *fieldExprs) eval(env map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(f.keys))
	for _, k := range f.keys {
		v, err := f.exprs[k].eval(env)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// stateEnv exposes the snapshot's fields as variables plus the snapshot
// itself as state.
func stateEnv(state map[string]any) map[string]any {
	env := make(map[string]any, len(state)+2)
	for k, v := range state {
		env[k] = v
	}
	env["state"] = state
	return env
}
