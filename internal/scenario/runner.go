package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Runner executes scenarios.
type Runner struct {
	opts   []Option
	logger *slog.Logger
}

// NewRunner creates a runner. Options are passed to every session.
func NewRunner(opts ...Option) *Runner {
	cfg := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{opts: opts, logger: cfg.logger}
}

// Run builds a session for sc, applies its steps and checks its
// expectations. Step failures are recorded in the report; the returned
// error is reserved for scenarios that cannot be built or a cancelled ctx.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	session, err := NewSession(sc, r.opts...)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	report := &Report{Name: sc.Name}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.logger.Debug("scenario step", "scenario", sc.Name, "step", i, "kind", step.Kind())
		if err := session.Apply(step); err != nil {
			report.StepErrors = append(report.StepErrors, fmt.Sprintf("step %d (%s): %v", i, step.Kind(), err))
		}
		report.Steps++
	}

	session.fill(report)
	report.Failures = check(sc.Expect, report, session.vars)
	return report, nil
}

// fill copies the recorded emissions and the final snapshot into report.
func (s *Session) fill(report *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.selectors {
		log := *s.logs[h.def.Name]
		log.Values = append([]any{}, log.Values...)
		report.Selectors = append(report.Selectors, log)
	}
	report.EffectErrors = append(report.EffectErrors, s.effectErrors...)
	report.FinalState = s.store.Get()
}

// Snapshot returns a report of what the session recorded so far.
func (s *Session) Snapshot() *Report {
	report := &Report{Name: s.scenario.Name}
	s.fill(report)
	return report
}

func check(expect Expectations, report *Report, vars variables) []string {
	var failures []string

	names := make([]string, 0, len(expect.Emissions))
	for name := range expect.Emissions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log, _ := report.Selector(name)
		got, want := canonicalList(log.Values), canonicalList(expect.Emissions[name])
		if got != want {
			failures = append(failures, fmt.Sprintf("emissions[%s]: got %s, want %s", name, got, want))
		}
	}

	for _, name := range expect.Completed {
		if log, _ := report.Selector(name); !log.Completed {
			failures = append(failures, fmt.Sprintf("completed[%s]: selector did not complete", name))
		}
	}

	errNames := make([]string, 0, len(expect.Errors))
	for name := range expect.Errors {
		errNames = append(errNames, name)
	}
	sort.Strings(errNames)
	for _, name := range errNames {
		if log, _ := report.Selector(name); log.Code != expect.Errors[name] {
			failures = append(failures, fmt.Sprintf("errors[%s]: got %q, want %q", name, log.Code, expect.Errors[name]))
		}
	}

	keys := make([]string, 0, len(expect.State))
	for k := range expect.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, want := canonical(report.FinalState[k]), canonical(expect.State[k])
		if got != want {
			failures = append(failures, fmt.Sprintf("state[%s]: got %s, want %s", k, got, want))
		}
	}

	vars = vars.with(report.FinalState)
	for _, src := range expect.Assert {
		program, err := compile(src, vars)
		if err != nil {
			failures = append(failures, fmt.Sprintf("assert %q: %v", src, err))
			continue
		}
		ok, err := program.evalBool(stateEnv(report.FinalState))
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("assert %q: %v", src, err))
		case !ok:
			failures = append(failures, fmt.Sprintf("assert %q: false", src))
		}
	}

	return failures
}

func canonicalList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = canonical(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
