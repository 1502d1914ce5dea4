package scenario

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/vango-dev/statecell/internal/errors"
	"github.com/vango-dev/statecell/pkg/microtask"
	"github.com/vango-dev/statecell/pkg/store"
	"github.com/vango-dev/statecell/pkg/stream"
)

// State is the snapshot type scenarios operate on.
type State = map[string]any

// Option configures a Session or Runner.
type Option func(*settings)

type settings struct {
	logger    *slog.Logger
	metrics   *store.Metrics
	scheduler microtask.Scheduler
}

// WithLogger sets the logger handed to the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics records store activity on m.
func WithMetrics(m *store.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithScheduler replaces the manual queue that flush steps drain.
func WithScheduler(sched microtask.Scheduler) Option {
	return func(s *settings) {
		s.scheduler = sched
	}
}

// selectorHandle adapts selectors of any value type to the session.
type selectorHandle struct {
	def       SelectorDef
	readable  store.Readable
	value     *store.Selector[any]
	subscribe func(stream.Observer[any]) *stream.Subscription
	sub       *stream.Subscription
}

// Session is a live store built from a scenario.
type Session struct {
	scenario *Scenario
	vars     variables
	store    *store.Store[State]
	logger   *slog.Logger

	selectors []*selectorHandle
	byName    map[string]*selectorHandle
	effects   map[string]*store.EffectHandle[any]
	runs      map[string][]*stream.Subscription

	mu           sync.Mutex
	logs         map[string]*SelectorLog
	effectErrors []string
}

// NewSession builds the store, selectors and effects of sc and subscribes
// every selector that is not lazy.
func NewSession(sc *Scenario, opts ...Option) (*Session, error) {
	cfg := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.scheduler == nil {
		cfg.scheduler = microtask.NewQueue()
	}

	storeOpts := []store.Option{
		store.WithName(sc.Name),
		store.WithLogger(cfg.logger),
		store.WithScheduler(cfg.scheduler),
	}
	if cfg.metrics != nil {
		storeOpts = append(storeOpts, store.WithMetrics(cfg.metrics))
	}

	s := &Session{
		scenario: sc,
		vars:     declared(sc),
		store:    store.New(maps.Clone(sc.State), storeOpts...),
		logger:   cfg.logger.With("scenario", sc.Name),
		byName:   make(map[string]*selectorHandle),
		effects:  make(map[string]*store.EffectHandle[any]),
		runs:     make(map[string][]*stream.Subscription),
		logs:     make(map[string]*SelectorLog),
	}

	for _, def := range sc.Selectors {
		h, err := s.buildSelector(def)
		if err != nil {
			s.store.Destroy()
			return nil, err
		}
		s.selectors = append(s.selectors, h)
		s.byName[def.Name] = h
		s.logs[def.Name] = &SelectorLog{Name: def.Name, Values: []any{}}
	}
	for _, def := range sc.Effects {
		eff, err := s.buildEffect(def)
		if err != nil {
			s.store.Destroy()
			return nil, err
		}
		s.effects[def.Name] = eff
	}

	for _, h := range s.selectors {
		if !h.def.Lazy {
			s.subscribe(h)
		}
	}
	return s, nil
}

// Store returns the session's store.
func (s *Session) Store() *store.Store[State] {
	return s.store
}

func (s *Session) buildSelector(def SelectorDef) (*selectorHandle, error) {
	var opts []store.SelectOption
	opts = append(opts, store.Named(def.Name))
	if def.Debounce {
		opts = append(opts, store.Debounce())
	}

	var equal *compiled
	if def.Equal != "" {
		var err error
		if equal, err = compile(def.Equal, s.vars); err != nil {
			return nil, fmt.Errorf("selector %s: %w", def.Name, err)
		}
	}
	suppress := func(prev, next any) bool {
		return equal.mustEval(map[string]any{"prev": prev, "next": next}) == true
	}

	h := &selectorHandle{def: def}

	if len(def.View) > 0 {
		inputs := make(map[string]store.Readable, len(def.View))
		for _, name := range def.View {
			inputs[name] = s.byName[name].readable
		}
		if equal != nil {
			opts = append(opts, store.WithEqual(func(prev, next store.ViewModel) bool {
				return suppress(map[string]any(prev), map[string]any(next))
			}))
		}
		vm := store.SelectMap(inputs, opts...)
		h.readable = vm
		h.subscribe = func(o stream.Observer[any]) *stream.Subscription {
			return vm.Subscribe(stream.Observer[store.ViewModel]{
				Next:     func(v store.ViewModel) { o.Next(map[string]any(v)) },
				Error:    o.Error,
				Complete: o.Complete,
			})
		}
		return h, nil
	}

	program, err := compile(def.Expr, s.vars)
	if err != nil {
		return nil, fmt.Errorf("selector %s: %w", def.Name, err)
	}
	if equal != nil {
		opts = append(opts, store.WithEqual(suppress))
	}

	var sel *store.Selector[any]
	if len(def.Combine) > 0 {
		inputs := make([]*store.Selector[any], len(def.Combine))
		for i, name := range def.Combine {
			in := s.byName[name]
			if in.value == nil {
				return nil, errors.New(errors.CodeScenarioRef).
					WithDetailf("selector %s: cannot project view-model %q", def.Name, name)
			}
			inputs[i] = in.value
		}
		names := def.Combine
		sel = store.CombineN(inputs, func(values []any) any {
			env := make(map[string]any, len(values))
			for i, v := range values {
				env[names[i]] = v
			}
			return program.mustEval(env)
		}, opts...)
	} else {
		sel = store.Select(s.store, func(state State) any {
			return program.mustEval(stateEnv(state))
		}, opts...)
	}

	h.readable = sel
	h.value = sel
	h.subscribe = sel.Subscribe
	return h, nil
}

func (s *Session) buildEffect(def EffectDef) (*store.EffectHandle[any], error) {
	fields, err := compileFields(def.Patch, s.vars)
	if err != nil {
		return nil, fmt.Errorf("effect %s: %w", def.Name, err)
	}

	return store.Effect(s.store, func(src stream.Source[any]) stream.Source[any] {
		applied := stream.Map(src, func(payload any) any {
			env := stateEnv(s.store.Get())
			env["payload"] = payload
			patch, err := fields.eval(env)
			if err != nil {
				panic(err)
			}
			if err := s.store.PatchValues(patch); err != nil {
				panic(err)
			}
			return payload
		})
		return stream.CatchError(applied, func(err error) stream.Source[any] {
			s.recordEffectError(def.Name, err)
			return stream.Empty[any]()
		})
	}, store.EffectName(def.Name)), nil
}

func (s *Session) subscribe(h *selectorHandle) {
	if h.sub != nil && !h.sub.IsClosed() {
		return
	}
	log := s.logs[h.def.Name]
	h.sub = h.subscribe(stream.Observer[any]{
		Next: func(v any) {
			s.mu.Lock()
			log.Values = append(log.Values, v)
			s.mu.Unlock()
		},
		Error: func(err error) {
			s.mu.Lock()
			log.Error = err.Error()
			log.Code = errorCode(err)
			s.mu.Unlock()
		},
		Complete: func() {
			s.mu.Lock()
			log.Completed = true
			s.mu.Unlock()
		},
	})
}

func (s *Session) recordEffectError(name string, err error) {
	msg := fmt.Sprintf("%s: %v", name, cause(err))
	s.mu.Lock()
	s.effectErrors = append(s.effectErrors, msg)
	s.mu.Unlock()
	s.logger.Warn("scenario effect failed", "effect", name, "error", err)
}

// Apply performs one step.
func (s *Session) Apply(step Step) error {
	switch step.Kind() {
	case "set":
		s.store.Set(maps.Clone(step.Set))
	case "patch":
		return s.store.PatchValues(step.Patch)
	case "patch_json":
		return s.store.PatchJSON(step.PatchJSON)
	case "update":
		return s.update(step.Update)
	case "effect":
		eff := s.effects[step.Effect]
		if step.From != "" {
			run := eff.TriggerFrom(s.byName[step.From].asSource())
			s.runs[step.Effect] = append(s.runs[step.Effect], run)
			return nil
		}
		eff.Trigger(step.Payload)
	case "cancel":
		for _, run := range s.runs[step.Cancel] {
			run.Unsubscribe()
		}
		delete(s.runs, step.Cancel)
	case "batch":
		var errs []error
		s.store.Batch(func() {
			for _, inner := range step.Batch {
				if err := s.Apply(inner); err != nil {
					errs = append(errs, err)
				}
			}
		})
		return stderrors.Join(errs...)
	case "subscribe":
		s.subscribe(s.byName[step.Subscribe])
	case "unsubscribe":
		if h := s.byName[step.Unsubscribe]; h.sub != nil {
			h.sub.Unsubscribe()
		}
	case "flush":
		s.store.Flush()
	case "destroy":
		s.store.Destroy()
	default:
		return errors.New(errors.CodeScenarioParse).WithDetailf("step has no single action: %v", step.kinds())
	}
	return nil
}

// update commits fields computed from the current snapshot. An evaluation
// error aborts the commit.
func (s *Session) update(exprs map[string]string) error {
	fields, err := compileFields(exprs, s.vars)
	if err != nil {
		return err
	}

	var commitErr error
	panicErr := stream.Catch(func() {
		commitErr = s.store.PatchValuesFunc(func(cur State) map[string]any {
			patch, err := fields.eval(stateEnv(cur))
			if err != nil {
				panic(err)
			}
			return patch
		})
	})
	if panicErr != nil {
		return cause(panicErr)
	}
	return commitErr
}

func (h *selectorHandle) asSource() stream.Source[any] {
	return stream.New(func(sink *stream.Sink[any]) func() {
		return h.subscribe(sink.Observer()).Unsubscribe
	})
}

// Close destroys the store.
func (s *Session) Close() {
	s.store.Destroy()
}

// cause unwraps a recovered panic to the error that was panicked with.
func cause(err error) error {
	var pe *stream.PanicError
	if stderrors.As(err, &pe) {
		if inner := pe.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}

func errorCode(err error) string {
	var se *errors.StoreError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
