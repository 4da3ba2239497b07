// Package action implements the Action Engine of SPEC_FULL.md §7: a
// fluent step builder, Kahn-batch topological execution, per-batch
// pipeline coalescing of operation steps, three failure strategies, and
// reverse-order compensating rollback. Grounded on worker/pool.go's
// Pool/Worker concurrency shape (goroutines per unit of independent
// work) generalized to batch execution, and on
// semantic/executor/executor.go's Registry/Executor dispatch for
// routing step kinds to their execution strategy.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/cachelog"
	"github.com/evalgo-org/cachyer/internal/descriptor"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/sirupsen/logrus"
)

// Kind is a Step's execution strategy.
type Kind string

const (
	KindOperation Kind = "operation"
	KindCompute   Kind = "compute"
	KindFanOut    Kind = "fanOut"
)

// ErrorStrategy governs how a batch failure affects later batches.
type ErrorStrategy string

const (
	StrategyAbort          ErrorStrategy = "abort"
	StrategySkipDependents ErrorStrategy = "skip-dependents"
	StrategyContinue       ErrorStrategy = "continue"
)

// OperationFunc derives operation parameters from the action input and
// the resolved results of this step's dependencies.
type OperationFunc func(input interface{}, deps map[string]interface{}) (map[string]interface{}, error)

// ComputeFunc runs arbitrary work with access to the action input, the
// resolved dependency results, and the facade (for ad hoc cache access
// outside the descriptor/schema path).
type ComputeFunc func(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error)

// FanOutFunc generates N pipeline entries from the input and resolved
// dependencies. ReduceFunc, if set, folds the raw per-entry results
// into the step's final value; otherwise the raw []adapter.PipelineResult
// is the step's result.
type FanOutFunc func(input interface{}, deps map[string]interface{}) ([]facade.PipelineCall, error)

// ReduceFunc folds a fanOut step's raw pipeline results into a value.
type ReduceFunc func(results []adapter.PipelineResult) (interface{}, error)

// UndoFunc compensates a completed step during rollback.
type UndoFunc func(input interface{}, result interface{}, f *facade.Facade) error

// Step is a named node in the action DAG.
type Step struct {
	Name         string
	Kind         Kind
	DependsOn    []string
	Retries      int
	RetryDelayMs int
	StepTimeoutMs int
	Undo         UndoFunc

	Descriptor descriptor.OperationDescriptor // operation kind
	Operation  OperationFunc                  // operation kind

	Compute ComputeFunc // compute kind

	FanOut FanOutFunc // fanOut kind
	Reduce ReduceFunc  // fanOut kind, optional
}

// Builder accumulates steps for one action definition. Steps are
// validated at Build time, not as they're added, so AddStep can be
// called in any order regardless of dependency declaration order.
type Builder struct {
	steps []Step
}

// NewBuilder starts an empty action definition.
func NewBuilder() *Builder { return &Builder{} }

// AddStep appends a step and returns the builder, for chained calls.
func (b *Builder) AddStep(s Step) *Builder {
	b.steps = append(b.steps, s)
	return b
}

// ConfigError reports a build-time definition problem: a duplicate step
// name, a dependency naming a step that doesn't exist, or a cycle.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "action: " + e.Reason }

// Action is a validated, immutable step graph plus its precomputed
// topological batches, ready to Run repeatedly.
type Action struct {
	steps   map[string]Step
	order   []string   // original registration order, for deterministic pipeline coalescing
	batches [][]string // batch i contains step names whose deps are all satisfied by batches < i
}

// Build validates the accumulated steps and computes topological
// batches via Kahn's algorithm, per §4.6's build-time validation rules:
// unique names, dependency existence, acyclic graph.
func (b *Builder) Build() (*Action, error) {
	steps := make(map[string]Step, len(b.steps))
	order := make([]string, 0, len(b.steps))
	for _, s := range b.steps {
		if _, dup := steps[s.Name]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate step name %q", s.Name)}
		}
		steps[s.Name] = s
		order = append(order, s.Name)
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := steps[dep]; !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("step %q depends on unknown step %q", s.Name, dep)}
			}
		}
	}

	batches, err := buildBatches(steps, order)
	if err != nil {
		return nil, err
	}
	return &Action{steps: steps, order: order, batches: batches}, nil
}

// buildBatches runs Kahn's algorithm: batch K is exactly the set of
// names whose dependencies are all satisfied by batches < K. If the
// algorithm stalls before every step is placed, the unplaced names form
// at least one cycle.
func buildBatches(steps map[string]Step, order []string) ([][]string, error) {
	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for name, s := range steps {
		inDegree[name] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	placed := make(map[string]bool, len(steps))
	var batches [][]string
	remaining := len(steps)

	for remaining > 0 {
		var batch []string
		for _, name := range order {
			if !placed[name] && inDegree[name] == 0 {
				batch = append(batch, name)
			}
		}
		if len(batch) == 0 {
			var cyclic []string
			for _, name := range order {
				if !placed[name] {
					cyclic = append(cyclic, name)
				}
			}
			return nil, &ConfigError{Reason: fmt.Sprintf("dependency cycle among steps %v", cyclic)}
		}
		for _, name := range batch {
			placed[name] = true
			remaining--
		}
		for _, name := range batch {
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// Batches exposes the precomputed topological batches, mainly for tests
// asserting against §8 scenario 3.
func (a *Action) Batches() [][]string { return a.batches }

// Options configures one Run (spec.md §6, action-execute row).
type Options struct {
	ErrorStrategy     ErrorStrategy
	StepTimeoutMs     int
	Retries           int
	RetryDelayMs      int
	RollbackOnFailure bool
}

// Result is the outcome of one Run (§4.6).
type Result struct {
	Success         bool
	Results         map[string]interface{}
	Errors          map[string]error
	ExecutionTimeMs int64
	Batches         int
	RolledBack      bool
	RollbackErrors  []error
}

type completedStep struct {
	name   string
	result interface{}
}

// Run executes the action's batches in topological order against f.
func (a *Action) Run(ctx context.Context, f *facade.Facade, input interface{}, opts Options) Result {
	start := time.Now()
	log := cachelog.WithComponent("action")
	if opts.ErrorStrategy == "" {
		opts.ErrorStrategy = StrategySkipDependents
	}

	results := make(map[string]interface{}, len(a.steps))
	errs := make(map[string]error)
	var completed []completedStep
	var completedMu sync.Mutex
	skipped := make(map[string]bool)
	aborted := false

	for _, batch := range a.batches {
		if aborted {
			continue
		}

		runnable := make([]string, 0, len(batch))
		for _, name := range batch {
			if opts.ErrorStrategy == StrategySkipDependents && stepShouldSkip(a.steps[name], errs, skipped) {
				skipped[name] = true
				continue
			}
			runnable = append(runnable, name)
		}

		var opSteps, computeSteps, fanOutSteps []string
		for _, name := range runnable {
			switch a.steps[name].Kind {
			case KindOperation:
				opSteps = append(opSteps, name)
			case KindCompute:
				computeSteps = append(computeSteps, name)
			case KindFanOut:
				fanOutSteps = append(fanOutSteps, name)
			}
		}

		var wg sync.WaitGroup

		if len(opSteps) > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.runOperationBatch(ctx, f, input, opSteps, results, errs, &completedMu, &completed, opts)
			}()
		}

		for _, name := range computeSteps {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				a.runComputeStep(ctx, f, input, name, results, errs, &completedMu, &completed, opts)
			}(name)
		}

		for _, name := range fanOutSteps {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				a.runFanOutStep(ctx, f, input, name, results, errs, &completedMu, &completed, opts)
			}(name)
		}

		wg.Wait()

		if opts.ErrorStrategy == StrategyAbort {
			for _, name := range runnable {
				if errs[name] != nil {
					aborted = true
					log.WithField("step", name).Warn("aborting remaining batches after step failure")
					break
				}
			}
		}
	}

	success := len(errs) == 0
	result := Result{
		Success:         success,
		Results:         results,
		Errors:          errs,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Batches:         len(a.batches),
	}

	if !success && opts.RollbackOnFailure {
		result.RolledBack = true
		result.RollbackErrors = a.rollback(completed, input, f)
	}
	return result
}

// stepShouldSkip reports whether s must be skipped under skip-dependents
// because a transitive dependency failed or was itself skipped.
func stepShouldSkip(s Step, errs map[string]error, skipped map[string]bool) bool {
	for _, dep := range s.DependsOn {
		if errs[dep] != nil || skipped[dep] {
			return true
		}
	}
	return false
}

func depValues(step Step, results map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		out[dep] = results[dep] // zero value (nil) for failed/skipped deps under "continue"
	}
	return out
}

func withRetry(retries int, delayMs int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt < retries && delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
	}
	return err
}

func withTimeout(ctx context.Context, timeoutMs int, fn func(context.Context) error) error {
	if timeoutMs <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		return &StepTimedOut{}
	}
}

// StepTimedOut is raised when a step attempt is raced against its
// stepTimeoutMs timer and loses. The underlying call is not cancelled
// cooperatively (§5): it may still run to completion in the adapter.
type StepTimedOut struct{}

func (e *StepTimedOut) Error() string { return "action: step timed out" }

func effectiveRetries(stepRetries, globalRetries int) int {
	if stepRetries > globalRetries {
		return stepRetries
	}
	return globalRetries
}

func effectiveTimeout(stepTimeoutMs, globalTimeoutMs int) int {
	if stepTimeoutMs > 0 {
		return stepTimeoutMs
	}
	return globalTimeoutMs
}

func effectiveDelay(stepDelayMs, globalDelayMs int) int {
	if stepDelayMs > 0 {
		return stepDelayMs
	}
	return globalDelayMs
}

// runOperationBatch coalesces every operation-kind step in a batch into
// a single ExecutePipeline call; on whole-pipeline failure it falls back
// to individually executing each step with its own retry policy (§4.6).
func (a *Action) runOperationBatch(ctx context.Context, f *facade.Facade, input interface{}, names []string, results map[string]interface{}, errs map[string]error, mu *sync.Mutex, completed *[]completedStep, opts Options) {
	calls := make([]facade.PipelineCall, 0, len(names))
	callNames := make([]string, 0, len(names))
	buildErrs := make(map[string]error)

	mu.Lock()
	for _, name := range names {
		step := a.steps[name]
		params, err := step.Operation(input, depValues(step, results))
		if err != nil {
			buildErrs[name] = err
			continue
		}
		calls = append(calls, facade.PipelineCall{Descriptor: step.Descriptor, Params: params})
		callNames = append(callNames, name)
	}
	mu.Unlock()

	for name, err := range buildErrs {
		mu.Lock()
		errs[name] = err
		mu.Unlock()
	}
	if len(calls) == 0 {
		return
	}

	pipelineResults, pipeErr := f.ExecutePipeline(ctx, calls)
	if pipeErr != nil {
		// Whole-pipeline failure: fall back to individual execute calls,
		// each with its own retry policy, per §4.6.
		for i, name := range callNames {
			a.runSingleOperation(ctx, f, input, name, results, errs, mu, completed, opts, calls[i])
		}
		return
	}

	mu.Lock()
	defer mu.Unlock()
	for i, name := range callNames {
		r := pipelineResults[i]
		if r.Success {
			results[name] = r.Data
			*completed = append(*completed, completedStep{name: name, result: r.Data})
		} else {
			errs[name] = r.Err
		}
	}
}

func (a *Action) runSingleOperation(ctx context.Context, f *facade.Facade, input interface{}, name string, results map[string]interface{}, errs map[string]error, mu *sync.Mutex, completed *[]completedStep, opts Options, call facade.PipelineCall) {
	step := a.steps[name]
	retries := effectiveRetries(step.Retries, opts.Retries)
	delay := effectiveDelay(step.RetryDelayMs, opts.RetryDelayMs)
	timeout := effectiveTimeout(step.StepTimeoutMs, opts.StepTimeoutMs)

	var value interface{}
	err := withRetry(retries, delay, func() error {
		return withTimeout(ctx, timeout, func(tctx context.Context) error {
			v, err := f.Execute(tctx, call.Descriptor, call.Params, facade.Options{ThrowOnError: boolPtr(true)})
			value = v
			return err
		})
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		errs[name] = err
		return
	}
	results[name] = value
	*completed = append(*completed, completedStep{name: name, result: value})
}

func (a *Action) runComputeStep(ctx context.Context, f *facade.Facade, input interface{}, name string, results map[string]interface{}, errs map[string]error, mu *sync.Mutex, completed *[]completedStep, opts Options) {
	step := a.steps[name]
	mu.Lock()
	deps := depValues(step, results)
	mu.Unlock()

	retries := effectiveRetries(step.Retries, opts.Retries)
	delay := effectiveDelay(step.RetryDelayMs, opts.RetryDelayMs)
	timeout := effectiveTimeout(step.StepTimeoutMs, opts.StepTimeoutMs)

	var value interface{}
	err := withRetry(retries, delay, func() error {
		return withTimeout(ctx, timeout, func(tctx context.Context) error {
			v, err := step.Compute(tctx, input, deps, f)
			value = v
			return err
		})
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		errs[name] = err
		return
	}
	results[name] = value
	*completed = append(*completed, completedStep{name: name, result: value})
}

func (a *Action) runFanOutStep(ctx context.Context, f *facade.Facade, input interface{}, name string, results map[string]interface{}, errs map[string]error, mu *sync.Mutex, completed *[]completedStep, opts Options) {
	step := a.steps[name]
	mu.Lock()
	deps := depValues(step, results)
	mu.Unlock()

	calls, err := step.FanOut(input, deps)
	if err != nil {
		mu.Lock()
		errs[name] = err
		mu.Unlock()
		return
	}

	pipelineResults, err := f.ExecutePipeline(ctx, calls)
	if err != nil {
		mu.Lock()
		errs[name] = err
		mu.Unlock()
		return
	}

	var value interface{} = pipelineResults
	if step.Reduce != nil {
		value, err = step.Reduce(pipelineResults)
		if err != nil {
			mu.Lock()
			errs[name] = err
			mu.Unlock()
			return
		}
	}

	mu.Lock()
	defer mu.Unlock()
	results[name] = value
	*completed = append(*completed, completedStep{name: name, result: value})
}

// rollback iterates completed steps in reverse completion order,
// invoking each step's undo handler (if any) best-effort (§4.6).
func (a *Action) rollback(completed []completedStep, input interface{}, f *facade.Facade) []error {
	log := cachelog.WithComponent("action")
	var rollbackErrs []error
	for i := len(completed) - 1; i >= 0; i-- {
		c := completed[i]
		step := a.steps[c.name]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(input, c.result, f); err != nil {
			log.WithFields(logrus.Fields{"step": c.name, "error": err}).Warn("rollback undo failed")
			rollbackErrs = append(rollbackErrs, fmt.Errorf("undo %s: %w", c.name, err))
		}
	}
	return rollbackErrs
}

func boolPtr(b bool) *bool { return &b }
