package action

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/descriptor"
	"github.com/evalgo-org/cachyer/internal/facade"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade() (*facade.Facade, *adapter.InProcessAdapter) {
	a := adapter.NewInProcess()
	return facade.New(a, facade.Config{DefaultTimeoutMs: 200}), a
}

func setDescriptor() descriptor.OperationDescriptor {
	tpl := keybuilder.New("item:{id}")
	schema := descriptor.NewSchema("item", tpl, adapter.TagString)
	for _, d := range descriptor.BuiltinDescriptors(adapter.TagString) {
		schema.Register(d)
	}
	d, _ := schema.Describe("set")
	return d
}

func TestBuildBatchesTopologicalOrder(t *testing.T) {
	b := NewBuilder()
	b.AddStep(Step{Name: "c", Kind: KindCompute, DependsOn: []string{"a", "b"}, Compute: noop})
	b.AddStep(Step{Name: "a", Kind: KindCompute, Compute: noop})
	b.AddStep(Step{Name: "b", Kind: KindCompute, DependsOn: []string{"a"}, Compute: noop})

	act, err := b.Build()
	require.NoError(t, err)

	batches := act.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a"}, batches[0])
	assert.Equal(t, []string{"b"}, batches[1])
	assert.Equal(t, []string{"c"}, batches[2])
}

func TestBuildDetectsCycle(t *testing.T) {
	b := NewBuilder()
	b.AddStep(Step{Name: "x", Kind: KindCompute, DependsOn: []string{"y"}, Compute: noop})
	b.AddStep(Step{Name: "y", Kind: KindCompute, DependsOn: []string{"x"}, Compute: noop})

	_, err := b.Build()
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuildDetectsUnknownDependency(t *testing.T) {
	b := NewBuilder()
	b.AddStep(Step{Name: "x", Kind: KindCompute, DependsOn: []string{"missing"}, Compute: noop})

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuildDetectsDuplicateName(t *testing.T) {
	b := NewBuilder()
	b.AddStep(Step{Name: "x", Kind: KindCompute, Compute: noop})
	b.AddStep(Step{Name: "x", Kind: KindCompute, Compute: noop})

	_, err := b.Build()
	require.Error(t, err)
}

func TestRunSkipDependentsSkipsDownstreamOfFailure(t *testing.T) {
	f, a := newTestFacade()
	defer a.Close()

	b := NewBuilder()
	b.AddStep(Step{Name: "fails", Kind: KindCompute, Compute: func(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error) {
		return nil, errors.New("boom")
	}})
	b.AddStep(Step{Name: "dependent", Kind: KindCompute, DependsOn: []string{"fails"}, Compute: noop})
	b.AddStep(Step{Name: "independent", Kind: KindCompute, Compute: noop})

	act, err := b.Build()
	require.NoError(t, err)

	result := act.Run(context.Background(), f, nil, Options{ErrorStrategy: StrategySkipDependents})
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "fails")
	assert.NotContains(t, result.Errors, "dependent")
	assert.NotContains(t, result.Results, "dependent")
	assert.Contains(t, result.Results, "independent")
}

func TestRunAbortStopsLaterBatches(t *testing.T) {
	f, a := newTestFacade()
	defer a.Close()

	var ranSecondBatch bool
	var mu sync.Mutex

	b2 := NewBuilder()
	b2.AddStep(Step{Name: "first", Kind: KindCompute, Compute: func(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error) {
		return nil, errors.New("boom")
	}})
	b2.AddStep(Step{Name: "second", Kind: KindCompute, DependsOn: []string{"first"}, Compute: func(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error) {
		mu.Lock()
		ranSecondBatch = true
		mu.Unlock()
		return nil, nil
	}})
	act2, err := b2.Build()
	require.NoError(t, err)

	result := act2.Run(context.Background(), f, nil, Options{ErrorStrategy: StrategyAbort})
	assert.False(t, result.Success)
	mu.Lock()
	assert.False(t, ranSecondBatch, "abort must prevent later batches from starting")
	mu.Unlock()
}

func TestRunRollbackInvokesUndoInReverseCompletionOrder(t *testing.T) {
	f, a := newTestFacade()
	defer a.Close()

	var order []string
	var mu sync.Mutex
	record := func(name string) UndoFunc {
		return func(input interface{}, result interface{}, f *facade.Facade) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	b := NewBuilder()
	b.AddStep(Step{Name: "c1", Kind: KindCompute, Compute: noop, Undo: record("c1")})
	b.AddStep(Step{Name: "c2", Kind: KindCompute, DependsOn: []string{"c1"}, Compute: noop, Undo: record("c2")})
	b.AddStep(Step{Name: "c3", Kind: KindCompute, DependsOn: []string{"c2"}, Compute: func(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error) {
		return nil, errors.New("boom")
	}})

	act, err := b.Build()
	require.NoError(t, err)

	result := act.Run(context.Background(), f, nil, Options{ErrorStrategy: StrategySkipDependents, RollbackOnFailure: true})
	assert.False(t, result.Success)
	assert.True(t, result.RolledBack)
	assert.Equal(t, []string{"c2", "c1"}, order)
}

func TestRunOperationStepsCoalesceIntoPipeline(t *testing.T) {
	f, a := newTestFacade()
	defer a.Close()
	desc := setDescriptor()

	b := NewBuilder()
	b.AddStep(Step{Name: "s1", Kind: KindOperation, Descriptor: desc, Operation: func(input interface{}, deps map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"key": "item:1", "value": "a", "opts": adapter.SetOptions{}}, nil
	}})
	b.AddStep(Step{Name: "s2", Kind: KindOperation, Descriptor: desc, Operation: func(input interface{}, deps map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"key": "item:2", "value": "b", "opts": adapter.SetOptions{}}, nil
	}})

	act, err := b.Build()
	require.NoError(t, err)

	result := act.Run(context.Background(), f, nil, Options{})
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Batches)

	_, ok, err := a.Get(context.Background(), "item:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func noop(ctx context.Context, input interface{}, deps map[string]interface{}, f *facade.Facade) (interface{}, error) {
	return "ok", nil
}
