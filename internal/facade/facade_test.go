package facade

import (
	"context"
	"testing"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/descriptor"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(cfg Config) (*Facade, *adapter.InProcessAdapter) {
	a := adapter.NewInProcess()
	return New(a, cfg), a
}

func stringSchema() *descriptor.Schema {
	tpl := keybuilder.New("item:{id}")
	s := descriptor.NewSchema("item", tpl, adapter.TagString)
	for _, d := range descriptor.BuiltinDescriptors(adapter.TagString) {
		s.Register(d)
	}
	return s
}

func TestFacadeKeyPrefixRoundTrip(t *testing.T) {
	f, a := newTestFacade(Config{KeyPrefix: "myapp", DefaultTimeoutMs: 100})
	defer a.Close()
	schema := stringSchema()
	ctx := context.Background()

	setDesc, ok := schema.Describe("set")
	require.True(t, ok)
	_, err := f.Execute(ctx, setDesc, map[string]interface{}{
		"key": "item:42", "value": "hello", "opts": adapter.SetOptions{},
	}, Options{})
	require.NoError(t, err)

	raw, ok, err := a.Get(ctx, "myapp:item:42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", raw)

	getDesc, ok := schema.Describe("get")
	require.True(t, ok)
	value, err := f.Execute(ctx, getDesc, map[string]interface{}{"key": "item:42"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	assert.Equal(t, "item:42", f.Unprefix("myapp:item:42"))
}

func TestFacadeThrowOnErrorFalseReturnsNilAndInvokesOnError(t *testing.T) {
	f, a := newTestFacade(Config{ThrowOnError: false, DefaultTimeoutMs: 100})
	defer a.Close()

	badDescriptor := descriptor.OperationDescriptor{
		Name:    "bogus",
		Command: adapter.Command("BOGUS"),
		BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
			return []interface{}{"k"}, nil
		},
	}

	var onErrorCalled bool
	value, err := f.Execute(context.Background(), badDescriptor, nil, Options{
		ThrowOnError: boolPtr(false),
		OnError:      func(err error) { onErrorCalled = true },
	})
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.True(t, onErrorCalled)
}

func boolPtr(b bool) *bool { return &b }

func TestFacadePipelineResultCountMatchesEntries(t *testing.T) {
	f, a := newTestFacade(Config{DefaultTimeoutMs: 100})
	defer a.Close()
	schema := stringSchema()
	setDesc, _ := schema.Describe("set")

	calls := []PipelineCall{
		{Descriptor: setDesc, Params: map[string]interface{}{"key": "item:1", "value": "a", "opts": adapter.SetOptions{}}},
		{Descriptor: setDesc, Params: map[string]interface{}{"key": "item:2", "value": "b", "opts": adapter.SetOptions{}}},
		{Descriptor: setDesc, Params: map[string]interface{}{"key": "item:3", "value": "c", "opts": adapter.SetOptions{}}},
	}
	results, err := f.ExecutePipeline(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NoError(t, r.Err)
	}
}
