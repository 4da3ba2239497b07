package descriptor

import (
	"testing"

	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaRegisterAndDescribe(t *testing.T) {
	tpl := keybuilder.New("item:{id}")
	s := NewSchema("item", tpl, adapter.TagString)
	for _, d := range BuiltinDescriptors(adapter.TagString) {
		s.Register(d)
	}

	setDesc, ok := s.Describe("set")
	require.True(t, ok)
	assert.Equal(t, adapter.CmdSet, setDesc.Command)

	_, ok = s.Describe("does-not-exist")
	assert.False(t, ok)
}

func TestSchemaFluentConfiguration(t *testing.T) {
	tpl := keybuilder.New("item:{id}")
	s := NewSchema("item", tpl, adapter.TagString).
		WithTTL(60).
		WithMaxSize(1000).
		WithNamespace("ns").
		WithVersion("v1").
		WithTags("a", "b")

	assert.Equal(t, int64(60), s.TTL)
	assert.Equal(t, int64(1000), s.MaxSize)
	assert.Equal(t, "ns", s.Namespace)
	assert.Equal(t, "v1", s.Version)
	assert.Equal(t, []string{"a", "b"}, s.Tags)
}

func TestOperationDescriptorParseDefaultsToIdentity(t *testing.T) {
	d := OperationDescriptor{Name: "noop", Command: adapter.CmdGet}
	out, err := d.Parse("raw-value")
	require.NoError(t, err)
	assert.Equal(t, "raw-value", out)
}

func TestOperationDescriptorParseAppliesConfiguredParser(t *testing.T) {
	d := OperationDescriptor{
		Name:    "upper",
		Command: adapter.CmdGet,
		ParseResult: func(raw interface{}) (interface{}, error) {
			return "parsed:" + raw.(string), nil
		},
	}
	out, err := d.Parse("value")
	require.NoError(t, err)
	assert.Equal(t, "parsed:value", out)
}

func TestBuiltinDescriptorsSetBuildArgsIncludesKeyValueOpts(t *testing.T) {
	descs := BuiltinDescriptors(adapter.TagString)
	setDesc, ok := descs["set"]
	require.True(t, ok)

	args, err := setDesc.BuildArgs(map[string]interface{}{
		"key": "item:1", "value": "hello", "opts": adapter.SetOptions{NX: true},
	})
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, "item:1", args[0])
	assert.Equal(t, "hello", args[1])
	assert.Equal(t, adapter.SetOptions{NX: true}, args[2])
}

func TestBuiltinDescriptorsUnknownTagReturnsEmpty(t *testing.T) {
	descs := BuiltinDescriptors(adapter.Tag("unknown"))
	assert.Empty(t, descs)
}
