package keybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSubstitutesTokens(t *testing.T) {
	b := New("user:{userId}:feed")
	key, err := b.Build(map[string]string{"userId": "42"})
	require.NoError(t, err)
	assert.Equal(t, "user:42:feed", key)
}

func TestBuildWithPrefix(t *testing.T) {
	b := New("user:{userId}", WithPrefix("myapp"))
	key, err := b.Build(map[string]string{"userId": "42"})
	require.NoError(t, err)
	assert.Equal(t, "myapp:user:42", key)
}

func TestBuildMissingTokenWithValidationFails(t *testing.T) {
	b := New("user:{userId}", WithValidation(true))
	_, err := b.Build(map[string]string{})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuildMissingTokenWithoutValidationLeavesPlaceholder(t *testing.T) {
	b := New("user:{userId}")
	key, err := b.Build(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "user:{userId}", key)
}

func TestApplyAndStripPrefixRoundTrip(t *testing.T) {
	prefixed := ApplyPrefix("item:1", "myapp", ":")
	assert.Equal(t, "myapp:item:1", prefixed)

	stripped, ok := StripPrefix(prefixed, "myapp", ":")
	assert.True(t, ok)
	assert.Equal(t, "item:1", stripped)
}

func TestApplyPrefixIsIdempotent(t *testing.T) {
	once := ApplyPrefix("item:1", "myapp", ":")
	twice := ApplyPrefix(once, "myapp", ":")
	assert.Equal(t, once, twice)
}

func TestParsePatternSplitsSegments(t *testing.T) {
	parts, err := ParsePattern("domain:type:id")
	require.NoError(t, err)
	assert.Equal(t, []string{"domain", "type", "id"}, parts)
}

func TestParsePatternRejectsTooFewSegments(t *testing.T) {
	_, err := ParsePattern("onlyone")
	require.Error(t, err)
}

func TestGlobWithAndWithoutType(t *testing.T) {
	assert.Equal(t, "domain:*", Glob("domain"))
	assert.Equal(t, "domain:type:*", Glob("domain", "type"))
}
