// Package keybuilder produces canonical store keys from named parameters
// and a template such as "user:{userId}:feed". It performs no I/O and
// holds no global state.
package keybuilder

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSeparator is used between a prefix and a key when none is given.
const DefaultSeparator = ":"

var tokenPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigError reports an invalid key template or a missing required token.
type ConfigError struct {
	Template string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("keybuilder: %s (template %q)", e.Reason, e.Template)
}

// Builder builds keys from a template by strict verbatim substitution.
// It carries no state beyond its own configuration and is safe for
// concurrent use.
type Builder struct {
	template  string
	prefix    string
	separator string
	validate  bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithPrefix sets the key prefix applied by Build.
func WithPrefix(prefix string) Option {
	return func(b *Builder) { b.prefix = prefix }
}

// WithSeparator overrides the default ":" separator between prefix and key.
func WithSeparator(sep string) Option {
	return func(b *Builder) { b.separator = sep }
}

// WithValidation fails Build with a ConfigError when a template token has
// no corresponding parameter. When disabled, unknown tokens are left
// unsubstituted verbatim.
func WithValidation(enabled bool) Option {
	return func(b *Builder) { b.validate = enabled }
}

// New creates a Builder for the given template.
func New(template string, opts ...Option) *Builder {
	b := &Builder{
		template:  template,
		separator: DefaultSeparator,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Template returns the builder's template string.
func (b *Builder) Template() string { return b.template }

// Build substitutes each {token} in the template with params[token] and
// applies the configured prefix, if any.
func (b *Builder) Build(params map[string]string) (string, error) {
	seen := make(map[string]bool, len(params))
	var buildErr error

	key := tokenPattern.ReplaceAllStringFunc(b.template, func(match string) string {
		name := match[1 : len(match)-1]
		if seen[name] {
			buildErr = &ConfigError{Template: b.template, Reason: "duplicate token " + name}
			return match
		}
		seen[name] = true

		value, ok := params[name]
		if !ok {
			if b.validate {
				buildErr = &ConfigError{Template: b.template, Reason: "missing token " + name}
			}
			return match
		}
		return value
	})
	if buildErr != nil {
		return "", buildErr
	}

	return b.WithPrefix(key), nil
}

// MustBuild is like Build but panics on error. Intended for call sites and
// tests where the template is statically known to be well formed.
func (b *Builder) MustBuild(params map[string]string) string {
	key, err := b.Build(params)
	if err != nil {
		panic(err)
	}
	return key
}

// WithPrefix returns key prefixed with "prefix<separator>" unless it
// already carries that prefix. An empty prefix returns key unchanged.
func (b *Builder) WithPrefix(key string) string {
	return ApplyPrefix(key, b.prefix, b.separator)
}

// ApplyPrefix applies prefix+separator to key unless key already begins
// with it. An empty prefix is a no-op.
func ApplyPrefix(key, prefix, separator string) string {
	if prefix == "" {
		return key
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	full := prefix + separator
	if strings.HasPrefix(key, full) {
		return key
	}
	return full + key
}

// StripPrefix removes a previously applied "prefix<separator>" from key, if
// present, returning the unprefixed key and whether it was stripped.
func StripPrefix(key, prefix, separator string) (string, bool) {
	if prefix == "" {
		return key, false
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	full := prefix + separator
	if strings.HasPrefix(key, full) {
		return strings.TrimPrefix(key, full), true
	}
	return key, false
}

// ParsePattern splits a key of the form "domain:type:id[:id...]" into its
// colon-separated segments. Returns an error if fewer than two segments
// are present.
func ParsePattern(key string) ([]string, error) {
	parts := strings.Split(key, DefaultSeparator)
	if len(parts) < 2 {
		return nil, fmt.Errorf("keybuilder: pattern %q has fewer than 2 segments", key)
	}
	return parts, nil
}

// Glob builds a SCAN/KEYS-style glob for a domain, and optionally a type:
// "domain:*" or "domain:type:*".
func Glob(domain string, typ ...string) string {
	if len(typ) > 0 && typ[0] != "" {
		return domain + DefaultSeparator + typ[0] + DefaultSeparator + "*"
	}
	return domain + DefaultSeparator + "*"
}
