// Package descriptor defines the Operation Descriptor and Schema types
// of SPEC_FULL.md §4: the fixed, named bindings of a command to its
// argument-building and result-parsing logic, grouped under a keyed
// template and a declared structure tag.
package descriptor

import (
	"github.com/evalgo-org/cachyer/internal/adapter"
	"github.com/evalgo-org/cachyer/internal/keybuilder"
)

// BuildArgsFunc turns caller-supplied parameters into the positional
// argument list a Command expects. When the command operates on a
// single key, BuildArgsFunc must place that key at Args[0] so the
// facade can apply its prefix without parsing the remainder.
type BuildArgsFunc func(params map[string]interface{}) ([]interface{}, error)

// ParseResultFunc converts an adapter's raw return value into the typed
// value callers expect. A nil ParseResultFunc means the raw value is
// returned unchanged.
type ParseResultFunc func(raw interface{}) (interface{}, error)

// OperationDescriptor is the command, its argument builder and its
// result parser, addressed by name within a Schema.
type OperationDescriptor struct {
	Name        string
	Command     adapter.Command
	BuildArgs   BuildArgsFunc
	ParseResult ParseResultFunc
}

// Parse applies ParseResult to raw, or returns it unchanged when no
// parser is configured.
func (d OperationDescriptor) Parse(raw interface{}) (interface{}, error) {
	if d.ParseResult == nil {
		return raw, nil
	}
	return d.ParseResult(raw)
}

// Schema binds a key template and a declared structure tag to a fixed
// set of named operation descriptors, plus the metadata the facade and
// invalidation policies consume. Version and Tags are opaque to the
// runtime — they exist only for client-side cache-busting schemes built
// on top of this library.
type Schema struct {
	Name        string
	Template    *keybuilder.Builder
	Tag         adapter.Tag
	Descriptors map[string]OperationDescriptor
	TTL         int64 // seconds; 0 means no default TTL
	MaxSize     int64 // advisory; not read by the facade or either adapter
	Namespace   string
	Version     string
	Tags        []string
}

// NewSchema constructs a Schema with an empty descriptor set.
func NewSchema(name string, template *keybuilder.Builder, tag adapter.Tag) *Schema {
	return &Schema{
		Name:        name,
		Template:    template,
		Tag:         tag,
		Descriptors: make(map[string]OperationDescriptor),
	}
}

// Register adds or replaces a named descriptor on the schema and returns
// the schema, so a schema can be built with chained calls.
func (s *Schema) Register(d OperationDescriptor) *Schema {
	s.Descriptors[d.Name] = d
	return s
}

// Describe looks up a named descriptor, returning ok=false if the
// schema has no operation by that name — a ConfigError at the call
// site, since an action or facade call referencing an unknown operation
// name is a build-time mistake, not a runtime one.
func (s *Schema) Describe(name string) (OperationDescriptor, bool) {
	d, ok := s.Descriptors[name]
	return d, ok
}

// WithTTL sets the schema's default TTL in seconds.
func (s *Schema) WithTTL(seconds int64) *Schema {
	s.TTL = seconds
	return s
}

// WithMaxSize sets the schema's advisory size bound.
func (s *Schema) WithMaxSize(n int64) *Schema {
	s.MaxSize = n
	return s
}

// WithNamespace sets the schema's namespace. The facade does not read it:
// keys receive only the facade's own KeyPrefix.
func (s *Schema) WithNamespace(ns string) *Schema {
	s.Namespace = ns
	return s
}

// WithVersion stamps the schema with an opaque version string.
func (s *Schema) WithVersion(v string) *Schema {
	s.Version = v
	return s
}

// WithTags attaches opaque invalidation tags to the schema.
func (s *Schema) WithTags(tags ...string) *Schema {
	s.Tags = tags
	return s
}

// BuiltinDescriptors returns the common string/hash/list/sorted-set
// descriptors for a schema whose template resolves to a single key
// parameter, covering the commands most call sites need without
// hand-writing BuildArgs for each one. Any other tag, TagSet included,
// gets an empty map; schemas with unusual argument shapes (multi-key
// SINTER, for example) register their own.
func BuiltinDescriptors(tag adapter.Tag) map[string]OperationDescriptor {
	single := func(name string, cmd adapter.Command) OperationDescriptor {
		return OperationDescriptor{
			Name:    name,
			Command: cmd,
			BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
				return []interface{}{params["key"]}, nil
			},
		}
	}

	switch tag {
	case adapter.TagString:
		return map[string]OperationDescriptor{
			"get": single("get", adapter.CmdGet),
			"set": {
				Name:    "set",
				Command: adapter.CmdSet,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					opts, _ := params["opts"].(adapter.SetOptions)
					return []interface{}{params["key"], params["value"], opts}, nil
				},
			},
			"del": {
				Name:    "del",
				Command: adapter.CmdDel,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					key, _ := params["key"].(string)
					return []interface{}{[]string{key}}, nil
				},
			},
		}
	case adapter.TagHash:
		return map[string]OperationDescriptor{
			"hgetall": single("hgetall", adapter.CmdHGetAll),
			"hget": {
				Name:    "hget",
				Command: adapter.CmdHGet,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					return []interface{}{params["key"], params["field"]}, nil
				},
			},
			"hset": {
				Name:    "hset",
				Command: adapter.CmdHSet,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					return []interface{}{params["key"], params["field"], params["value"]}, nil
				},
			},
		}
	case adapter.TagList:
		return map[string]OperationDescriptor{
			"lrange": {
				Name:    "lrange",
				Command: adapter.CmdLRange,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					return []interface{}{params["key"], params["start"], params["stop"]}, nil
				},
			},
			"rpush": {
				Name:    "rpush",
				Command: adapter.CmdRPush,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					values, _ := params["values"].([]interface{})
					return append([]interface{}{params["key"]}, values...), nil
				},
			},
		}
	case adapter.TagSortedSet:
		return map[string]OperationDescriptor{
			"zrange": {
				Name:    "zrange",
				Command: adapter.CmdZRange,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					opts, _ := params["opts"].(adapter.RangeOptions)
					return []interface{}{params["key"], params["start"], params["stop"], opts}, nil
				},
			},
			"zadd": {
				Name:    "zadd",
				Command: adapter.CmdZAdd,
				BuildArgs: func(params map[string]interface{}) ([]interface{}, error) {
					opts, _ := params["opts"].(adapter.ZAddOptions)
					members, _ := params["members"].([]adapter.ZMember)
					return []interface{}{params["key"], opts, members}, nil
				},
			},
		}
	default:
		return map[string]OperationDescriptor{}
	}
}
