package templates

import (
	"reflect"
	"strings"
)

// ConditionKind enumerates the closed set of render predicates
type ConditionKind int

const (
	// Always renders the component unconditionally
	Always ConditionKind = iota
	// HasValue renders when the context value at Key is non-empty
	HasValue
	// Flag renders when the context value at Key is truthy
	Flag
)

func (k ConditionKind) String() string {
	switch k {
	case Always:
		return "always"
	case HasValue:
		return "has_value"
	case Flag:
		return "flag"
	default:
		return "unknown"
	}
}

// Flags the renderer sets; a Flag condition on any other key could never be
// true
var knownFlags = map[string]bool{
	"show_exact_text":  true,
	"show_proof_trace": true,
}

// Condition is a parsed component predicate
type Condition struct {
	Kind ConditionKind
	Key  string
}

// ParseCondition turns a template condition name into a predicate.
// "" is Always, "has_<key>" is HasValue(key), anything else is Flag(name).
func ParseCondition(name string) Condition {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Condition{Kind: Always}
	case strings.HasPrefix(name, "has_") && len(name) > len("has_"):
		return Condition{Kind: HasValue, Key: strings.TrimPrefix(name, "has_")}
	default:
		return Condition{Kind: Flag, Key: name}
	}
}

// Valid reports whether the predicate can ever hold: flags must be one of
// the known render flags
func (c Condition) Valid() bool {
	switch c.Kind {
	case Always, HasValue:
		return true
	case Flag:
		return knownFlags[c.Key]
	default:
		return false
	}
}

// Eval evaluates the predicate against ctx. Missing keys are false.
func (c Condition) Eval(ctx Context) bool {
	switch c.Kind {
	case Always:
		return true
	case HasValue, Flag:
		return truthy(ctx[c.Key])
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Kind {
	case HasValue:
		return "has_" + c.Key
	case Flag:
		return c.Key
	default:
		return ""
	}
}

// truthy follows the usual emptiness rules: zero values, empty strings and
// empty collections are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []string:
		return len(t) > 0
	case map[string]string:
		return len(t) > 0
	case int:
		return t != 0
	case float64:
		return t != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}
