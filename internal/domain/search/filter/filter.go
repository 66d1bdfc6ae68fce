// Package filter implements metadata match filters over documents.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxConditions is the maximum number of conditions in one filter.
const MaxConditions = 32

// Fielder resolves a metadata path on a document.
type Fielder interface {
	Field(path string) (any, bool)
}

// Filter is a conjunction of conditions. The zero value matches everything.
type Filter struct {
	conds []Condition
}

// Condition requires the field at key to equal one of the accepted values.
type Condition struct {
	key    string
	values []string
}

// New builds a filter from a key/value map. Keys may be flat or dotted, values a scalar
// or a list of acceptable scalars. Nested maps are flattened into dotted keys.
func New(m map[string]any) (Filter, error) {
	flat := make(map[string]any, len(m))
	flatten("", m, flat)

	if len(flat) > MaxConditions {
		return Filter{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditions)
	}

	conds := make([]Condition, 0, len(flat))
	for key, raw := range flat {
		c, err := NewCondition(key, raw)
		if err != nil {
			return Filter{}, err
		}
		conds = append(conds, c)
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].key < conds[j].key })
	return Filter{conds: conds}, nil
}

// NewCondition validates a single key/value clause.
func NewCondition(key string, raw any) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}

	var values []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			s, err := scalar(key, item)
			if err != nil {
				return Condition{}, err
			}
			values = append(values, s)
		}
	case []string:
		values = append(values, v...)
	default:
		s, err := scalar(key, v)
		if err != nil {
			return Condition{}, err
		}
		values = []string{s}
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("filter %q has an empty value list", key)
	}
	return Condition{key: key, values: values}, nil
}

// ByFilePath is a shortcut for the common per-file filter.
func ByFilePath(path string) Filter {
	return Filter{conds: []Condition{{key: "filePath", values: []string{path}}}}
}

// Conditions returns the filter clauses ordered by key.
func (f Filter) Conditions() []Condition { return f.conds }

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f.conds) == 0 }

// Matches reports whether every condition holds for d.
func (f Filter) Matches(d Fielder) bool {
	for _, c := range f.conds {
		if !c.Matches(d) {
			return false
		}
	}
	return true
}

// Key returns the field path.
func (c Condition) Key() string { return c.key }

// Values returns the accepted values.
func (c Condition) Values() []string { return c.values }

// Matches reports whether the field at the condition key equals one of the accepted values.
func (c Condition) Matches(d Fielder) bool {
	v, ok := d.Field(c.key)
	if !ok {
		return false
	}
	got, err := scalar(c.key, v)
	if err != nil {
		return false
	}
	for _, want := range c.values {
		if got == want {
			return true
		}
	}
	return false
}

func scalar(key string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case nil:
		return "", fmt.Errorf("filter %q has a null value", key)
	default:
		return "", fmt.Errorf("filter %q has unsupported value type %T", key, v)
	}
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// String renders the filter for logs.
func (f Filter) String() string {
	parts := make([]string, 0, len(f.conds))
	for _, c := range f.conds {
		parts = append(parts, c.key+"="+strings.Join(c.values, "|"))
	}
	return strings.Join(parts, ",")
}
