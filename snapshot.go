package minimact

import (
	"fmt"
	"strconv"
	"strings"
)

// StateSnapshot holds the current value of every state key for one component
// instance. It is owned exclusively by that instance's update cycle; the
// engine never mutates it from two sources. Values follow JSON conventions:
// string, bool, float64/int, []any, map[string]any.
type StateSnapshot map[string]any

// Get resolves a dotted binding path against the snapshot, descending into
// nested maps, e.g. Get("cart.total") or Get("user.address.city"). The
// second result reports whether the full path resolved.
func (s StateSnapshot) Get(binding string) (any, bool) {
	return lookupPath(map[string]any(s), binding)
}

// Set stores a value at a dotted path, creating intermediate maps as
// needed. Numeric segments index into existing slices, so
// Set("todos.0.text", v) edits the first element in place; an out-of-range
// slice index drops the write.
func (s StateSnapshot) Set(binding string, value any) {
	setPath(map[string]any(s), strings.Split(binding, "."), value)
}

func setPath(container any, parts []string, value any) {
	switch c := container.(type) {
	case map[string]any:
		key := parts[0]
		if len(parts) == 1 {
			c[key] = value
			return
		}
		next, ok := c[key]
		if !ok || !isContainer(next) {
			next = make(map[string]any)
			c[key] = next
		}
		setPath(next, parts[1:], value)
	case []any:
		idx, err := strconv.Atoi(parts[0])
		if err != nil || idx < 0 || idx >= len(c) {
			return
		}
		if len(parts) == 1 {
			c[idx] = value
			return
		}
		if !isContainer(c[idx]) {
			c[idx] = make(map[string]any)
		}
		setPath(c[idx], parts[1:], value)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// Apply merges a change batch into the snapshot in emission order.
func (s StateSnapshot) Apply(changes map[string]any) {
	for key, value := range changes {
		s.Set(key, value)
	}
}

// Clone returns a deep copy of the snapshot.
func (s StateSnapshot) Clone() StateSnapshot {
	return StateSnapshot(deepCopyValue(map[string]any(s)).(map[string]any))
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// lookupPath walks a dotted path through nested maps. Numeric segments index
// into slices, so "todos.0.text" addresses the first element's text.
func lookupPath(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, part := range strings.Split(path, ".") {
		switch container := cur.(type) {
		case map[string]any:
			next, ok := container[part]
			if !ok {
				return nil, false
			}
			cur = next
		case StateSnapshot:
			next, ok := container[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(container) {
				return nil, false
			}
			cur = container[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// scope layers loop variables (item, optional index) over a snapshot so that
// bindings like "todo.text" or "i" resolve inside a loop body. Scopes nest
// for loops within loops.
type scope struct {
	parent   *scope
	snapshot StateSnapshot
	vars     map[string]any
}

func newScope(snapshot StateSnapshot) *scope {
	return &scope{snapshot: snapshot}
}

func (sc *scope) child(vars map[string]any) *scope {
	return &scope{parent: sc, snapshot: sc.snapshot, vars: vars}
}

// resolve looks a binding up through loop variables first, then the
// enclosing scopes, then the snapshot itself.
func (sc *scope) resolve(binding string) (any, bool) {
	head, rest, _ := strings.Cut(binding, ".")
	for cur := sc; cur != nil; cur = cur.parent {
		if cur.vars == nil {
			continue
		}
		if v, ok := cur.vars[head]; ok {
			if rest == "" {
				return v, true
			}
			if m, isMap := v.(map[string]any); isMap {
				return lookupPath(m, rest)
			}
			return nil, false
		}
	}
	return sc.snapshot.Get(binding)
}

// resolveString resolves a binding and stringifies it for slot rendering.
func (sc *scope) resolveString(binding string) (string, bool) {
	v, ok := sc.resolve(binding)
	if !ok {
		return "", false
	}
	return stringifyValue(v), true
}

// stringifyValue renders a state value the way it appears in text content.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// truthy implements discriminant evaluation for conditional templates.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
