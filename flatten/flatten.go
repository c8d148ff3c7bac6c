// Package flatten walks a resource tree into the deduplicated, sorted set of
// (field name, leaf value) pairs that the store's aux index and the
// condition algebra's in-memory matcher both operate on.
package flatten

import "sort"

// Pair is one (field name, leaf value) occurrence. Leaf is one of string,
// bool or float64, mirroring the JSON leaf types a resource may contain.
type Pair struct {
	Name string
	Leaf interface{}
}

// Object walks obj depth-first over maps and lists and returns every
// distinct (leaf field name, leaf value) pair it finds, deduplicated and in
// a stable sorted order. List elements inherit the field name of the list
// itself, exactly as the original flattener does.
func Object(obj map[string]interface{}) []Pair {
	seen := map[Pair]struct{}{}
	var out []Pair
	walk("", obj, func(p Pair) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	})
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func walk(name string, v interface{}, emit func(Pair)) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, v2 := range t {
			walk(k, v2, emit)
		}
	case []interface{}:
		for _, v2 := range t {
			walk(name, v2, emit)
		}
	default:
		if name == "" {
			return
		}
		emit(Pair{Name: name, Leaf: t})
	}
}

// rank orders the leaf types so pairs with equal names sort deterministically
// regardless of which concrete type the leaf value happens to have. Go has no
// equivalent of Python's repr()-based sort key, so pairs are ordered by name,
// then by this type rank, then by the leaf's own natural order.
func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func less(a, b Pair) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	ra, rb := rank(a.Leaf), rank(b.Leaf)
	if ra != rb {
		return ra < rb
	}
	switch av := a.Leaf.(type) {
	case bool:
		bv := b.Leaf.(bool)
		return !av && bv
	case float64:
		return av < b.Leaf.(float64)
	case string:
		return av < b.Leaf.(string)
	default:
		return false
	}
}
