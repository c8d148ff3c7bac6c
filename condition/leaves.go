package condition

import "github.com/vaultit/qvarn-go/flatten"

// cmpLeaf is the shared shape of every field-vs-pattern comparison leaf.
type cmpLeaf struct {
	field   string
	pattern string
	match   func(value interface{}, pattern string) bool
	op      string // SQL operator or keyword fragment, see AuxSQL
}

func (c *cmpLeaf) Match(flat []flatten.Pair, obj map[string]interface{}) bool {
	return matchAny(c.field, c.pattern, flat, c.match)
}

func (c *cmpLeaf) Leaves() []Leaf { return []Leaf{c} }

// Field returns the JSON field name this leaf compares, letting callers
// (the collection manager's unknown-field check) introspect a parsed
// condition without a type switch over every leaf variant.
func (c *cmpLeaf) Field() string { return c.field }

func (c *cmpLeaf) AuxSQL(next func() string) (string, []interface{}) {
	nameParam := next()
	field, _ := lowerString(c.field)
	pattern, _ := lowerString(c.pattern)
	switch c.op {
	case "contains":
		valueParam := next()
		return "(lower(field ->> 'name') = " + nameParam +
			" AND lower(field ->> 'value') LIKE " + valueParam + ")",
			[]interface{}{field, "%" + pattern + "%"}
	case "startswith":
		valueParam := next()
		return "(lower(field ->> 'name') = " + nameParam +
			" AND lower(field ->> 'value') LIKE " + valueParam + ")",
			[]interface{}{field, pattern + "%"}
	default:
		valueParam := next()
		return "(lower(field ->> 'name') = " + nameParam +
			" AND lower(field ->> 'value') " + c.op + " " + valueParam + ")",
			[]interface{}{field, pattern}
	}
}

// Equal matches fields whose value equals pattern, case-insensitively for
// strings.
func Equal(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: caseInsensitiveEqual, op: "="}
}

// NotEqual matches fields whose value differs from pattern.
func NotEqual(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: func(v interface{}, p string) bool {
		return !caseInsensitiveEqual(v, p)
	}, op: "<>"}
}

// GreaterThan matches fields whose value sorts after pattern.
func GreaterThan(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: func(v interface{}, p string) bool {
		return naturalCompare(v, p) > 0
	}, op: ">"}
}

// GreaterOrEqual matches fields whose value sorts at or after pattern.
func GreaterOrEqual(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: func(v interface{}, p string) bool {
		return naturalCompare(v, p) >= 0
	}, op: ">="}
}

// LessThan matches fields whose value sorts before pattern.
func LessThan(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: func(v interface{}, p string) bool {
		return naturalCompare(v, p) < 0
	}, op: "<"}
}

// LessOrEqual matches fields whose value sorts at or before pattern.
func LessOrEqual(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: func(v interface{}, p string) bool {
		return naturalCompare(v, p) <= 0
	}, op: "<="}
}

// Contains matches string fields containing pattern as a substring,
// case-insensitively.
func Contains(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: caseInsensitiveContains, op: "contains"}
}

// Startswith matches string fields starting with pattern, case-insensitively.
func Startswith(field, pattern string) Condition {
	return &cmpLeaf{field: field, pattern: pattern, match: caseInsensitiveStartswith, op: "startswith"}
}

// resourceTypeIs is Equal("type", t) except it is always case-sensitive and
// reads the object's type directly instead of walking the flattened pairs,
// matching sql.py's special-cased ResourceTypeIs.
type resourceTypeIs struct {
	typ string
}

// ResourceTypeIs matches resources whose type equals typ, case-sensitively.
func ResourceTypeIs(typ string) Condition {
	return &resourceTypeIs{typ: typ}
}

func (r *resourceTypeIs) Match(flat []flatten.Pair, obj map[string]interface{}) bool {
	t, _ := obj["type"].(string)
	return t == r.typ
}

func (r *resourceTypeIs) Leaves() []Leaf { return []Leaf{r} }

func (r *resourceTypeIs) AuxSQL(next func() string) (string, []interface{}) {
	nameParam := next()
	valueParam := next()
	return "(field ->> 'name' = " + nameParam + " AND field ->> 'value' = " + valueParam + ")",
		[]interface{}{"type", r.typ}
}

type allCond struct {
	children []Condition
}

// All is the n-ary AND of its children.
func All(children ...Condition) Condition {
	return &allCond{children: children}
}

func (a *allCond) Match(flat []flatten.Pair, obj map[string]interface{}) bool {
	for _, c := range a.children {
		if !c.Match(flat, obj) {
			return false
		}
	}
	return true
}

func (a *allCond) Leaves() []Leaf {
	var out []Leaf
	for _, c := range a.children {
		out = append(out, c.Leaves()...)
	}
	return out
}

type yesCond struct{}

// Yes always matches.
func Yes() Condition { return yesCond{} }

func (yesCond) Match([]flatten.Pair, map[string]interface{}) bool { return true }
func (yesCond) Leaves() []Leaf                                    { return nil }

type noCond struct{}

// No never matches.
func No() Condition { return noCond{} }

func (noCond) Match([]flatten.Pair, map[string]interface{}) bool { return false }
func (noCond) Leaves() []Leaf                                    { return nil }

// IsNever reports that this condition can never match any object, letting
// the store backends skip the query entirely instead of running it and
// discarding every row.
func (noCond) IsNever() bool { return true }
