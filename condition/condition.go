// Package condition implements the Qvarn condition algebra: a closed sum
// type of predicates that can be evaluated in memory against a flattened
// resource, or compiled into the SQL fragments the Postgres store's search
// query assembles. Grounded on the original Python sql.py Condition
// hierarchy and sql_select.py's compilation algorithm, restated as a Go
// interface with no open inheritance, per the "closed sum type" design note.
package condition

import (
	"fmt"
	"strings"

	"github.com/vaultit/qvarn-go/flatten"
)

// Condition is implemented by every variant of the algebra. Match evaluates
// the condition in memory; Leaves returns the flattened list of comparison
// leaves a condition tree contains (All recurses into its children; a leaf
// returns itself; Yes/No/AccessIsAllowed return nil since they are not
// compiled through the aux count-threshold trick).
type Condition interface {
	Match(flat []flatten.Pair, obj map[string]interface{}) bool
	Leaves() []Leaf
}

// Leaf is a Condition that compares one JSON field against a pattern and
// additionally knows how to compile itself into a WHERE fragment over the
// `_aux` table's `field` JSONB column, matching sql_select.py's per-leaf
// disjunction.
type Leaf interface {
	Condition
	// AuxSQL returns a WHERE fragment referencing `field` (the _aux row's
	// JSONB {name, value} column) and the bound arguments for it. next is
	// called to mint each placeholder name ($1, $2, ...).
	AuxSQL(next func() string) (string, []interface{})
}

func matchAny(leaf string, pattern string, flat []flatten.Pair, cmp func(value interface{}, pattern string) bool) bool {
	for _, p := range flat {
		if p.Name != leaf {
			continue
		}
		if cmp(p.Leaf, pattern) {
			return true
		}
	}
	return false
}

func lowerString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.ToLower(s), true
}

// stringify renders a leaf value the way the aux index stores it: strings
// pass through, numbers and booleans render as their JSON text form so that
// comparisons against a URL-supplied pattern string behave consistently.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func caseInsensitiveEqual(value interface{}, pattern string) bool {
	return strings.EqualFold(stringify(value), pattern)
}

func caseInsensitiveContains(value interface{}, pattern string) bool {
	return strings.Contains(strings.ToLower(stringify(value)), strings.ToLower(pattern))
}

func caseInsensitiveStartswith(value interface{}, pattern string) bool {
	return strings.HasPrefix(strings.ToLower(stringify(value)), strings.ToLower(pattern))
}

func naturalCompare(value interface{}, pattern string) int {
	if fv, ok := value.(float64); ok {
		var pf float64
		if _, err := fmt.Sscanf(pattern, "%g", &pf); err == nil {
			switch {
			case fv < pf:
				return -1
			case fv > pf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(strings.ToLower(stringify(value)), strings.ToLower(pattern))
}
