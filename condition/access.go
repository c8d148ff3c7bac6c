package condition

import (
	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/flatten"
)

// accessIsAllowed compiles the allow-rule evaluator (access §4.8) into the
// condition algebra, so it can be ANDed with ordinary search leaves and
// enforced both in memory and inside the store's compiled query.
type accessIsAllowed struct {
	params access.RequestParams
	rules  []access.Rule
}

// AccessIsAllowed returns a Condition that matches a candidate object iff
// some rule in rules grants params access to it. rules is used for in-memory
// evaluation (the memory backend, and the mandatory post-filter after a
// Postgres search); the Postgres backend additionally compiles this
// condition into an EXISTS fragment against `_allow` using params, via
// CompileAllowExists.
func AccessIsAllowed(params access.RequestParams, rules []access.Rule) Condition {
	return &accessIsAllowed{params: params, rules: rules}
}

func (a *accessIsAllowed) Match(flat []flatten.Pair, obj map[string]interface{}) bool {
	id, _ := obj["id"].(string)
	typ, _ := obj["type"].(string)
	return access.Allowed(a.rules, a.params, access.Candidate{ID: id, Type: typ, Body: obj})
}

// Leaves returns nil: AccessIsAllowed is never folded into the aux
// count-threshold disjunction, it is ANDed onto the outer query separately
// (spec §4.2 "[_allow a,] ... AND <allow filter>").
func (a *accessIsAllowed) Leaves() []Leaf { return nil }

// CompileAllowExists returns the `EXISTS (SELECT 1 FROM _allow WHERE ...)`
// fragment and its bound arguments for this condition's request params,
// qualifying the allow table with schema.tableName. next mints each
// placeholder name.
func (a *accessIsAllowed) CompileAllowExists(schemaQualifiedAllowTable string, objIDColumn string, objTypeColumn string, next func() string) (string, []interface{}) {
	methodP, clientP, userP := next(), next(), next()
	frag := "EXISTS (SELECT 1 FROM " + schemaQualifiedAllowTable + " al WHERE" +
		" (al.method = '*' OR al.method = " + methodP + ")" +
		" AND (al.client_id = '*' OR al.client_id = " + clientP + ")" +
		" AND (al.user_id = '*' OR al.user_id = " + userP + ")" +
		" AND (al.resource_id = '*' OR al.resource_id = " + objIDColumn + ")" +
		" AND (al.resource_type = '' OR al.resource_type = " + objTypeColumn + ")" +
		" AND (al.resource_field = '' OR " + objTypeColumn + " IS NOT NULL)" +
		")"
	return frag, []interface{}{a.params.Method, a.params.ClientID, a.params.UserID}
}

// Params exposes the request params this condition was built with, so the
// store layer can fall back to in-memory rule evaluation when filtering the
// resource_field/resource_value constraint, which needs the object body and
// cannot be expressed purely in terms of the _objects columns available to
// CompileAllowExists.
func (a *accessIsAllowed) Params() access.RequestParams { return a.params }

// Rules exposes the candidate rule set for the mandatory in-memory
// re-filter that follows every Postgres search, per spec §4.2/§9.
func (a *accessIsAllowed) Rules() []access.Rule { return a.rules }
