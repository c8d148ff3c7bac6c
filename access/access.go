// Package access implements the allow-rule access-control evaluator: the
// per-request parameter tuple, the allow-rule record, and the matching rule
// (spec §4.8), grounded on the original router.py's get_access_params /
// is_trusted_client / get_user_id_from_headers flow and sql.py's
// AccessIsAllowed compilation.
package access

import (
	"context"
	"strconv"
)

const wildcard = "*"

// ScopeTrustedClient lets the caller take the effective user identity from
// the Qvarn-Access-By header instead of the token's own sub claim.
const ScopeTrustedClient = "uapi_trusted_client"

// ScopeSetMetaFields lets the caller supply its own id/revision on create,
// and skips the base-revision bump on sub-resource/file writes.
const ScopeSetMetaFields = "uapi_set_meta_fields"

// Rule is one allow-rule record (spec §3). Any of Method, ClientID, UserID
// or ResourceID may be the wildcard "*". ResourceField/ResourceValue are
// optional (empty string means unset, per spec's "may be absent").
type Rule struct {
	Method        string `json:"method"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
	Subpath       string `json:"subpath"`
	ResourceID    string `json:"resource_id"`
	ResourceType  string `json:"resource_type"`
	ResourceField string `json:"resource_field"`
	ResourceValue string `json:"resource_value"`
}

// RequestParams is the per-request tuple a rule is matched against, built by
// the route layer from the method, the decoded claims, and the target
// resource type.
type RequestParams struct {
	Method       string
	ClientID     string
	UserID       string
	ResourceType string
}

// Candidate is the object being checked for visibility: its id, type, and
// body (used to evaluate ResourceField/ResourceValue constraints).
type Candidate struct {
	ID   string
	Type string
	Body map[string]interface{}
}

// Matches reports whether rule grants params access to candidate, per
// spec §4.8: every listed condition must hold.
func Matches(rule Rule, params RequestParams, candidate Candidate) bool {
	if rule.Method != wildcard && rule.Method != params.Method {
		return false
	}
	if rule.ClientID != wildcard && rule.ClientID != params.ClientID {
		return false
	}
	if rule.UserID != wildcard && rule.UserID != params.UserID {
		return false
	}
	if rule.ResourceID != wildcard && rule.ResourceID != candidate.ID {
		return false
	}
	if rule.ResourceType != "" && rule.ResourceType != candidate.Type {
		return false
	}
	if rule.ResourceField != "" {
		v, ok := candidate.Body[rule.ResourceField]
		if !ok {
			return false
		}
		if rule.ResourceValue != wildcard && !equalValue(v, rule.ResourceValue) {
			return false
		}
	}
	return true
}

// Allowed reports whether any rule grants access, per spec §4.8 "Access is
// granted ... iff any rule matches".
func Allowed(rules []Rule, params RequestParams, candidate Candidate) bool {
	for _, r := range rules {
		if Matches(r, params, candidate) {
			return true
		}
	}
	return false
}

func equalValue(v interface{}, s string) bool {
	switch t := v.(type) {
	case string:
		return t == s
	case bool:
		return (t && s == "true") || (!t && s == "false")
	case float64:
		return formatFloat(t) == s
	default:
		return false
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Claims is the decoded bearer-token payload the core reads from; the core
// never verifies a signature itself, per spec §1/§6 — the host framework
// hands claims in already decoded.
type Claims map[string]interface{}

func scopes(claims Claims) []string {
	s, _ := claims["scope"].(string)
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// HasScope reports whether claims carries scope among its space-separated
// scope claim values.
func HasScope(claims Claims, scope string) bool {
	for _, s := range scopes(claims) {
		if s == scope {
			return true
		}
	}
	return false
}

// IsTrustedClient reports whether claims grants ScopeTrustedClient.
func IsTrustedClient(claims Claims) bool {
	return HasScope(claims, ScopeTrustedClient)
}

// CanSetMetaFields reports whether claims grants ScopeSetMetaFields.
func CanSetMetaFields(claims Claims) bool {
	return HasScope(claims, ScopeSetMetaFields)
}

// UserID resolves the effective user id for a request: the token's own sub
// claim, unless the caller is a trusted client, in which case
// accessByUserID — decoded by the route layer from a Qvarn-Access-By header
// — takes over, per spec §4.8 "Trusted clients".
func UserID(claims Claims, accessByUserID string) string {
	if IsTrustedClient(claims) && accessByUserID != "" {
		return accessByUserID
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// ParamsFromClaims builds the RequestParams a route handler passes down into
// the collection manager and the store's AccessIsAllowed compilation.
func ParamsFromClaims(claims Claims, method, resourceType, accessByUserID string) RequestParams {
	clientID, _ := claims["aud"].(string)
	return RequestParams{
		Method:       method,
		ClientID:     clientID,
		UserID:       UserID(claims, accessByUserID),
		ResourceType: resourceType,
	}
}

type claimsKeyType struct{}

var claimsKey = &claimsKeyType{}

// ContextWithClaims attaches the bearer token's decoded claims to ctx. The
// host framework's auth middleware calls this once per request, after
// verifying the token's signature; the core never verifies one itself.
func ContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims ContextWithClaims attached to ctx, or
// an empty Claims if none were (the /version route, and any route the host
// framework marked needs-authorization: false).
func ClaimsFromContext(ctx context.Context) Claims {
	if c, ok := ctx.Value(claimsKey).(Claims); ok {
		return c
	}
	return Claims{}
}
