// Package search parses the slash-delimited search mini-language into a
// Parameters value: condition, sort keys, projection and offset/limit.
// Grounded line-for-line on the original search_parser.py token table and
// error taxonomy.
package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/qerrors"
)

// arity is how many path segments a token consumes after itself.
var arity = map[string]int{
	"exact": 2, "ne": 2, "gt": 2, "ge": 2, "lt": 2, "le": 2,
	"contains": 2, "startswith": 2,
	"show": 1, "show_all": 0,
	"sort": 1, "offset": 1, "limit": 1,
}

var leafBuilder = map[string]func(field, pattern string) condition.Condition{
	"exact":      condition.Equal,
	"ne":         condition.NotEqual,
	"gt":         condition.GreaterThan,
	"ge":         condition.GreaterOrEqual,
	"lt":         condition.LessThan,
	"le":         condition.LessOrEqual,
	"contains":   condition.Contains,
	"startswith": condition.Startswith,
}

// Parameters is the parsed search request: a condition tree, the ordered
// sort keys, the requested projection and offset/limit.
type Parameters struct {
	Condition condition.Condition
	Sort      []string
	ShowAll   bool
	Show      []string
	HasOffset bool
	Offset    int
	HasLimit  bool
	Limit     int
}

// Error is a SearchParserError: a malformed search path.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return qerrors.ErrSearchParser }

// NeedSortOperatorError is the sub-error raised when offset or limit is used
// without a sort key.
type NeedSortOperatorError struct{}

func (NeedSortOperatorError) Error() string { return "limit or offset used without sort" }

func (NeedSortOperatorError) Unwrap() error { return qerrors.ErrNeedSortOperator }

// Parse parses a slash-delimited search criteria string (the part of the URL
// after ".../search/").
func Parse(criteria string) (*Parameters, error) {
	segments := splitNonEmpty(criteria)
	if len(segments) == 0 {
		return nil, &Error{Msg: "No condition given"}
	}

	params := &Parameters{}
	var leaves []condition.Condition
	i := 0
	for i < len(segments) {
		tok := segments[i]
		n, ok := arity[tok]
		if !ok {
			return nil, &Error{Msg: fmt.Sprintf("unknown search token %q", tok)}
		}
		if i+1+n > len(segments) {
			return nil, &Error{Msg: fmt.Sprintf("not enough arguments for %q", tok)}
		}
		args := segments[i+1 : i+1+n]
		for j, a := range args {
			decoded, err := url.QueryUnescape(a)
			if err != nil {
				return nil, &Error{Msg: fmt.Sprintf("invalid percent-encoding in %q", a)}
			}
			args[j] = decoded
		}

		switch tok {
		case "show_all":
			if len(params.Show) > 0 {
				return nil, &Error{Msg: "show and show_all are mutually exclusive"}
			}
			params.ShowAll = true
		case "show":
			if params.ShowAll {
				return nil, &Error{Msg: "show and show_all are mutually exclusive"}
			}
			params.Show = append(params.Show, args[0])
		case "sort":
			params.Sort = append(params.Sort, args[0])
		case "offset":
			off, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, &Error{Msg: fmt.Sprintf("offset is not an integer: %q", args[0])}
			}
			params.HasOffset = true
			params.Offset = off
		case "limit":
			lim, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, &Error{Msg: fmt.Sprintf("limit is not an integer: %q", args[0])}
			}
			params.HasLimit = true
			params.Limit = lim
		default:
			build := leafBuilder[tok]
			leaves = append(leaves, build(args[0], args[1]))
		}

		i += 1 + n
	}

	if (params.HasOffset || params.HasLimit) && len(params.Sort) == 0 {
		return nil, NeedSortOperatorError{}
	}

	switch len(leaves) {
	case 0:
		params.Condition = condition.Yes()
	case 1:
		params.Condition = leaves[0]
	default:
		params.Condition = condition.All(leaves...)
	}

	return params, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
