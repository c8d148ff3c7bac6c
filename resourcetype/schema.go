package resourcetype

import "strings"

// Entry is one (path, leaf-type) tuple produced by walking a prototype or a
// resource, per spec §4.4. For list fields Entry.Kind is "list" and
// Entry.ElemKind names the element leaf-type ("" for an empty list, matching
// spec's "(path, list, None)").
type Entry struct {
	Path    string
	Kind    string
	ElemKind string
}

// Schema walks obj (a prototype or a resource body) and returns its set of
// (path, leaf-type) tuples, grounded on the (unreferenced-by-name, but
// required by spec §4.4) schema-walk qvarn.schema() performs for both
// validator.py and collection.py's field-name extraction.
func Schema(obj map[string]interface{}) []Entry {
	var out []Entry
	walkSchema("", obj, &out)
	return out
}

func walkSchema(prefix string, obj map[string]interface{}, out *[]Entry) {
	for field, v := range obj {
		path := field
		if prefix != "" {
			path = prefix + "." + field
		}
		switch t := v.(type) {
		case string:
			*out = append(*out, Entry{Path: path, Kind: "string"})
		case bool:
			*out = append(*out, Entry{Path: path, Kind: "bool"})
		case float64, int:
			*out = append(*out, Entry{Path: path, Kind: "int"})
		case map[string]interface{}:
			*out = append(*out, Entry{Path: path, Kind: "dict"})
			walkSchema(path, t, out)
		case []interface{}:
			if len(t) == 0 {
				*out = append(*out, Entry{Path: path, Kind: "list", ElemKind: ""})
				continue
			}
			elemKind := kindOf(t[0])
			*out = append(*out, Entry{Path: path, Kind: "list", ElemKind: elemKind})
			if m, ok := t[0].(map[string]interface{}); ok {
				walkSchema(path, m, out)
			}
		}
	}
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, int:
		return "int"
	case map[string]interface{}:
		return "dict"
	default:
		return ""
	}
}

// FieldNames returns the set of leaf field names (the last segment of each
// dotted path) a schema covers, the same names flatten.Object yields, used
// by the collection manager's UnknownSearchField check.
func FieldNames(entries []Entry) map[string]bool {
	out := map[string]bool{}
	for _, e := range entries {
		name := e.Path
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		out[name] = true
	}
	return out
}
