// Package validate rejects malformed resource bodies against a resource
// type's latest prototype and the POST/PUT rules, grounded on the original
// validator.py. ValidateNewResourceWithID and ValidateSubresource are not
// present in the retrieved validator.py (spec §4.4 names them, but no
// original body was available to port); they are built fresh here in the
// same idiom as the other two operations — see DESIGN.md.
package validate

import (
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/resourcetype"
)

// ValidateNewResource checks obj against rt for a POST: type must equal
// rt.Type(), id and revision must be absent, every field path must be
// recognized by the prototype's schema.
func ValidateNewResource(obj map[string]interface{}, rt *resourcetype.ResourceType) error {
	if err := checkType(obj, rt); err != nil {
		return err
	}
	if _, ok := obj["id"]; ok {
		return &qerrors.FieldError{Err: qerrors.ErrHasID}
	}
	if _, ok := obj["revision"]; ok {
		return &qerrors.FieldError{Err: qerrors.ErrHasRevision}
	}
	return checkFields(obj, rt.LatestPrototype())
}

// ValidateNewResourceWithID checks obj against rt for a privileged POST that
// supplies its own id/revision (requires the caller to hold the
// set_meta_fields capability, enforced by the route layer, not here).
func ValidateNewResourceWithID(obj map[string]interface{}, rt *resourcetype.ResourceType) error {
	if err := checkType(obj, rt); err != nil {
		return err
	}
	return checkFields(obj, rt.LatestPrototype())
}

// ValidateResourceUpdate checks obj against rt for a PUT: type must equal
// rt.Type(), id and revision must be present, every field path must be
// recognized.
func ValidateResourceUpdate(obj map[string]interface{}, rt *resourcetype.ResourceType) error {
	if err := checkType(obj, rt); err != nil {
		return err
	}
	if _, ok := obj["id"]; !ok {
		return &qerrors.FieldError{Err: qerrors.ErrNoID}
	}
	if _, ok := obj["revision"]; !ok {
		return &qerrors.FieldError{Err: qerrors.ErrNoRevision}
	}
	return checkFields(obj, rt.LatestPrototype())
}

// ValidateSubresource checks body against the prototype declared for
// subpath on rt.
func ValidateSubresource(subpath string, rt *resourcetype.ResourceType, body map[string]interface{}) error {
	proto, ok := rt.Subpaths()[subpath]
	if !ok {
		return &qerrors.FieldError{Err: qerrors.ErrUnknownSubpath, Field: subpath}
	}
	return checkFields(body, proto)
}

func checkType(obj map[string]interface{}, rt *resourcetype.ResourceType) error {
	if obj == nil {
		return qerrors.ErrNotADict
	}
	t, ok := obj["type"]
	if !ok {
		return &qerrors.FieldError{Err: qerrors.ErrNoType}
	}
	ts, ok := t.(string)
	if !ok || ts != rt.Type() {
		return &qerrors.FieldError{Err: qerrors.ErrWrongType, Field: ts}
	}
	return nil
}

// checkFields asserts that every (path, *) of obj's schema appears in
// proto's schema with a compatible leaf-type, per spec §4.4. The meta fields
// type/id/revision are not part of the prototype tree and are skipped.
func checkFields(obj, proto map[string]interface{}) error {
	protoSchema := resourcetype.Schema(proto)
	allowed := map[string]resourcetype.Entry{}
	for _, e := range protoSchema {
		allowed[e.Path] = e
	}

	stripped := map[string]interface{}{}
	for k, v := range obj {
		if k == "type" || k == "id" || k == "revision" {
			continue
		}
		stripped[k] = v
	}

	for _, e := range resourcetype.Schema(stripped) {
		want, ok := allowed[e.Path]
		if !ok {
			return &qerrors.FieldError{Err: qerrors.ErrUnknownField, Field: e.Path}
		}
		if want.Kind != e.Kind {
			return &qerrors.FieldError{Err: qerrors.ErrUnknownField, Field: e.Path}
		}
	}
	return nil
}
