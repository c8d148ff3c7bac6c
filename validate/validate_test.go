package validate

import (
	"errors"
	"testing"

	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/resourcetype"
)

func testRT(t *testing.T) *resourcetype.ResourceType {
	rt, err := resourcetype.FromSpec(resourcetype.Spec{
		Type: "subject",
		Path: "/subjects",
		Versions: []resourcetype.Version{{
			Version: "v1",
			Prototype: map[string]interface{}{
				"full_name": "",
			},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error building resource type: %v", err)
	}
	return rt
}

func TestValidateNewResourceRejectsID(t *testing.T) {
	rt := testRT(t)
	err := ValidateNewResource(map[string]interface{}{"type": "subject", "id": "x"}, rt)
	if !errors.Is(err, qerrors.ErrHasID) {
		t.Fatalf("expected ErrHasID, got %v", err)
	}
}

func TestValidateNewResourceAcceptsValidBody(t *testing.T) {
	rt := testRT(t)
	err := ValidateNewResource(map[string]interface{}{"type": "subject", "full_name": "James Bond"}, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNewResourceRejectsUnknownField(t *testing.T) {
	rt := testRT(t)
	err := ValidateNewResource(map[string]interface{}{"type": "subject", "nickname": "007"}, rt)
	if !errors.Is(err, qerrors.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestValidateResourceUpdateRequiresIDAndRevision(t *testing.T) {
	rt := testRT(t)
	err := ValidateResourceUpdate(map[string]interface{}{"type": "subject"}, rt)
	if !errors.Is(err, qerrors.ErrNoID) {
		t.Fatalf("expected ErrNoID, got %v", err)
	}
}

func TestValidateNewResourceWithIDAllowsID(t *testing.T) {
	rt := testRT(t)
	err := ValidateNewResourceWithID(map[string]interface{}{
		"type": "subject", "id": "x", "revision": "r", "full_name": "Bond",
	}, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
