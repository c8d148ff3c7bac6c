package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/store"
)

// BootstrapResourceTypes inserts each loaded resource type as a
// self-describing `resource_type` resource, per spec §9 "insert the
// self-describing type first, then all user-declared types" — this runs
// once at startup, not lazily.
func (s *Server) BootstrapResourceTypes(tx store.Tx) error {
	order := []string{"resource_type"}
	for typ := range s.types {
		if typ != "resource_type" {
			order = append(order, typ)
		}
	}
	for _, typ := range order {
		rt, ok := s.types[typ]
		if !ok {
			continue
		}
		keys := store.Keys{"obj_id": "resource_type-" + typ, "subpath": ""}
		existing, err := s.Store.GetMatches(tx, keys, nil, nil)
		if err != nil {
			return err
		}
		body := rt.AsDict()
		body["type"] = "resource_type"
		body["id"] = "resource_type-" + typ
		body["revision"] = "bootstrap"
		if len(existing) > 0 {
			if err := s.Store.RemoveObjects(tx, keys); err != nil {
				return err
			}
		}
		if err := s.Store.CreateObject(tx, keys, body, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleListResourceTypes(w http.ResponseWriter, r *http.Request) {
	var rows []store.Row
	err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		var err error
		rows, err = s.Store.GetMatches(tx, store.Keys{"subpath": ""}, condition.ResourceTypeIs("resource_type"), nil)
		return err
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	resources := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		resources[i] = map[string]interface{}{"id": row.Body["id"]}
	}
	writeOK(w, map[string]interface{}{"resources": resources})
}

func (s *Server) handleGetResourceType(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var rows []store.Row
	err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		var err error
		rows, err = s.Store.GetMatches(tx, store.Keys{"obj_id": id, "subpath": ""}, nil, nil)
		return err
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	if len(rows) == 0 {
		writeError(r, w, qerrors.ErrNoSuchResourceType)
		return
	}
	writeOK(w, rows[0].Body)
}
