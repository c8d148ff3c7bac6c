package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/collection"
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/store"
)

func (s *Server) handlePost(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeJSON(r)
		if err != nil {
			writeError(r, w, err)
			return
		}
		claims := access.ClaimsFromContext(r.Context())

		var result map[string]interface{}
		err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			if access.CanSetMetaFields(claims) {
				result, err = coll.PostWithID(tx, body)
			} else {
				result, err = coll.Post(tx, body)
			}
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		id, _ := result["id"].(string)
		writeCreated(w, result, s.BaseURL+coll.Type().Path()+"/"+id)
	}
}

func (s *Server) handleList(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := requestParams(r, coll.Type().Type())
		var ids []string
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			ids, err = coll.List(tx, params)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		resources := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			resources[i] = map[string]interface{}{"id": id}
		}
		writeOK(w, map[string]interface{}{"resources": resources})
	}
}

func (s *Server) handleGet(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		params := requestParams(r, coll.Type().Type())
		var result map[string]interface{}
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			result, err = coll.Get(tx, id, params)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handlePut(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		body, err := decodeJSON(r)
		if err != nil {
			writeError(r, w, err)
			return
		}
		if bodyID, ok := body["id"].(string); ok && bodyID != id {
			writeError(r, w, qerrors.ErrIDMismatch)
			return
		}
		body["id"] = id

		var result map[string]interface{}
		err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			result, err = coll.Put(tx, body)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handleDelete(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		params := requestParams(r, coll.Type().Type())
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			return coll.Delete(tx, id, params)
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, map[string]interface{}{})
	}
}

func (s *Server) handleSearch(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		criteria := mux.Vars(r)["criteria"]
		params := requestParams(r, coll.Type().Type())
		var resources []map[string]interface{}
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			resources, err = coll.Search(tx, criteria, params)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, map[string]interface{}{"resources": resources})
	}
}

func (s *Server) handleGetSubresource(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, subpath := vars["id"], vars["subpath"]
		params := requestParams(r, coll.Type().Type())

		if coll.Type().IsFile(subpath) {
			s.handleGetFile(coll, id, subpath, params, w, r)
			return
		}

		var result map[string]interface{}
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			result, err = coll.GetSubresource(tx, id, subpath, params)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handleGetFile(coll *collection.Collection, id, subpath string, params access.RequestParams, w http.ResponseWriter, r *http.Request) {
	var contentType string
	var payload []byte
	err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		if _, err := coll.GetSubresource(tx, id, subpath, params); err != nil {
			return err
		}
		var err error
		contentType, payload, err = s.Store.GetBlob(tx, store.Keys{"obj_id": id, "subpath": ""}, subpath)
		return err
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handlePutSubresource(coll *collection.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, subpath := vars["id"], vars["subpath"]
		claims := access.ClaimsFromContext(r.Context())
		revision := r.Header.Get("Revision")

		if coll.Type().IsFile(subpath) {
			s.handlePutFile(coll, id, subpath, revision, claims, w, r)
			return
		}

		body, err := decodeJSON(r)
		if err != nil {
			writeError(r, w, err)
			return
		}
		if revision == "" {
			if rev, ok := body["revision"].(string); ok {
				revision = rev
			}
		}

		var result map[string]interface{}
		err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			if access.CanSetMetaFields(claims) {
				result, err = coll.PutSubresourceNoNewRevision(tx, body, subpath, id, revision)
			} else {
				result, err = coll.PutSubresource(tx, body, subpath, id, revision)
			}
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handlePutFile(coll *collection.Collection, id, subpath, revision string, claims access.Claims, w http.ResponseWriter, r *http.Request) {
	payload, err := readAll(r)
	if err != nil {
		writeError(r, w, err)
		return
	}
	contentType := r.Header.Get("Content-Type")

	err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		if err := s.Store.RemoveBlob(tx, store.Keys{"obj_id": id, "subpath": ""}, subpath); err != nil {
			return err
		}
		if err := s.Store.CreateBlob(tx, store.Keys{"obj_id": id, "subpath": ""}, subpath, contentType, payload); err != nil {
			return err
		}
		body := map[string]interface{}{"content_type": contentType}
		if access.CanSetMetaFields(claims) {
			_, err := coll.PutSubresourceNoNewRevision(tx, body, subpath, id, revision)
			return err
		}
		_, err := coll.PutSubresource(tx, body, subpath, id, revision)
		return err
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeOK(w, map[string]interface{}{})
}
