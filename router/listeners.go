package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/store"
)

// handleCreateListener forces listen_on_type to the parent collection's
// type, matching notification_router.py's _create_listener: a client may
// omit listen_on_type, or supply it matching the parent type, but not any
// other value.
func (s *Server) handleCreateListener(parentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeJSON(r)
		if err != nil {
			writeError(r, w, err)
			return
		}
		if existing, ok := body["listen_on_type"].(string); ok && existing != "" && existing != parentType {
			http.Error(w, "listen_on_type does not have value "+parentType, http.StatusBadRequest)
			return
		}
		body["listen_on_type"] = parentType
		if _, ok := body["type"]; !ok {
			body["type"] = "listener"
		}
		claims := access.ClaimsFromContext(r.Context())

		var result map[string]interface{}
		err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			if access.CanSetMetaFields(claims) {
				result, err = s.listener.PostWithID(tx, body)
			} else {
				result, err = s.listener.Post(tx, body)
			}
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		id, _ := result["id"].(string)
		writeCreated(w, result, s.BaseURL+s.listener.Type().Path()+"/listeners/"+id)
	}
}

func (s *Server) handleListListeners(parentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := requestParams(r, "listener")
		var ids []string
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			ids, err = s.listener.List(tx, params)
			if err != nil {
				return err
			}
			var filtered []string
			for _, id := range ids {
				obj, err := s.listener.Get(tx, id, params)
				if err != nil {
					continue
				}
				if t, _ := obj["listen_on_type"].(string); t == parentType {
					filtered = append(filtered, id)
				}
			}
			ids = filtered
			return nil
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

func (s *Server) handleGetListener() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["listener_id"]
		params := requestParams(r, "listener")
		var result map[string]interface{}
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			result, err = s.listener.Get(tx, id, params)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handleUpdateListener() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["listener_id"]
		body, err := decodeJSON(r)
		if err != nil {
			writeError(r, w, err)
			return
		}
		if _, ok := body["type"]; !ok {
			body["type"] = "listener"
		}
		if _, ok := body["id"]; !ok {
			body["id"] = id
		}

		var result map[string]interface{}
		err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			result, err = s.listener.Put(tx, body)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, result)
	}
}

func (s *Server) handleDeleteListener() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["listener_id"]
		params := requestParams(r, "listener")
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			if err := s.listener.Delete(tx, id, params); err != nil {
				return err
			}
			return s.Notify.DeleteForListener(tx, id)
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, map[string]interface{}{})
	}
}

func (s *Server) handleListNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listenerID := mux.Vars(r)["listener_id"]
		var notifications []map[string]interface{}
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			notifications, err = s.Notify.ListNotifications(tx, listenerID)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		resources := make([]map[string]interface{}, len(notifications))
		for i, n := range notifications {
			resources[i] = map[string]interface{}{"id": n["id"]}
		}
		writeOK(w, map[string]interface{}{"resources": resources})
	}
}

func (s *Server) handleGetNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		listenerID, notificationID := vars["listener_id"], vars["notification_id"]
		cond := condition.All(
			condition.ResourceTypeIs("notification"),
			condition.Equal("listener_id", listenerID),
			condition.Equal("id", notificationID),
		)
		var rows []store.Row
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			var err error
			rows, err = s.Store.GetMatches(tx, store.Keys{"subpath": ""}, cond, nil)
			return err
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		if len(rows) == 0 {
			writeError(r, w, qerrors.ErrNoSuchResource)
			return
		}
		writeOK(w, rows[0].Body)
	}
}

func (s *Server) handleDeleteNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		listenerID, notificationID := vars["listener_id"], vars["notification_id"]
		cond := condition.All(
			condition.ResourceTypeIs("notification"),
			condition.Equal("listener_id", listenerID),
			condition.Equal("id", notificationID),
		)
		err := s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
			rows, err := s.Store.GetMatches(tx, store.Keys{"subpath": ""}, cond, nil)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := s.Store.RemoveObjects(tx, row.Keys); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			writeError(r, w, err)
			return
		}
		writeOK(w, map[string]interface{}{})
	}
}
