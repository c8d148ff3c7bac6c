package router

import (
	"io"
	"net/http"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/jsonx"
	"github.com/vaultit/qvarn-go/store"
)

func decodeRule(r *http.Request) (access.Rule, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return access.Rule{}, err
	}
	var rule access.Rule
	if err := jsonx.Unmarshal(data, &rule); err != nil {
		return access.Rule{}, err
	}
	return rule, nil
}

func (s *Server) handleAddAllowRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(r)
	if err != nil {
		writeError(r, w, err)
		return
	}
	err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		return s.Store.AddAllowRule(tx, rule)
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeCreated(w, map[string]interface{}{}, "")
}

func (s *Server) handleCheckAllowRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(r)
	if err != nil {
		writeError(r, w, err)
		return
	}
	var has bool
	err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		var err error
		has, err = s.Store.HasAllowRule(tx, rule)
		return err
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeOK(w, map[string]interface{}{"allowed": has})
}

func (s *Server) handleRemoveAllowRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(r)
	if err != nil {
		writeError(r, w, err)
		return
	}
	err = s.Store.WithTransaction(r.Context(), func(tx store.Tx) error {
		return s.Store.RemoveAllowRule(tx, rule)
	})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeOK(w, map[string]interface{}{})
}
