package router

import (
	"errors"
	"io"
	"net/http"

	"github.com/vaultit/qvarn-go/jsonx"
	"github.com/vaultit/qvarn-go/logging"
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/search"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, err := jsonx.Marshal(body)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}

func writeOK(w http.ResponseWriter, body interface{}) {
	writeJSON(w, http.StatusOK, body)
}

func writeCreated(w http.ResponseWriter, body map[string]interface{}, location string) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, http.StatusCreated, body)
}

// writeError translates an error kind to the HTTP status/body spec §6/§7
// specifies. The route layer is the only place this mapping exists.
func writeError(r *http.Request, w http.ResponseWriter, err error) {
	logging.FromContext(r.Context()).WithField("error", err).Warn("request failed")

	var unknownField *qerrors.UnknownSearchField
	if errors.As(err, &unknownField) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":    err.Error(),
			"error_code": "FieldNotInResource",
			"field":      unknownField.Field,
		})
		return
	}
	if errors.Is(err, qerrors.ErrNeedSortOperator) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":    err.Error(),
			"error_code": "LimitWithoutSortError",
		})
		return
	}
	var searchErr *search.Error
	if errors.As(err, &searchErr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":    err.Error(),
			"error_code": "BadSearchCondition",
		})
		return
	}

	switch {
	case errors.Is(err, qerrors.ErrNoSuchResource), errors.Is(err, qerrors.ErrNoSuchObject),
		errors.Is(err, qerrors.ErrNoSuchResourceType):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, qerrors.ErrWrongRevision):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, qerrors.ErrAccessDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, qerrors.ErrNotJSON), errors.Is(err, qerrors.ErrIDMismatch),
		errors.Is(err, qerrors.ErrNoSearchCriteria), errors.Is(err, qerrors.ErrNotADict),
		errors.Is(err, qerrors.ErrNoType), errors.Is(err, qerrors.ErrWrongType),
		errors.Is(err, qerrors.ErrNoID), errors.Is(err, qerrors.ErrHasID),
		errors.Is(err, qerrors.ErrNoRevision), errors.Is(err, qerrors.ErrHasRevision),
		errors.Is(err, qerrors.ErrUnknownField), errors.Is(err, qerrors.ErrUnknownSubpath):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func readAll(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func decodeJSON(r *http.Request) (map[string]interface{}, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		return nil, qerrors.ErrNotJSON
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var body map[string]interface{}
	if err := jsonx.Unmarshal(data, &body); err != nil {
		return nil, qerrors.ErrNotJSON
	}
	return body, nil
}
