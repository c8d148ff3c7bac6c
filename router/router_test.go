package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/vaultit/qvarn-go/notify"
	"github.com/vaultit/qvarn-go/resourcetype"
	"github.com/vaultit/qvarn-go/store"
)

func widgetType(t *testing.T) *resourcetype.ResourceType {
	rt, err := resourcetype.FromSpec(resourcetype.Spec{
		Type: "widget",
		Path: "/widgets",
		Versions: []resourcetype.Version{
			{
				Version: "v1",
				Prototype: map[string]interface{}{
					"type":     "widget",
					"id":       "",
					"revision": "",
					"name":     "",
				},
			},
		},
	})
	require.NoError(t, err)
	return rt
}

func listenerType(t *testing.T) *resourcetype.ResourceType {
	rt, err := resourcetype.FromSpec(resourcetype.Spec{
		Type: "listener",
		Path: "/listeners",
		Versions: []resourcetype.Version{
			{
				Version: "v1",
				Prototype: map[string]interface{}{
					"type":           "listener",
					"id":             "",
					"revision":       "",
					"notify_of_new":  false,
					"listen_on_all":  false,
					"listen_on_type": "",
					"listen_on":      []interface{}{},
				},
			},
		},
	})
	require.NoError(t, err)
	return rt
}

func newTestServer(t *testing.T) (*Server, *mux.Router) {
	st := store.NewMemory()
	eng := notify.NewEngine(st)
	srv := NewServer(st, eng, []*resourcetype.ResourceType{widgetType(t)}, listenerType(t), "http://example.test", false)

	err := st.WithTransaction(context.Background(), func(tx store.Tx) error {
		return srv.BootstrapResourceTypes(tx)
	})
	require.NoError(t, err)

	mx := mux.NewRouter()
	srv.Register(mx)
	return srv, mx
}

func doJSON(t *testing.T, mx *mux.Router, method, path string, body map[string]interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var bodyReader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = strings.NewReader(string(data))
	} else {
		bodyReader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mx.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// Create-and-fetch: POST a new widget, then GET it back by id.
func TestCreateAndFetch(t *testing.T) {
	_, mx := newTestServer(t)

	rec := doJSON(t, mx, http.MethodPost, "/widgets", map[string]interface{}{"type": "widget", "name": "bolt"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = doJSON(t, mx, http.MethodGet, "/widgets/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody(t, rec)
	require.Equal(t, "bolt", fetched["name"])
}

// Revision conflict: PUT with a stale revision is rejected with 409.
func TestRevisionConflict(t *testing.T) {
	_, mx := newTestServer(t)

	rec := doJSON(t, mx, http.MethodPost, "/widgets", map[string]interface{}{"type": "widget", "name": "bolt"}, nil)
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)

	rec = doJSON(t, mx, http.MethodPut, "/widgets/"+id, map[string]interface{}{
		"type": "widget", "id": id, "revision": "not-the-current-one", "name": "nut",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mx, http.MethodPut, "/widgets/"+id, map[string]interface{}{
		"type": "widget", "id": id, "revision": created["revision"], "name": "nut",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// Case-insensitive exact search.
func TestCaseInsensitiveExactSearch(t *testing.T) {
	_, mx := newTestServer(t)

	rec := doJSON(t, mx, http.MethodPost, "/widgets", map[string]interface{}{"type": "widget", "name": "Bolt"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mx, http.MethodGet, "/widgets/search/exact/name/bolt", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)
	resources := results["resources"].([]interface{})
	require.Len(t, resources, 1)
}

// Sort with offset+limit.
func TestSearchSortOffsetLimit(t *testing.T) {
	_, mx := newTestServer(t)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		rec := doJSON(t, mx, http.MethodPost, "/widgets", map[string]interface{}{"type": "widget", "name": name}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, mx, http.MethodGet, "/widgets/search/sort/name/show_all/offset/1/limit/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)
	resources := results["resources"].([]interface{})
	require.Len(t, resources, 1)
	first := resources[0].(map[string]interface{})
	require.Equal(t, "bravo", first["name"])
}

// Unknown-field search is rejected with a 400 FieldNotInResource body.
func TestSearchUnknownFieldRejected(t *testing.T) {
	_, mx := newTestServer(t)
	rec := doJSON(t, mx, http.MethodGet, "/widgets/search/exact/nosuchfield/x", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "FieldNotInResource", body["error_code"])
}

// Listener-notification: a listener registered against the widget type gets
// a notification recorded when a widget is created.
func TestListenerNotifiedOnCreate(t *testing.T) {
	_, mx := newTestServer(t)

	rec := doJSON(t, mx, http.MethodPost, "/widgets/listeners", map[string]interface{}{
		"notify_of_new":  true,
		"listen_on_type": "widget",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	listener := decodeBody(t, rec)
	listenerID, _ := listener["id"].(string)
	require.NotEmpty(t, listenerID)

	rec = doJSON(t, mx, http.MethodPost, "/widgets", map[string]interface{}{"type": "widget", "name": "bolt"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mx, http.MethodGet, "/widgets/listeners/"+listenerID+"/notifications", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)
	resources := results["resources"].([]interface{})
	require.Len(t, resources, 1)
}

func TestVersionRoute(t *testing.T) {
	_, mx := newTestServer(t)
	rec := doJSON(t, mx, http.MethodGet, "/version", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, Version, body["version"])
}
