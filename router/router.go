// Package router synthesizes the HTTP surface from a set of loaded resource
// types: the standard per-type REST routes, the listener/notification
// routes, the global allow-rule and resource-type routes, and the single
// unauthenticated /version route. Grounded on the original router.py/
// allow_router.py/notification_router.py route tables, materialized as
// registered gorilla/mux routes at startup per spec §4.10/§9's REDESIGN
// FLAG, in the teacher's own route-registration idiom.
package router

import (
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/collection"
	"github.com/vaultit/qvarn-go/notify"
	"github.com/vaultit/qvarn-go/resourcetype"
	"github.com/vaultit/qvarn-go/store"
)

// Version is reported on the sole unauthenticated route.
const Version = "1.0.0"

// Server wires loaded resource types, their collection managers, and the
// store into a gorilla/mux router.
type Server struct {
	Store        store.Store
	Notify       *notify.Engine
	BaseURL      string
	EnableAccess bool

	collections map[string]*collection.Collection
	listener    *collection.Collection
	types       map[string]*resourcetype.ResourceType
}

// NewServer builds a Server for the given loaded resource types, plus the
// fixed listener resource type used by every collection's notification
// sub-routes.
func NewServer(st store.Store, eng *notify.Engine, types []*resourcetype.ResourceType, listenerType *resourcetype.ResourceType, baseURL string, enableAccess bool) *Server {
	s := &Server{
		Store:        st,
		Notify:       eng,
		BaseURL:      baseURL,
		EnableAccess: enableAccess,
		collections:  map[string]*collection.Collection{},
		types:        map[string]*resourcetype.ResourceType{},
	}
	for _, rt := range types {
		s.collections[rt.Type()] = collection.New(rt, st, eng, enableAccess)
		s.types[rt.Type()] = rt
	}
	s.listener = collection.New(listenerType, st, eng, enableAccess)
	s.types[listenerType.Type()] = listenerType
	return s
}

// Register installs every route on router, per spec §4.10's route table.
func (s *Server) Register(router *mux.Router) {
	router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	router.HandleFunc("/allow", s.handleAddAllowRule).Methods(http.MethodPost)
	router.HandleFunc("/allow", s.handleCheckAllowRule).Methods(http.MethodGet)
	router.HandleFunc("/allow", s.handleRemoveAllowRule).Methods(http.MethodDelete)

	router.HandleFunc("/resource_types", s.handleListResourceTypes).Methods(http.MethodGet)
	router.HandleFunc("/resource_types/{id}", s.handleGetResourceType).Methods(http.MethodGet)

	for typ, coll := range s.collections {
		s.registerCollection(router, typ, coll)
	}
}

func (s *Server) registerCollection(router *mux.Router, typ string, coll *collection.Collection) {
	p := coll.Type().Path()

	router.HandleFunc(p, s.handlePost(coll)).Methods(http.MethodPost)
	router.HandleFunc(p, s.handleList(coll)).Methods(http.MethodGet)
	router.HandleFunc(p+"/search/{criteria:.*}", s.handleSearch(coll)).Methods(http.MethodGet)
	router.HandleFunc(p+"/listeners", s.handleCreateListener(typ)).Methods(http.MethodPost)
	router.HandleFunc(p+"/listeners", s.handleListListeners(typ)).Methods(http.MethodGet)
	router.HandleFunc(p+"/listeners/{listener_id}", s.handleGetListener()).Methods(http.MethodGet)
	router.HandleFunc(p+"/listeners/{listener_id}", s.handleUpdateListener()).Methods(http.MethodPut)
	router.HandleFunc(p+"/listeners/{listener_id}", s.handleDeleteListener()).Methods(http.MethodDelete)
	router.HandleFunc(p+"/listeners/{listener_id}/notifications", s.handleListNotifications()).Methods(http.MethodGet)
	router.HandleFunc(p+"/listeners/{listener_id}/notifications/{notification_id}", s.handleGetNotification()).Methods(http.MethodGet)
	router.HandleFunc(p+"/listeners/{listener_id}/notifications/{notification_id}", s.handleDeleteNotification()).Methods(http.MethodDelete)

	router.HandleFunc(p+"/{id}", s.handleGet(coll)).Methods(http.MethodGet)
	router.HandleFunc(p+"/{id}", s.handlePut(coll)).Methods(http.MethodPut)
	router.HandleFunc(p+"/{id}", s.handleDelete(coll)).Methods(http.MethodDelete)
	router.HandleFunc(p+"/{id}/{subpath}", s.handleGetSubresource(coll)).Methods(http.MethodGet)
	router.HandleFunc(p+"/{id}/{subpath}", s.handlePutSubresource(coll)).Methods(http.MethodPut)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]interface{}{"version": Version})
}

// accessByUserID decodes the Qvarn-Access-By header's JWT without verifying
// its signature (the primary token was already verified at the boundary;
// this header's sub is only trusted when the caller also holds
// uapi_trusted_client), matching router.py's get_user_id_from_headers.
func accessByUserID(r *http.Request) string {
	h := r.Header.Get("Qvarn-Access-By")
	if h == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(h, claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func requestParams(r *http.Request, resourceType string) access.RequestParams {
	claims := access.ClaimsFromContext(r.Context())
	return access.ParamsFromClaims(claims, r.Method, resourceType, accessByUserID(r))
}
