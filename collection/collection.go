// Package collection implements the collection manager: the operations a
// resource type's REST surface is built from (post, get, put, delete, list,
// search), each run inside a single store transaction and fronted by an
// access check. Grounded on the original collection.py's CollectionAPI.
package collection

import (
	"sort"
	"strings"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/flatten"
	"github.com/vaultit/qvarn-go/idgen"
	"github.com/vaultit/qvarn-go/notify"
	"github.com/vaultit/qvarn-go/qerrors"
	"github.com/vaultit/qvarn-go/resourcetype"
	"github.com/vaultit/qvarn-go/search"
	"github.com/vaultit/qvarn-go/store"
	"github.com/vaultit/qvarn-go/validate"
)

// Collection is bound to one resource type, per spec §4.7.
type Collection struct {
	rt           *resourcetype.ResourceType
	store        store.Store
	notify       *notify.Engine
	enableAccess bool
	rules        []access.Rule
}

// New returns a collection manager bound to rt, backed by st, with the
// notification engine eng. enableAccess mirrors spec §4.8's global
// fine-grained-access-control switch: when false, every allow check passes.
func New(rt *resourcetype.ResourceType, st store.Store, eng *notify.Engine, enableAccess bool) *Collection {
	return &Collection{rt: rt, store: st, notify: eng, enableAccess: enableAccess}
}

// Type returns the collection's bound resource type.
func (c *Collection) Type() *resourcetype.ResourceType { return c.rt }

func (c *Collection) allowCond(tx store.Tx, params access.RequestParams) (condition.Condition, error) {
	if !c.enableAccess {
		return condition.Yes(), nil
	}
	rules, err := c.store.GetAllowRules(tx)
	if err != nil {
		return nil, err
	}
	return condition.AccessIsAllowed(params, rules), nil
}

func (c *Collection) allowed(tx store.Tx, params access.RequestParams, body map[string]interface{}) (bool, error) {
	if !c.enableAccess {
		return true, nil
	}
	rules, err := c.store.GetAllowRules(tx)
	if err != nil {
		return false, err
	}
	id, _ := body["id"].(string)
	typ, _ := body["type"].(string)
	return access.Allowed(rules, params, access.Candidate{ID: id, Type: typ, Body: body}), nil
}

// Post validates obj as a brand-new resource, mints id/revision, fills in
// every declared sub-path with a completed empty prototype, and inserts
// everything inside tx. Mirrors collection.py's post.
func (c *Collection) Post(tx store.Tx, obj map[string]interface{}) (map[string]interface{}, error) {
	return c.post(tx, obj, false)
}

// PostWithID is Post, but accepts a client-supplied id/revision (the caller
// must already hold the set_meta_fields capability; enforced by the route
// layer, not here).
func (c *Collection) PostWithID(tx store.Tx, obj map[string]interface{}) (map[string]interface{}, error) {
	return c.post(tx, obj, true)
}

func (c *Collection) post(tx store.Tx, obj map[string]interface{}, withID bool) (map[string]interface{}, error) {
	var err error
	if withID {
		err = validate.ValidateNewResourceWithID(obj, c.rt)
	} else {
		err = validate.ValidateNewResource(obj, c.rt)
	}
	if err != nil {
		return nil, err
	}

	filled := resourcetype.AddMissingFields(c.rt.LatestPrototype(), obj)
	filled["type"] = c.rt.Type()
	id, _ := filled["id"].(string)
	if id == "" {
		id = idgen.New()
	}
	revision, _ := filled["revision"].(string)
	if revision == "" {
		revision = idgen.New()
	}
	filled["id"] = id
	filled["revision"] = revision

	if err := c.store.CreateObject(tx, store.Keys{"obj_id": id, "subpath": ""}, filled, true); err != nil {
		return nil, err
	}

	for subpath, proto := range c.rt.Subpaths() {
		sub := resourcetype.AddMissingFields(proto, map[string]interface{}{})
		if err := c.store.CreateObject(tx, store.Keys{"obj_id": id, "subpath": subpath}, sub, true); err != nil {
			return nil, err
		}
	}

	if _, err := c.notify.Notify(tx, c.rt.Type(), id, revision, notify.Created); err != nil {
		return nil, err
	}

	return filled, nil
}

// Get retrieves the base resource (id, "") and enforces the access check.
func (c *Collection) Get(tx store.Tx, id string, params access.RequestParams) (map[string]interface{}, error) {
	rows, err := c.store.GetMatches(tx, store.Keys{"obj_id": id, "subpath": ""}, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, qerrors.ErrNoSuchResource
	}
	ok, err := c.allowed(tx, params, rows[0].Body)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, qerrors.ErrNoSuchResource
	}
	return rows[0].Body, nil
}

// GetSubresource retrieves (id, subpath), with the same access check as Get
// (evaluated against the base resource, not the sub-resource body).
func (c *Collection) GetSubresource(tx store.Tx, id, subpath string, params access.RequestParams) (map[string]interface{}, error) {
	if _, err := c.Get(tx, id, params); err != nil {
		return nil, err
	}
	rows, err := c.store.GetMatches(tx, store.Keys{"obj_id": id, "subpath": subpath}, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, qerrors.ErrNoSuchResource
	}
	return rows[0].Body, nil
}

// Put validates obj as an update, checks the echoed revision against the
// stored one, mints a new revision, and replaces the base row (remove then
// insert), leaving sub-resources intact. Mirrors collection.py's put.
func (c *Collection) Put(tx store.Tx, obj map[string]interface{}) (map[string]interface{}, error) {
	if err := validate.ValidateResourceUpdate(obj, c.rt); err != nil {
		return nil, err
	}
	id, _ := obj["id"].(string)
	rows, err := c.store.GetMatches(tx, store.Keys{"obj_id": id, "subpath": ""}, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, qerrors.ErrNoSuchResource
	}
	current := rows[0].Body
	currentRevision, _ := current["revision"].(string)
	newRevision, _ := obj["revision"].(string)
	if newRevision != currentRevision {
		return nil, qerrors.ErrWrongRevision
	}

	updated := resourcetype.AddMissingFields(c.rt.LatestPrototype(), obj)
	updated["type"] = c.rt.Type()
	updated["id"] = id
	mintedRevision := idgen.New()
	updated["revision"] = mintedRevision

	if err := c.store.RemoveObjects(tx, store.Keys{"obj_id": id, "subpath": ""}); err != nil {
		return nil, err
	}
	if err := c.store.CreateObject(tx, store.Keys{"obj_id": id, "subpath": ""}, updated, true); err != nil {
		return nil, err
	}

	if _, err := c.notify.Notify(tx, c.rt.Type(), id, mintedRevision, notify.Updated); err != nil {
		return nil, err
	}

	return updated, nil
}

// PutSubresource validates body against subpath's prototype, checks the
// echoed revision against the base object's current revision, replaces the
// sub-object, and bumps the base object's revision. Returns the updated
// sub-object (its revision field mirrors the new base revision).
func (c *Collection) PutSubresource(tx store.Tx, body map[string]interface{}, subpath, id, revision string) (map[string]interface{}, error) {
	return c.putSubresource(tx, body, subpath, id, revision, true)
}

// PutSubresourceNoNewRevision is PutSubresource but does not bump the base
// object's revision, per spec §4.7's privileged file-write path (requires
// the caller to hold the set_meta_fields capability; enforced upstream).
func (c *Collection) PutSubresourceNoNewRevision(tx store.Tx, body map[string]interface{}, subpath, id, revision string) (map[string]interface{}, error) {
	return c.putSubresource(tx, body, subpath, id, revision, false)
}

func (c *Collection) putSubresource(tx store.Tx, body map[string]interface{}, subpath, id, revision string, bumpRevision bool) (map[string]interface{}, error) {
	if err := validate.ValidateSubresource(subpath, c.rt, body); err != nil {
		return nil, err
	}
	rows, err := c.store.GetMatches(tx, store.Keys{"obj_id": id, "subpath": ""}, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, qerrors.ErrNoSuchResource
	}
	base := rows[0].Body
	currentRevision, _ := base["revision"].(string)
	if revision != currentRevision {
		return nil, qerrors.ErrWrongRevision
	}

	proto := c.rt.Subpaths()[subpath]
	updated := resourcetype.AddMissingFields(proto, body)

	if err := c.store.RemoveObjects(tx, store.Keys{"obj_id": id, "subpath": subpath}); err != nil {
		return nil, err
	}
	if err := c.store.CreateObject(tx, store.Keys{"obj_id": id, "subpath": subpath}, updated, true); err != nil {
		return nil, err
	}

	newRevision := currentRevision
	if bumpRevision {
		newRevision = idgen.New()
		base["revision"] = newRevision
		if err := c.store.RemoveObjects(tx, store.Keys{"obj_id": id, "subpath": ""}); err != nil {
			return nil, err
		}
		if err := c.store.CreateObject(tx, store.Keys{"obj_id": id, "subpath": ""}, base, true); err != nil {
			return nil, err
		}
	}
	updated["revision"] = newRevision

	if _, err := c.notify.Notify(tx, c.rt.Type(), id, newRevision, notify.Updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete fetches the base resource first (so the access check applies),
// then removes every row keyed by id: base, sub-paths, and blobs.
func (c *Collection) Delete(tx store.Tx, id string, params access.RequestParams) error {
	base, err := c.Get(tx, id, params)
	if err != nil {
		return err
	}
	revision, _ := base["revision"].(string)
	if err := c.store.RemoveObjects(tx, store.Keys{"obj_id": id}); err != nil {
		return err
	}
	_, err = c.notify.Notify(tx, c.rt.Type(), id, revision, notify.Deleted)
	return err
}

// List returns the ids of every resource of this collection's type allowed
// to the caller, per spec §4.7's list.
func (c *Collection) List(tx store.Tx, params access.RequestParams) ([]string, error) {
	allow, err := c.allowCond(tx, params)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.GetMatches(tx, store.Keys{"subpath": ""}, condition.ResourceTypeIs(c.rt.Type()), allow)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		id, _ := r.Body["id"].(string)
		ids = append(ids, id)
	}
	return ids, nil
}

// searchableFields is the union of the base prototype and every declared
// sub-prototype's field names, against which search validates unknown
// fields (spec §4.7 "the union of base prototype and sub-prototype field
// names").
func (c *Collection) searchableFields() map[string]bool {
	fields := resourcetype.FieldNames(resourcetype.Schema(c.rt.LatestPrototype()))
	fields["id"] = true
	fields["type"] = true
	fields["revision"] = true
	for _, proto := range c.rt.Subpaths() {
		for k := range resourcetype.FieldNames(resourcetype.Schema(proto)) {
			fields[k] = true
		}
	}
	return fields
}

// Search parses criteria, validates its fields and defaults its type
// conjunct, asks the store for the matching rows (the store applies the
// precise condition match), sorts/paginates them in memory, and applies the
// requested projection. Mirrors collection.py's search.
func (c *Collection) Search(tx store.Tx, criteria string, params access.RequestParams) ([]map[string]interface{}, error) {
	parsed, err := search.Parse(criteria)
	if err != nil {
		return nil, err
	}

	fields := c.searchableFields()
	for field := range fieldsOf(parsed.Condition) {
		if !fields[field] {
			return nil, &qerrors.UnknownSearchField{Field: field}
		}
	}
	for _, f := range parsed.Show {
		if !fields[f] {
			return nil, &qerrors.UnknownSearchField{Field: f}
		}
	}
	for _, f := range parsed.Sort {
		if !fields[f] {
			return nil, &qerrors.UnknownSearchField{Field: f}
		}
	}

	// Fold in a type=self.type conjunct regardless of what the caller
	// supplied, per spec §4.7 "add a type=self.type conjunct if none
	// provided" — ANDing it unconditionally is equivalent and simpler.
	cond := condition.All(condition.ResourceTypeIs(c.rt.Type()), parsed.Condition)

	allow, err := c.allowCond(tx, params)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.GetMatches(tx, store.Keys{"subpath": ""}, cond, allow)
	if err != nil {
		return nil, err
	}

	bodies := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		bodies[i] = r.Body
	}

	if len(parsed.Sort) > 0 {
		sortBodies(bodies, parsed.Sort)
	}

	if parsed.HasOffset {
		if parsed.Offset >= len(bodies) {
			bodies = nil
		} else {
			bodies = bodies[parsed.Offset:]
		}
	}
	if parsed.HasLimit && parsed.Limit < len(bodies) {
		bodies = bodies[:parsed.Limit]
	}

	return project(bodies, parsed), nil
}

func fieldsOf(cond condition.Condition) map[string]bool {
	out := map[string]bool{}
	for _, leaf := range cond.Leaves() {
		if f, ok := leaf.(interface{ Field() string }); ok {
			out[f.Field()] = true
		}
	}
	return out
}

func sortBodies(bodies []map[string]interface{}, keys []string) {
	sort.SliceStable(bodies, func(i, j int) bool {
		for _, k := range keys {
			vi := sortValue(bodies[i], k)
			vj := sortValue(bodies[j], k)
			if vi == vj {
				continue
			}
			return vi < vj
		}
		return false
	})
}

func sortValue(body map[string]interface{}, key string) string {
	for _, p := range flatten.Object(body) {
		if p.Name == key {
			return strings.ToLower(toSortString(p.Leaf))
		}
	}
	return ""
}

func toSortString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}

func project(bodies []map[string]interface{}, parsed *search.Parameters) []map[string]interface{} {
	out := make([]map[string]interface{}, len(bodies))
	for i, b := range bodies {
		switch {
		case parsed.ShowAll:
			out[i] = b
		case len(parsed.Show) > 0:
			proj := map[string]interface{}{"id": b["id"]}
			for _, f := range parsed.Show {
				proj[f] = b[f]
			}
			out[i] = proj
		default:
			out[i] = map[string]interface{}{"id": b["id"]}
		}
	}
	return out
}
