package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/notify"
	"github.com/vaultit/qvarn-go/qerrors"
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
					"color":    "",
				},
				Subpaths: map[string]map[string]interface{}{
					"notes": {"text": ""},
				},
			},
		},
	})
	require.NoError(t, err)
	return rt
}

func newCollection(t *testing.T, enableAccess bool) *Collection {
	rt := widgetType(t)
	st := store.NewMemory()
	eng := notify.NewEngine(st)
	return New(rt, st, eng, enableAccess)
}

func withTx(t *testing.T, c *Collection, fn func(tx store.Tx)) {
	err := c.store.WithTransaction(context.Background(), func(tx store.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}

func params() access.RequestParams {
	return access.RequestParams{Method: "GET", ClientID: "*", UserID: "*", ResourceType: "widget"}
}

func TestPostAssignsIDAndRevision(t *testing.T) {
	c := newCollection(t, false)
	var created map[string]interface{}
	withTx(t, c, func(tx store.Tx) {
		var err error
		created, err = c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt", "color": "red"})
		require.NoError(t, err)
	})
	require.NotEmpty(t, created["id"])
	require.NotEmpty(t, created["revision"])
	require.Equal(t, "widget", created["type"])
	require.Equal(t, "bolt", created["name"])
}

func TestPostCreatesDeclaredSubpaths(t *testing.T) {
	c := newCollection(t, false)
	var id string
	withTx(t, c, func(tx store.Tx) {
		created, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt"})
		require.NoError(t, err)
		id = created["id"].(string)
	})

	withTx(t, c, func(tx store.Tx) {
		sub, err := c.GetSubresource(tx, id, "notes", params())
		require.NoError(t, err)
		require.Equal(t, "", sub["text"])
	})
}

func TestGetThenPutRejectsStaleRevision(t *testing.T) {
	c := newCollection(t, false)
	var created map[string]interface{}
	withTx(t, c, func(tx store.Tx) {
		var err error
		created, err = c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt"})
		require.NoError(t, err)
	})

	withTx(t, c, func(tx store.Tx) {
		stale := map[string]interface{}{
			"type": "widget", "id": created["id"], "revision": "not-the-current-revision", "name": "nut",
		}
		_, err := c.Put(tx, stale)
		require.ErrorIs(t, err, qerrors.ErrWrongRevision)
	})

	withTx(t, c, func(tx store.Tx) {
		fresh := map[string]interface{}{
			"type": "widget", "id": created["id"], "revision": created["revision"], "name": "nut",
		}
		updated, err := c.Put(tx, fresh)
		require.NoError(t, err)
		require.Equal(t, "nut", updated["name"])
		require.NotEqual(t, created["revision"], updated["revision"])
	})
}

func TestDeleteRemovesBaseAndSubresources(t *testing.T) {
	c := newCollection(t, false)
	var id string
	withTx(t, c, func(tx store.Tx) {
		created, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt"})
		require.NoError(t, err)
		id = created["id"].(string)
	})

	withTx(t, c, func(tx store.Tx) {
		require.NoError(t, c.Delete(tx, id, params()))
	})

	withTx(t, c, func(tx store.Tx) {
		_, err := c.Get(tx, id, params())
		require.ErrorIs(t, err, qerrors.ErrNoSuchResource)
		rows, err := c.store.GetMatches(tx, store.Keys{"obj_id": id}, nil, nil)
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TestGetDeniesWhenNoAllowRuleMatches(t *testing.T) {
	c := newCollection(t, true)
	var id string
	withTx(t, c, func(tx store.Tx) {
		created, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt"})
		require.NoError(t, err)
		id = created["id"].(string)
	})

	withTx(t, c, func(tx store.Tx) {
		_, err := c.Get(tx, id, params())
		require.ErrorIs(t, err, qerrors.ErrNoSuchResource)
	})

	withTx(t, c, func(tx store.Tx) {
		require.NoError(t, c.store.AddAllowRule(tx, access.Rule{
			Method: "GET", ClientID: "*", UserID: "*", ResourceType: "widget", ResourceID: "*",
		}))
	})

	withTx(t, c, func(tx store.Tx) {
		body, err := c.Get(tx, id, params())
		require.NoError(t, err)
		require.Equal(t, id, body["id"])
	})
}

func TestSearchDefaultsTypeConjunctAndProjectsID(t *testing.T) {
	c := newCollection(t, false)
	withTx(t, c, func(tx store.Tx) {
		_, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt", "color": "red"})
		require.NoError(t, err)
		_, err = c.Post(tx, map[string]interface{}{"type": "widget", "name": "nut", "color": "blue"})
		require.NoError(t, err)
	})

	withTx(t, c, func(tx store.Tx) {
		results, err := c.Search(tx, "exact/name/bolt", params())
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, map[string]interface{}{"id": results[0]["id"]}, results[0])
	})
}

func TestSearchUnknownFieldRejected(t *testing.T) {
	c := newCollection(t, false)
	withTx(t, c, func(tx store.Tx) {
		_, err := c.Search(tx, "exact/nosuchfield/x", params())
		var unknown *qerrors.UnknownSearchField
		require.ErrorAs(t, err, &unknown)
	})
}

func TestSearchSortOffsetLimit(t *testing.T) {
	c := newCollection(t, false)
	withTx(t, c, func(tx store.Tx) {
		for _, name := range []string{"charlie", "alpha", "bravo"} {
			_, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": name})
			require.NoError(t, err)
		}
	})

	withTx(t, c, func(tx store.Tx) {
		results, err := c.Search(tx, "sort/name/show_all/offset/1/limit/1", params())
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, "bravo", results[0]["name"])
	})
}

func TestListReturnsOnlyAllowedIDs(t *testing.T) {
	c := newCollection(t, true)
	withTx(t, c, func(tx store.Tx) {
		_, err := c.Post(tx, map[string]interface{}{"type": "widget", "name": "bolt"})
		require.NoError(t, err)
	})

	withTx(t, c, func(tx store.Tx) {
		ids, err := c.List(tx, params())
		require.NoError(t, err)
		require.Empty(t, ids)
	})

	withTx(t, c, func(tx store.Tx) {
		require.NoError(t, c.store.AddAllowRule(tx, access.Rule{
			Method: "GET", ClientID: "*", UserID: "*", ResourceType: "widget", ResourceID: "*",
		}))
	})

	withTx(t, c, func(tx store.Tx) {
		ids, err := c.List(tx, params())
		require.NoError(t, err)
		require.Len(t, ids, 1)
	})
}
