package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/qerrors"
)

func TestMemoryCreateThenGetMatches(t *testing.T) {
	m := NewMemory()
	body := map[string]interface{}{"id": "r1", "type": "widget", "name": "bolt"}

	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, Keys{"obj_id": "r1", "subpath": ""}, body, true)
	})
	require.NoError(t, err)

	var rows []Row
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		rows, err = m.GetMatches(tx, Keys{"obj_id": "r1", "subpath": ""}, nil, nil)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bolt", rows[0].Body["name"])
}

func TestMemoryCreateObjectKeyCollision(t *testing.T) {
	m := NewMemory()
	keys := Keys{"obj_id": "r1", "subpath": ""}
	body := map[string]interface{}{"id": "r1", "type": "widget"}

	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, keys, body, true)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, keys, body, true)
	})
	require.ErrorIs(t, err, qerrors.ErrKeyCollision)
}

func TestMemoryRemoveObjectsReturnsToPriorState(t *testing.T) {
	m := NewMemory()
	keys := Keys{"obj_id": "r1", "subpath": ""}
	body := map[string]interface{}{"id": "r1", "type": "widget"}

	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, keys, body, true)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.RemoveObjects(tx, Keys{"obj_id": "r1"})
	})
	require.NoError(t, err)

	var rows []Row
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		rows, err = m.GetMatches(tx, Keys{"obj_id": "r1", "subpath": ""}, nil, nil)
		return err
	})
	require.NoError(t, err)
	require.Empty(t, rows)

	// Re-creating with the same keys after removal must succeed, proving the
	// store returned to its prior (empty) state rather than leaving a
	// tombstone behind.
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, keys, body, true)
	})
	require.NoError(t, err)
}

func TestMemoryBlobRequiresParentObject(t *testing.T) {
	m := NewMemory()
	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateBlob(tx, Keys{"obj_id": "nope", "subpath": ""}, "photo", "image/png", []byte("x"))
	})
	require.ErrorIs(t, err, qerrors.ErrNoSuchObject)
}

func TestMemoryBlobRoundTrip(t *testing.T) {
	m := NewMemory()
	keys := Keys{"obj_id": "r1", "subpath": ""}
	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, keys, map[string]interface{}{"id": "r1", "type": "widget"}, true)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateBlob(tx, keys, "photo", "image/png", []byte("hello"))
	})
	require.NoError(t, err)

	var contentType string
	var payload []byte
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		contentType, payload, err = m.GetBlob(tx, keys, "photo")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "image/png", contentType)
	require.Equal(t, []byte("hello"), payload)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.RemoveBlob(tx, keys, "photo")
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		_, _, err := m.GetBlob(tx, keys, "photo")
		return err
	})
	require.ErrorIs(t, err, qerrors.ErrNoSuchObject)
}

func TestMemorySearchCaseInsensitiveExact(t *testing.T) {
	m := NewMemory()
	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.CreateObject(tx, Keys{"obj_id": "r1", "subpath": ""},
			map[string]interface{}{"id": "r1", "type": "widget", "name": "Bolt"}, true)
	})
	require.NoError(t, err)

	var rows []Row
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		rows, err = m.GetMatches(tx, Keys{"subpath": ""}, condition.Equal("name", "bolt"), nil)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMemoryAllowRuleCRUD(t *testing.T) {
	m := NewMemory()
	rule := access.Rule{Method: "GET", ClientID: "*", UserID: "*", ResourceType: "widget"}

	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.AddAllowRule(tx, rule)
	})
	require.NoError(t, err)

	var has bool
	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		has, err = m.HasAllowRule(tx, rule)
		return err
	})
	require.NoError(t, err)
	require.True(t, has)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		return m.RemoveAllowRule(tx, rule)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(tx Tx) error {
		var err error
		has, err = m.HasAllowRule(tx, rule)
		return err
	})
	require.NoError(t, err)
	require.False(t, has)
}

func TestMemoryNoSearchCriteriaRejected(t *testing.T) {
	m := NewMemory()
	err := m.WithTransaction(context.Background(), func(tx Tx) error {
		_, err := m.GetMatches(tx, Keys{}, nil, nil)
		return err
	})
	require.Error(t, err)
}
