package notify

import (
	"testing"

	"github.com/vaultit/qvarn-go/store"
)

func newStoreWithListener(t *testing.T, l map[string]interface{}) store.Store {
	t.Helper()
	s := store.NewMemory()
	err := s.WithTransaction(nil, func(tx store.Tx) error {
		return s.CreateObject(tx, store.Keys{"obj_id": l["id"].(string), "subpath": ""}, l, true)
	})
	if err != nil {
		t.Fatalf("seed listener: %v", err)
	}
	return s
}

func TestNotifyOfNewMatchesCreated(t *testing.T) {
	s := newStoreWithListener(t, map[string]interface{}{
		"id": "listener-1", "type": "listener",
		"notify_of_new": true, "listen_on_all": false, "listen_on": []interface{}{},
		"listen_on_type": "person",
	})
	eng := NewEngine(s)
	var created []Notification
	err := s.WithTransaction(nil, func(tx store.Tx) error {
		var err error
		created, err = eng.Notify(tx, "person", "res-1", "rev-1", Created)
		return err
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(created) != 1 || created[0].ListenerID != "listener-1" {
		t.Fatalf("expected one notification for listener-1, got %+v", created)
	}
}

func TestListenOnAllIgnoresCreated(t *testing.T) {
	s := newStoreWithListener(t, map[string]interface{}{
		"id": "listener-1", "type": "listener",
		"notify_of_new": false, "listen_on_all": true, "listen_on": []interface{}{},
		"listen_on_type": "person",
	})
	eng := NewEngine(s)
	var created []Notification
	err := s.WithTransaction(nil, func(tx store.Tx) error {
		var err error
		created, err = eng.Notify(tx, "person", "res-1", "rev-1", Created)
		return err
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("listen_on_all should not match a created event, got %+v", created)
	}
	err = s.WithTransaction(nil, func(tx store.Tx) error {
		var err error
		created, err = eng.Notify(tx, "person", "res-1", "rev-2", Updated)
		return err
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("listen_on_all should match an updated event, got %+v", created)
	}
}

func TestResourceTypeMismatchNeverMatches(t *testing.T) {
	s := newStoreWithListener(t, map[string]interface{}{
		"id": "listener-1", "type": "listener",
		"notify_of_new": true, "listen_on_all": true, "listen_on": []interface{}{"res-1"},
		"listen_on_type": "org",
	})
	eng := NewEngine(s)
	var created []Notification
	err := s.WithTransaction(nil, func(tx store.Tx) error {
		var err error
		created, err = eng.Notify(tx, "person", "res-1", "rev-1", Created)
		return err
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no match across resource types, got %+v", created)
	}
}

func TestDeleteForListenerCascades(t *testing.T) {
	s := newStoreWithListener(t, map[string]interface{}{
		"id": "listener-1", "type": "listener",
		"notify_of_new": true, "listen_on_all": false, "listen_on": []interface{}{},
		"listen_on_type": "person",
	})
	eng := NewEngine(s)
	err := s.WithTransaction(nil, func(tx store.Tx) error {
		_, err := eng.Notify(tx, "person", "res-1", "rev-1", Created)
		return err
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	err = s.WithTransaction(nil, func(tx store.Tx) error {
		return eng.DeleteForListener(tx, "listener-1")
	})
	if err != nil {
		t.Fatalf("delete for listener: %v", err)
	}

	var notifications []map[string]interface{}
	err = s.WithTransaction(nil, func(tx store.Tx) error {
		var err error
		notifications, err = eng.ListNotifications(tx, "listener-1")
		return err
	})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 0 {
		t.Fatalf("expected cascade delete to remove all notifications, got %v", notifications)
	}
}
