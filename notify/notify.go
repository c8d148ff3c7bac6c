// Package notify implements the notification engine: matching listener
// resources against a mutation and recording notification resources inside
// the same transaction as the write that triggered them. Grounded on the
// original notification_router.py's listener-matching rules and
// collection.py's post-write `notify` call, restated as a store-level
// helper the collection manager invokes from inside its own transaction.
package notify

import (
	"context"
	"sort"
	"time"

	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/idgen"
	"github.com/vaultit/qvarn-go/store"
)

// Change is the kind of mutation a notification records.
type Change string

const (
	Created Change = "created"
	Updated Change = "updated"
	Deleted Change = "deleted"
)

// Notification mirrors the `notification` resource's fields (spec §3).
type Notification struct {
	ID               string
	Revision         string
	ListenerID       string
	ResourceID       string
	ResourceRevision string
	ResourceChange   Change
	Timestamp        string
}

// AsyncPublisher is an optional fire-and-forget side channel a created
// notification is additionally published to, after the owning transaction
// has committed. It never participates in the transaction itself and its
// failures are logged, not surfaced to the caller.
type AsyncPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Engine matches listeners and records notifications against a store.
type Engine struct {
	store     store.Store
	Publisher AsyncPublisher
}

// NewEngine returns a notification engine bound to st.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// PublishAsync fans out each of ns to the engine's AsyncPublisher, if one is
// configured. It is the caller's responsibility to invoke this only after
// the transaction that created ns has committed (spec §4.9 DOMAIN STACK
// addition); failures are swallowed here since the side channel never
// participates in the write's correctness.
func (e *Engine) PublishAsync(ctx context.Context, ns []Notification) {
	if e.Publisher == nil {
		return
	}
	for _, n := range ns {
		_ = e.Publisher.Publish(ctx, n)
	}
}

type listener struct {
	id           string
	notifyOfNew  bool
	listenOnAll  bool
	listenOn     map[string]bool
	listenOnType string
}

func parseListener(body map[string]interface{}) listener {
	l := listener{listenOn: map[string]bool{}}
	l.id, _ = body["id"].(string)
	l.notifyOfNew, _ = body["notify_of_new"].(bool)
	l.listenOnAll, _ = body["listen_on_all"].(bool)
	l.listenOnType, _ = body["listen_on_type"].(string)
	if ids, ok := body["listen_on"].([]interface{}); ok {
		for _, v := range ids {
			if s, ok := v.(string); ok {
				l.listenOn[s] = true
			}
		}
	}
	return l
}

func (l listener) matches(resourceType, resourceID string, change Change) bool {
	if l.listenOnType != resourceType {
		return false
	}
	if change == Created && l.notifyOfNew {
		return true
	}
	if change != Created && l.listenOnAll {
		return true
	}
	return l.listenOn[resourceID]
}

// Notify implements spec §4.9's notify(tx, id, revision, change): it loads
// every listener object, and for each one that matches, creates a
// `notification` object inside tx recording the change. It returns the
// notifications created, so the caller can fan them out to an
// AsyncPublisher once the enclosing transaction has committed.
func (e *Engine) Notify(tx store.Tx, resourceType, resourceID, resourceRevision string, change Change) ([]Notification, error) {
	rows, err := e.store.GetMatches(tx, store.Keys{"subpath": ""}, condition.ResourceTypeIs("listener"), nil)
	if err != nil {
		return nil, err
	}

	var created []Notification
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, row := range rows {
		l := parseListener(row.Body)
		if !l.matches(resourceType, resourceID, change) {
			continue
		}
		n := Notification{
			ID:               idgen.New(),
			Revision:         idgen.New(),
			ListenerID:       l.id,
			ResourceID:       resourceID,
			ResourceRevision: resourceRevision,
			ResourceChange:   change,
			Timestamp:        now,
		}
		body := map[string]interface{}{
			"type":              "notification",
			"id":                n.ID,
			"revision":          n.Revision,
			"listener_id":       n.ListenerID,
			"resource_id":       n.ResourceID,
			"resource_revision": n.ResourceRevision,
			"resource_change":   string(n.ResourceChange),
			"timestamp":         n.Timestamp,
		}
		if err := e.store.CreateObject(tx, store.Keys{"obj_id": n.ID, "subpath": ""}, body, true); err != nil {
			return nil, err
		}
		created = append(created, n)
	}
	return created, nil
}

// ListNotifications returns listenerID's notifications sorted by timestamp
// ascending, per spec §4.9/§5.
func (e *Engine) ListNotifications(tx store.Tx, listenerID string) ([]map[string]interface{}, error) {
	rows, err := e.store.GetMatches(tx, store.Keys{"subpath": ""},
		condition.All(condition.ResourceTypeIs("notification"), condition.Equal("listener_id", listenerID)), nil)
	if err != nil {
		return nil, err
	}
	bodies := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		bodies[i] = r.Body
	}
	sort.SliceStable(bodies, func(i, j int) bool {
		ti, _ := bodies[i]["timestamp"].(string)
		tj, _ := bodies[j]["timestamp"].(string)
		return ti < tj
	})
	return bodies, nil
}

// DeleteForListener removes every notification belonging to listenerID,
// per spec §3/§4.9's "deleting a listener cascades to its notifications".
func (e *Engine) DeleteForListener(tx store.Tx, listenerID string) error {
	rows, err := e.store.GetMatches(tx, store.Keys{"subpath": ""},
		condition.All(condition.ResourceTypeIs("notification"), condition.Equal("listener_id", listenerID)), nil)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := e.store.RemoveObjects(tx, r.Keys); err != nil {
			return err
		}
	}
	return nil
}
