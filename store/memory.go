package store

import (
	"context"
	"sync"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/flatten"
	"github.com/vaultit/qvarn-go/qerrors"
)

// memoryTx is a no-op transaction handle: the memory backend serializes all
// access through Memory.mu, so there is nothing to begin/commit beyond the
// lock itself.
type memoryTx struct{}

func (memoryTx) isQvarnTx() {}

type memoryBlob struct {
	keys        Keys
	subpath     string
	contentType string
	payload     []byte
}

// Memory is the in-memory object-store backend: a list of (keys, body)
// tuples. Grounded on the original objstore.py's MemoryObjectStore; used by
// every package's unit tests and as the reference backend for store-parity
// tests against Postgres.
type Memory struct {
	mu    sync.Mutex
	rows  []Row
	blobs []memoryBlob
	rules []access.Rule
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// WithTransaction runs fn holding the store's lock for the duration of the
// call. It snapshots the rows, blobs and allow rules on entry and restores
// that snapshot if fn returns an error or panics, so a failed transaction
// leaves no mutations behind.
func (m *Memory) WithTransaction(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := append([]Row(nil), m.rows...)
	blobs := append([]memoryBlob(nil), m.blobs...)
	rules := append([]access.Rule(nil), m.rules...)
	committed := false
	defer func() {
		if !committed {
			m.rows, m.blobs, m.rules = rows, blobs, rules
		}
	}()
	err := fn(memoryTx{})
	committed = err == nil
	return err
}

func rowKeysEqual(a, b Keys) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// CreateObject implements Store.CreateObject.
func (m *Memory) CreateObject(tx Tx, keys Keys, body map[string]interface{}, aux bool) error {
	for _, r := range m.rows {
		if rowKeysEqual(r.Keys, keys) {
			return qerrors.ErrKeyCollision
		}
	}
	cp := make(Keys, len(keys))
	for k, v := range keys {
		cp[k] = v
	}
	m.rows = append(m.rows, Row{Keys: cp, Body: cloneBody(body)})
	return nil
}

// RemoveObjects implements Store.RemoveObjects.
func (m *Memory) RemoveObjects(tx Tx, keys Keys) error {
	kept := m.rows[:0:0]
	for _, r := range m.rows {
		if !keysMatch(keys, r.Keys) {
			kept = append(kept, r)
		}
	}
	m.rows = kept

	keptBlobs := m.blobs[:0:0]
	for _, b := range m.blobs {
		if !keysMatch(keys, b.keys) {
			keptBlobs = append(keptBlobs, b)
		}
	}
	m.blobs = keptBlobs
	return nil
}

// GetMatches implements Store.GetMatches.
func (m *Memory) GetMatches(tx Tx, keys Keys, cond condition.Condition, allowCond condition.Condition) ([]Row, error) {
	if err := checkSearchArgs(keys, cond); err != nil {
		return nil, err
	}
	if cond == nil {
		cond = condition.Yes()
	}
	if allowCond == nil {
		allowCond = condition.Yes()
	}
	var out []Row
	for _, r := range m.rows {
		if !keysMatch(keys, r.Keys) {
			continue
		}
		pairs := flatten.Object(r.Body)
		if !cond.Match(pairs, r.Body) {
			continue
		}
		if !allowCond.Match(pairs, r.Body) {
			continue
		}
		out = append(out, Row{Keys: r.Keys, Body: cloneBody(r.Body)})
	}
	return out, nil
}

// CreateBlob implements Store.CreateBlob.
func (m *Memory) CreateBlob(tx Tx, keys Keys, subpath, contentType string, payload []byte) error {
	parent := Keys{}
	for k, v := range keys {
		parent[k] = v
	}
	parent["subpath"] = ""
	found := false
	for _, r := range m.rows {
		if rowKeysEqual(r.Keys, parent) {
			found = true
			break
		}
	}
	if !found {
		return qerrors.ErrNoSuchObject
	}
	for _, b := range m.blobs {
		if rowKeysEqual(b.keys, keys) && b.subpath == subpath {
			return qerrors.ErrBlobKeyCollision
		}
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.blobs = append(m.blobs, memoryBlob{keys: cloneKeys(keys), subpath: subpath, contentType: contentType, payload: cp})
	return nil
}

// GetBlob implements Store.GetBlob.
func (m *Memory) GetBlob(tx Tx, keys Keys, subpath string) (string, []byte, error) {
	for _, b := range m.blobs {
		if rowKeysEqual(b.keys, keys) && b.subpath == subpath {
			cp := make([]byte, len(b.payload))
			copy(cp, b.payload)
			return b.contentType, cp, nil
		}
	}
	return "", nil, qerrors.ErrNoSuchObject
}

// RemoveBlob implements Store.RemoveBlob.
func (m *Memory) RemoveBlob(tx Tx, keys Keys, subpath string) error {
	kept := m.blobs[:0:0]
	for _, b := range m.blobs {
		if !(rowKeysEqual(b.keys, keys) && b.subpath == subpath) {
			kept = append(kept, b)
		}
	}
	m.blobs = kept
	return nil
}

// AddAllowRule implements Store.AddAllowRule.
func (m *Memory) AddAllowRule(tx Tx, rule access.Rule) error {
	m.rules = append(m.rules, rule)
	return nil
}

// HasAllowRule implements Store.HasAllowRule: an exact-match lookup of the
// rule row, not an access-grant evaluation (that is access.Allowed).
func (m *Memory) HasAllowRule(tx Tx, rule access.Rule) (bool, error) {
	for _, r := range m.rules {
		if r == rule {
			return true, nil
		}
	}
	return false, nil
}

// RemoveAllowRule implements Store.RemoveAllowRule.
func (m *Memory) RemoveAllowRule(tx Tx, rule access.Rule) error {
	kept := m.rules[:0:0]
	for _, r := range m.rules {
		if r != rule {
			kept = append(kept, r)
		}
	}
	m.rules = kept
	return nil
}

// GetAllowRules implements Store.GetAllowRules.
func (m *Memory) GetAllowRules(tx Tx) ([]access.Rule, error) {
	out := make([]access.Rule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func cloneKeys(k Keys) Keys {
	cp := make(Keys, len(k))
	for kk, v := range k {
		cp[kk] = v
	}
	return cp
}

func cloneBody(body map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(body))
	for k, v := range body {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneBody(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}
