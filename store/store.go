// Package store implements the Qvarn object store: keyed JSON documents and
// binary blobs, an auxiliary flattened-field index for search, and the
// allow-rule table, behind a transactional interface with two
// interchangeable backends (memory and Postgres/JSONB). Grounded on the
// original objstore.py's ObjectStoreInterface/MemoryObjectStore/
// PostgresObjectStore, restated in the teacher's core/csql transaction
// idiom.
package store

import (
	"context"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/qerrors"
)

// Keys is the store's fixed tuple of string-typed coordinates. The core
// always uses {"obj_id": ..., "subpath": ...}.
type Keys map[string]string

// Row is one stored object: its keys and its JSON body.
type Row struct {
	Keys Keys
	Body map[string]interface{}
}

// Tx is an opaque, backend-specific transaction handle. Callers never
// construct one directly; they obtain it from Store.WithTransaction.
type Tx interface {
	isQvarnTx()
}

// Store is the object-store contract both backends satisfy.
type Store interface {
	// WithTransaction scopes a transaction: it begins on entry, commits
	// fn's normal return, and rolls back if fn returns an error or panics.
	// For the Postgres backend the rolled-back connection goes back to the
	// database/sql pool; it is not discarded. Exactly one commit or rollback
	// ever happens per call.
	WithTransaction(ctx context.Context, fn func(Tx) error) error

	CreateObject(tx Tx, keys Keys, body map[string]interface{}, aux bool) error
	RemoveObjects(tx Tx, keys Keys) error
	GetMatches(tx Tx, keys Keys, cond condition.Condition, allowCond condition.Condition) ([]Row, error)

	CreateBlob(tx Tx, keys Keys, subpath, contentType string, payload []byte) error
	GetBlob(tx Tx, keys Keys, subpath string) (contentType string, payload []byte, err error)
	RemoveBlob(tx Tx, keys Keys, subpath string) error

	AddAllowRule(tx Tx, rule access.Rule) error
	HasAllowRule(tx Tx, rule access.Rule) (bool, error)
	RemoveAllowRule(tx Tx, rule access.Rule) error
	GetAllowRules(tx Tx) ([]access.Rule, error)
}

// checkSearchArgs enforces spec §4.1's "at least one of cond or keys must be
// non-empty".
func checkSearchArgs(keys Keys, cond condition.Condition) error {
	if len(keys) == 0 && cond == nil {
		return qerrors.ErrNoSearchCriteria
	}
	return nil
}

func keysMatch(subset, full Keys) bool {
	for k, v := range subset {
		if full[k] != v {
			return false
		}
	}
	return true
}
