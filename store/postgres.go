package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vaultit/qvarn-go/access"
	"github.com/vaultit/qvarn-go/condition"
	"github.com/vaultit/qvarn-go/csql"
	"github.com/vaultit/qvarn-go/flatten"
	"github.com/vaultit/qvarn-go/jsonx"
	"github.com/vaultit/qvarn-go/qerrors"
)

// postgresTx wraps the csql transaction handle so the store package can
// hand callers an opaque Tx while keeping the *csql.Tx internally.
type postgresTx struct {
	tx *csql.Tx
}

func (*postgresTx) isQvarnTx() {}

// Postgres is the durable object-store backend: four tables, `_objects`,
// `_aux`, `_blobs` and `_allow`, under db.Schema. Grounded on the original
// objstore.py's PostgresObjectStore, restated over csql.DB/csql.Tx in place
// of the original's bespoke PostgresAdapter/Transaction.
type Postgres struct {
	db   *csql.DB
	keys []string // declared key names, in a fixed order, e.g. ["obj_id", "subpath"]
}

// NewPostgres wires a Postgres-backed store over db, using keys as the
// declared key schema (spec §4.1 "opened with a declared key schema"). The
// core always opens it with keys = []string{"obj_id", "subpath"}.
func NewPostgres(db *csql.DB, keys []string) *Postgres {
	return &Postgres{db: db, keys: keys}
}

func (p *Postgres) table(name string) string {
	return p.db.Schema + "." + name
}

// CreateSchema creates the four tables and their indexes if they don't
// already exist, per spec §4.1's table/index layout.
func (p *Postgres) CreateSchema(ctx context.Context) error {
	keyCols := make([]string, len(p.keys))
	for i, k := range p.keys {
		keyCols[i] = k + " TEXT NOT NULL"
	}
	keyColsDDL := strings.Join(keyCols, ", ")
	pkCols := strings.Join(p.keys, ", ")

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s, body JSONB NOT NULL, PRIMARY KEY (%s))`,
			p.table("_objects"), keyColsDDL, pkCols),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s, field JSONB NOT NULL)`,
			p.table("_aux"), keyColsDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s, subpath TEXT NOT NULL, content_type TEXT NOT NULL, payload BYTEA NOT NULL, PRIMARY KEY (%s, subpath))`,
			p.table("_blobs"), keyColsDDL, pkCols),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			method TEXT NOT NULL, client_id TEXT NOT NULL, user_id TEXT NOT NULL,
			subpath TEXT NOT NULL, resource_id TEXT NOT NULL, resource_type TEXT NOT NULL,
			resource_field TEXT NOT NULL, resource_value TEXT NOT NULL
		)`, p.table("_allow")),
	}
	for _, k := range p.keys {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_objects_%s_idx ON %s (%s)`, p.db.Schema, k, p.table("_objects"), k),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_aux_%s_idx ON %s (%s)`, p.db.Schema, k, p.table("_aux"), k),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_blobs_%s_idx ON %s (%s)`, p.db.Schema, k, p.table("_blobs"), k),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_aux_name_idx ON %s (lower(field ->> 'name'))`, p.db.Schema, p.table("_aux")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_aux_value_idx ON %s (lower(field ->> 'value'))`, p.db.Schema, p.table("_aux")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_allow_idx ON %s (method, client_id, user_id, resource_id, resource_type)`, p.db.Schema, p.table("_allow")),
	)

	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("store: creating schema: %w", err)
		}
	}
	return nil
}

// WithTransaction implements Store.WithTransaction.
func (p *Postgres) WithTransaction(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	err = fn(&postgresTx{tx: tx})
	if err != nil || tx.Failed() {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sqlTx(tx Tx) *csql.Tx {
	return tx.(*postgresTx).tx
}

func (p *Postgres) keyWhere(keys Keys, startAt int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	n := startAt
	for _, k := range p.keys {
		v, ok := keys[k]
		if !ok {
			continue
		}
		n++
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, n))
		args = append(args, v)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return strings.Join(clauses, " AND "), args
}

// CreateObject implements Store.CreateObject.
func (p *Postgres) CreateObject(tx Tx, keys Keys, body map[string]interface{}, aux bool) error {
	t := sqlTx(tx)
	where, whereArgs := p.keyWhere(keys, 0)
	var exists int
	row := t.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE %s FOR UPDATE", p.table("_objects"), where), whereArgs...)
	if err := row.Scan(&exists); err == nil {
		return qerrors.ErrKeyCollision
	} else if err != sql.ErrNoRows {
		return err
	}

	bodyJSON, err := jsonx.Marshal(body)
	if err != nil {
		return err
	}

	cols, vals, placeholders := p.insertColumns(keys)
	cols = append(cols, "body")
	placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1))
	vals = append(vals, bodyJSON)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", p.table("_objects"),
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := t.Exec(q, vals...); err != nil {
		return err
	}

	if aux {
		for _, pair := range flatten.Object(body) {
			fieldJSON, err := jsonx.Marshal(map[string]interface{}{"name": pair.Name, "value": pair.Leaf})
			if err != nil {
				return err
			}
			cols, vals, placeholders := p.insertColumns(keys)
			cols = append(cols, "field")
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1))
			vals = append(vals, fieldJSON)
			q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", p.table("_aux"),
				strings.Join(cols, ", "), strings.Join(placeholders, ", "))
			if _, err := t.Exec(q, vals...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Postgres) insertColumns(keys Keys) (cols []string, vals []interface{}, placeholders []string) {
	for _, k := range p.keys {
		cols = append(cols, k)
		vals = append(vals, keys[k])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1))
	}
	return
}

// RemoveObjects implements Store.RemoveObjects.
func (p *Postgres) RemoveObjects(tx Tx, keys Keys) error {
	t := sqlTx(tx)
	where, args := p.keyWhere(keys, 0)
	if where == "" {
		return nil
	}
	for _, tbl := range []string{"_objects", "_aux", "_blobs"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE %s", p.table(tbl), where)
		if _, err := t.Exec(q, args...); err != nil {
			return err
		}
	}
	return nil
}

// GetMatches implements Store.GetMatches. It compiles cond into the
// count-threshold aux-join query from spec §4.2, runs it, and then re-runs
// cond/allowCond in memory on the candidate rows: the aux join is an
// intentional over-match (spec §4.2/§9), so GetMatches itself performs the
// precise re-filter needed to honor its own "rows whose body matches cond"
// contract; the collection manager does not re-filter what it gets back.
func (p *Postgres) GetMatches(tx Tx, keys Keys, cond condition.Condition, allowCond condition.Condition) ([]Row, error) {
	if err := checkSearchArgs(keys, cond); err != nil {
		return nil, err
	}
	if n, ok := cond.(interface{ IsNever() bool }); ok && n.IsNever() {
		return nil, nil
	}
	if cond == nil {
		cond = condition.Yes()
	}

	t := sqlTx(tx)
	paramN := 0
	next := func() string {
		paramN++
		return fmt.Sprintf("$%d", paramN)
	}

	var args []interface{}
	var fromClauses []string
	var whereClauses []string

	leaves := cond.Leaves()
	if len(leaves) > 0 {
		var disjuncts []string
		for _, leaf := range leaves {
			frag, largs := leaf.AuxSQL(next)
			disjuncts = append(disjuncts, frag)
			args = append(args, largs...)
		}
		auxSubquery := fmt.Sprintf(
			`(SELECT obj_id, COUNT(obj_id) AS hits FROM %s WHERE %s GROUP BY obj_id) t`,
			p.table("_aux"), strings.Join(disjuncts, " OR "))
		fromClauses = append(fromClauses, auxSubquery)
		whereClauses = append(whereClauses, fmt.Sprintf("t.hits >= %d", len(leaves)), "t.obj_id = o.obj_id")
	}

	if kw, kargs := p.keyWhere(keys, paramN); kw != "" {
		whereClauses = append(whereClauses, kw)
		args = append(args, kargs...)
		paramN += len(kargs)
	}

	if ac, ok := allowCond.(interface {
		CompileAllowExists(string, string, string, func() string) (string, []interface{})
	}); ok {
		frag, largs := ac.CompileAllowExists(p.table("_allow"), "o.obj_id", "o.body ->> 'type'", next)
		whereClauses = append(whereClauses, frag)
		args = append(args, largs...)
	}

	from := p.table("_objects") + " o"
	if len(fromClauses) > 0 {
		from += ", " + strings.Join(fromClauses, ", ")
	}
	where := "TRUE"
	if len(whereClauses) > 0 {
		where = strings.Join(whereClauses, " AND ")
	}
	q := fmt.Sprintf("SELECT DISTINCT o.%s, o.body FROM %s WHERE %s",
		strings.Join(p.keys, ", o."), from, where)

	rows, err := t.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		scanDest := make([]interface{}, len(p.keys)+1)
		keyVals := make([]string, len(p.keys))
		for i := range p.keys {
			scanDest[i] = &keyVals[i]
		}
		var bodyJSON []byte
		scanDest[len(p.keys)] = &bodyJSON
		if err := rows.Scan(scanDest...); err != nil {
			return nil, err
		}
		var body map[string]interface{}
		if err := jsonx.Unmarshal(bodyJSON, &body); err != nil {
			return nil, err
		}
		rowKeys := Keys{}
		for i, k := range p.keys {
			rowKeys[k] = keyVals[i]
		}

		pairs := flatten.Object(body)
		if !cond.Match(pairs, body) {
			continue
		}
		if allowCond != nil && !allowCond.Match(pairs, body) {
			continue
		}
		out = append(out, Row{Keys: rowKeys, Body: body})
	}
	return out, rows.Err()
}

// CreateBlob implements Store.CreateBlob.
func (p *Postgres) CreateBlob(tx Tx, keys Keys, subpath, contentType string, payload []byte) error {
	t := sqlTx(tx)
	parent := Keys{}
	for k, v := range keys {
		parent[k] = v
	}
	parent["subpath"] = ""
	where, args := p.keyWhere(parent, 0)
	var exists int
	if err := t.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE %s", p.table("_objects"), where), args...).Scan(&exists); err == sql.ErrNoRows {
		return qerrors.ErrNoSuchObject
	} else if err != nil {
		return err
	}

	blobWhere, blobArgs := p.keyWhere(keys, 0)
	blobArgs = append(blobArgs, subpath)
	if err := t.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE %s AND subpath = $%d", p.table("_blobs"), blobWhere, len(blobArgs)), blobArgs...).Scan(&exists); err == nil {
		return qerrors.ErrBlobKeyCollision
	} else if err != sql.ErrNoRows {
		return err
	}

	cols, vals, placeholders := p.insertColumns(keys)
	cols = append(cols, "subpath", "content_type", "payload")
	placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1), fmt.Sprintf("$%d", len(placeholders)+2), fmt.Sprintf("$%d", len(placeholders)+3))
	vals = append(vals, subpath, contentType, payload)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", p.table("_blobs"), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err := t.Exec(q, vals...)
	return err
}

// GetBlob implements Store.GetBlob.
func (p *Postgres) GetBlob(tx Tx, keys Keys, subpath string) (string, []byte, error) {
	t := sqlTx(tx)
	where, args := p.keyWhere(keys, 0)
	args = append(args, subpath)
	var contentType string
	var payload []byte
	err := t.QueryRow(fmt.Sprintf("SELECT content_type, payload FROM %s WHERE %s AND subpath = $%d", p.table("_blobs"), where, len(args)), args...).Scan(&contentType, &payload)
	if err == sql.ErrNoRows {
		return "", nil, qerrors.ErrNoSuchObject
	}
	return contentType, payload, err
}

// RemoveBlob implements Store.RemoveBlob.
func (p *Postgres) RemoveBlob(tx Tx, keys Keys, subpath string) error {
	t := sqlTx(tx)
	where, args := p.keyWhere(keys, 0)
	args = append(args, subpath)
	_, err := t.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s AND subpath = $%d", p.table("_blobs"), where, len(args)), args...)
	return err
}

func allowRuleColumns() []string {
	return []string{"method", "client_id", "user_id", "subpath", "resource_id", "resource_type", "resource_field", "resource_value"}
}

func allowRuleValues(r access.Rule) []interface{} {
	return []interface{}{r.Method, r.ClientID, r.UserID, r.Subpath, r.ResourceID, r.ResourceType, r.ResourceField, r.ResourceValue}
}

// AddAllowRule implements Store.AddAllowRule.
func (p *Postgres) AddAllowRule(tx Tx, rule access.Rule) error {
	t := sqlTx(tx)
	cols := allowRuleColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", p.table("_allow"), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err := t.Exec(q, allowRuleValues(rule)...)
	return err
}

func (p *Postgres) allowRuleWhere() (string, func(access.Rule) []interface{}) {
	cols := allowRuleColumns()
	clauses := make([]string, len(cols))
	for i, c := range cols {
		clauses[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	return strings.Join(clauses, " AND "), allowRuleValues
}

// HasAllowRule implements Store.HasAllowRule: an exact-match lookup.
func (p *Postgres) HasAllowRule(tx Tx, rule access.Rule) (bool, error) {
	t := sqlTx(tx)
	where, argsFn := p.allowRuleWhere()
	var exists int
	err := t.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE %s", p.table("_allow"), where), argsFn(rule)...).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// RemoveAllowRule implements Store.RemoveAllowRule.
func (p *Postgres) RemoveAllowRule(tx Tx, rule access.Rule) error {
	t := sqlTx(tx)
	where, argsFn := p.allowRuleWhere()
	_, err := t.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s", p.table("_allow"), where), argsFn(rule)...)
	return err
}

// GetAllowRules implements Store.GetAllowRules.
func (p *Postgres) GetAllowRules(tx Tx) ([]access.Rule, error) {
	t := sqlTx(tx)
	rows, err := t.Query(fmt.Sprintf("SELECT %s FROM %s", strings.Join(allowRuleColumns(), ", "), p.table("_allow")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []access.Rule
	for rows.Next() {
		var r access.Rule
		if err := rows.Scan(&r.Method, &r.ClientID, &r.UserID, &r.Subpath, &r.ResourceID, &r.ResourceType, &r.ResourceField, &r.ResourceValue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
