package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/shopmate/internal/remote"
)

// timeLayout is fixed-width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrConflict          = errors.New("row already exists")
)

// ValidationError reports a request the store refuses to run.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Row is a collection row as decoded JSON values.
type Row map[string]any

// RowChange is one row touched by a write. Old is nil for inserts and New
// for deletes.
type RowChange struct {
	Old Row
	New Row
}

// CollectionStore serves the generic collection API over SQLite.
type CollectionStore struct {
	db     *sql.DB
	tables map[string]Table
}

func NewCollectionStore(db *sql.DB) *CollectionStore {
	tables := make(map[string]Table, len(Tables))
	for _, t := range Tables {
		tables[t.Name] = t
	}
	return &CollectionStore{db: db, tables: tables}
}

// Table returns the schema of a collection.
func (s *CollectionStore) Table(name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return t, nil
}

// Insert validates and stores one row, returning it as stored.
func (s *CollectionStore) Insert(ctx context.Context, collection string, in Row) (Row, error) {
	t, err := s.Table(collection)
	if err != nil {
		return nil, err
	}
	for k := range in {
		if _, ok := t.column(k); !ok {
			return nil, invalid("%s: unknown column %q", collection, k)
		}
	}

	cols := t.names()
	args := make([]any, len(cols))
	now := time.Now().UTC()
	for i, c := range t.Columns {
		v, present := in[c.Name]
		if !present || v == nil {
			switch {
			case c.Required:
				return nil, invalid("%s: %s is required", collection, c.Name)
			case c.Default != nil:
				v = c.Default
			case c.Type == TypeTime && !c.Nullable:
				v = now.Format(time.RFC3339Nano)
			case c.Nullable:
				args[i] = nil
				continue
			default:
				return nil, invalid("%s: %s is required", collection, c.Name)
			}
		}
		if c.Required && c.Type == TypeText {
			if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
				return nil, invalid("%s: %s must not be empty", collection, c.Name)
			}
		}
		args[i], err = encode(c, v)
		if err != nil {
			return nil, err
		}
	}

	q := `INSERT INTO ` + t.Name + ` (` + strings.Join(cols, ", ") + `) VALUES (?` + strings.Repeat(", ?", len(cols)-1) + `)`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}

	rows, err := s.query(ctx, s.db, t, remote.ByID(fmt.Sprint(in["id"])))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: row vanished", collection)
	}
	return rows[0], nil
}

// Update applies patch to every row matching where.
func (s *CollectionStore) Update(ctx context.Context, collection string, where remote.Filter, patch map[string]any) ([]RowChange, error) {
	t, err := s.Table(collection)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, invalid("%s: empty patch", collection)
	}
	cond, condArgs, err := compile(t, where)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	for k, v := range patch {
		c, ok := t.column(k)
		if !ok {
			return nil, invalid("%s: unknown column %q", collection, k)
		}
		if c.Immutable {
			return nil, invalid("%s: %s can't be changed", collection, k)
		}
		if v == nil && !c.Nullable {
			return nil, invalid("%s: %s can't be null", collection, k)
		}
		if c.Required && c.Type == TypeText {
			if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
				return nil, invalid("%s: %s must not be empty", collection, k)
			}
		}
		enc, err := encode(c, v)
		if err != nil {
			return nil, err
		}
		sets = append(sets, k+" = ?")
		args = append(args, enc)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	before, err := s.query(ctx, tx, t, where)
	if err != nil {
		return nil, err
	}
	if len(before) == 0 {
		return nil, tx.Commit()
	}

	q := `UPDATE ` + t.Name + ` SET ` + strings.Join(sets, ", ") + cond
	if _, err := tx.ExecContext(ctx, q, append(args, condArgs...)...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}

	changes := make([]RowChange, 0, len(before))
	for _, old := range before {
		rows, err := s.query(ctx, tx, t, remote.ByID(fmt.Sprint(old["id"])))
		if err != nil {
			return nil, err
		}
		if len(rows) == 1 {
			changes = append(changes, RowChange{Old: old, New: rows[0]})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return changes, nil
}

// Delete removes every row matching where. An empty filter is refused.
func (s *CollectionStore) Delete(ctx context.Context, collection string, where remote.Filter) ([]RowChange, error) {
	t, err := s.Table(collection)
	if err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return nil, invalid("%s: delete needs a filter", collection)
	}
	cond, condArgs, err := compile(t, where)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	before, err := s.query(ctx, tx, t, where)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+t.Name+cond, condArgs...); err != nil {
		return nil, fmt.Errorf("delete %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	changes := make([]RowChange, len(before))
	for i, old := range before {
		changes[i] = RowChange{Old: old}
	}
	return changes, nil
}

// Select returns the rows matching where.
func (s *CollectionStore) Select(ctx context.Context, collection string, where remote.Filter) ([]Row, error) {
	t, err := s.Table(collection)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, s.db, t, where)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *CollectionStore) query(ctx context.Context, q querier, t Table, where remote.Filter) ([]Row, error) {
	cond, args, err := compile(t, where)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + strings.Join(t.names(), ", ") + ` FROM ` + t.Name + cond
	if t.OrderBy != "" {
		query += ` ORDER BY ` + t.OrderBy
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		r, err := scanRow(rows, t)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// compile turns a filter into a WHERE clause over whitelisted columns.
func compile(t Table, where remote.Filter) (string, []any, error) {
	if err := where.Validate(); err != nil {
		return "", nil, invalid("%s", err.Error())
	}
	if len(where) == 0 {
		return "", nil, nil
	}

	var parts []string
	var args []any
	for _, cond := range where {
		c, ok := t.column(cond.Column)
		if !ok {
			return "", nil, invalid("%s: unknown column %q", t.Name, cond.Column)
		}
		switch cond.Op {
		case remote.OpIsNull:
			parts = append(parts, c.Name+" IS NULL")
			continue
		case remote.OpNotNull:
			parts = append(parts, c.Name+" IS NOT NULL")
			continue
		}

		v, err := encode(c, cond.Value)
		if err != nil {
			return "", nil, err
		}
		switch cond.Op {
		case remote.OpEq:
			parts = append(parts, c.Name+" = ?")
		case remote.OpNeq:
			parts = append(parts, "("+c.Name+" IS NULL OR "+c.Name+" <> ?)")
		case remote.OpLte:
			parts = append(parts, c.Name+" <= ?")
		case remote.OpGte:
			parts = append(parts, c.Name+" >= ?")
		}
		args = append(args, v)
	}
	return ` WHERE ` + strings.Join(parts, " AND "), args, nil
}

// encode converts a decoded JSON value to its stored form.
func encode(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("%s must be a string", c.Name)
		}
		return s, nil

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid("%s must be a boolean", c.Name)
		}
		if b {
			return 1, nil
		}
		return 0, nil

	case TypeInt:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, invalid("%s must be an integer", c.Name)
			}
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, invalid("%s must be an integer", c.Name)
			}
			return i, nil
		}
		return nil, invalid("%s must be an integer", c.Name)

	case TypeDecimal:
		var d decimal.Decimal
		var err error
		switch n := v.(type) {
		case string:
			d, err = decimal.NewFromString(n)
		case float64:
			d = decimal.NewFromFloat(n)
		case json.Number:
			d, err = decimal.NewFromString(n.String())
		default:
			err = fmt.Errorf("unsupported type %T", v)
		}
		if err != nil {
			return nil, invalid("%s must be a decimal", c.Name)
		}
		return d.String(), nil

	case TypeTime:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("%s must be an RFC 3339 time", c.Name)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, invalid("%s must be an RFC 3339 time", c.Name)
		}
		return ts.UTC().Format(timeLayout), nil

	case TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, invalid("%s: %v", c.Name, err)
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("column %s: unknown type", c.Name)
}

func scanRow(rows *sql.Rows, t Table) (Row, error) {
	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case TypeBool, TypeInt:
			dest[i] = new(sql.NullInt64)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	r := make(Row, len(t.Columns))
	for i, c := range t.Columns {
		switch d := dest[i].(type) {
		case *sql.NullInt64:
			if !d.Valid {
				r[c.Name] = nil
			} else if c.Type == TypeBool {
				r[c.Name] = d.Int64 != 0
			} else {
				r[c.Name] = d.Int64
			}
		case *sql.NullString:
			if !d.Valid {
				r[c.Name] = nil
				continue
			}
			switch c.Type {
			case TypeTime:
				ts, err := time.Parse(timeLayout, d.String)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", c.Name, err)
				}
				r[c.Name] = ts.Format(time.RFC3339Nano)
			case TypeJSON:
				r[c.Name] = json.RawMessage(d.String)
			default:
				r[c.Name] = d.String
			}
		}
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
