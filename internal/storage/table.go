package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories are written against it so the same code runs on the pool
// and inside Transact.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// Mapping binds an entity type to its table. Columns is the complete,
// code-defined column set; it is the only source of identifiers that are
// ever interpolated into SQL text. The first column must be the primary
// key. Scan must read columns in exactly this order.
type Mapping[T any] struct {
	Table   string
	Columns []string
	Scan    func(row RowScanner) (T, error)
}

// Table provides parameterized CRUD primitives for one mapped entity.
// All caller-supplied data crosses the driver boundary as bind
// parameters; only identifiers from the Mapping reach the SQL text.
type Table[T any] struct {
	q Querier
	m Mapping[T]
}

// NewTable binds a mapping to a statement executor.
func NewTable[T any](q Querier, m Mapping[T]) *Table[T] {
	return &Table[T]{q: q, m: m}
}

func (t *Table[T]) columnList() string {
	return strings.Join(t.m.Columns, ", ")
}

func (t *Table[T]) hasColumn(name string) bool {
	for _, c := range t.m.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// FindByID returns the row with the given primary key, or (nil, nil)
// when no such row exists. Absence is not an error.
func (t *Table[T]) FindByID(ctx context.Context, id string) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.columnList(), t.m.Table, t.m.Columns[0])
	row := t.q.QueryRowContext(ctx, query, id)
	v, err := t.m.Scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s by id: %w", t.m.Table, err)
	}
	return &v, nil
}

// FindMany returns rows matching the filter, ordered by orderBy (a
// trusted, code-defined fragment such as "created_at DESC"; empty for
// engine order). limit <= 0 means no limit; offset is honored only when
// a limit is set.
func (t *Table[T]) FindMany(ctx context.Context, f *Filter, orderBy string, limit, offset int) ([]T, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", t.columnList(), t.m.Table)

	clause, args := f.clause()
	sb.WriteString(clause)

	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, offset)
		}
	}

	rows, err := t.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.m.Table, err)
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		v, err := t.m.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.m.Table, err)
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// Count returns the number of rows matching the filter.
func (t *Table[T]) Count(ctx context.Context, f *Filter) (int, error) {
	clause, args := f.clause()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.m.Table, clause)

	var n int
	if err := t.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.m.Table, err)
	}
	return n, nil
}

// Insert writes a new row from the field map. Columns are emitted in the
// mapping's fixed order; keys not present in the mapping are rejected.
// Returns the identifier from the field map when one was supplied,
// otherwise the engine-generated rowid. Fails if neither is available.
func (t *Table[T]) Insert(ctx context.Context, fields map[string]any) (string, error) {
	for k := range fields {
		if !t.hasColumn(k) {
			return "", fmt.Errorf("inserting into %s: unknown column %q", t.m.Table, k)
		}
	}

	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, c := range t.m.Columns {
		v, ok := fields[c]
		if !ok {
			continue
		}
		cols = append(cols, c)
		args = append(args, v)
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("inserting into %s: no fields", t.m.Table)
	}

	placeholders := strings.TrimPrefix(strings.Repeat(", ?", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.m.Table, strings.Join(cols, ", "), placeholders)

	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", t.m.Table, err)
	}

	if id, ok := fields[t.m.Columns[0]].(string); ok && id != "" {
		return id, nil
	}
	if rowid, err := res.LastInsertId(); err == nil && rowid > 0 {
		return strconv.FormatInt(rowid, 10), nil
	}
	return "", fmt.Errorf("inserting into %s: no identifier supplied or generated", t.m.Table)
}

// UpdateByID sets the given fields on the row with the given primary
// key. Returns true when a row was updated; a missing id is reported as
// false, not as an error.
func (t *Table[T]) UpdateByID(ctx context.Context, id string, fields map[string]any) (bool, error) {
	for k := range fields {
		if !t.hasColumn(k) {
			return false, fmt.Errorf("updating %s: unknown column %q", t.m.Table, k)
		}
	}
	if len(fields) == 0 {
		return false, fmt.Errorf("updating %s: no fields", t.m.Table)
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, c := range t.m.Columns {
		v, ok := fields[c]
		if !ok {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.m.Table, strings.Join(sets, ", "), t.m.Columns[0])
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", t.m.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteMany removes every row matching the filter and reports how
// many were removed. An empty filter deletes the whole table.
func (t *Table[T]) DeleteMany(ctx context.Context, f *Filter) (int, error) {
	clause, args := f.clause()
	query := fmt.Sprintf("DELETE FROM %s%s", t.m.Table, clause)
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", t.m.Table, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteByID removes the row with the given primary key. Returns true
// when a row was removed.
func (t *Table[T]) DeleteByID(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.m.Table, t.m.Columns[0])
	res, err := t.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", t.m.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Filter accumulates predicate/parameter pairs so call sites never
// assemble raw WHERE fragments. Column names passed to its builders must
// come from static code.
type Filter struct {
	conds []string
	args  []any
}

// Where starts an empty filter (matches everything).
func Where() *Filter {
	return &Filter{}
}

// Eq adds a "col = ?" predicate.
func (f *Filter) Eq(col string, v any) *Filter {
	f.conds = append(f.conds, col+" = ?")
	f.args = append(f.args, v)
	return f
}

// Lte adds a "col <= ?" predicate.
func (f *Filter) Lte(col string, v any) *Filter {
	f.conds = append(f.conds, col+" <= ?")
	f.args = append(f.args, v)
	return f
}

// Gt adds a "col > ?" predicate.
func (f *Filter) Gt(col string, v any) *Filter {
	f.conds = append(f.conds, col+" > ?")
	f.args = append(f.args, v)
	return f
}

// clause renders " WHERE ..." (leading space) plus bind args, or ""
// when the filter is empty or nil.
func (f *Filter) clause() (string, []any) {
	if f == nil || len(f.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(f.conds, " AND "), f.args
}
