package storage

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ORM is the lightweight mapping layer over database/sql.
//
// It builds SELECT queries from struct tags and scans rows back into
// the same structs. An ORM bound to a transaction is obtained via InTx.
type ORM struct {
	db *sql.DB
	q  querier
}

// NewORM wraps an open database handle.
func NewORM(db *sql.DB) *ORM {
	return &ORM{db: db, q: db}
}

// InTx runs fn against an ORM bound to a single transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
func (orm *ORM) InTx(ctx context.Context, fn func(tx *ORM) error) error {
	tx, err := orm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&ORM{db: orm.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SelectBuilder provides a fluent interface for building SELECT queries.
type SelectBuilder[T Entity] struct {
	orm     *ORM
	where   []whereClause
	orderBy string
	limit   int
	offset  int
}

type whereClause struct {
	condition string
	args      []any
}

// NewSelectBuilder creates a SELECT query builder over T's table.
func NewSelectBuilder[T Entity](orm *ORM) *SelectBuilder[T] {
	return &SelectBuilder[T]{orm: orm}
}

// Where adds a condition. Multiple conditions are combined with AND.
// Use ? placeholders for parameters.
func (sb *SelectBuilder[T]) Where(condition string, args ...any) *SelectBuilder[T] {
	sb.where = append(sb.where, whereClause{condition: condition, args: args})
	return sb
}

// OrderBy sets the ORDER BY clause for the query.
func (sb *SelectBuilder[T]) OrderBy(orderBy string) *SelectBuilder[T] {
	sb.orderBy = orderBy
	return sb
}

// Limit sets the maximum number of rows to return.
func (sb *SelectBuilder[T]) Limit(limit int) *SelectBuilder[T] {
	sb.limit = limit
	return sb
}

// Offset sets the number of rows to skip before returning results.
func (sb *SelectBuilder[T]) Offset(offset int) *SelectBuilder[T] {
	sb.offset = offset
	return sb
}

// Execute runs the built query and returns the results.
func (sb *SelectBuilder[T]) Execute(ctx context.Context) ([]T, error) {
	query, args := sb.build("SELECT *")

	log.Debug().
		Str("query", query).
		Interface("args", args).
		Msg("Executing SELECT query")

	rows, err := sb.orm.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	return scanRows[T](rows)
}

// First executes the query and returns only the first result.
// Returns ErrNotFound if no rows match.
func (sb *SelectBuilder[T]) First(ctx context.Context) (T, error) {
	sb.limit = 1
	results, err := sb.Execute(ctx)

	var zero T
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, ErrNotFound
	}
	return results[0], nil
}

// Count executes a COUNT query over the same conditions.
func (sb *SelectBuilder[T]) Count(ctx context.Context) (int64, error) {
	query, args := sb.build("SELECT COUNT(*)")

	var count int64
	if err := sb.orm.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

func (sb *SelectBuilder[T]) build(selectClause string) (string, []any) {
	var zero T
	var query strings.Builder
	var args []any

	query.WriteString(selectClause)
	query.WriteString(" FROM ")
	query.WriteString(zero.TableName())

	if len(sb.where) > 0 {
		conditions := make([]string, len(sb.where))
		for i, w := range sb.where {
			conditions[i] = "(" + w.condition + ")"
			args = append(args, w.args...)
		}
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}

	// Pagination and ordering only make sense for row selects.
	if selectClause != "SELECT COUNT(*)" {
		if sb.orderBy != "" {
			query.WriteString(" ORDER BY ")
			query.WriteString(sb.orderBy)
		}
		if sb.limit > 0 {
			fmt.Fprintf(&query, " LIMIT %d", sb.limit)
		}
		if sb.offset > 0 {
			fmt.Fprintf(&query, " OFFSET %d", sb.offset)
		}
	}

	return query.String(), args
}

// columnInfo describes one tagged struct field.
type columnInfo struct {
	name          string
	index         int
	autoIncrement bool
}

var columnCache sync.Map // reflect.Type -> []columnInfo

// columnsOf returns the tagged columns of a struct type, cached per type.
func columnsOf(t reflect.Type) []columnInfo {
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]columnInfo)
	}

	var columns []columnInfo
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		col := columnInfo{name: parts[0], index: i}
		for _, opt := range parts[1:] {
			if opt == "auto_increment" {
				col.autoIncrement = true
			}
		}
		columns = append(columns, col)
	}

	columnCache.Store(t, columns)
	return columns
}

func scanRows[T Entity](rows *sql.Rows) ([]T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var zero T
	fieldIndex := make(map[string]int)
	for _, col := range columnsOf(reflect.TypeOf(zero)) {
		fieldIndex[col.name] = col.index
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	var results []T
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var item T
		v := reflect.ValueOf(&item).Elem()
		for i, column := range columns {
			idx, ok := fieldIndex[column]
			if !ok {
				continue
			}
			if err := setFieldValue(v.Field(idx), values[i]); err != nil {
				return nil, fmt.Errorf("failed to set field %s: %w", column, err)
			}
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

var timeType = reflect.TypeOf(time.Time{})

// setFieldValue assigns a driver value to a struct field.
//
// NULL into a pointer field yields nil; NULL into a value field leaves the
// zero value. Named string and integer types (Outcome, Cause, ...) are
// handled through their kind.
func setFieldValue(field reflect.Value, value any) error {
	if field.Kind() == reflect.Ptr {
		if value == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if value == nil {
		return nil
	}

	if field.Type() == timeType {
		t, err := parseTime(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case string:
			field.SetString(v)
		case []byte:
			field.SetString(string(v))
		default:
			return fmt.Errorf("cannot assign %T to string field", value)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case float64:
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("cannot assign %T to int field", value)
		}

	case reflect.Float32, reflect.Float64:
		switch v := value.(type) {
		case float64:
			field.SetFloat(v)
		case int64:
			field.SetFloat(float64(v))
		default:
			return fmt.Errorf("cannot assign %T to float field", value)
		}

	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			field.SetBool(v)
		case int64:
			field.SetBool(v != 0)
		default:
			return fmt.Errorf("cannot assign %T to bool field", value)
		}

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}

// parseTime accepts the driver's time.Time as well as the text layouts
// sqlite stores for DATETIME columns.
func parseTime(value any) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("cannot assign %T to time.Time field", value)
	}

	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %q", s)
}
