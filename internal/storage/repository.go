package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a unique index,
	// including the one-open-incident-per-cause index.
	ErrDuplicate = errors.New("duplicate record")
)

// Entity is implemented by every persisted model.
type Entity interface {
	TableName() string
}

// Repository provides generic CRUD operations for any entity type.
type Repository[T Entity] struct {
	orm       *ORM
	tableName string
}

// NewRepository creates a new repository for type T.
func NewRepository[T Entity](orm *ORM) *Repository[T] {
	var zero T
	return &Repository[T]{
		orm:       orm,
		tableName: zero.TableName(),
	}
}

// Create inserts entity and fills its auto-increment ID.
// Zero CreatedAt/UpdatedAt fields are stamped with the current time.
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	v := reflect.ValueOf(entity).Elem()
	now := time.Now().UTC()

	var columns, placeholders []string
	var values []any
	var idField reflect.Value

	for _, col := range columnsOf(v.Type()) {
		field := v.Field(col.index)
		if col.autoIncrement {
			idField = field
			continue
		}
		if (col.name == "created_at" || col.name == "updated_at") && field.Type() == timeType && field.Interface().(time.Time).IsZero() {
			field.Set(reflect.ValueOf(now))
		}
		columns = append(columns, col.name)
		placeholders = append(placeholders, "?")
		values = append(values, driverValue(field))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		r.tableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	result, err := r.orm.q.ExecContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", r.tableName, mapError(err))
	}

	if idField.IsValid() {
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get %s ID: %w", r.tableName, err)
		}
		idField.SetInt(id)
	}
	return nil
}

// GetByID retrieves an entity by its ID.
func (r *Repository[T]) GetByID(ctx context.Context, id int64) (*T, error) {
	entity, err := NewSelectBuilder[T](r.orm).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// Where returns all entities matching condition, ordered by id.
func (r *Repository[T]) Where(ctx context.Context, condition string, args ...any) ([]T, error) {
	return NewSelectBuilder[T](r.orm).
		Where(condition, args...).
		OrderBy("id ASC").
		Execute(ctx)
}

// First returns the first entity matching the condition.
func (r *Repository[T]) First(ctx context.Context, condition string, args ...any) (*T, error) {
	entity, err := NewSelectBuilder[T](r.orm).
		Where(condition, args...).
		OrderBy("id ASC").
		First(ctx)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// Count returns the number of entities matching the condition.
func (r *Repository[T]) Count(ctx context.Context, condition string, args ...any) (int64, error) {
	builder := NewSelectBuilder[T](r.orm)
	if condition != "" {
		builder = builder.Where(condition, args...)
	}
	return builder.Count(ctx)
}

// UpdateColumns sets the given columns on rows matching condition and
// returns the number of rows changed.
func (r *Repository[T]) UpdateColumns(ctx context.Context, set map[string]any, condition string, args ...any) (int64, error) {
	if len(set) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	setParts := make([]string, len(names))
	values := make([]any, 0, len(names)+len(args))
	for i, name := range names {
		setParts[i] = name + " = ?"
		values = append(values, normalizeValue(set[name]))
	}
	values = append(values, args...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", r.tableName, strings.Join(setParts, ", "), condition)

	result, err := r.orm.q.ExecContext(ctx, query, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", r.tableName, mapError(err))
	}
	return result.RowsAffected()
}

// Delete deletes an entity by ID.
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.tableName)
	if _, err := r.orm.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.tableName, err)
	}
	return nil
}

// driverValue unwraps a struct field for the sqlite driver, storing times in UTC
// so that textual comparisons in WHERE clauses stay ordered.
func driverValue(field reflect.Value) any {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil
		}
		return driverValue(field.Elem())
	}
	return normalizeValue(field.Interface())
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC()
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	}
	return value
}

// mapError translates driver constraint errors into storage sentinels.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
