// Package sqlite implements a SQLite-backed dao.Keyed store. Entities are
// persisted as JSON documents with the primary key, creation time, unique
// index values and filterable fields mirrored into dedicated columns, so
// that uniqueness is enforced by real UNIQUE constraints and the atomic
// insert-if-absent primitive holds across processes: the losing writer of a
// duplicate key detects the constraint violation and re-reads the winner.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// Open opens (creating when absent) a SQLite database at path with the
// pragmas the control plane relies on.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Store is a generic SQLite implementation of dao.Keyed.
type Store[T any] struct {
	db      *sql.DB
	schema  dao.Schema[T]
	uniques []string // sorted unique index names
}

// New creates a store for the supplied schema and applies its DDL.
func New[T any](db *sql.DB, schema dao.Schema[T]) (*Store[T], error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if schema.Name == "" {
		return nil, fmt.Errorf("schema name is required")
	}
	uniques := make([]string, 0, len(schema.Uniques))
	for name := range schema.Uniques {
		uniques = append(uniques, name)
	}
	sort.Strings(uniques)
	ret := &Store[T]{db: db, schema: schema, uniques: uniques}
	if err := ret.migrate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store[T]) migrate() error {
	columns := []string{
		"id TEXT PRIMARY KEY",
		"body TEXT NOT NULL",
		"created_at INTEGER NOT NULL",
	}
	for _, name := range s.uniques {
		columns = append(columns, fmt.Sprintf("u_%v TEXT", columnName(name)))
	}
	for _, name := range s.schema.FilterFields {
		columns = append(columns, fmt.Sprintf("f_%v TEXT", columnName(name)))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (%v)", s.schema.Name, strings.Join(columns, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create table %v: %w", s.schema.Name, err)
	}
	for _, name := range s.uniques {
		column := "u_" + columnName(name)
		index := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_%v_%v ON %v(%v) WHERE %v IS NOT NULL AND %v != ''",
			s.schema.Name, columnName(name), s.schema.Name, column, column, column)
		if _, err := s.db.Exec(index); err != nil {
			return fmt.Errorf("create index on %v.%v: %w", s.schema.Name, column, err)
		}
	}
	return nil
}

// Save inserts or updates an entity by primary key. A unique index value
// held by a different row rejects the save with dao.ErrAlreadyExists.
func (s *Store[T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return dao.ErrInvalidID
	}
	columns, placeholders, values, updates := s.rowValues(key, v)
	statement := fmt.Sprintf(
		"INSERT INTO %v (%v) VALUES (%v) ON CONFLICT(id) DO UPDATE SET %v",
		s.schema.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	if _, err := s.db.ExecContext(ctx, statement, values...); err != nil {
		if isUniqueViolation(err) {
			return dao.ErrAlreadyExists
		}
		return fmt.Errorf("save %v: %w", s.schema.Name, err)
	}
	return nil
}

// Insert atomically persists v unless its primary key or a unique index
// value is already taken, in which case the winning row is re-read and
// returned with created=false.
func (s *Store[T]) Insert(ctx context.Context, v *T) (*T, bool, error) {
	if v == nil {
		return nil, false, dao.ErrNilEntity
	}
	key := s.schema.Key(v)
	if key == "" {
		return nil, false, dao.ErrInvalidID
	}
	columns, placeholders, values, _ := s.rowValues(key, v)
	statement := fmt.Sprintf("INSERT INTO %v (%v) VALUES (%v)",
		s.schema.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, statement, values...)
	if err == nil {
		return v, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("insert %v: %w", s.schema.Name, err)
	}
	// A concurrent writer won the race; return its row.
	if existing, loadErr := s.Load(ctx, key); loadErr == nil && existing != nil {
		return existing, false, nil
	}
	for _, name := range s.uniques {
		value := s.schema.UniqueValue(name, v)
		if value == "" {
			continue
		}
		existing, loadErr := s.LoadBy(ctx, name, value)
		if loadErr != nil {
			return nil, false, loadErr
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("insert %v: %w", s.schema.Name, err)
}

// Load retrieves an entity by primary key, or nil when absent.
func (s *Store[T]) Load(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, dao.ErrInvalidID
	}
	return s.selectOne(ctx, "id", key)
}

// LoadBy returns the entity holding the given value under the named unique
// index, or nil when absent.
func (s *Store[T]) LoadBy(ctx context.Context, index, key string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	if _, ok := s.schema.Uniques[index]; !ok {
		return nil, nil
	}
	return s.selectOne(ctx, "u_"+columnName(index), key)
}

// Delete removes an entity.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return dao.ErrInvalidID
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %v WHERE id = ?", s.schema.Name), key)
	if err != nil {
		return fmt.Errorf("delete %v: %w", s.schema.Name, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// List returns matching entities ordered by creation time descending.
func (s *Store[T]) List(ctx context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	where, args := s.whereClause(parameters)
	query := fmt.Sprintf("SELECT body FROM %v%v ORDER BY created_at DESC, id DESC", s.schema.Name, where)
	if limit := criteria.Limit(parameters); limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %v: %w", s.schema.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*T
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %v: %w", s.schema.Name, err)
		}
		var entity T
		if err := json.Unmarshal([]byte(body), &entity); err != nil {
			return nil, fmt.Errorf("unmarshal %v: %w", s.schema.Name, err)
		}
		entities = append(entities, &entity)
	}
	return entities, rows.Err()
}

// Count returns the number of entities matching the supplied parameters.
func (s *Store[T]) Count(ctx context.Context, parameters ...*dao.Parameter) (int, error) {
	where, args := s.whereClause(parameters)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %v%v", s.schema.Name, where)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %v: %w", s.schema.Name, err)
	}
	return count, nil
}

func (s *Store[T]) selectOne(ctx context.Context, column, value string) (*T, error) {
	query := fmt.Sprintf("SELECT body FROM %v WHERE %v = ?", s.schema.Name, column)
	var body string
	err := s.db.QueryRowContext(ctx, query, value).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %v by %v: %w", s.schema.Name, column, err)
	}
	var entity T
	if err := json.Unmarshal([]byte(body), &entity); err != nil {
		return nil, fmt.Errorf("unmarshal %v: %w", s.schema.Name, err)
	}
	return &entity, nil
}

func (s *Store[T]) rowValues(key string, v *T) (columns, placeholders []string, values []interface{}, updates []string) {
	body, _ := json.Marshal(v)
	columns = []string{"id", "body", "created_at"}
	values = []interface{}{key, string(body), s.schema.CreatedAt(v).UTC().UnixMilli()}
	for _, name := range s.uniques {
		columns = append(columns, "u_"+columnName(name))
		values = append(values, s.schema.UniqueValue(name, v))
	}
	fields := s.schema.FieldValues(v)
	for _, name := range s.schema.FilterFields {
		columns = append(columns, "f_"+columnName(name))
		values = append(values, fields[name])
	}
	placeholders = make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	updates = make([]string, 0, len(columns)-1)
	for _, column := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%v = excluded.%v", column, column))
	}
	return columns, placeholders, values, updates
}

func (s *Store[T]) whereClause(parameters []*dao.Parameter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	filterable := make(map[string]bool, len(s.schema.FilterFields))
	for _, name := range s.schema.FilterFields {
		filterable[name] = true
	}
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name == dao.LimitParameter || !filterable[parameter.Name] {
			continue
		}
		column := "f_" + columnName(parameter.Name)
		switch actual := parameter.Value.(type) {
		case string:
			clauses = append(clauses, fmt.Sprintf("%v = ?", column))
			args = append(args, actual)
		case []string:
			placeholders := make([]string, len(actual))
			for i, value := range actual {
				placeholders[i] = "?"
				args = append(args, value)
			}
			clauses = append(clauses, fmt.Sprintf("%v IN (%v)", column, strings.Join(placeholders, ", ")))
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func columnName(name string) string {
	var builder strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				builder.WriteByte('_')
			}
			builder.WriteRune(r - 'A' + 'a')
		}
	}
	return builder.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

var _ dao.Keyed[any] = (*Store[any])(nil)
