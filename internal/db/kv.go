package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row exists for a scope/name pair.
var ErrNotFound = errors.New("state value not found")

// Get returns the stored value for scope/name.
func Get(d *DB, scope, name string) ([]byte, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}
	var value []byte
	err := d.sql.QueryRow(`SELECT value FROM state WHERE scope = ? AND name = ?`, scope, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select state value: %w", err)
	}
	return value, nil
}

// Put inserts or replaces the value for scope/name.
func Put(d *DB, scope, name string, value []byte) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	_, err := d.sql.Exec(
		`INSERT INTO state (scope, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(scope, name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		scope, name, value,
	)
	if err != nil {
		return fmt.Errorf("upsert state value: %w", err)
	}
	return nil
}

// Delete removes the value for scope/name. Missing rows are not an error.
func Delete(d *DB, scope, name string) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if _, err := d.sql.Exec(`DELETE FROM state WHERE scope = ? AND name = ?`, scope, name); err != nil {
		return fmt.Errorf("delete state value: %w", err)
	}
	return nil
}

// ListNames returns the names stored under scope, ordered.
func ListNames(d *DB, scope string) ([]string, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}
	rows, err := d.sql.Query(`SELECT name FROM state WHERE scope = ? ORDER BY name`, scope)
	if err != nil {
		return nil, fmt.Errorf("select state names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan state name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state names: %w", err)
	}
	return names, nil
}
