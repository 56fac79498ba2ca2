package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OutputRow represents a row in the outputs table.
type OutputRow struct {
	Destination string    `json:"destination"`
	Source      string    `json:"source"`
	Checksum    string    `json:"checksum"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lookup returns the ledger row for destination, or nil when none exists.
func (db *DB) Lookup(destination string) (*OutputRow, error) {
	var row OutputRow
	err := db.conn.QueryRow(
		`SELECT destination, source, checksum, updated_at FROM outputs WHERE destination = ?`,
		destination,
	).Scan(&row.Destination, &row.Source, &row.Checksum, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: lookup %s: %w", destination, err)
	}
	return &row, nil
}

// Record inserts or replaces the ledger row for row.Destination.
func (db *DB) Record(row OutputRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO outputs (destination, source, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(destination) DO UPDATE SET
			source     = excluded.source,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, row.Destination, row.Source, row.Checksum, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: record %s: %w", row.Destination, err)
	}
	return nil
}

// BySource returns every destination produced from source.
func (db *DB) BySource(source string) ([]OutputRow, error) {
	rows, err := db.conn.Query(
		`SELECT destination, source, checksum, updated_at FROM outputs WHERE source = ? ORDER BY destination`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("index: by source: %w", err)
	}
	defer rows.Close()

	var out []OutputRow
	for rows.Next() {
		var r OutputRow
		if err := rows.Scan(&r.Destination, &r.Source, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of recorded destinations.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM outputs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// All returns every ledger row ordered by destination.
func (db *DB) All() ([]OutputRow, error) {
	rows, err := db.conn.Query(
		`SELECT destination, source, checksum, updated_at FROM outputs ORDER BY destination`,
	)
	if err != nil {
		return nil, fmt.Errorf("index: all: %w", err)
	}
	defer rows.Close()

	var out []OutputRow
	for rows.Next() {
		var r OutputRow
		if err := rows.Scan(&r.Destination, &r.Source, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the row for destination.
func (db *DB) Delete(destination string) error {
	if _, err := db.conn.Exec(`DELETE FROM outputs WHERE destination = ?`, destination); err != nil {
		return fmt.Errorf("index: delete: %w", err)
	}
	return nil
}
