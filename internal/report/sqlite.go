package report

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE files (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE
);
CREATE TABLE lines (
	file_id INTEGER NOT NULL REFERENCES files(id),
	line_number INTEGER NOT NULL,
	covered INTEGER NOT NULL,
	PRIMARY KEY (file_id, line_number)
);
`

// writeSQLite recreates the database at path and stores r in it.
func writeSQLite(path string, r *Report) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove old database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('version', ?)`, fmt.Sprint(r.Version)); err != nil {
		return err
	}

	fileStmt, err := tx.Prepare(`INSERT INTO files (id, path) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer fileStmt.Close()

	lineStmt, err := tx.Prepare(`INSERT INTO lines (file_id, line_number, covered) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lineStmt.Close()

	for i, f := range r.Files {
		id := i + 1
		if _, err := fileStmt.Exec(id, f.Path); err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.Path, err)
		}
		for _, l := range f.Lines {
			covered := 0
			if l.Covered {
				covered = 1
			}
			if _, err := lineStmt.Exec(id, l.Number, covered); err != nil {
				return fmt.Errorf("failed to insert line %s:%d: %w", f.Path, l.Number, err)
			}
		}
	}

	return tx.Commit()
}

// ReadSQLite loads a report written in the SQLite format.
func ReadSQLite(path string) (*Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open report %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report %s: %w", path, err)
	}
	defer db.Close()

	r := New(nil)
	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to read report version: %w", err)
	}
	if _, err := fmt.Sscan(version, &r.Version); err != nil {
		return nil, fmt.Errorf("invalid report version %q: %w", version, err)
	}

	rows, err := db.Query(`
		SELECT f.path, l.line_number, l.covered
		FROM files f JOIN lines l ON l.file_id = f.id
		ORDER BY f.id, l.line_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path    string
			line    int
			covered int
		)
		if err := rows.Scan(&path, &line, &covered); err != nil {
			return nil, err
		}
		n := len(r.Files)
		if n == 0 || r.Files[n-1].Path != path {
			r.Files = append(r.Files, File{Path: path})
			n++
		}
		r.Files[n-1].Lines = append(r.Files[n-1].Lines, Line{Number: line, Covered: covered != 0})
	}
	return r, rows.Err()
}
