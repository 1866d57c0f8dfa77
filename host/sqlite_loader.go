package host

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/sqlite"
)

const modulesSchema = `CREATE TABLE IF NOT EXISTS modules (
	name     TEXT PRIMARY KEY,
	source   BLOB NOT NULL,
	encoding TEXT NOT NULL DEFAULT ''
)`

// SQLiteLoader serves modules stored in the modules table of a SQLite
// database. Rows with encoding "br" hold brotli-compressed source.
type SQLiteLoader struct {
	DB *sql.DB
}

// OpenSQLiteLoader opens (or creates) the module database at path.
func OpenSQLiteLoader(path string) (*SQLiteLoader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening module database %q: %w", path, err)
	}
	if _, err := db.Exec(modulesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating modules table: %w", err)
	}
	return &SQLiteLoader{DB: db}, nil
}

// Put stores src under name, compressing it when compress is set.
func (s *SQLiteLoader) Put(name, src string, compress bool) error {
	data, encoding := []byte(src), ""
	if compress {
		b, err := compressBrotli(src)
		if err != nil {
			return fmt.Errorf("compressing module %s: %w", name, err)
		}
		data, encoding = b, "br"
	}
	_, err := s.DB.Exec(`INSERT INTO modules (name, source, encoding) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET source = excluded.source, encoding = excluded.encoding`,
		name, data, encoding)
	if err != nil {
		return fmt.Errorf("storing module %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteLoader) Load(specifier string) (string, error) {
	var data []byte
	var encoding string
	err := s.DB.QueryRow(`SELECT source, encoding FROM modules WHERE name = ?`, specifier).Scan(&data, &encoding)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(specifier)
	}
	if err != nil {
		return "", fmt.Errorf("querying module %s: %w", specifier, err)
	}
	switch encoding {
	case "":
		return string(data), nil
	case "br":
		src, err := decompressBrotli(data)
		if err != nil {
			return "", fmt.Errorf("decompressing module %s: %w", specifier, err)
		}
		return src, nil
	default:
		return "", fmt.Errorf("module %s: unknown encoding %q", specifier, encoding)
	}
}

// Close closes the underlying database connection.
func (s *SQLiteLoader) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
