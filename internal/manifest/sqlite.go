package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pitlake/pitlake/internal/errors"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore reads manifests from the manifest.db maintained by the
// sync pipeline. It opens the database read-only: this component never
// writes manifest rows.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	mu       sync.Mutex
	loadStmt *sql.Stmt
}

// NewSQLiteStore opens a read-only connection pool to the manifest
// database. The busy timeout covers the sync pipeline holding a brief
// write lock during a publish.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to ping database: %w", err)
	}

	stmt, err := db.Prepare(`SELECT version, file_paths FROM manifests WHERE dataset = ?`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare load statement: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, loadStmt: stmt}, nil
}

// Load returns a copy of the manifest row for the dataset.
func (s *SQLiteStore) Load(ctx context.Context, dataset string) (*Manifest, error) {
	var version uint64
	var pathsJSON string

	err := s.loadStmt.QueryRowContext(ctx, dataset).Scan(&version, &pathsJSON)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataNotFound(fmt.Sprintf("no manifest for dataset %q", dataset))
	}
	if err != nil {
		return nil, errors.NewInternalError(
			fmt.Sprintf("failed to load manifest for dataset %q", dataset), err)
	}

	var paths []string
	if err := json.Unmarshal([]byte(pathsJSON), &paths); err != nil {
		return nil, errors.NewInternalError(
			fmt.Sprintf("corrupt file_paths for dataset %q", dataset), err)
	}

	return &Manifest{Dataset: dataset, Version: version, FilePaths: paths}, nil
}

// Close closes the manifest database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadStmt != nil {
		s.loadStmt.Close()
		s.loadStmt = nil
	}
	return s.db.Close()
}
