package sessiondock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresRecordsTableName = "sessiondock_records"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore is the document-database backend: one row per record, the
// identifier as primary key and an explicit last_modified column so its
// timestamp semantics match the filesystem backend's mtime.
type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresRecordsTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				identifier TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				last_modified TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) Save(identifier string, data []byte) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (identifier, payload, last_modified)
		VALUES ($1, $2, NOW())
		ON CONFLICT (identifier)
		DO UPDATE SET payload = EXCLUDED.payload, last_modified = NOW()`, postgresQuoteIdentifier(s.tableName))
	_, err := s.db.ExecContext(ctx, query, identifier, string(data))
	return err
}

func (s *PostgresStore) List() ([]StoredBlob, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT identifier, payload, last_modified FROM %s", postgresQuoteIdentifier(s.tableName))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := make([]StoredBlob, 0)
	for rows.Next() {
		var identifier, payload string
		var lastModified time.Time
		if err := rows.Scan(&identifier, &payload, &lastModified); err != nil {
			return nil, err
		}
		blobs = append(blobs, StoredBlob{
			Identifier:   identifier,
			Bytes:        []byte(payload),
			LastModified: lastModified,
		})
	}
	return blobs, rows.Err()
}

func (s *PostgresStore) Get(identifier string) (StoredBlob, error) {
	if err := s.ensureReady(); err != nil {
		return StoredBlob{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT payload, last_modified FROM %s WHERE identifier = $1", postgresQuoteIdentifier(s.tableName))
	var payload string
	var lastModified time.Time
	err := s.db.QueryRowContext(ctx, query, identifier).Scan(&payload, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredBlob{}, ErrNotFound
	}
	if err != nil {
		return StoredBlob{}, err
	}
	return StoredBlob{Identifier: identifier, Bytes: []byte(payload), LastModified: lastModified}, nil
}

func (s *PostgresStore) Exists(identifier string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE identifier = $1)", postgresQuoteIdentifier(s.tableName))
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, identifier).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) Rename(oldIdentifier, newIdentifier string) error {
	if strings.TrimSpace(newIdentifier) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existsQuery := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE identifier = $1)", postgresQuoteIdentifier(s.tableName))
	var taken bool
	if err := tx.QueryRowContext(ctx, existsQuery, newIdentifier).Scan(&taken); err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}
	updateQuery := fmt.Sprintf("UPDATE %s SET identifier = $2 WHERE identifier = $1", postgresQuoteIdentifier(s.tableName))
	result, err := tx.ExecContext(ctx, updateQuery, oldIdentifier, newIdentifier)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *PostgresStore) UpdateBytes(identifier string, data []byte) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("UPDATE %s SET payload = $2, last_modified = NOW() WHERE identifier = $1", postgresQuoteIdentifier(s.tableName))
	result, err := s.db.ExecContext(ctx, query, identifier, string(data))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(identifier string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE identifier = $1", postgresQuoteIdentifier(s.tableName))
	result, err := s.db.ExecContext(ctx, query, identifier)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
