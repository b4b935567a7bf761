package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/go-authkit-session/securestore"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS secure_items (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS secure_meta (
		name  TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
}

var _ securestore.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps sealed records in a single embedded database file.
type SQLiteStore struct {
	db     *sqlx.DB
	sealer *securestore.Sealer
	now    func() time.Time
}

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path, passphrase string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("[sqlitestore.Open] path is required")
	}

	db, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("[sqlitestore.Open] sqlx.Open: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("[sqlitestore.Open] schema: %w", err)
		}
	}

	salt, err := loadOrCreateSalt(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("[sqlitestore.Open] salt: %w", err)
	}

	sealer, err := securestore.NewPassphraseSealer(passphrase, salt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("[sqlitestore.Open] %w", err)
	}

	return &SQLiteStore{db: db, sealer: sealer, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := securestore.ValidateKey(key); err != nil {
		return nil, false, err
	}

	var sealed []byte
	err := s.db.GetContext(ctx, &sealed, `SELECT value FROM secure_items WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[SQLiteStore.Get] select: %w", err)
	}

	value, err := s.sealer.Open(key, sealed)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	sealed, err := s.sealer.Seal(key, value)
	if err != nil {
		return fmt.Errorf("[SQLiteStore.Set] seal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secure_items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("[SQLiteStore.Set] upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM secure_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("[SQLiteStore.Delete] delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func loadOrCreateSalt(ctx context.Context, db *sqlx.DB) ([]byte, error) {
	salt, err := securestore.NewSalt()
	if err != nil {
		return nil, err
	}
	// Keeps the existing salt when one is already stored
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO secure_meta (name, value) VALUES ('salt', ?)`, salt); err != nil {
		return nil, err
	}

	var stored []byte
	if err := db.GetContext(ctx, &stored, `SELECT value FROM secure_meta WHERE name = 'salt'`); err != nil {
		return nil, err
	}
	return stored, nil
}
