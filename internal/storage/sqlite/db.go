// Package sqlite: хранилище на встроенной SQLite (modernc, без cgo).
// Используется для автономного терминала и в тестах.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Spok95/subgate/internal/storage"
	"github.com/Spok95/subgate/migrations"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = "2006-01-02 15:04:05.000000000" // всегда UTC, фиксированная ширина для сравнения строк
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open открывает базу по пути к файлу.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	// immediate: запись блокируется в начале транзакции, а не при первом UPDATE
	dsn += "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// один писатель: транзакции терминалов идут строго по очереди
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate применяет встроенные миграции goose.
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()

	if err := fn(&tx{tx: t}); err != nil {
		return err
	}
	return t.Commit()
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	return s.InTx(ctx, fn)
}

type tx struct {
	tx *sql.Tx
}

var _ storage.Tx = (*tx)(nil)

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

func fmtDate(t time.Time) string { return t.Format(dateLayout) }

func fmtTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func parseTS(s string) (time.Time, error) {
	return time.ParseInLocation(tsLayout, s, time.UTC)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
