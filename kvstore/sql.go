package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

type kvRow struct {
	K []byte `gorm:"column:k;primaryKey"`
	V []byte `gorm:"column:v"`
}

func (kvRow) TableName() string {
	return "avl_kv"
}

// SQLStore keeps key/value rows in a single SQL table. Keys are BLOBs, which SQLite compares bytewise.
type SQLStore struct {
	db *gorm.DB
}

var _ KVStore = (*SQLStore)(nil)
var _ Batcher = (*SQLStore)(nil)

// OpenSQLite opens (or creates) a sqlite database file and migrates the key/value table. Queries are traced through the global otel tracer provider.
func OpenSQLite(path string) (*SQLStore, error) {
	if !strings.Contains(path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection: in-memory databases are per-connection, and sqlite serializes writers anyway
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, err
	}
	if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}
	return NewSQLStore(db)
}

// NewSQLStore uses an existing gorm handle, migrating the key/value table if needed.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&kvRow{}); err != nil {
		return nil, fmt.Errorf("migrating kv table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var row kvRow
	err := s.db.WithContext(ctx).Where("k = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.V == nil {
		return []byte{}, nil
	}
	return row.V, nil
}

func (s *SQLStore) Has(ctx context.Context, key []byte) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&kvRow{}).Where("k = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func upsert(db *gorm.DB, key, value []byte) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&kvRow{K: copyBytes(key), V: copyBytes(value)}).Error
}

func (s *SQLStore) Set(ctx context.Context, key, value []byte) error {
	return upsert(s.db.WithContext(ctx), key, value)
}

func (s *SQLStore) Delete(ctx context.Context, key []byte) error {
	return s.db.WithContext(ctx).Where("k = ?", key).Delete(&kvRow{}).Error
}

// rows fetched per query while iterating
const sqlIterPageSize = 512

// Iterate reads the range a page at a time. Each page is fully read and its rows closed before fn sees any of it, so fn may use the store.
func (s *SQLStore) Iterate(ctx context.Context, start, end []byte, reverse bool, fn IterFunc) error {
	lo, hi := start, end
	for {
		page, err := s.scanPage(ctx, lo, hi, reverse)
		if err != nil {
			return err
		}
		for _, row := range page {
			if err := fn(row.K, row.V); err != nil {
				if err == ErrStop {
					return nil
				}
				return err
			}
		}
		if len(page) < sqlIterPageSize {
			return nil
		}

		last := page[len(page)-1].K
		if reverse {
			hi = last
		} else {
			// smallest key sorting after last
			lo = append(copyBytes(last), 0)
		}
	}
}

func (s *SQLStore) scanPage(ctx context.Context, lo, hi []byte, reverse bool) ([]kvRow, error) {
	q := s.db.WithContext(ctx).Model(&kvRow{})
	if lo != nil {
		q = q.Where("k >= ?", lo)
	}
	if hi != nil {
		q = q.Where("k < ?", hi)
	}
	if reverse {
		q = q.Order("k desc")
	} else {
		q = q.Order("k asc")
	}

	var page []kvRow
	if err := q.Limit(sqlIterPageSize).Find(&page).Error; err != nil {
		return nil, err
	}
	return page, nil
}

func (s *SQLStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

type sqlBatch struct {
	s    *SQLStore
	ops  []memOp
	done bool
}

func (s *SQLStore) NewBatch(_ context.Context) (Batch, error) {
	return &sqlBatch{s: s}, nil
}

func (b *sqlBatch) Set(_ context.Context, key, value []byte) error {
	if b.done {
		return ErrClosed
	}
	b.ops = append(b.ops, memOp{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *sqlBatch) Delete(_ context.Context, key []byte) error {
	if b.done {
		return ErrClosed
	}
	b.ops = append(b.ops, memOp{key: copyBytes(key), delete: true})
	return nil
}

// Commit applies all buffered writes in one transaction.
func (b *sqlBatch) Commit(ctx context.Context) error {
	if b.done {
		return ErrClosed
	}
	b.done = true
	return b.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range b.ops {
			if op.delete {
				if err := tx.Where("k = ?", op.key).Delete(&kvRow{}).Error; err != nil {
					return err
				}
				continue
			}
			if err := upsert(tx, op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *sqlBatch) Discard() {
	b.done = true
	b.ops = nil
}
