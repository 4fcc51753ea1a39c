package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// kvRecord is the GORM model behind SQLiteKV.
type kvRecord struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (kvRecord) TableName() string { return "cache_entries" }

// SQLiteKV is the embedded persisted cache tier, backed by SQLite through
// the pure-Go driver. It is the default KV when no Redis is configured.
type SQLiteKV struct {
	// Now is the clock used for expiry decisions. Defaults to time.Now;
	// replace only before first use.
	Now func() time.Time

	db *gorm.DB
}

var _ KV = (*SQLiteKV)(nil)

// OpenSQLiteKV opens (or creates) the cache database, applies PRAGMAs,
// migrates the schema, and attaches query tracing.
func OpenSQLiteKV(path string) (*SQLiteKV, error) {
	// Fail early if the parent directory does not exist (instead of a
	// cryptic sqlite "out of memory (14)" on some platforms).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("attach tracing: %w", err)
	}
	if err := db.AutoMigrate(&kvRecord{}); err != nil {
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}
	return &SQLiteKV{Now: time.Now, db: db}, nil
}

// Ping implements KV.
func (s *SQLiteKV) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Get implements KV. An expired row is a miss and is deleted opportunistically.
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec kvRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if !s.Now().Before(rec.ExpiresAt) {
		s.db.WithContext(ctx).Where("key = ?", key).Delete(&kvRecord{})
		return nil, false, nil
	}
	return rec.Value, true, nil
}

// Set implements KV via upsert.
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.Now()
	rec := kvRecord{
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (s *SQLiteKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&kvRecord{}).Error
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePrefix implements KV. Keys never contain SQL LIKE wildcards, so the
// prefix can be matched directly.
func (s *SQLiteKV) DeletePrefix(ctx context.Context, prefix string) error {
	err := s.db.WithContext(ctx).Where("key LIKE ?", prefix+"%").Delete(&kvRecord{}).Error
	if err != nil {
		return fmt.Errorf("cache delete prefix %q: %w", prefix, err)
	}
	return nil
}

// PurgeExpired implements KV.
func (s *SQLiteKV) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&kvRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("cache purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close implements KV.
func (s *SQLiteKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
