// Package sqlite provides the single-file SQLite record store, accessed through gorm.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable matches the table name used by morph.io-style scrapers.
const DefaultTable = "data"

// Config controls where the database lives.
type Config struct {
	Path  string
	Table string
}

// recordRow keeps date_scraped as ISO text so lexical comparison orders by day.
type recordRow struct {
	CouncilReference string `gorm:"column:council_reference;primaryKey"`
	Address          string `gorm:"column:address;not null"`
	Description      string `gorm:"column:description;not null"`
	InfoURL          string `gorm:"column:info_url"`
	DateScraped      string `gorm:"column:date_scraped;index:idx_date_scraped"`
}

// RecordStore implements da.RecordStore on SQLite.
type RecordStore struct {
	db    *gorm.DB
	table string
}

// Open opens (or creates) the database file and migrates the records table.
func Open(cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.sqlite.path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := NewWithDB(db, cfg.Table)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	logger.Debug("opened sqlite record store", zap.String("path", cfg.Path), zap.String("table", store.table))
	return store, nil
}

// NewWithDB wraps an existing gorm handle and migrates the records table.
func NewWithDB(db *gorm.DB, table string) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := db.Table(table).AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return &RecordStore{db: db, table: table}, nil
}

// Upsert inserts the record or replaces every non-key column of the existing row.
func (s *RecordStore) Upsert(ctx context.Context, record da.Record) error {
	row := recordRow{
		CouncilReference: record.CouncilReference,
		Address:          record.Address,
		Description:      record.Description,
		InfoURL:          record.InfoURL,
		DateScraped:      da.FormatDate(da.DateOf(record.DateScraped)),
	}
	err := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "council_reference"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "description", "info_url", "date_scraped"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", record.CouncilReference, err)
	}
	return nil
}

// CountOlderThan returns how many rows predate cutoff and the oldest such date.
func (s *RecordStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, time.Time, error) {
	var stats struct {
		Count  int64
		Oldest sql.NullString
	}
	err := s.db.WithContext(ctx).Table(s.table).
		Select("COUNT(*) AS count, MIN(date_scraped) AS oldest").
		Where("date_scraped < ?", da.FormatDate(da.DateOf(cutoff))).
		Scan(&stats).Error
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count stale records: %w", err)
	}
	if stats.Count == 0 || !stats.Oldest.Valid {
		return stats.Count, time.Time{}, nil
	}
	oldest, err := time.Parse(da.DateLayout, stats.Oldest.String)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse oldest date %q: %w", stats.Oldest.String, err)
	}
	return stats.Count, oldest, nil
}

// DeleteOlderThan removes rows scraped before cutoff.
func (s *RecordStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Table(s.table).
		Where("date_scraped < ?", da.FormatDate(da.DateOf(cutoff))).
		Delete(&recordRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete stale records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Compact runs VACUUM to reclaim pages freed by deletes.
func (s *RecordStore) Compact(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Get returns the record stored under ref.
func (s *RecordStore) Get(ctx context.Context, ref string) (da.Record, bool, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Table(s.table).Where("council_reference = ?", ref).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return da.Record{}, false, nil
	}
	if err != nil {
		return da.Record{}, false, fmt.Errorf("get %s: %w", ref, err)
	}
	day, err := time.Parse(da.DateLayout, row.DateScraped)
	if err != nil {
		return da.Record{}, false, fmt.Errorf("parse date_scraped %q: %w", row.DateScraped, err)
	}
	return da.Record{
		CouncilReference: row.CouncilReference,
		Address:          row.Address,
		Description:      row.Description,
		InfoURL:          row.InfoURL,
		DateScraped:      day,
	}, true, nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
