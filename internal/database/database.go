package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whisperjournal/internal/models"
)

// Connect opens the embedded sqlite database with WAL mode enabled.
// A busy timeout covers the worker and HTTP handlers sharing the file.
func Connect(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// Single-writer semantics are sufficient; one pooled connection avoids
	// SQLITE_BUSY churn between the worker and the handler pool.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates the schema and the full-text index with its sync triggers.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Entry{}, &models.EntryLink{}, &models.Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// FTS5 external-content table over the searchable entry columns, kept in
	// lockstep by triggers so every transcript or section write is indexed.
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			raw_transcript, edited_transcript, generated_sections,
			content='entries', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, raw_transcript, edited_transcript, generated_sections)
			VALUES (new.rowid, new.raw_transcript, new.edited_transcript, new.generated_sections);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, raw_transcript, edited_transcript, generated_sections)
			VALUES ('delete', old.rowid, old.raw_transcript, old.edited_transcript, old.generated_sections);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_fts_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, raw_transcript, edited_transcript, generated_sections)
			VALUES ('delete', old.rowid, old.raw_transcript, old.edited_transcript, old.generated_sections);
			INSERT INTO entries_fts(rowid, raw_transcript, edited_transcript, generated_sections)
			VALUES (new.rowid, new.raw_transcript, new.edited_transcript, new.generated_sections);
		END`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create text index: %w", err)
		}
	}
	return nil
}
