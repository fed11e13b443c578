package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/boardstream/relay/internal/board"
)

const migrationNormalizeWatchModeLabels = "2026-05-12_normalize_watch_mode_labels"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeWatchModeLabels, apply: normalizeWatchModeLabels},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeWatchModeLabels rewrites the lowercase watch-mode labels an older
// importer produced into the canonical mixed-case labels the policy engine
// matches against.
func normalizeWatchModeLabels(db *gorm.DB) error {
	replacements := map[string]board.WatchMode{
		"watching":     board.WatchModeWatching,
		"not watching": board.WatchModeNotWatching,
		"ignoring":     board.WatchModeIgnoring,
	}
	for legacy, canonical := range replacements {
		err := db.Model(&board.Member{}).
			Where("watch_mode = ?", legacy).
			Update("watch_mode", canonical).
			Error
		if err != nil {
			return err
		}
	}
	return nil
}
