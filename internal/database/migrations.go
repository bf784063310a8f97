package database

import (
	"errors"
	"time"

	"github.com/taskpadhq/taskpad/internal/document"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillRevisionParent = "2026-07-02_backfill_revision_document_id"

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
		{name: migrationBackfillRevisionParent, apply: backfillRevisionDocumentID},
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

// Early builds archived revisions without a back-reference to their logical
// document; attribute those rows to the single-document default id.
func backfillRevisionDocumentID(db *gorm.DB) error {
	return db.Model(&document.Revision{}).
		Where("document_id = ''").
		Update("document_id", document.DefaultDocumentID).Error
}
