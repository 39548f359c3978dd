package persistence

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/infrastructure/persistence/models"
)

// Migrate brings the schema up to date on startup. AutoMigrate covers fresh
// databases; ensureColumns covers files written by earlier schema versions
// where the optional columns did not exist yet.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ProviderModel{},
		&models.ModelModel{},
		&models.ProblemSetModel{},
		&models.ProblemModel{},
		&models.RunModel{},
		&models.RunResultModel{},
	); err != nil {
		return err
	}

	if err := ensureColumns(db); err != nil {
		return err
	}

	return backfillProblemTimestamps(db)
}

// optionalColumns are columns added after the initial schema shipped. Each is
// verified on startup and created with a safe default when missing.
var optionalColumns = []struct {
	model  any
	column string
}{
	{&models.RunModel{}, "stream"},
	{&models.RunModel{}, "cancelled_at"},
	{&models.RunModel{}, "cancelled_by"},
	{&models.ProviderModel{}, "last_checked"},
	{&models.ProblemModel{}, "created_at"},
	{&models.RunResultModel{}, "judge_reasoning"},
	{&models.RunResultModel{}, "cancelled_at"},
}

func ensureColumns(db *gorm.DB) error {
	m := db.Migrator()
	for _, oc := range optionalColumns {
		if m.HasColumn(oc.model, oc.column) {
			continue
		}
		if err := m.AddColumn(oc.model, oc.column); err != nil {
			return fmt.Errorf("add column %s: %w", oc.column, err)
		}
	}
	return nil
}

// backfillProblemTimestamps stamps rows that predate problems.created_at so
// the chronological problem order stays total.
func backfillProblemTimestamps(db *gorm.DB) error {
	return db.Model(&models.ProblemModel{}).
		Where("created_at IS NULL OR created_at = ?", time.Time{}).
		Update("created_at", time.Now().UTC()).Error
}
