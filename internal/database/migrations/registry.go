// Package migrations provides database migration management for vodarr.
package migrations

import (
	"github.com/jmylchreest/vodarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Recording{},
			)
		},
		Down: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable("recordings") {
				return tx.Migrator().DropTable("recordings")
			}
			return nil
		},
	}
}
