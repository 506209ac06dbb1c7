// Package pool applies connection pool limits to a gorm handle.
package pool

import (
	"time"

	"gorm.io/gorm"
)

// Configure sets the pool limits of the *sql.DB under db. Zero values keep
// the database/sql defaults.
func Configure(db *gorm.DB, maxOpen, maxIdle int, maxLife time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLife > 0 {
		sqlDB.SetConnMaxLifetime(maxLife)
	}
	return nil
}
