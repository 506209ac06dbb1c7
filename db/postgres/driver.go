package postgres

import (
	"time"

	"github.com/elfcodes808/GoodCord-backend/db/pool"
	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DriverName is the database/sql driver used under gorm.
const DriverName = "postgres"

// Open creates a GORM *DB backed by PostgreSQL through lib/pq.
func Open(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*gorm.DB, error) {
	return open(postgres.New(postgres.Config{
		DriverName: DriverName,
		DSN:        dsn,
	}), maxOpen, maxIdle, maxLife)
}

func open(dialector gorm.Dialector, maxOpen, maxIdle int, maxLife time.Duration) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := pool.Configure(db, maxOpen, maxIdle, maxLife); err != nil {
		return nil, err
	}
	return db, nil
}
