package mysql

import (
	"time"

	"github.com/elfcodes808/GoodCord-backend/db/pool"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by MySQL with a connection pool.
func Open(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*gorm.DB, error) {
	return open(mysql.Open(dsn), maxOpen, maxIdle, maxLife)
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
