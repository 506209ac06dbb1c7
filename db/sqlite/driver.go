package sqlite

import (
	"fmt"
	"sync/atomic"

	"github.com/elfcodes808/GoodCord-backend/db/pool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memSeq uint64

// Open creates a GORM *DB backed by a SQLite file.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	if err := pool.Configure(db, 1, 1, 0); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory creates a private in-memory database. Each call gets its own
// database unless name is given, so tests can run in parallel.
func OpenMemory(name string) (*gorm.DB, error) {
	if name == "" {
		name = fmt.Sprintf("goodcord_%d", atomic.AddUint64(&memSeq, 1))
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// The shared-cache database lives as long as one connection stays open,
	// so the connection never expires.
	if err := pool.Configure(db, 1, 1, 0); err != nil {
		return nil, err
	}
	return db, nil
}
