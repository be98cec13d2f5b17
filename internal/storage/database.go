package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/docdoc/docdoc-server/internal/config"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type Database struct {
	DB      *sql.DB
	Dialect Dialect
	Queries *Queries
}

// InitDatabase initializes the database connection from config.AppConfig and runs migrations.
func InitDatabase(driver, databaseURL string) (*Database, error) {
	return Open(Dialect(driver), databaseURL, Options{
		MaxOpenConns:    config.AppConfig.DBMaxOpenConns,
		MaxIdleConns:    config.AppConfig.DBMaxIdleConns,
		ConnMaxIdleTime: time.Duration(config.AppConfig.DBConnMaxIdleTime) * time.Minute,
		ConnMaxLifetime: time.Duration(config.AppConfig.DBConnMaxLifetime) * time.Minute,
	})
}

// Open connects to dsn using dialect and migrates the schema.
func Open(dialect Dialect, dsn string, opts Options) (*Database, error) {
	var driverName string
	switch dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: in-memory databases are per connection and SQLite
		// serializes writers anyway. Never recycle it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := RunMigrations(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{
		DB:      db,
		Dialect: dialect,
		Queries: NewQueries(db, dialect),
	}, nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}
