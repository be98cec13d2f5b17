package storage

import (
	"database/sql"
	"errors"
	"regexp"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Queries implements the auth, chatlog and documents stores on one database.
// SQL is written with $N placeholders and rebound for SQLite.
type Queries struct {
	db      *sql.DB
	dialect Dialect
}

func NewQueries(db *sql.DB, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders to ? for SQLite. Placeholders must appear
// in ascending order and only once.
func (q *Queries) rebind(query string) string {
	if q.dialect != DialectSQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
