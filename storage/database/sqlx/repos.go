// Package sqlxrepos implements the core repositories with hand-written SQL
// over jmoiron/sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trezcool/shule/core"
)

const pqUniqueViolation = "23505"

// getExec returns the write handle: the service-provided transaction override
// when present, the main handle otherwise.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return db
}

// queryer returns an sqlx-capable read handle. Transactions started through
// database.DB scan structs; any other override falls back to the main handle.
func queryer(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if q, ok := svcExec[0].(sqlx.ExtContext); ok {
			return q
		}
	}
	return db
}

// isUniqueViolation reports whether err is a psql unique violation on the
// given constraint (any constraint when empty).
func isUniqueViolation(err error, constraint string) bool {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}

// orderBy renders an ORDER BY clause from orderings, or the fallback.
func orderBy(orderings []core.DBOrdering, fallback string) string {
	if len(orderings) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
