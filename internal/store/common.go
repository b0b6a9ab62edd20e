package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds a row lock on dialects that support it. The sqlite dialect
// used in unit tests serializes writers anyway, so the clause is skipped
// there.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// forUpdateSkipLocked is forUpdate with SKIP LOCKED, used by the task and
// effect claim paths so concurrent pollers never block on each other.
func forUpdateSkipLocked(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return db
}
