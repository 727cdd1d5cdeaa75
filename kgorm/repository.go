// Package kgorm stores identity records and accounts in a relational
// database through GORM. SQLite, PostgreSQL and MySQL are registered by
// default.
package kgorm

import (
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

func (r *Repository) AutoMigrate(models ...any) error {
	// Records and accounts are base models that should always be migrated
	baseModels := []any{
		&gormRecord{},
		&gormAccount{},
		&gormAccountMapping{},
	}
	allModels := append(baseModels, models...)
	return r.db.AutoMigrate(allModels...)
}

// Records returns the identity record table.
func (r *Repository) Records() *RecordRepository {
	return NewRecordRepository(r.db)
}

// Accounts returns the account and principal mapping tables.
func (r *Repository) Accounts() *AccountRepository {
	return NewAccountRepository(r.db)
}

// References returns a reference index over the given caller columns.
func (r *Repository) References(refs []Reference, opts ...ReferenceOption) *ReferenceIndex {
	return NewReferenceIndex(r.db, refs, opts...)
}
