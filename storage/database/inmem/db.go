package inmemdb

import (
	"context"
	"sync"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/curriculum"
)

const (
	DefaultGradeName   = "Default"
	DefaultSubjectName = "General"
)

type (
	DB struct {
		mutex sync.RWMutex
		tx    sync.Mutex
		tables
	}

	tables struct {
		grades      []catalog.Grade
		subjects    []catalog.Subject
		memberships []curriculum.Membership
	}
)

var _ core.Transactor = (*DB)(nil)

// Open returns an empty database holding only the default grade and subject.
func Open() *DB {
	return &DB{tables: tables{
		grades:      []catalog.Grade{{ID: catalog.DefaultID, Name: DefaultGradeName}},
		subjects:    []catalog.Subject{{ID: catalog.DefaultID, Name: DefaultSubjectName}},
		memberships: []curriculum.Membership{},
	}}
}

func (t tables) copy() tables {
	return tables{
		grades:      append([]catalog.Grade(nil), t.grades...),
		subjects:    append([]catalog.Subject(nil), t.subjects...),
		memberships: append([]curriculum.Membership(nil), t.memberships...),
	}
}

// InTx serializes transactions and restores the tables when fn fails.
// Writes made outside InTx while a transaction runs would be lost on restore:
// callers mutating the tables concurrently must go through InTx.
func (db *DB) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.tx.Lock()
	defer db.tx.Unlock()

	db.mutex.RLock()
	saved := db.tables.copy()
	db.mutex.RUnlock()

	if err := fn(nil); err != nil {
		db.mutex.Lock()
		db.tables = saved
		db.mutex.Unlock()
		return err
	}
	return nil
}
