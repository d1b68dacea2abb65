package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/curriculum"
	"github.com/examprep/examadmin/storage/database"
	inmemdb "github.com/examprep/examadmin/storage/database/inmem"
	sqlxrepos "github.com/examprep/examadmin/storage/database/sqlx"
)

var dbCount int64

// OpenDB opens a private, migrated in-memory SQLite database, closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine: database.EngineSQLite,
		DSN:    fmt.Sprintf("file:test%d?mode=memory&cache=shared", atomic.AddInt64(&dbCount, 1)),
	}}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

// Backend is a curriculum repository along with its transactor.
type Backend struct {
	Name string
	Repo curriculum.Repository
	Tx   core.Transactor
}

// Backends returns one fresh backend per storage engine.
func Backends(t *testing.T) []Backend {
	t.Helper()
	mem := inmemdb.Open()
	db := OpenDB(t)
	return []Backend{
		{Name: "inmem", Repo: inmemdb.NewCurriculumRepository(mem), Tx: mem},
		{Name: "sqlx", Repo: sqlxrepos.NewCurriculumRepository(db), Tx: database.NewTransactor(db)},
	}
}

func CreateGrade(t *testing.T, repo curriculum.Repository, id, name string) catalog.Grade {
	t.Helper()
	g, err := repo.CreateGrade(context.Background(), catalog.Grade{ID: id, Name: name})
	if err != nil {
		t.Fatalf("CreateGrade() failed: %v", err)
	}
	return g
}

func CreateSubject(t *testing.T, repo curriculum.Repository, id, name string) catalog.Subject {
	t.Helper()
	s, err := repo.CreateSubject(context.Background(), catalog.Subject{ID: id, Name: name})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return s
}

func Assign(t *testing.T, repo curriculum.Repository, subjectID, gradeID string) {
	t.Helper()
	if err := repo.AddMembership(context.Background(), curriculum.Membership{GradeID: gradeID, SubjectID: subjectID}); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
}

// SeedCurriculum fills repo with the grades 2-4 and the subjects 5-7; grade 3 has 6 and 5, grade 4 has 5.
func SeedCurriculum(t *testing.T, repo curriculum.Repository) {
	t.Helper()
	CreateGrade(t, repo, "2", "Khối 10")
	CreateGrade(t, repo, "3", "Khối 11")
	CreateGrade(t, repo, "4", "Khối 12")
	CreateSubject(t, repo, "5", "Sinh học")
	CreateSubject(t, repo, "6", "Toán")
	CreateSubject(t, repo, "7", "Văn")
	Assign(t, repo, "6", "3")
	Assign(t, repo, "5", "3")
	Assign(t, repo, "5", "4")
}
