package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/curriculum"
)

var ordering = core.DBOrdering{Field: "seq", Ascending: true}

// isUniqueViolation reports whether err is a primary key or unique constraint violation.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code.Name() == "unique_violation"
	case *sqlite.Error:
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

type curriculumRepository struct {
	exec core.DBExecutor
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(exec core.DBExecutor) *curriculumRepository {
	return &curriculumRepository{exec: exec}
}

func (repo curriculumRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" err to notFound
func (repo curriculumRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// checkAffected returns notFound when res touched no row.
func (repo curriculumRepository) checkAffected(res sql.Result, notFound error, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (repo curriculumRepository) insert(ctx context.Context, exec core.DBExecutor, table, id, name string) error {
	q := exec.Rebind("INSERT INTO " + table + " (id, name, seq) SELECT ?, ?, COALESCE(MAX(seq), 0) + 1 FROM " + table)
	_, err := exec.ExecContext(ctx, q, id, name)
	return err
}

func (repo curriculumRepository) CreateGrade(ctx context.Context, grade catalog.Grade, exec ...core.DBExecutor) (catalog.Grade, error) {
	if err := repo.insert(ctx, repo.getExec(exec), "grade", grade.ID, grade.Name); err != nil {
		return catalog.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return grade, nil
}

func (repo curriculumRepository) CreateSubject(ctx context.Context, subject catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	if err := repo.insert(ctx, repo.getExec(exec), "subject", subject.ID, subject.Name); err != nil {
		return catalog.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return subject, nil
}

func (repo curriculumRepository) GetGrade(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Grade, error) {
	exe := repo.getExec(exec)
	var grade catalog.Grade
	if err := exe.GetContext(ctx, &grade, exe.Rebind("SELECT id, name FROM grade WHERE id = ?"), id); err != nil {
		return catalog.Grade{}, repo.trapNoRowsErr(err, curriculum.ErrGradeNotFound, "finding grade by ID")
	}
	return grade, nil
}

func (repo curriculumRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Subject, error) {
	exe := repo.getExec(exec)
	var subject catalog.Subject
	if err := exe.GetContext(ctx, &subject, exe.Rebind("SELECT id, name FROM subject WHERE id = ?"), id); err != nil {
		return catalog.Subject{}, repo.trapNoRowsErr(err, curriculum.ErrSubjectNotFound, "finding subject by ID")
	}
	return subject, nil
}

func (repo curriculumRepository) UpdateGrade(ctx context.Context, grade catalog.Grade, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE grade SET name = ? WHERE id = ?"), grade.Name, grade.ID)
	if err != nil {
		return errors.Wrap(err, "updating grade")
	}
	return repo.checkAffected(res, curriculum.ErrGradeNotFound, "updating grade")
}

func (repo curriculumRepository) UpdateSubject(ctx context.Context, subject catalog.Subject, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE subject SET name = ? WHERE id = ?"), subject.Name, subject.ID)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return repo.checkAffected(res, curriculum.ErrSubjectNotFound, "updating subject")
}

func (repo curriculumRepository) DeleteGrade(ctx context.Context, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM grade WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return repo.checkAffected(res, curriculum.ErrGradeNotFound, "deleting grade")
}

func (repo curriculumRepository) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM subject WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return repo.checkAffected(res, curriculum.ErrSubjectNotFound, "deleting subject")
}

func (repo curriculumRepository) QueryGrades(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Grade, error) {
	grades := make([]catalog.Grade, 0)
	if err := repo.getExec(exec).SelectContext(ctx, &grades, "SELECT id, name FROM grade ORDER BY "+ordering.String()); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	return grades, nil
}

func (repo curriculumRepository) QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	subjects := make([]catalog.Subject, 0)
	if err := repo.getExec(exec).SelectContext(ctx, &subjects, "SELECT id, name FROM subject ORDER BY "+ordering.String()); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo curriculumRepository) QueryMemberships(ctx context.Context, exec ...core.DBExecutor) ([]curriculum.Membership, error) {
	memberships := make([]curriculum.Membership, 0)
	q := "SELECT grade_id, subject_id FROM subject_of_grade ORDER BY " + ordering.String()
	if err := repo.getExec(exec).SelectContext(ctx, &memberships, q); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	return memberships, nil
}

// AddMembership relies on the (grade_id, subject_id) primary key to reject duplicates,
// so concurrent assigns of the same pair cannot both succeed.
func (repo curriculumRepository) AddMembership(ctx context.Context, m curriculum.Membership, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO subject_of_grade (grade_id, subject_id, seq)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1 FROM subject_of_grade`)
	if _, err := exe.ExecContext(ctx, q, m.GradeID, m.SubjectID); err != nil {
		if isUniqueViolation(err) {
			return curriculum.ErrAlreadyAssigned
		}
		return errors.Wrap(err, "inserting membership")
	}
	return nil
}

func (repo curriculumRepository) RemoveMembership(ctx context.Context, m curriculum.Membership, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind("DELETE FROM subject_of_grade WHERE grade_id = ? AND subject_id = ?")
	if _, err := exe.ExecContext(ctx, q, m.GradeID, m.SubjectID); err != nil {
		return errors.Wrap(err, "deleting membership")
	}
	return nil
}

func (repo curriculumRepository) DeleteMemberships(ctx context.Context, m curriculum.Membership, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	var (
		q   string
		arg string
	)
	switch {
	case m.GradeID != "":
		q, arg = "DELETE FROM subject_of_grade WHERE grade_id = ?", m.GradeID
	case m.SubjectID != "":
		q, arg = "DELETE FROM subject_of_grade WHERE subject_id = ?", m.SubjectID
	default:
		return errors.New("deleting memberships: no grade nor subject given")
	}
	if _, err := exe.ExecContext(ctx, exe.Rebind(q), arg); err != nil {
		return errors.Wrap(err, "deleting memberships")
	}
	return nil
}
