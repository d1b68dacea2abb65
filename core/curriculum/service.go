package curriculum

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
)

var (
	// errors
	ErrGradeNotFound   = errors.New("grade not found")
	ErrSubjectNotFound = errors.New("subject not found")
	ErrDefaultEntity   = errors.New("the default grade and subject cannot be changed")
	ErrAlreadyAssigned = errors.New("subject already assigned to this grade")
)

// Membership is an edge between a grade and a subject.
type Membership struct {
	GradeID   string `db:"grade_id"`
	SubjectID string `db:"subject_id"`
}

type (
	// Repository stores grades, subjects and memberships. Queries return rows in insertion order.
	// Every method runs on exec[0] when given, on the repository's own executor otherwise.
	Repository interface {
		CreateGrade(ctx context.Context, grade catalog.Grade, exec ...core.DBExecutor) (catalog.Grade, error)
		CreateSubject(ctx context.Context, subject catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error)
		GetGrade(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Grade, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Subject, error)
		UpdateGrade(ctx context.Context, grade catalog.Grade, exec ...core.DBExecutor) error
		UpdateSubject(ctx context.Context, subject catalog.Subject, exec ...core.DBExecutor) error
		DeleteGrade(ctx context.Context, id string, exec ...core.DBExecutor) error
		DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error
		QueryGrades(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Grade, error)
		QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Subject, error)
		QueryMemberships(ctx context.Context, exec ...core.DBExecutor) ([]Membership, error)
		// AddMembership fails with ErrAlreadyAssigned when the edge exists.
		AddMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) error
		// RemoveMembership is a no-op when the edge does not exist.
		RemoveMembership(ctx context.Context, m Membership, exec ...core.DBExecutor) error
		// DeleteMemberships removes every edge of m.GradeID or of m.SubjectID (whichever is set).
		DeleteMemberships(ctx context.Context, m Membership, exec ...core.DBExecutor) error
	}

	Service struct {
		repo  Repository
		tx    core.Transactor
		newID func() string
	}
)

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx, newID: uuid.NewString}
}

// Snapshot returns every subject and every grade with its members.
func (svc *Service) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	var snap catalog.Snapshot
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		subjects, err := svc.repo.QuerySubjects(ctx, execs(exec)...)
		if err != nil {
			return err
		}
		grades, err := svc.repo.QueryGrades(ctx, execs(exec)...)
		if err != nil {
			return err
		}
		memberships, err := svc.repo.QueryMemberships(ctx, execs(exec)...)
		if err != nil {
			return err
		}
		snap = buildSnapshot(subjects, grades, memberships)
		return nil
	})
	return snap, err
}

func buildSnapshot(subjects []catalog.Subject, grades []catalog.Grade, memberships []Membership) catalog.Snapshot {
	byID := make(map[string]catalog.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}
	members := make(map[string][]catalog.Subject, len(grades))
	for _, m := range memberships {
		if s, ok := byID[m.SubjectID]; ok {
			members[m.GradeID] = append(members[m.GradeID], s)
		}
	}

	snap := catalog.Snapshot{
		Subjects:         subjects,
		SubjectsOfGrades: make([]catalog.GradeWithSubjects, 0, len(grades)),
	}
	if snap.Subjects == nil {
		snap.Subjects = []catalog.Subject{}
	}
	for _, g := range grades {
		subs := members[g.ID]
		if subs == nil {
			subs = []catalog.Subject{}
		}
		snap.SubjectsOfGrades = append(snap.SubjectsOfGrades, catalog.GradeWithSubjects{ID: g.ID, Name: g.Name, Subjects: subs})
	}
	return snap
}

// ListSubjectsOfGrades returns the grades with their members, ordered by the number in the grade name.
func (svc *Service) ListSubjectsOfGrades(ctx context.Context) ([]catalog.GradeWithSubjects, error) {
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	grades := snap.SubjectsOfGrades
	sort.SliceStable(grades, func(i, j int) bool {
		return core.GradeNumber(grades[i].Name) < core.GradeNumber(grades[j].Name)
	})
	return grades, nil
}

func (svc *Service) CreateGrade(ctx context.Context, name string) (grade catalog.Grade, err error) {
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		grade, err = svc.repo.CreateGrade(ctx, catalog.Grade{ID: svc.newID(), Name: core.CleanString(name)}, execs(exec)...)
		return err
	})
	return grade, err
}

func (svc *Service) CreateSubject(ctx context.Context, name string) (subject catalog.Subject, err error) {
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		subject, err = svc.repo.CreateSubject(ctx, catalog.Subject{ID: svc.newID(), Name: core.CleanString(name)}, execs(exec)...)
		return err
	})
	return subject, err
}

func (svc *Service) UpdateGrade(ctx context.Context, id, name string) error {
	if catalog.IsProtectedGrade(id) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.UpdateGrade(ctx, catalog.Grade{ID: id, Name: core.CleanString(name)}, execs(exec)...)
	})
}

func (svc *Service) UpdateSubject(ctx context.Context, id, name string) error {
	if catalog.IsProtectedSubject(id) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.UpdateSubject(ctx, catalog.Subject{ID: id, Name: core.CleanString(name)}, execs(exec)...)
	})
}

// DeleteGrade deletes the grade and its memberships.
func (svc *Service) DeleteGrade(ctx context.Context, id string) error {
	if catalog.IsProtectedGrade(id) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteMemberships(ctx, Membership{GradeID: id}, execs(exec)...); err != nil {
			return err
		}
		return svc.repo.DeleteGrade(ctx, id, execs(exec)...)
	})
}

// DeleteSubject deletes the subject and removes it from every grade.
func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	if catalog.IsProtectedSubject(id) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteMemberships(ctx, Membership{SubjectID: id}, execs(exec)...); err != nil {
			return err
		}
		return svc.repo.DeleteSubject(ctx, id, execs(exec)...)
	})
}

func (svc *Service) AssignSubject(ctx context.Context, subjectID, gradeID string) error {
	if catalog.IsProtectedGrade(gradeID) || catalog.IsProtectedSubject(subjectID) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetGrade(ctx, gradeID, execs(exec)...); err != nil {
			return err
		}
		if _, err := svc.repo.GetSubject(ctx, subjectID, execs(exec)...); err != nil {
			return err
		}
		return svc.repo.AddMembership(ctx, Membership{GradeID: gradeID, SubjectID: subjectID}, execs(exec)...)
	})
}

// UnassignSubject removes the subject from the grade. Removing a non-member succeeds;
// unknown grades and subjects do not.
func (svc *Service) UnassignSubject(ctx context.Context, subjectID, gradeID string) error {
	if catalog.IsProtectedGrade(gradeID) {
		return ErrDefaultEntity
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetGrade(ctx, gradeID, execs(exec)...); err != nil {
			return err
		}
		if _, err := svc.repo.GetSubject(ctx, subjectID, execs(exec)...); err != nil {
			return err
		}
		return svc.repo.RemoveMembership(ctx, Membership{GradeID: gradeID, SubjectID: subjectID}, execs(exec)...)
	})
}

// execs forwards the transaction executor, if any, to the repository.
func execs(exec core.DBExecutor) []core.DBExecutor {
	if exec == nil {
		return nil
	}
	return []core.DBExecutor{exec}
}
