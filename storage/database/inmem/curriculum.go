package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/curriculum"
)

type curriculumRepository struct {
	db *DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) *curriculumRepository {
	return &curriculumRepository{db: db}
}

func (repo *curriculumRepository) gradeIndex(id string) int {
	for i, g := range repo.db.grades {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (repo *curriculumRepository) subjectIndex(id string) int {
	for i, s := range repo.db.subjects {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (repo *curriculumRepository) membershipIndex(m curriculum.Membership) int {
	for i, mb := range repo.db.memberships {
		if mb == m {
			return i
		}
	}
	return -1
}

func (repo *curriculumRepository) CreateGrade(_ context.Context, grade catalog.Grade, _ ...core.DBExecutor) (catalog.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.gradeIndex(grade.ID) >= 0 {
		return catalog.Grade{}, errors.Errorf("grade %s already exists", grade.ID)
	}
	repo.db.grades = append(repo.db.grades, grade)
	return grade, nil
}

func (repo *curriculumRepository) CreateSubject(_ context.Context, subject catalog.Subject, _ ...core.DBExecutor) (catalog.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.subjectIndex(subject.ID) >= 0 {
		return catalog.Subject{}, errors.Errorf("subject %s already exists", subject.ID)
	}
	repo.db.subjects = append(repo.db.subjects, subject)
	return subject, nil
}

func (repo *curriculumRepository) GetGrade(_ context.Context, id string, _ ...core.DBExecutor) (catalog.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.gradeIndex(id); i >= 0 {
		return repo.db.grades[i], nil
	}
	return catalog.Grade{}, curriculum.ErrGradeNotFound
}

func (repo *curriculumRepository) GetSubject(_ context.Context, id string, _ ...core.DBExecutor) (catalog.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.subjectIndex(id); i >= 0 {
		return repo.db.subjects[i], nil
	}
	return catalog.Subject{}, curriculum.ErrSubjectNotFound
}

func (repo *curriculumRepository) UpdateGrade(_ context.Context, grade catalog.Grade, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.gradeIndex(grade.ID)
	if i < 0 {
		return curriculum.ErrGradeNotFound
	}
	repo.db.grades[i].Name = grade.Name
	return nil
}

func (repo *curriculumRepository) UpdateSubject(_ context.Context, subject catalog.Subject, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.subjectIndex(subject.ID)
	if i < 0 {
		return curriculum.ErrSubjectNotFound
	}
	repo.db.subjects[i].Name = subject.Name
	return nil
}

func (repo *curriculumRepository) DeleteGrade(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.gradeIndex(id)
	if i < 0 {
		return curriculum.ErrGradeNotFound
	}
	repo.db.grades = append(repo.db.grades[:i:i], repo.db.grades[i+1:]...)
	return nil
}

func (repo *curriculumRepository) DeleteSubject(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.subjectIndex(id)
	if i < 0 {
		return curriculum.ErrSubjectNotFound
	}
	repo.db.subjects = append(repo.db.subjects[:i:i], repo.db.subjects[i+1:]...)
	return nil
}

func (repo *curriculumRepository) QueryGrades(_ context.Context, _ ...core.DBExecutor) ([]catalog.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]catalog.Grade{}, repo.db.grades...), nil
}

func (repo *curriculumRepository) QuerySubjects(_ context.Context, _ ...core.DBExecutor) ([]catalog.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]catalog.Subject{}, repo.db.subjects...), nil
}

func (repo *curriculumRepository) QueryMemberships(_ context.Context, _ ...core.DBExecutor) ([]curriculum.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]curriculum.Membership{}, repo.db.memberships...), nil
}

func (repo *curriculumRepository) AddMembership(_ context.Context, m curriculum.Membership, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.membershipIndex(m) >= 0 {
		return curriculum.ErrAlreadyAssigned
	}
	repo.db.memberships = append(repo.db.memberships, m)
	return nil
}

func (repo *curriculumRepository) RemoveMembership(_ context.Context, m curriculum.Membership, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if i := repo.membershipIndex(m); i >= 0 {
		repo.db.memberships = append(repo.db.memberships[:i:i], repo.db.memberships[i+1:]...)
	}
	return nil
}

func (repo *curriculumRepository) DeleteMemberships(_ context.Context, m curriculum.Membership, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	kept := make([]curriculum.Membership, 0, len(repo.db.memberships))
	for _, mb := range repo.db.memberships {
		if (m.GradeID != "" && mb.GradeID == m.GradeID) || (m.SubjectID != "" && mb.SubjectID == m.SubjectID) {
			continue
		}
		kept = append(kept, mb)
	}
	repo.db.memberships = kept
	return nil
}
