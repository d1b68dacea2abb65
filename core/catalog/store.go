package catalog

import (
	"sync"

	"github.com/pkg/errors"
)

type state struct {
	subjects []Subject
	grades   []GradeWithSubjects
}

func (st state) clone() state {
	snap := Snapshot{Subjects: st.subjects, SubjectsOfGrades: st.grades}.Clone()
	return state{subjects: snap.Subjects, grades: snap.SubjectsOfGrades}
}

func (st *state) gradeIndex(id string) int {
	for i, g := range st.grades {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (st *state) subjectIndex(id string) int {
	for i, s := range st.subjects {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Store is the client-held view of grades, subjects and their memberships.
// It is safe for concurrent use: every mutation is built on a private copy of the
// state and swapped in whole, so readers never observe a half-applied change.
type Store struct {
	mu      sync.RWMutex
	st      state
	version uint64
}

func NewStore() *Store {
	return &Store{st: state{subjects: []Subject{}, grades: []GradeWithSubjects{}}}
}

// Load replaces the whole state with snap.
// Duplicate memberships are collapsed and default-subject memberships dropped.
func (s *Store) Load(snap Snapshot) {
	snap = snap.Clone()
	for i, g := range snap.SubjectsOfGrades {
		seen := make(map[string]bool, len(g.Subjects))
		members := make([]Subject, 0, len(g.Subjects))
		for _, sub := range g.Subjects {
			if IsProtectedSubject(sub.ID) || seen[sub.ID] {
				continue
			}
			seen[sub.ID] = true
			members = append(members, sub)
		}
		snap.SubjectsOfGrades[i].Subjects = members
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{subjects: snap.Subjects, grades: snap.SubjectsOfGrades}
	s.version++
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Subjects: s.st.subjects, SubjectsOfGrades: s.st.grades}.Clone()
}

// Version is incremented by every load and every applied mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Grades() []GradeWithSubjects {
	return s.Snapshot().SubjectsOfGrades
}

func (s *Store) Subjects() []Subject {
	return s.Snapshot().Subjects
}

func (s *Store) Grade(id string) (GradeWithSubjects, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.st.gradeIndex(id); i >= 0 {
		return s.st.grades[i].clone(), true
	}
	return GradeWithSubjects{}, false
}

func (s *Store) Subject(id string) (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.st.subjectIndex(id); i >= 0 {
		return s.st.subjects[i], true
	}
	return Subject{}, false
}

// GradeCountForSubject returns the number of grades the subject is a member of.
func (s *Store) GradeCountForSubject(subjectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, g := range s.st.grades {
		if g.HasSubject(subjectID) {
			n++
		}
	}
	return n
}

// AssignableSubjects lists the catalog subjects that may still be added to the grade:
// everything but the default subject and the current members.
func (s *Store) AssignableSubjects(gradeID string) []Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.st.gradeIndex(gradeID)
	if i < 0 || IsProtectedGrade(gradeID) {
		return []Subject{}
	}
	out := make([]Subject, 0, len(s.st.subjects))
	for _, sub := range s.st.subjects {
		if IsProtectedSubject(sub.ID) || s.st.grades[i].HasSubject(sub.ID) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// apply runs fn on a copy of the state and swaps it in only if fn succeeds.
func (s *Store) apply(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.st.clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.st = next
	s.version++
	return nil
}

func (s *Store) addGrade(g Grade) error {
	return s.apply(func(st *state) error {
		if st.gradeIndex(g.ID) >= 0 {
			return errors.Wrapf(ErrInconsistentState, "grade %s already present", g.ID)
		}
		st.grades = append(st.grades, GradeWithSubjects{ID: g.ID, Name: g.Name, Subjects: []Subject{}})
		return nil
	})
}

func (s *Store) addSubject(sub Subject) error {
	return s.apply(func(st *state) error {
		if st.subjectIndex(sub.ID) >= 0 {
			return errors.Wrapf(ErrInconsistentState, "subject %s already present", sub.ID)
		}
		st.subjects = append(st.subjects, sub)
		return nil
	})
}

func (s *Store) renameGrade(id, name string) error {
	return s.apply(func(st *state) error {
		i := st.gradeIndex(id)
		if i < 0 {
			return errors.Wrapf(ErrInconsistentState, "grade %s", id)
		}
		st.grades[i].Name = name
		return nil
	})
}

// renameSubject renames the catalog entry and every membership of the subject.
func (s *Store) renameSubject(id, name string) error {
	return s.apply(func(st *state) error {
		i := st.subjectIndex(id)
		if i < 0 {
			return errors.Wrapf(ErrInconsistentState, "subject %s", id)
		}
		st.subjects[i].Name = name
		for gi := range st.grades {
			for si := range st.grades[gi].Subjects {
				if st.grades[gi].Subjects[si].ID == id {
					st.grades[gi].Subjects[si].Name = name
				}
			}
		}
		return nil
	})
}

func (s *Store) deleteGrade(id string) error {
	return s.apply(func(st *state) error {
		i := st.gradeIndex(id)
		if i < 0 {
			return errors.Wrapf(ErrInconsistentState, "grade %s", id)
		}
		st.grades = append(st.grades[:i], st.grades[i+1:]...)
		return nil
	})
}

// deleteSubject removes the subject from the catalog and from every grade.
func (s *Store) deleteSubject(id string) error {
	return s.apply(func(st *state) error {
		i := st.subjectIndex(id)
		if i < 0 {
			return errors.Wrapf(ErrInconsistentState, "subject %s", id)
		}
		st.subjects = append(st.subjects[:i], st.subjects[i+1:]...)
		for gi := range st.grades {
			st.grades[gi].Subjects = removeSubject(st.grades[gi].Subjects, id)
		}
		return nil
	})
}

// assign appends the catalog subject to the grade. An existing membership is left as is.
func (s *Store) assign(subjectID, gradeID string) error {
	return s.apply(func(st *state) error {
		if IsProtectedSubject(subjectID) {
			return &Denial{Reason: ReasonDefaultSubject, Kind: KindSubject, ID: subjectID}
		}
		gi := st.gradeIndex(gradeID)
		if gi < 0 {
			return errors.Wrapf(ErrInconsistentState, "grade %s", gradeID)
		}
		si := st.subjectIndex(subjectID)
		if si < 0 {
			return errors.Wrapf(ErrInconsistentState, "subject %s", subjectID)
		}
		if !st.grades[gi].HasSubject(subjectID) {
			st.grades[gi].Subjects = append(st.grades[gi].Subjects, st.subjects[si])
		}
		return nil
	})
}

// unassign filters the subject out of the grade. Removing a non-member is a no-op.
func (s *Store) unassign(subjectID, gradeID string) error {
	return s.apply(func(st *state) error {
		gi := st.gradeIndex(gradeID)
		if gi < 0 {
			return errors.Wrapf(ErrInconsistentState, "grade %s", gradeID)
		}
		st.grades[gi].Subjects = removeSubject(st.grades[gi].Subjects, subjectID)
		return nil
	})
}

func removeSubject(subjects []Subject, id string) []Subject {
	out := subjects[:0]
	for _, s := range subjects {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
