package catalog

// DefaultID is the sentinel id of both the default grade and the default subject.
const DefaultID = "1"

type (
	Grade struct {
		ID   string `json:"id" db:"id"`
		Name string `json:"name" db:"name"`
	}

	Subject struct {
		ID   string `json:"id" db:"id"`
		Name string `json:"name" db:"name"`
	}

	// GradeWithSubjects is the denormalized projection of a grade and its members.
	GradeWithSubjects struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		Subjects []Subject `json:"subjects"`
	}

	// Snapshot is the fetch-all payload.
	Snapshot struct {
		Subjects         []Subject           `json:"subjects"`
		SubjectsOfGrades []GradeWithSubjects `json:"subjectsOfGrades"`
	}

	// NameInput is the form payload of every create/rename.
	NameInput struct {
		Name string `json:"name" validate:"required,notblank,max=100"`
	}
)

func (g GradeWithSubjects) Grade() Grade {
	return Grade{ID: g.ID, Name: g.Name}
}

func (g GradeWithSubjects) HasSubject(subjectID string) bool {
	for _, s := range g.Subjects {
		if s.ID == subjectID {
			return true
		}
	}
	return false
}

func (g GradeWithSubjects) clone() GradeWithSubjects {
	subjects := make([]Subject, len(g.Subjects))
	copy(subjects, g.Subjects)
	g.Subjects = subjects
	return g
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Subjects:         make([]Subject, len(s.Subjects)),
		SubjectsOfGrades: make([]GradeWithSubjects, len(s.SubjectsOfGrades)),
	}
	copy(out.Subjects, s.Subjects)
	for i, g := range s.SubjectsOfGrades {
		out.SubjectsOfGrades[i] = g.clone()
	}
	return out
}

type EntityKind string

const (
	KindGrade   EntityKind = "grade"
	KindSubject EntityKind = "subject"
)

type OpKind string

const (
	OpRename   OpKind = "rename"
	OpDelete   OpKind = "delete"
	OpAssign   OpKind = "assign"
	OpUnassign OpKind = "unassign"
)
