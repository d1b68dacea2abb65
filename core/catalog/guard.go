package catalog

// The guard policy is pure: it never touches the store nor the gateway.

func IsProtectedGrade(id string) bool   { return id == DefaultID }
func IsProtectedSubject(id string) bool { return id == DefaultID }

// CanAssign checks that subjectID may be added to grade.
// Checks run in order: default grade, default subject, already assigned.
func CanAssign(subjectID string, grade GradeWithSubjects) error {
	switch {
	case IsProtectedGrade(grade.ID):
		return &Denial{Reason: ReasonDefaultGrade, Kind: KindGrade, ID: grade.ID}
	case IsProtectedSubject(subjectID):
		return &Denial{Reason: ReasonDefaultSubject, Kind: KindSubject, ID: subjectID}
	case grade.HasSubject(subjectID):
		return &Denial{Reason: ReasonAlreadyAssigned, Kind: KindSubject, ID: subjectID}
	}
	return nil
}

// CanModify checks a rename, delete or membership change on the entity (kind, id).
// For OpAssign and OpUnassign, kind must be KindGrade and id the grade's.
func CanModify(kind EntityKind, id string, op OpKind) error {
	protected := IsProtectedGrade(id)
	if kind == KindSubject {
		protected = IsProtectedSubject(id)
	}
	if !protected {
		return nil
	}

	switch op {
	case OpRename, OpDelete:
		return &Denial{Reason: ReasonProtected, Kind: kind, ID: id}
	case OpAssign, OpUnassign:
		if kind == KindGrade {
			return &Denial{Reason: ReasonDefaultGrade, Kind: kind, ID: id}
		}
		if op == OpAssign {
			return &Denial{Reason: ReasonDefaultSubject, Kind: kind, ID: id}
		}
	}
	return nil
}
