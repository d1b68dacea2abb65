package catalog

import (
	"context"

	"github.com/pkg/errors"
)

// Request is what an editor (a modal, a CLI command) is opened for.
// It is one of AddGrade, EditGrade, AddSubject, EditSubject or AddSubjectToGrade.
type Request interface {
	request()
}

type (
	AddGrade          struct{}
	EditGrade         struct{ Grade Grade }
	AddSubject        struct{}
	EditSubject       struct{ Subject Subject }
	AddSubjectToGrade struct{ GradeID string }
)

func (AddGrade) request()          {}
func (EditGrade) request()         {}
func (AddSubject) request()        {}
func (EditSubject) request()       {}
func (AddSubjectToGrade) request() {}

var errUnknownRequest = errors.New("unknown request")

// Open checks that an editor may be opened for req.
// Default entities cannot be edited and the default grade takes no new subjects.
func (c *Coordinator) Open(req Request) error {
	switch r := req.(type) {
	case AddGrade, AddSubject:
		return nil
	case EditGrade:
		return CanModify(KindGrade, r.Grade.ID, OpRename)
	case EditSubject:
		return CanModify(KindSubject, r.Subject.ID, OpRename)
	case AddSubjectToGrade:
		if err := CanModify(KindGrade, r.GradeID, OpAssign); err != nil {
			return err
		}
		if _, ok := c.store.Grade(r.GradeID); !ok {
			return errors.Wrapf(ErrNotFound, "grade %s", r.GradeID)
		}
		return nil
	}
	return errors.Wrapf(errUnknownRequest, "%T", req)
}

// Submit runs the mutation req stands for. value is the name for adds and edits,
// and the subject id for AddSubjectToGrade.
func (c *Coordinator) Submit(ctx context.Context, req Request, value string) Outcome {
	switch r := req.(type) {
	case AddGrade:
		return c.CreateGrade(ctx, value)
	case EditGrade:
		return c.RenameGrade(ctx, r.Grade.ID, value)
	case AddSubject:
		return c.CreateSubject(ctx, value)
	case EditSubject:
		return c.RenameSubject(ctx, r.Subject.ID, value)
	case AddSubjectToGrade:
		return c.AssignSubjectToGrade(ctx, value, r.GradeID)
	}
	return Outcome{State: StateFailed, Err: errors.Wrapf(errUnknownRequest, "%T", req)}
}
