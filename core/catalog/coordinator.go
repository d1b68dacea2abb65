package catalog

import (
	"context"
	"sync"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

type (
	// Gateway performs the remote calls. Non-success answers are reported as *GatewayFailure.
	Gateway interface {
		FetchAll(ctx context.Context) (Snapshot, error)
		CreateGrade(ctx context.Context, name string) (Grade, error)
		CreateSubject(ctx context.Context, name string) (Subject, error)
		UpdateGrade(ctx context.Context, id, name string) error
		UpdateSubject(ctx context.Context, id, name string) error
		DeleteGrade(ctx context.Context, id string) error
		DeleteSubject(ctx context.Context, id string) error
		AssignSubject(ctx context.Context, subjectID, gradeID string) error
		UnassignSubject(ctx context.Context, subjectID, gradeID string) error
	}

	// Confirmer resolves a prompt to confirmed (true) or cancelled (false).
	Confirmer interface {
		Confirm(ctx context.Context, p Prompt) (bool, error)
	}

	// Notifier receives the classified outcome of every mutation.
	Notifier interface {
		Notify(o Outcome)
	}

	ConfirmFunc  func(ctx context.Context, p Prompt) (bool, error)
	NotifierFunc func(o Outcome)
)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }
func (f NotifierFunc) Notify(o Outcome)                                    { f(o) }

// Prompt describes the change awaiting confirmation. Names are filled from the store when known.
type Prompt struct {
	Action      Action
	GradeID     string
	GradeName   string
	SubjectID   string
	SubjectName string
}

type Action string

const (
	ActionCreateGrade   Action = "create_grade"
	ActionCreateSubject Action = "create_subject"
	ActionRenameGrade   Action = "rename_grade"
	ActionRenameSubject Action = "rename_subject"
	ActionDeleteGrade   Action = "delete_grade"
	ActionDeleteSubject Action = "delete_subject"
	ActionAssign        Action = "assign"
	ActionUnassign      Action = "unassign"
	ActionRefresh       Action = "refresh"
)

// State is a step of the per-mutation state machine:
// Idle -> Validating -> (Denied | Confirming) -> (Cancelled | Submitting) -> (Applied | Failed).
type State int

const (
	StateIdle State = iota
	StateValidating
	StateDenied
	StateConfirming
	StateCancelled
	StateSubmitting
	StateApplied
	StateFailed
)

var stateNames = [...]string{"idle", "validating", "denied", "confirming", "cancelled", "submitting", "applied", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Outcome is the classified result of one mutation.
type Outcome struct {
	Action Action
	State  State
	Reason DenialReason // Denied only
	Err    error        // the *Denial when Denied, the cause when Failed

	GradeID   string
	SubjectID string
	Grade     GradeWithSubjects // created or renamed grade
	Subject   Subject           // created or renamed subject

	// Stale is set when the server confirmed a change the store could not apply.
	// The store has been re-fetched unless RefreshErr is set.
	Stale      bool
	RefreshErr error
}

func (o Outcome) Applied() bool { return o.State == StateApplied }

type Option func(*Coordinator)

// WithTransitionHook registers fn to observe every state transition.
func WithTransitionHook(fn func(Action, State)) Option {
	return func(c *Coordinator) { c.onTransition = fn }
}

// Coordinator sequences each mutation: guard check, confirmation, remote call,
// and only on success the store transition.
type Coordinator struct {
	store        *Store
	gw           Gateway
	confirm      Confirmer
	notify       Notifier
	onTransition func(Action, State)

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCoordinator(store *Store, gw Gateway, confirm Confirmer, notify Notifier, opts ...Option) (*Coordinator, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(gw, "gw"),
		vala.IsNotNil(confirm, "confirm"),
		vala.IsNotNil(notify, "notify"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating coordinator")
	}

	c := &Coordinator{
		store:    store,
		gw:       gw,
		confirm:  confirm,
		notify:   notify,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Store() *Store { return c.store }

// Refresh seeds the store with a full fetch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	snap, err := c.gw.FetchAll(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching grades and subjects")
	}
	c.store.Load(snap)
	return nil
}

func gradeKey(id string) string   { return "grade:" + id }
func subjectKey(id string) string { return "subject:" + id }

// lock marks keys as in flight, all or none.
func (c *Coordinator) lock(keys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, busy := c.inflight[k]; busy {
			return false
		}
	}
	for _, k := range keys {
		c.inflight[k] = struct{}{}
	}
	return true
}

func (c *Coordinator) unlock(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.inflight, k)
	}
}

type mutation struct {
	action   Action
	keys     []string
	validate func() error     // guard check; a *Denial denies, anything else fails
	prompt   func() *Prompt   // nil when no confirmation is needed
	submit   func() error     // remote call
	result   func(o *Outcome) // fills the outcome payload once the server accepted the change
	apply    func() error     // store transition
}

func (c *Coordinator) transition(o *Outcome, s State) {
	o.State = s
	if c.onTransition != nil {
		c.onTransition(o.Action, s)
	}
}

func (c *Coordinator) run(ctx context.Context, m mutation, o Outcome) Outcome {
	o.Action = m.action
	defer func() { c.notify.Notify(o) }()

	c.transition(&o, StateIdle)
	if !c.lock(m.keys) {
		o.Err = ErrBusy
		c.transition(&o, StateFailed)
		return o
	}
	defer c.unlock(m.keys)

	c.transition(&o, StateValidating)
	if m.validate != nil {
		if err := m.validate(); err != nil {
			o.Err = err
			if d, ok := AsDenial(err); ok {
				o.Reason = d.Reason
				c.transition(&o, StateDenied)
			} else {
				c.transition(&o, StateFailed)
			}
			return o
		}
	}

	if m.prompt != nil {
		c.transition(&o, StateConfirming)
		ok, err := c.confirm.Confirm(ctx, *m.prompt())
		if err != nil {
			o.Err = errors.Wrap(err, "confirming")
			c.transition(&o, StateFailed)
			return o
		}
		if !ok {
			c.transition(&o, StateCancelled)
			return o
		}
	}

	c.transition(&o, StateSubmitting)
	if err := m.submit(); err != nil {
		o.Err = err
		c.transition(&o, StateFailed)
		return o
	}
	if m.result != nil {
		m.result(&o)
	}

	if err := m.apply(); err != nil {
		if errors.Cause(err) != ErrInconsistentState {
			err = errors.Wrap(ErrInconsistentState, err.Error())
		}
		o.Err = err
		o.Stale = true
		o.RefreshErr = c.Refresh(ctx)
	}
	c.transition(&o, StateApplied)
	return o
}

func (c *Coordinator) CreateGrade(ctx context.Context, name string) Outcome {
	var created Grade
	return c.run(ctx, mutation{
		action: ActionCreateGrade,
		submit: func() (err error) {
			created, err = c.gw.CreateGrade(ctx, name)
			return err
		},
		result: func(o *Outcome) {
			o.GradeID = created.ID
			o.Grade = GradeWithSubjects{ID: created.ID, Name: created.Name, Subjects: []Subject{}}
		},
		apply: func() error { return c.store.addGrade(created) },
	}, Outcome{})
}

func (c *Coordinator) CreateSubject(ctx context.Context, name string) Outcome {
	var created Subject
	return c.run(ctx, mutation{
		action: ActionCreateSubject,
		submit: func() (err error) {
			created, err = c.gw.CreateSubject(ctx, name)
			return err
		},
		result: func(o *Outcome) {
			o.SubjectID = created.ID
			o.Subject = created
		},
		apply: func() error { return c.store.addSubject(created) },
	}, Outcome{})
}

func (c *Coordinator) RenameGrade(ctx context.Context, id, name string) Outcome {
	return c.run(ctx, mutation{
		action:   ActionRenameGrade,
		keys:     []string{gradeKey(id)},
		validate: func() error { return CanModify(KindGrade, id, OpRename) },
		submit:   func() error { return c.gw.UpdateGrade(ctx, id, name) },
		result: func(o *Outcome) {
			o.Grade, _ = c.store.Grade(id)
			o.Grade.ID, o.Grade.Name = id, name
		},
		apply: func() error { return c.store.renameGrade(id, name) },
	}, Outcome{GradeID: id})
}

func (c *Coordinator) RenameSubject(ctx context.Context, id, name string) Outcome {
	return c.run(ctx, mutation{
		action:   ActionRenameSubject,
		keys:     []string{subjectKey(id)},
		validate: func() error { return CanModify(KindSubject, id, OpRename) },
		submit:   func() error { return c.gw.UpdateSubject(ctx, id, name) },
		result:   func(o *Outcome) { o.Subject = Subject{ID: id, Name: name} },
		apply:    func() error { return c.store.renameSubject(id, name) },
	}, Outcome{SubjectID: id})
}

func (c *Coordinator) DeleteGrade(ctx context.Context, id string) Outcome {
	return c.run(ctx, mutation{
		action:   ActionDeleteGrade,
		keys:     []string{gradeKey(id)},
		validate: func() error { return CanModify(KindGrade, id, OpDelete) },
		prompt:   func() *Prompt { return c.prompt(ActionDeleteGrade, id, "") },
		submit:   func() error { return c.gw.DeleteGrade(ctx, id) },
		apply:    func() error { return c.store.deleteGrade(id) },
	}, Outcome{GradeID: id})
}

func (c *Coordinator) DeleteSubject(ctx context.Context, id string) Outcome {
	return c.run(ctx, mutation{
		action:   ActionDeleteSubject,
		keys:     []string{subjectKey(id)},
		validate: func() error { return CanModify(KindSubject, id, OpDelete) },
		prompt:   func() *Prompt { return c.prompt(ActionDeleteSubject, "", id) },
		submit:   func() error { return c.gw.DeleteSubject(ctx, id) },
		apply:    func() error { return c.store.deleteSubject(id) },
	}, Outcome{SubjectID: id})
}

// AssignSubjectToGrade adds the subject to the grade's members.
// Default and already-assigned cases are denied before any remote call.
func (c *Coordinator) AssignSubjectToGrade(ctx context.Context, subjectID, gradeID string) Outcome {
	return c.run(ctx, mutation{
		action: ActionAssign,
		keys:   []string{gradeKey(gradeID), subjectKey(subjectID)},
		validate: func() error {
			grade, ok := c.store.Grade(gradeID)
			if !ok {
				grade = GradeWithSubjects{ID: gradeID}
			}
			if err := CanAssign(subjectID, grade); err != nil {
				return err
			}
			if !ok {
				return errors.Wrapf(ErrNotFound, "grade %s", gradeID)
			}
			if _, ok := c.store.Subject(subjectID); !ok {
				return errors.Wrapf(ErrNotFound, "subject %s", subjectID)
			}
			return nil
		},
		prompt: func() *Prompt { return c.prompt(ActionAssign, gradeID, subjectID) },
		submit: func() error { return c.gw.AssignSubject(ctx, subjectID, gradeID) },
		apply:  func() error { return c.store.assign(subjectID, gradeID) },
	}, Outcome{GradeID: gradeID, SubjectID: subjectID})
}

// RemoveSubjectFromGrade drops the subject from the grade's members.
// Removing a subject that is not a member succeeds without changing the store.
func (c *Coordinator) RemoveSubjectFromGrade(ctx context.Context, gradeID, subjectID string) Outcome {
	return c.run(ctx, mutation{
		action:   ActionUnassign,
		keys:     []string{gradeKey(gradeID), subjectKey(subjectID)},
		validate: func() error { return CanModify(KindGrade, gradeID, OpUnassign) },
		prompt:   func() *Prompt { return c.prompt(ActionUnassign, gradeID, subjectID) },
		submit:   func() error { return c.gw.UnassignSubject(ctx, subjectID, gradeID) },
		apply:    func() error { return c.store.unassign(subjectID, gradeID) },
	}, Outcome{GradeID: gradeID, SubjectID: subjectID})
}

func (c *Coordinator) prompt(action Action, gradeID, subjectID string) *Prompt {
	p := &Prompt{Action: action, GradeID: gradeID, SubjectID: subjectID}
	if g, ok := c.store.Grade(gradeID); ok {
		p.GradeName = g.Name
	}
	if s, ok := c.store.Subject(subjectID); ok {
		p.SubjectName = s.Name
	}
	return p
}
