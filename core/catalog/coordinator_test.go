package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	fetches  int
	nextID   int
	snap     Snapshot
	fail     error             // returned by every mutation when set
	fetchErr error             // returned by FetchAll when set
	hook     func(call string) // runs before every mutation
}

var _ Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{snap: testSnapshot(), nextID: 100}
}

func (gw *fakeGateway) record(call string) error {
	if gw.hook != nil {
		gw.hook(call)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.calls = append(gw.calls, call)
	return gw.fail
}

func (gw *fakeGateway) Calls() []string {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]string(nil), gw.calls...)
}

func (gw *fakeGateway) FetchAll(context.Context) (Snapshot, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.fetches++
	if gw.fetchErr != nil {
		return Snapshot{}, gw.fetchErr
	}
	return gw.snap.Clone(), nil
}

func (gw *fakeGateway) CreateGrade(_ context.Context, name string) (Grade, error) {
	if err := gw.record("CreateGrade " + name); err != nil {
		return Grade{}, err
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.nextID++
	return Grade{ID: fmt.Sprint(gw.nextID), Name: name}, nil
}

func (gw *fakeGateway) CreateSubject(_ context.Context, name string) (Subject, error) {
	if err := gw.record("CreateSubject " + name); err != nil {
		return Subject{}, err
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.nextID++
	return Subject{ID: fmt.Sprint(gw.nextID), Name: name}, nil
}

func (gw *fakeGateway) UpdateGrade(_ context.Context, id, name string) error {
	return gw.record("UpdateGrade " + id + " " + name)
}

func (gw *fakeGateway) UpdateSubject(_ context.Context, id, name string) error {
	return gw.record("UpdateSubject " + id + " " + name)
}

func (gw *fakeGateway) DeleteGrade(_ context.Context, id string) error {
	return gw.record("DeleteGrade " + id)
}

func (gw *fakeGateway) DeleteSubject(_ context.Context, id string) error {
	return gw.record("DeleteSubject " + id)
}

func (gw *fakeGateway) AssignSubject(_ context.Context, subjectID, gradeID string) error {
	return gw.record("AssignSubject " + subjectID + " " + gradeID)
}

func (gw *fakeGateway) UnassignSubject(_ context.Context, subjectID, gradeID string) error {
	return gw.record("UnassignSubject " + subjectID + " " + gradeID)
}

type outcomes struct {
	mu   sync.Mutex
	list []Outcome
}

func (o *outcomes) Notify(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, out)
}

func confirmAll(answer bool) ConfirmFunc {
	return func(context.Context, Prompt) (bool, error) { return answer, nil }
}

func newTestCoordinator(t *testing.T, gw Gateway, confirm Confirmer, opts ...Option) (*Coordinator, *outcomes) {
	t.Helper()
	notified := new(outcomes)
	c, err := NewCoordinator(newTestStore(), gw, confirm, notified, opts...)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	return c, notified
}

func TestNewCoordinator(t *testing.T) {
	if _, err := NewCoordinator(NewStore(), nil, confirmAll(true), new(outcomes)); err == nil {
		t.Errorf("NewCoordinator() without a gateway: error = nil, want an error")
	}
	if _, err := NewCoordinator(NewStore(), newFakeGateway(), confirmAll(true), new(outcomes)); err != nil {
		t.Errorf("NewCoordinator() error = %v", err)
	}
}

func TestCoordinator_AssignSubjectToGrade(t *testing.T) {
	gw := newFakeGateway()
	var prompts []Prompt
	confirm := ConfirmFunc(func(_ context.Context, p Prompt) (bool, error) {
		prompts = append(prompts, p)
		return true, nil
	})
	c, notified := newTestCoordinator(t, gw, confirm)
	ctx := context.Background()

	out := c.AssignSubjectToGrade(ctx, "5", "2")
	if out.State != StateApplied || out.Err != nil {
		t.Fatalf("AssignSubjectToGrade() = %+v, want applied", out)
	}
	g, _ := c.Store().Grade("2")
	want := []Subject{{ID: "5", Name: "Sinh học"}}
	if !reflect.DeepEqual(g.Subjects, want) {
		t.Errorf("grade 2 subjects = %+v, want %+v", g.Subjects, want)
	}
	wantPrompt := Prompt{Action: ActionAssign, GradeID: "2", GradeName: "Khối 10", SubjectID: "5", SubjectName: "Sinh học"}
	if len(prompts) != 1 || prompts[0] != wantPrompt {
		t.Errorf("prompts = %+v, want [%+v]", prompts, wantPrompt)
	}

	out = c.AssignSubjectToGrade(ctx, "5", "2")
	if out.State != StateDenied || out.Reason != ReasonAlreadyAssigned {
		t.Errorf("second AssignSubjectToGrade() = %+v, want denied (already assigned)", out)
	}
	if calls := gw.Calls(); len(calls) != 1 {
		t.Errorf("gateway calls = %v, want exactly one", calls)
	}
	if len(prompts) != 1 {
		t.Errorf("a denied assign asked for confirmation")
	}
	if len(notified.list) != 2 {
		t.Errorf("notified %d outcomes, want 2", len(notified.list))
	}

	// the renamed subject shows up in the grade that gained it above
	out = c.RenameSubject(ctx, "5", "Sinh học nâng cao")
	if !out.Applied() {
		t.Fatalf("RenameSubject() = %+v, want applied", out)
	}
	snap := c.Store().Snapshot()
	for _, g := range snap.SubjectsOfGrades {
		for _, s := range g.Subjects {
			if s.ID == "5" && s.Name != "Sinh học nâng cao" {
				t.Errorf("grade %s still shows subject 5 as %q", g.ID, s.Name)
			}
		}
	}
	if sub, _ := c.Store().Subject("5"); sub.Name != "Sinh học nâng cao" {
		t.Errorf("catalog shows subject 5 as %q", sub.Name)
	}
}

func TestCoordinator_Denials(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		run  func(c *Coordinator) Outcome
		want DenialReason
	}{
		{name: "delete default subject", run: func(c *Coordinator) Outcome { return c.DeleteSubject(ctx, "1") }, want: ReasonProtected},
		{name: "delete default grade", run: func(c *Coordinator) Outcome { return c.DeleteGrade(ctx, "1") }, want: ReasonProtected},
		{name: "rename default grade", run: func(c *Coordinator) Outcome { return c.RenameGrade(ctx, "1", "x") }, want: ReasonProtected},
		{name: "rename default subject", run: func(c *Coordinator) Outcome { return c.RenameSubject(ctx, "1", "x") }, want: ReasonProtected},
		{name: "assign to default grade", run: func(c *Coordinator) Outcome { return c.AssignSubjectToGrade(ctx, "5", "1") }, want: ReasonDefaultGrade},
		{name: "assign default subject", run: func(c *Coordinator) Outcome { return c.AssignSubjectToGrade(ctx, "1", "2") }, want: ReasonDefaultSubject},
		{name: "assign member", run: func(c *Coordinator) Outcome { return c.AssignSubjectToGrade(ctx, "6", "3") }, want: ReasonAlreadyAssigned},
		{name: "unassign from default grade", run: func(c *Coordinator) Outcome { return c.RemoveSubjectFromGrade(ctx, "1", "5") }, want: ReasonDefaultGrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			c, _ := newTestCoordinator(t, gw, ConfirmFunc(func(context.Context, Prompt) (bool, error) {
				t.Errorf("a denied mutation asked for confirmation")
				return true, nil
			}))
			before := c.Store().Snapshot()

			out := tt.run(c)
			if out.State != StateDenied || out.Reason != tt.want {
				t.Errorf("outcome = %+v, want denied (%s)", out, tt.want)
			}
			if _, ok := AsDenial(out.Err); !ok {
				t.Errorf("outcome error = %v, want a *Denial", out.Err)
			}
			if calls := gw.Calls(); len(calls) != 0 {
				t.Errorf("gateway calls = %v, want none", calls)
			}
			if diff := diffSnapshots(t, before, c.Store().Snapshot()); diff != "" {
				t.Errorf("denial changed the store:\n%s", diff)
			}
		})
	}
}

func TestCoordinator_FailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	failure := &GatewayFailure{Op: "test", Status: 500, Message: "boom"}
	ops := []struct {
		name string
		run  func(c *Coordinator) Outcome
	}{
		{name: "create grade", run: func(c *Coordinator) Outcome { return c.CreateGrade(ctx, "Khối 9") }},
		{name: "create subject", run: func(c *Coordinator) Outcome { return c.CreateSubject(ctx, "Hóa") }},
		{name: "rename grade", run: func(c *Coordinator) Outcome { return c.RenameGrade(ctx, "2", "Khối mười") }},
		{name: "rename subject", run: func(c *Coordinator) Outcome { return c.RenameSubject(ctx, "5", "Sinh") }},
		{name: "delete grade", run: func(c *Coordinator) Outcome { return c.DeleteGrade(ctx, "3") }},
		{name: "delete subject", run: func(c *Coordinator) Outcome { return c.DeleteSubject(ctx, "5") }},
		{name: "assign", run: func(c *Coordinator) Outcome { return c.AssignSubjectToGrade(ctx, "7", "2") }},
		{name: "unassign", run: func(c *Coordinator) Outcome { return c.RemoveSubjectFromGrade(ctx, "3", "6") }},
	}
	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.fail = failure
			c, notified := newTestCoordinator(t, gw, confirmAll(true))
			before, version := c.Store().Snapshot(), c.Store().Version()

			out := tt.run(c)
			if out.State != StateFailed {
				t.Errorf("outcome state = %v, want failed", out.State)
			}
			if f, ok := AsGatewayFailure(out.Err); !ok || f != failure {
				t.Errorf("outcome error = %v, want the gateway failure unchanged", out.Err)
			}
			if diff := diffSnapshots(t, before, c.Store().Snapshot()); diff != "" {
				t.Errorf("failed mutation changed the store:\n%s", diff)
			}
			if c.Store().Version() != version {
				t.Errorf("failed mutation bumped the store version")
			}
			if len(notified.list) != 1 || notified.list[0].State != StateFailed {
				t.Errorf("notified = %+v, want one failed outcome", notified.list)
			}
		})
	}
}

func TestCoordinator_Cancelled(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	c, _ := newTestCoordinator(t, gw, confirmAll(false))
	before := c.Store().Snapshot()

	for _, out := range []Outcome{
		c.DeleteGrade(ctx, "3"),
		c.DeleteSubject(ctx, "5"),
		c.AssignSubjectToGrade(ctx, "7", "2"),
		c.RemoveSubjectFromGrade(ctx, "3", "6"),
	} {
		if out.State != StateCancelled || out.Err != nil {
			t.Errorf("%s outcome = %+v, want cancelled", out.Action, out)
		}
	}
	if calls := gw.Calls(); len(calls) != 0 {
		t.Errorf("gateway calls = %v, want none", calls)
	}
	if diff := diffSnapshots(t, before, c.Store().Snapshot()); diff != "" {
		t.Errorf("cancelled mutations changed the store:\n%s", diff)
	}

	// create and rename do not ask
	if out := c.RenameGrade(ctx, "2", "Khối mười"); !out.Applied() {
		t.Errorf("RenameGrade() = %+v, want applied without confirmation", out)
	}
}

func TestCoordinator_ConfirmError(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestCoordinator(t, gw, ConfirmFunc(func(context.Context, Prompt) (bool, error) {
		return false, errors.New("stdin closed")
	}))
	out := c.DeleteGrade(context.Background(), "3")
	if out.State != StateFailed || out.Err == nil {
		t.Errorf("DeleteGrade() = %+v, want failed", out)
	}
	if calls := gw.Calls(); len(calls) != 0 {
		t.Errorf("gateway calls = %v, want none", calls)
	}
}

func TestCoordinator_Create(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, newFakeGateway(), confirmAll(true))

	out := c.CreateGrade(ctx, "Khối 9")
	if !out.Applied() || out.GradeID != "101" {
		t.Fatalf("CreateGrade() = %+v", out)
	}
	want := GradeWithSubjects{ID: "101", Name: "Khối 9", Subjects: []Subject{}}
	if !reflect.DeepEqual(out.Grade, want) {
		t.Errorf("CreateGrade() grade = %+v, want %+v", out.Grade, want)
	}
	grades := c.Store().Grades()
	if last := grades[len(grades)-1]; !reflect.DeepEqual(last, want) {
		t.Errorf("last grade = %+v, want %+v", last, want)
	}

	out = c.CreateSubject(ctx, "Hóa")
	if !out.Applied() || out.Subject != (Subject{ID: "102", Name: "Hóa"}) {
		t.Fatalf("CreateSubject() = %+v", out)
	}
	if _, ok := c.Store().Subject("102"); !ok {
		t.Errorf("created subject missing from the catalog")
	}
}

func TestCoordinator_DeleteGrade(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeGateway(), confirmAll(true))
	if out := c.DeleteGrade(context.Background(), "3"); !out.Applied() {
		t.Fatalf("DeleteGrade() = %+v", out)
	}
	if _, ok := c.Store().Grade("3"); ok {
		t.Errorf("grade 3 still in the store")
	}
	if n := c.Store().GradeCountForSubject("6"); n != 0 {
		t.Errorf("subject 6 still counted in %d grades", n)
	}
}

func TestCoordinator_RemoveNonMember(t *testing.T) {
	gw := newFakeGateway()
	c, _ := newTestCoordinator(t, gw, confirmAll(true))
	before := c.Store().Snapshot()

	out := c.RemoveSubjectFromGrade(context.Background(), "2", "6")
	if !out.Applied() || out.Err != nil || out.Stale {
		t.Errorf("RemoveSubjectFromGrade() = %+v, want a clean success", out)
	}
	if calls := gw.Calls(); !reflect.DeepEqual(calls, []string{"UnassignSubject 6 2"}) {
		t.Errorf("gateway calls = %v", calls)
	}
	if diff := diffSnapshots(t, before, c.Store().Snapshot()); diff != "" {
		t.Errorf("removing a non-member changed the store:\n%s", diff)
	}
}

func TestCoordinator_StaleApply(t *testing.T) {
	gw := newFakeGateway()
	gw.snap.SubjectsOfGrades = gw.snap.SubjectsOfGrades[:3] // the server no longer has grade 4
	c, _ := newTestCoordinator(t, gw, confirmAll(true))

	out := c.DeleteGrade(context.Background(), "9")
	if !out.Applied() || !out.Stale {
		t.Fatalf("DeleteGrade() = %+v, want applied and stale", out)
	}
	if errors.Cause(out.Err) != ErrInconsistentState {
		t.Errorf("outcome error = %v, want ErrInconsistentState", out.Err)
	}
	if gw.fetches != 1 {
		t.Errorf("fetches = %d, want a re-fetch", gw.fetches)
	}
	if _, ok := c.Store().Grade("4"); ok {
		t.Errorf("store was not reloaded from the server")
	}
	if out.RefreshErr != nil {
		t.Errorf("outcome refresh error = %v", out.RefreshErr)
	}
}

func TestCoordinator_StaleApplyReloadFails(t *testing.T) {
	gw := newFakeGateway()
	errDown := errors.New("network down")
	gw.fetchErr = errDown
	c, notified := newTestCoordinator(t, gw, confirmAll(true))
	before := c.Store().Snapshot()

	out := c.DeleteGrade(context.Background(), "9")
	if !out.Applied() || !out.Stale {
		t.Fatalf("DeleteGrade() = %+v, want applied and stale", out)
	}
	if errors.Cause(out.Err) != ErrInconsistentState {
		t.Errorf("outcome error = %v, want ErrInconsistentState", out.Err)
	}
	if errors.Cause(out.RefreshErr) != errDown {
		t.Errorf("outcome refresh error = %v, want %v", out.RefreshErr, errDown)
	}
	if diff := diffSnapshots(t, before, c.Store().Snapshot()); diff != "" {
		t.Errorf("store changed although the reload failed:\n%s", diff)
	}
	if len(notified.list) != 1 || notified.list[0].RefreshErr == nil {
		t.Errorf("notified = %+v, want the refresh error", notified.list)
	}
}

func TestCoordinator_Transitions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		confirm bool
		run     func(c *Coordinator) Outcome
		want    []State
	}{
		{
			name:    "assign",
			confirm: true,
			run:     func(c *Coordinator) Outcome { return c.AssignSubjectToGrade(ctx, "7", "2") },
			want:    []State{StateIdle, StateValidating, StateConfirming, StateSubmitting, StateApplied},
		},
		{
			name:    "rename",
			confirm: true,
			run:     func(c *Coordinator) Outcome { return c.RenameSubject(ctx, "7", "Ngữ văn") },
			want:    []State{StateIdle, StateValidating, StateSubmitting, StateApplied},
		},
		{
			name:    "denied",
			confirm: true,
			run:     func(c *Coordinator) Outcome { return c.DeleteSubject(ctx, "1") },
			want:    []State{StateIdle, StateValidating, StateDenied},
		},
		{
			name:    "cancelled",
			confirm: false,
			run:     func(c *Coordinator) Outcome { return c.DeleteSubject(ctx, "7") },
			want:    []State{StateIdle, StateValidating, StateConfirming, StateCancelled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []State
			hook := WithTransitionHook(func(_ Action, s State) { got = append(got, s) })
			c, _ := newTestCoordinator(t, newFakeGateway(), confirmAll(tt.confirm), hook)
			tt.run(c)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("transitions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoordinator_Busy(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	entered, release := make(chan struct{}), make(chan struct{})
	gw.hook = func(call string) {
		if call == "UpdateSubject 5 Sinh" {
			close(entered)
			<-release
		}
	}
	c, _ := newTestCoordinator(t, gw, confirmAll(true))

	done := make(chan Outcome)
	go func() { done <- c.RenameSubject(ctx, "5", "Sinh") }()
	<-entered

	if out := c.DeleteSubject(ctx, "5"); out.State != StateFailed || out.Err != ErrBusy {
		t.Errorf("DeleteSubject() while renaming = %+v, want ErrBusy", out)
	}
	if out := c.AssignSubjectToGrade(ctx, "5", "2"); out.Err != ErrBusy {
		t.Errorf("AssignSubjectToGrade() while renaming = %+v, want ErrBusy", out)
	}
	// unrelated entities are not held up
	if out := c.RenameGrade(ctx, "2", "Khối mười"); !out.Applied() {
		t.Errorf("RenameGrade() while renaming a subject = %+v, want applied", out)
	}

	close(release)
	if out := <-done; !out.Applied() {
		t.Errorf("RenameSubject() = %+v, want applied", out)
	}
	if out := c.DeleteSubject(ctx, "5"); !out.Applied() {
		t.Errorf("DeleteSubject() after the rename = %+v, want applied", out)
	}
}

// Readers must see a deleted subject either everywhere or nowhere.
func TestCoordinator_DeleteSubjectIsAtomic(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeGateway(), confirmAll(true))
	store := c.Store()

	var stop int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.LoadInt32(&stop) == 0 {
				snap := store.Snapshot()
				inCatalog := false
				for _, s := range snap.Subjects {
					inCatalog = inCatalog || s.ID == "5"
				}
				members := 0
				for _, g := range snap.SubjectsOfGrades {
					if g.HasSubject("5") {
						members++
					}
				}
				if (inCatalog && members != 2) || (!inCatalog && members != 0) {
					t.Errorf("partial fan-out observed: catalog=%v members=%d", inCatalog, members)
					return
				}
			}
		}()
	}

	out := c.DeleteSubject(context.Background(), "5")
	atomic.StoreInt32(&stop, 1)
	wg.Wait()
	if !out.Applied() {
		t.Errorf("DeleteSubject() = %+v", out)
	}
}

func TestCoordinator_RandomAssignments(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, newFakeGateway(), confirmAll(true))
	rnd := rand.New(rand.NewSource(42))
	ids := []string{"1", "2", "3", "4", "5", "6", "7"}

	for i := 0; i < 300; i++ {
		subjectID, gradeID := ids[rnd.Intn(len(ids))], ids[rnd.Intn(len(ids))]
		switch rnd.Intn(4) {
		case 0:
			c.RemoveSubjectFromGrade(ctx, gradeID, subjectID)
		case 1:
			c.RenameSubject(ctx, subjectID, fmt.Sprint("subject ", i))
		default:
			c.AssignSubjectToGrade(ctx, subjectID, gradeID)
		}
		checkInvariants(t, c.Store().Snapshot())
		if t.Failed() {
			t.Fatalf("invariants broken after step %d", i)
		}
	}
}
