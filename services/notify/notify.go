package notify

import (
	"fmt"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
)

const failureTemplate = "mutation_failure"

func init() {
	core.MustRegisterEmailTemplate(failureTemplate,
		`The change "{{.Action}}" failed.
{{if .GradeID}}Grade: {{.GradeID}}
{{end}}{{if .SubjectID}}Subject: {{.SubjectID}}
{{end}}Error: {{.Err}}
`,
		`<p>The change <b>{{.Action}}</b> failed.</p>
<ul>{{if .GradeID}}<li>Grade: {{.GradeID}}</li>{{end}}{{if .SubjectID}}<li>Subject: {{.SubjectID}}</li>{{end}}<li>Error: {{.Err}}</li></ul>
`)
}

var actionLabels = map[catalog.Action]string{
	catalog.ActionCreateGrade:   "create grade",
	catalog.ActionCreateSubject: "create subject",
	catalog.ActionRenameGrade:   "rename grade",
	catalog.ActionRenameSubject: "rename subject",
	catalog.ActionDeleteGrade:   "delete grade",
	catalog.ActionDeleteSubject: "delete subject",
	catalog.ActionAssign:        "add subject to grade",
	catalog.ActionUnassign:      "remove subject from grade",
	catalog.ActionRefresh:       "refresh",
}

var denialMessages = map[catalog.DenialReason]string{
	catalog.ReasonDefaultGrade:    "subjects cannot be added to or removed from the default grade",
	catalog.ReasonDefaultSubject:  "the default subject cannot be added to a grade",
	catalog.ReasonAlreadyAssigned: "the subject already belongs to this grade",
	catalog.ReasonProtected:       "the default grade and subject cannot be renamed or deleted",
}

func label(a catalog.Action) string {
	if l, ok := actionLabels[a]; ok {
		return l
	}
	return string(a)
}

// Describe renders an outcome as a one-line, human readable message.
func Describe(o catalog.Outcome) string {
	switch o.State {
	case catalog.StateApplied:
		if o.Stale && o.RefreshErr != nil {
			return fmt.Sprintf("%s: done on the server, reloading local data failed, %v", label(o.Action), o.RefreshErr)
		}
		if o.Stale {
			return fmt.Sprintf("%s: done on the server, local data reloaded", label(o.Action))
		}
		return fmt.Sprintf("%s: done", label(o.Action))
	case catalog.StateDenied:
		msg, ok := denialMessages[o.Reason]
		if !ok {
			msg = string(o.Reason)
		}
		return fmt.Sprintf("%s: not allowed, %s", label(o.Action), msg)
	case catalog.StateCancelled:
		return fmt.Sprintf("%s: cancelled", label(o.Action))
	case catalog.StateFailed:
		if f, ok := catalog.AsGatewayFailure(o.Err); ok && f.Message != "" {
			return fmt.Sprintf("%s: failed, %s", label(o.Action), f.Message)
		}
		return fmt.Sprintf("%s: failed, %v", label(o.Action), o.Err)
	default:
		return fmt.Sprintf("%s: %s", label(o.Action), o.State)
	}
}

func fields(o catalog.Outcome) core.Fields {
	f := core.Fields{"action": string(o.Action), "state": o.State.String()}
	if o.GradeID != "" {
		f["grade"] = o.GradeID
	}
	if o.SubjectID != "" {
		f["subject"] = o.SubjectID
	}
	if o.Reason != "" {
		f["reason"] = string(o.Reason)
	}
	return f
}

// Console writes every outcome to w.
type Console struct {
	w io.Writer
}

var _ catalog.Notifier = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Notify(o catalog.Outcome) {
	_, _ = fmt.Fprintln(c.w, Describe(o))
}

// Logging reports outcomes to a logger; the level follows the outcome state.
type Logging struct {
	logger core.Logger
}

var _ catalog.Notifier = (*Logging)(nil)

func NewLogging(logger core.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Notify(o catalog.Outcome) {
	msg := Describe(o)
	switch {
	case o.State == catalog.StateFailed:
		l.logger.Error(msg, o.Err, fields(o))
	case o.Stale && o.RefreshErr != nil:
		l.logger.Error(msg, o.RefreshErr, fields(o))
	case o.Stale:
		l.logger.Warn(msg, o.Err, fields(o))
	case o.State == catalog.StateDenied:
		l.logger.Info(msg, fields(o))
	default:
		l.logger.Debug(msg, fields(o))
	}
}

// Mail e-mails a report of every failed outcome.
type Mail struct {
	svc core.EmailService
	to  []mail.Address
}

var _ catalog.Notifier = (*Mail)(nil)

func NewMail(svc core.EmailService, recipients []string) (*Mail, error) {
	to := make([]mail.Address, 0, len(recipients))
	for _, r := range recipients {
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing recipient %q", r)
		}
		to = append(to, *addr)
	}
	return &Mail{svc: svc, to: to}, nil
}

func (m *Mail) Notify(o catalog.Outcome) {
	if o.State != catalog.StateFailed || len(m.to) == 0 {
		return
	}
	m.svc.SendMessages(&core.EmailMessage{
		To:           m.to,
		Subject:      "Failed change: " + label(o.Action),
		TemplateName: failureTemplate,
		TemplateData: struct {
			Action    string
			GradeID   string
			SubjectID string
			Err       string
		}{label(o.Action), o.GradeID, o.SubjectID, fmt.Sprint(o.Err)},
	})
}

// Multi fans an outcome out to several notifiers, in order.
type Multi []catalog.Notifier

var _ catalog.Notifier = Multi{}

func (m Multi) Notify(o catalog.Outcome) {
	for _, n := range m {
		if n != nil {
			n.Notify(o)
		}
	}
}
