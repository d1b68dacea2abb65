package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/examprep/examadmin/apps"
	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/paging"
)

// coordinator returns a coordinator over a freshly fetched store.
func (cli *commandLine) coordinator(ctx context.Context) (*catalog.Coordinator, error) {
	coord, err := catalog.NewCoordinator(catalog.NewStore(), cli.gw, catalog.ConfirmFunc(cli.confirm), cli.notifier)
	if err != nil {
		return nil, errors.Wrap(err, "creating coordinator")
	}
	if err = coord.Refresh(ctx); err != nil {
		return nil, err
	}
	return coord, nil
}

// finish turns an outcome into the command result: only failures are errors.
func (cli *commandLine) finish(o catalog.Outcome) error {
	if o.State == catalog.StateFailed {
		return errors.Wrap(o.Err, strings.ReplaceAll(string(o.Action), "_", " "))
	}
	return nil
}

// open checks that an editor may be opened for req; denials are reported as outcomes.
func (cli *commandLine) open(coord *catalog.Coordinator, action catalog.Action, req catalog.Request) (bool, error) {
	err := coord.Open(req)
	if err == nil {
		return true, nil
	}
	if d, ok := catalog.AsDenial(err); ok {
		cli.notifier.Notify(catalog.Outcome{Action: action, State: catalog.StateDenied, Reason: d.Reason, Err: d})
		return false, nil
	}
	return false, err
}

func (cli *commandLine) checkName(name string) error {
	err := cli.validate.Struct(catalog.NameInput{Name: name})
	if err == nil {
		return nil
	}
	if flds, ok := core.FieldErrors(err, cli.translator); ok {
		return apps.NewArgumentError(flds[0].Field + ": " + flds[0].Error)
	}
	return err
}

// submit validates name and runs req through the coordinator.
func (cli *commandLine) submit(ctx context.Context, action catalog.Action, req catalog.Request, value string) error {
	coord, err := cli.coordinator(ctx)
	if err != nil {
		return err
	}
	ok, err := cli.open(coord, action, req)
	if !ok {
		return err
	}
	if _, isAssign := req.(catalog.AddSubjectToGrade); !isAssign {
		if err = cli.checkName(value); err != nil {
			return err
		}
	}
	return cli.finish(coord.Submit(ctx, req, value))
}

// Listing

func (cli *commandLine) pageFlag(name string, args []string) (int, error) {
	fs := cli.newFlagSet(name)
	page := fs.Int("page", 1, "The page to show.")
	if err := cli.parse(fs, args); err != nil {
		return 0, err
	}
	return *page, nil
}

func (cli *commandLine) printStrip(pg paging.Page) {
	strip := paging.VisiblePages(pg.Page, pg.TotalPages, cli.conf.Paging.VisiblePages)
	parts := make([]string, 0, len(strip))
	for _, p := range strip {
		switch p {
		case paging.Ellipsis:
			parts = append(parts, "...")
		case pg.Page:
			parts = append(parts, "["+strconv.Itoa(p)+"]")
		default:
			parts = append(parts, strconv.Itoa(p))
		}
	}
	fmt.Fprintf(cli.out, "page %d/%d (%d of %d): %s\n", pg.Page, max(pg.TotalPages, 1), pg.Count, pg.Total, strings.Join(parts, " "))
}

func (cli *commandLine) listGrades(ctx context.Context, args []string) error {
	page, err := cli.pageFlag("grades", args)
	if err != nil {
		return err
	}
	coord, err := cli.coordinator(ctx)
	if err != nil {
		return err
	}

	grades, pg := paging.Slice(coord.Store().Grades(), cli.conf.Paging.GradePageSize, page)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGRADE\tSUBJECTS")
	for _, g := range grades {
		names := make([]string, 0, len(g.Subjects))
		for _, s := range g.Subjects {
			names = append(names, s.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Name, strings.Join(names, ", "))
	}
	if err = w.Flush(); err != nil {
		return err
	}
	cli.printStrip(pg)
	return nil
}

func (cli *commandLine) listSubjects(ctx context.Context, args []string) error {
	page, err := cli.pageFlag("subjects", args)
	if err != nil {
		return err
	}
	coord, err := cli.coordinator(ctx)
	if err != nil {
		return err
	}

	store := coord.Store()
	subjects, pg := paging.Slice(store.Subjects(), cli.conf.Paging.SubjectPageSize, page)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tGRADES")
	for _, s := range subjects {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.ID, s.Name, store.GradeCountForSubject(s.ID))
	}
	if err = w.Flush(); err != nil {
		return err
	}
	cli.printStrip(pg)
	return nil
}

func (cli *commandLine) listAssignable(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("assignable")
	gradeID := fs.String("grade", "", "The grade ID.")
	if err := cli.parse(fs, args, gradeID); err != nil {
		return err
	}
	coord, err := cli.coordinator(ctx)
	if err != nil {
		return err
	}
	ok, err := cli.open(coord, catalog.ActionAssign, catalog.AddSubjectToGrade{GradeID: *gradeID})
	if !ok {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT")
	for _, s := range coord.Store().AssignableSubjects(*gradeID) {
		fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Name)
	}
	return w.Flush()
}

// Mutations

func (cli *commandLine) grade(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}

	fs := cli.newFlagSet("grade " + args[0])
	id := fs.String("id", "", "The grade ID.")
	name := fs.String("name", "", "The grade name.")

	switch args[0] {
	case "create":
		if err := cli.parse(fs, args[1:], name); err != nil {
			return err
		}
		return cli.submit(ctx, catalog.ActionCreateGrade, catalog.AddGrade{}, *name)
	case "rename":
		if err := cli.parse(fs, args[1:], id, name); err != nil {
			return err
		}
		return cli.submit(ctx, catalog.ActionRenameGrade, catalog.EditGrade{Grade: catalog.Grade{ID: *id}}, *name)
	case "delete":
		if err := cli.parse(fs, args[1:], id); err != nil {
			return err
		}
		coord, err := cli.coordinator(ctx)
		if err != nil {
			return err
		}
		return cli.finish(coord.DeleteGrade(ctx, *id))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) subject(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}

	fs := cli.newFlagSet("subject " + args[0])
	id := fs.String("id", "", "The subject ID.")
	name := fs.String("name", "", "The subject name.")

	switch args[0] {
	case "create":
		if err := cli.parse(fs, args[1:], name); err != nil {
			return err
		}
		return cli.submit(ctx, catalog.ActionCreateSubject, catalog.AddSubject{}, *name)
	case "rename":
		if err := cli.parse(fs, args[1:], id, name); err != nil {
			return err
		}
		return cli.submit(ctx, catalog.ActionRenameSubject, catalog.EditSubject{Subject: catalog.Subject{ID: *id}}, *name)
	case "delete":
		if err := cli.parse(fs, args[1:], id); err != nil {
			return err
		}
		coord, err := cli.coordinator(ctx)
		if err != nil {
			return err
		}
		return cli.finish(coord.DeleteSubject(ctx, *id))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) membershipFlags(name string, args []string) (subjectID, gradeID string, err error) {
	fs := cli.newFlagSet(name)
	subject := fs.String("subject", "", "The subject ID.")
	grade := fs.String("grade", "", "The grade ID.")
	if err = cli.parse(fs, args, subject, grade); err != nil {
		return "", "", err
	}
	return *subject, *grade, nil
}

func (cli *commandLine) assign(ctx context.Context, args []string) error {
	subjectID, gradeID, err := cli.membershipFlags("assign", args)
	if err != nil {
		return err
	}
	return cli.submit(ctx, catalog.ActionAssign, catalog.AddSubjectToGrade{GradeID: gradeID}, subjectID)
}

func (cli *commandLine) unassign(ctx context.Context, args []string) error {
	subjectID, gradeID, err := cli.membershipFlags("unassign", args)
	if err != nil {
		return err
	}
	coord, err := cli.coordinator(ctx)
	if err != nil {
		return err
	}
	return cli.finish(coord.RemoveSubjectFromGrade(ctx, gradeID, subjectID))
}
