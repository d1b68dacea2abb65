package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
)

var (
	isTerminalFunc = term.IsTerminal // mockable
	stdinFd        = int(os.Stdin.Fd())

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	gw         catalog.Gateway
	notifier   catalog.Notifier
	validate   *validator.Validate
	translator core.Translator
	openDB     func(conf *core.Config) (*sqlx.DB, error)

	in  *bufio.Reader
	out io.Writer
	yes bool
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage: admin [-yes] COMMAND [flags]")
	fmt.Fprintln(cli.out, "  grades [-page N]                    - list grades with their subjects")
	fmt.Fprintln(cli.out, "  subjects [-page N]                  - list subjects with their grade count")
	fmt.Fprintln(cli.out, "  assignable -grade ID                - list the subjects a grade can take")
	fmt.Fprintln(cli.out, "  grade create -name NAME             - create a grade")
	fmt.Fprintln(cli.out, "  grade rename -id ID -name NAME      - rename a grade")
	fmt.Fprintln(cli.out, "  grade delete -id ID                 - delete a grade")
	fmt.Fprintln(cli.out, "  subject create -name NAME           - create a subject")
	fmt.Fprintln(cli.out, "  subject rename -id ID -name NAME    - rename a subject")
	fmt.Fprintln(cli.out, "  subject delete -id ID               - delete a subject and remove it from every grade")
	fmt.Fprintln(cli.out, "  assign -subject ID -grade ID        - add a subject to a grade")
	fmt.Fprintln(cli.out, "  unassign -subject ID -grade ID      - remove a subject from a grade")
	fmt.Fprintln(cli.out, "  migrate COMMAND [args]              - run a database migration command (up, down, status...)")
	fmt.Fprintln(cli.out, "Deletions and membership changes ask for confirmation; -yes confirms them all.")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args into fs, returning errHelp when a required flag is empty.
func (cli *commandLine) parse(fs *flag.FlagSet, args []string, required ...*string) error {
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	for _, r := range required {
		if strings.TrimSpace(*r) == "" {
			fs.Usage()
			return errHelp
		}
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	global := cli.newFlagSet("admin")
	global.Usage = cli.printUsage
	yes := global.Bool("yes", false, "Confirm every change without asking.")
	if err := global.Parse(args[1:]); err != nil {
		return errHelp
	}
	cli.yes = *yes

	rest := global.Args()
	if len(rest) == 0 {
		cli.printUsage()
		return errHelp
	}

	ctx := context.Background()
	switch rest[0] {
	case "grades":
		return cli.listGrades(ctx, rest[1:])
	case "subjects":
		return cli.listSubjects(ctx, rest[1:])
	case "assignable":
		return cli.listAssignable(ctx, rest[1:])
	case "grade":
		return cli.grade(ctx, rest[1:])
	case "subject":
		return cli.subject(ctx, rest[1:])
	case "assign":
		return cli.assign(ctx, rest[1:])
	case "unassign":
		return cli.unassign(ctx, rest[1:])
	case "migrate":
		if len(rest) < 2 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(rest[1:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks the operator on the terminal. Without a terminal, only -yes confirms.
func (cli *commandLine) confirm(_ context.Context, p catalog.Prompt) (bool, error) {
	question := promptQuestion(p)
	if cli.yes {
		return true, nil
	}
	if !isTerminalFunc(stdinFd) {
		fmt.Fprintf(cli.out, "%s\nnot a terminal: re-run with -yes to confirm\n", question)
		return false, nil
	}

	fmt.Fprintf(cli.out, "%s [y/N] ", question)
	answer, err := cli.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func displayName(name, id string) string {
	if name == "" {
		return "#" + id
	}
	return fmt.Sprintf("%q", name)
}

func promptQuestion(p catalog.Prompt) string {
	grade := displayName(p.GradeName, p.GradeID)
	subject := displayName(p.SubjectName, p.SubjectID)
	switch p.Action {
	case catalog.ActionDeleteGrade:
		return fmt.Sprintf("Delete grade %s?", grade)
	case catalog.ActionDeleteSubject:
		return fmt.Sprintf("Delete subject %s and remove it from every grade?", subject)
	case catalog.ActionAssign:
		return fmt.Sprintf("Add subject %s to grade %s?", subject, grade)
	case catalog.ActionUnassign:
		return fmt.Sprintf("Remove subject %s from grade %s?", subject, grade)
	default:
		return fmt.Sprintf("Confirm %s?", p.Action)
	}
}
