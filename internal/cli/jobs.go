package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/internal/model"
)

// JobsCmd returns the jobs command.
func JobsCmd(a *app) *Command {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	addFilterFlags(fs)
	addLoadFlags(fs)
	addFormatFlag(fs)

	return &Command{
		Flags: fs,
		Usage: "jobs [flags]",
		Group: groupScreens,
		Short: "List jobs with their checklist",
		Long: `List jobs with their tasks in due date order.

Filter flags replace the saved filter of the checklist and are remembered
for the next run. Without filter flags the saved filter applies.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execJobs(ctx, o, a, fs)
		},
	}
}

func execJobs(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	format, err := formatFlag(fs)
	if err != nil {
		return err
	}

	s, err := a.Checklist(ctx)
	if err != nil {
		return err
	}

	err = openScreen(ctx, o, s, fs)
	if err != nil {
		return err
	}

	if format != formatText {
		jobs := s.Records()
		if jobs == nil {
			jobs = []model.Job{}
		}

		return writeStructured(o, format, jobs)
	}

	renderChecklist(o, s)

	return nil
}

// BoardCmd returns the board command.
func BoardCmd(a *app) *Command {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	addFilterFlags(fs)
	addLoadFlags(fs)
	addFormatFlag(fs)

	return &Command{
		Flags: fs,
		Usage: "board [flags]",
		Group: groupScreens,
		Short: "Show jobs grouped into board columns",
		Long: `Show jobs grouped by the board field (board_field, default "status").

Columns listed in board_columns come first, even when empty. Jobs with an
empty value are shown under "Unassigned".`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execBoard(ctx, o, a, fs)
		},
	}
}

func execBoard(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	format, err := formatFlag(fs)
	if err != nil {
		return err
	}

	s, err := a.Board(ctx)
	if err != nil {
		return err
	}

	err = openScreen(ctx, o, s, fs)
	if err != nil {
		return err
	}

	if format != formatText {
		return writeStructured(o, format, boardColumns(s))
	}

	renderBoard(o, s)

	return nil
}
