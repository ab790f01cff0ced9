package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/internal/screen"
	"github.com/calvinalkan/opsync/pkg/selection"
)

// MinimizeCmd returns the minimize command.
func MinimizeCmd(a *app) *Command {
	fs := flag.NewFlagSet("minimize", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "minimize <screen> [row]...",
		Group: groupEdits,
		Args:  minArgs(1),
		Short: "Toggle collapsed rows of a screen",
		Long: `Toggle rows of a screen (checklist, board or items) between minimized and
expanded, then list the minimized rows. A row is <id> or <job-id>/<task-id>.
Without rows only the list is printed. Rows of records that no longer exist
are dropped.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			sel, err := openSelection(ctx, a, args[0])
			if err != nil {
				return err
			}

			for _, raw := range args[1:] {
				err = sel.ToggleMinimize(ctx, selection.ParseKey(raw))
				if err != nil {
					return err
				}
			}

			for _, k := range sel.Minimized() {
				o.Println(k.String())
			}

			return nil
		},
	}
}

// openSelection opens the named screen and returns its selection engine.
func openSelection(ctx context.Context, a *app, name string) (*selection.Engine, error) {
	switch name {
	case screen.Checklist, screen.Board:
		open := a.Checklist
		if name == screen.Board {
			open = a.Board
		}

		s, err := open(ctx)
		if err != nil {
			return nil, err
		}

		err = s.Open(ctx)
		if err != nil {
			return nil, err
		}

		return s.Selection(), nil
	case screen.Items:
		s, err := a.Items(ctx)
		if err != nil {
			return nil, err
		}

		err = s.Open(ctx)
		if err != nil {
			return nil, err
		}

		return s.Selection(), nil
	default:
		return nil, fmt.Errorf("unknown screen %q: want %s, %s or %s", name, screen.Checklist, screen.Board, screen.Items)
	}
}
