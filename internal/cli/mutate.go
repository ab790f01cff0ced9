package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/internal/model"
)

// SetCmd returns the set command.
func SetCmd(a *app) *Command {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "set <job-id> <field=value>...",
		Group: groupEdits,
		Args:  minArgs(2),
		Short: "Change job fields",
		Long: `Change one or more fields of a job. Unknown field names address custom
fields by id. If the backend rejects the change it is rolled back and the
command fails.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			set, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			s, err := a.Checklist(ctx)
			if err != nil {
				return err
			}

			err = s.Open(ctx)
			if err != nil {
				return err
			}

			_, err = s.Find(ctx, args[0])
			if err != nil {
				return err
			}

			job, err := s.Set(ctx, args[0], set)
			if err != nil {
				return err
			}

			o.Printf("%s [%s] %s\n", job.ID, job.Status, job.Name)

			return nil
		},
	}
}

// MoveCmd returns the move command.
func MoveCmd(a *app) *Command {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	fs.String("before", "", "Place the job in front of this job id")

	return &Command{
		Flags: fs,
		Usage: "move <job-id> <column> [flags]",
		Group: groupEdits,
		Args:  exactArgs(2),
		Short: "Move a job to another board column",
		Long: `Set the board field of a job to <column> and place it at the end of that
column, or in front of --before. A rejected move restores the column and the
position.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			before, _ := fs.GetString("before")

			s, err := a.Board(ctx)
			if err != nil {
				return err
			}

			err = s.Open(ctx)
			if err != nil {
				return err
			}

			for _, id := range []string{args[0], before} {
				if id == "" {
					continue
				}

				_, err = s.Find(ctx, id)
				if err != nil {
					return err
				}
			}

			_, err = s.MoveTo(ctx, args[0], args[1], before)
			if err != nil {
				return err
			}

			renderBoard(o, s)

			return nil
		},
	}
}

// CheckCmd returns the check command.
func CheckCmd(a *app) *Command {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.Bool("undo", false, "Uncheck instead")

	return &Command{
		Flags: fs,
		Usage: "check <job-id>/<task-id> [flags]",
		Group: groupEdits,
		Args:  exactArgs(1),
		Short: "Check off a task",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			jobID, taskID, ok := strings.Cut(args[0], "/")
			if !ok || jobID == "" || taskID == "" {
				return fmt.Errorf("invalid task %q: want <job-id>/<task-id>", args[0])
			}

			undo, _ := fs.GetBool("undo")

			s, err := a.Checklist(ctx)
			if err != nil {
				return err
			}

			err = s.Open(ctx)
			if err != nil {
				return err
			}

			_, err = s.Find(ctx, jobID)
			if err != nil {
				return err
			}

			job, err := s.SetTaskDone(ctx, jobID, taskID, !undo)
			if err != nil {
				return err
			}

			task, _ := job.Task(taskID)
			o.Println(formatTask("", task))

			return nil
		},
	}
}

// ItemSetCmd returns the item-set command.
func ItemSetCmd(a *app) *Command {
	fs := flag.NewFlagSet("item-set", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "item-set <item-id> <field=value>...",
		Group: groupEdits,
		Args:  minArgs(2),
		Short: "Change inventory item fields",
		Long: `Change one or more fields of an inventory item. A rejected change is
rolled back and the backend's validation messages are shown.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			set, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			if raw, ok := set[model.ItemQuantity]; ok {
				n, convErr := strconv.Atoi(fmt.Sprint(raw))
				if convErr != nil {
					return fmt.Errorf("invalid quantity %q: want an integer", raw)
				}

				set[model.ItemQuantity] = n
			}

			s, err := a.Items(ctx)
			if err != nil {
				return err
			}

			err = s.Open(ctx)
			if err != nil {
				return err
			}

			_, err = s.Find(ctx, args[0])
			if err != nil {
				return err
			}

			item, err := s.Set(ctx, args[0], set)
			if err != nil {
				return err
			}

			o.Printf("%s %s qty=%d location=%s\n", item.ID, item.Name, item.Quantity, item.Location)

			return nil
		},
	}
}
