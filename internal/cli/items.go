package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/internal/model"
)

// ItemsCmd returns the items command.
func ItemsCmd(a *app) *Command {
	fs := flag.NewFlagSet("items", flag.ContinueOnError)
	addFilterFlags(fs)
	addLoadFlags(fs)
	addFormatFlag(fs)

	return &Command{
		Flags: fs,
		Usage: "items [flags]",
		Group: groupScreens,
		Short: "List inventory items",
		Long: `List inventory items, most recently updated first.

Filter flags are sent as list query parameters and are remembered for the
next run.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execItems(ctx, o, a, fs)
		},
	}
}

func execItems(ctx context.Context, o *IO, a *app, fs *flag.FlagSet) error {
	format, err := formatFlag(fs)
	if err != nil {
		return err
	}

	s, err := a.Items(ctx)
	if err != nil {
		return err
	}

	err = openScreen(ctx, o, s, fs)
	if err != nil {
		return err
	}

	if format != formatText {
		items := s.Records()
		if items == nil {
			items = []model.Item{}
		}

		return writeStructured(o, format, items)
	}

	renderItems(o, s)

	return nil
}
