package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, a)
		},
	}
}

func execPrintConfig(io *IO, a *app) error {
	cfg := a.cfg

	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("graph_url=" + cfg.GraphURL)
	io.Println("inventory_url=" + cfg.InventoryURL)
	io.Println("page_size=" + strconv.Itoa(cfg.PageSize))
	io.Println("state_dir=" + cfg.StateDirAbs)
	io.Println("state_backend=" + cfg.StateBackend)
	io.Println("board_field=" + cfg.BoardField)

	if len(cfg.BoardColumns) > 0 {
		io.Println("board_columns=" + strings.Join(cfg.BoardColumns, ","))
	}

	io.Println("request_timeout=" + cfg.RequestTimeout.Std().String())
	io.Println("log_level=" + cfg.LogLevel)

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
