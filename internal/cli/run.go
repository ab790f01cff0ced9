// Package cli implements the opsync command line: one-shot commands over the
// job and inventory backends plus an interactive console.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calvinalkan/opsync/internal/config"
)

const helpFlag = "--help"

var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
	errUnknownCommand  = errors.New("unknown command")
)

// Run is the main entry point. Returns exit code.
//
// The first signal received on sigCh cancels the running command. sigCh may be nil.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	if len(args) < 2 {
		printUsage(o, commands(nil))

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		o.Error(err)

		return 1
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == "-h" || flags.remaining[0] == helpFlag {
		printUsage(o, commands(nil))

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		Overrides:       flags.overrides,
		Env:             env,
	})
	if err != nil {
		o.Error(err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := newApp(cfg, in, errOut)

	defer func() {
		closeErr := a.Close()
		if closeErr != nil {
			o.Error(closeErr)
		}
	}()

	name := flags.remaining[0]

	for _, cmd := range commands(a) {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, flags.remaining[1:])
		}
	}

	o.Error(fmt.Errorf("%w: %s", errUnknownCommand, name))
	printUsage(o, commands(nil))

	return 1
}

// commands lists every command. a may be nil when only help is printed.
func commands(a *app) []*Command {
	return []*Command{
		JobsCmd(a),
		BoardCmd(a),
		ItemsCmd(a),
		SetCmd(a),
		MoveCmd(a),
		CheckCmd(a),
		ItemSetCmd(a),
		MinimizeCmd(a),
		ConsoleCmd(a),
		PrintConfigCmd(a),
	}
}

func printUsage(o *IO, cmds []*Command) {
	o.Println(`opsync - job board and inventory console

Usage: opsync [options] <command> [args]

Options:
  -C, --cwd <dir>           Run as if started in <dir>
  -c, --config <file>       Use specified config file
  --graph-url <url>         Job backend base URL
  --inventory-url <url>     Inventory backend base URL
  --state-backend <name>    Local state store (file|sqlite|memory)
  --log-level <level>       debug|info|warn|error
`)

	helpSections(o, cmds)
}

type globalFlags struct {
	workDir    string
	configPath string
	overrides  config.Overrides
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	targets := []struct {
		short, long string
		dst         *string
	}{
		{"-C", "--cwd", &flags.workDir},
		{"-c", "--config", &flags.configPath},
		{"", "--graph-url", &flags.overrides.GraphURL},
		{"", "--inventory-url", &flags.overrides.InventoryURL},
		{"", "--state-backend", &flags.overrides.StateBackend},
		{"", "--log-level", &flags.overrides.LogLevel},
	}

	idx := 0

	for idx < len(args) {
		arg := args[idx]

		if arg == "-h" || arg == helpFlag {
			flags.remaining = []string{helpFlag}

			return flags, nil
		}

		if !strings.HasPrefix(arg, "-") || arg == "-" {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			return flags, nil
		}

		consumed := 0

		for _, target := range targets {
			if arg == target.long || (target.short != "" && arg == target.short) {
				if idx+1 >= len(args) {
					return globalFlags{}, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
				}

				*target.dst = args[idx+1]
				consumed = 2

				break
			}

			if after, ok := strings.CutPrefix(arg, target.long+"="); ok {
				*target.dst = after
				consumed = 1

				break
			}
		}

		if consumed == 0 {
			return globalFlags{}, fmt.Errorf("%w: %s", errUnknownFlag, arg)
		}

		idx += consumed
	}

	return flags, nil
}
