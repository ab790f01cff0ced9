package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

var errArgs = errors.New("wrong number of arguments")

// Help groups, in listing order.
const (
	groupScreens = "Screens"
	groupEdits   = "Edits"
	groupOther   = "Other"
)

var groupOrder = []string{groupScreens, groupEdits, groupOther}

// ArgsRule validates the positional arguments left after flag parsing.
type ArgsRule func(args []string) error

func exactArgs(n int) ArgsRule {
	return rangeArgs(n, n)
}

func minArgs(n int) ArgsRule {
	return rangeArgs(n, -1)
}

// rangeArgs accepts lo..hi arguments; a negative hi is unbounded.
func rangeArgs(lo, hi int) ArgsRule {
	return func(args []string) error {
		got := len(args)

		switch {
		case got >= lo && (hi < 0 || got <= hi):
			return nil
		case lo == hi:
			return fmt.Errorf("%w: want %d, got %d", errArgs, lo, got)
		case hi < 0:
			return fmt.Errorf("%w: want at least %d, got %d", errArgs, lo, got)
		default:
			return fmt.Errorf("%w: want %d to %d, got %d", errArgs, lo, hi, got)
		}
	}
}

// Command is one opsync subcommand: its flags, help text and handler.
type Command struct {
	// Flags holds the command's own flags. Global flags are parsed by Run
	// before the command is looked up.
	Flags *flag.FlagSet

	// Usage is shown after "opsync" in help. Its first word is the command name.
	Usage string

	// Short is the line in the command listing; Long the text of
	// "opsync <cmd> --help", defaulting to Short.
	Short string
	Long  string

	// Group places the command in the listing. Empty means [groupOther].
	Group string

	// Args checks positional arguments before Exec runs. Nil accepts none.
	Args ArgsRule

	// Exec runs the command after flags and arguments are checked.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

func (c *Command) group() string {
	if c.Group == "" {
		return groupOther
	}

	return c.Group
}

// HelpLine returns the command's line in the listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// helpSections writes the command listing grouped by [Command.Group].
func helpSections(o *IO, cmds []*Command) {
	for i, group := range groupOrder {
		var lines []string

		for _, cmd := range cmds {
			if cmd.group() == group {
				lines = append(lines, cmd.HelpLine())
			}
		}

		if len(lines) == 0 {
			continue
		}

		if i > 0 {
			o.Println()
		}

		o.Println(group + ":")

		for _, line := range lines {
			o.Println(line)
		}
	}
}

// PrintHelp prints the full help output for "opsync <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: opsync", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// usageError reports err followed by the command help on stderr-bound output.
func (c *Command) usageError(o *IO, err error) int {
	o.Error(err)
	o.ErrPrintln()
	c.PrintHelp(o)

	return 1
}

// Run parses flags, checks arguments and executes the command. It returns the
// exit code; warnings collected on o make an otherwise successful run exit 1.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // pflag prints nothing itself

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)

		return o.Finish()
	}

	if err != nil {
		return c.usageError(o, err)
	}

	rule := c.Args
	if rule == nil {
		rule = exactArgs(0)
	}

	err = rule(c.Flags.Args())
	if err != nil {
		return c.usageError(o, fmt.Errorf("%s: %w", c.Name(), err))
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.Error(err)

		return 1
	}

	return o.Finish()
}
