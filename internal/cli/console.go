package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/internal/screen"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/query"
	"github.com/calvinalkan/opsync/pkg/selection"
)

const historyFileName = "console_history"

var consoleCommands = []string{
	"screen", "ls", "more",
	"search", "field", "sort", "clear",
	"click", "selected", "fold", "minimize", "restore",
	"set", "move", "check", "uncheck",
	"stats", "help", "quit", "exit",
}

// ConsoleCmd returns the console command.
func ConsoleCmd(a *app) *Command {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.String("screen", screen.Checklist, "Screen to start on (checklist|board|items)")

	return &Command{
		Flags: fs,
		Usage: "console [flags]",
		Short: "Interactive console with selection and live edits",
		Long: `Start an interactive session over the checklist, the board and the items
table. Edits show immediately and roll back if the backend rejects them.
Type 'help' inside the console for its commands.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			start, _ := fs.GetString("screen")

			c := &console{a: a, o: o, views: make(map[string]view)}

			err := c.switchTo(ctx, start)
			if err != nil {
				return err
			}

			return c.run(ctx)
		},
	}
}

// lineReader is the part of liner.State the console uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads commands from a non-terminal input without prompting.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	err := r.sc.Err()
	if err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

// view adapts one screen to the console.
type view interface {
	Name() string
	Selection() *selection.Engine
	Filter() query.FilterState
	SetFilter(ctx context.Context, filter query.FilterState) error
	Validate(filter query.FilterState) error
	More(ctx context.Context) (int, error)
	Click(k selection.Key, mod selection.Modifier)
	apply(ctx context.Context, id string, set collection.Fields) error
	render(o *IO)
}

type jobsView struct {
	*screen.Jobs

	board bool
}

func (v jobsView) apply(ctx context.Context, id string, set collection.Fields) error {
	_, err := v.Set(ctx, id, set)

	return err
}

func (v jobsView) render(o *IO) {
	if v.board {
		renderBoard(o, v.Jobs)

		return
	}

	renderChecklist(o, v.Jobs)
}

type itemsView struct {
	*screen.ItemTable
}

func (v itemsView) apply(ctx context.Context, id string, set collection.Fields) error {
	_, err := v.Set(ctx, id, set)

	return err
}

func (v itemsView) render(o *IO) { renderItems(o, v.ItemTable) }

type console struct {
	a     *app
	o     *IO
	views map[string]view
	cur   view
}

func (c *console) reader() (lineReader, func()) {
	in := c.a.in
	if in == nil {
		in = os.Stdin
	}

	if !isTerminal(in) || !liner.TerminalSupported() {
		return &scanReader{sc: bufio.NewScanner(in)}, func() {}
	}

	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	l.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range consoleCommands {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				out = append(out, cmd)
			}
		}

		return out
	})

	path := filepath.Join(c.a.cfg.StateDirAbs, historyFileName)

	if f, err := os.Open(path); err == nil {
		_, _ = l.ReadHistory(f)
		_ = f.Close()
	}

	save := func() {
		f, err := os.Create(path)
		if err != nil {
			return
		}

		_, _ = l.WriteHistory(f)
		_ = f.Close()
	}

	return l, save
}

func (c *console) run(ctx context.Context) error {
	r, saveHistory := c.reader()

	defer func() {
		saveHistory()
		_ = r.Close()
	}()

	for ctx.Err() == nil {
		line, err := r.Prompt(c.cur.Name() + "> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			return nil
		}

		err = c.dispatch(ctx, cmd, args)
		if err != nil {
			c.o.Error(err)
		}
	}

	return ctx.Err()
}

func (c *console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "screen":
		if len(args) != 1 {
			return fmt.Errorf("%w: screen <checklist|board|items>", errArgs)
		}

		err := c.switchTo(ctx, args[0])
		if err != nil {
			return err
		}

		c.cur.render(c.o)
	case "ls":
		c.cur.render(c.o)
	case "more":
		n, err := c.cur.More(ctx)
		if err != nil {
			return err
		}

		c.o.Printf("loaded %d\n", n)
	case "search", "field", "sort", "clear":
		return c.filter(ctx, cmd, args)
	case "click":
		return c.click(args)
	case "selected":
		for _, k := range c.cur.Selection().Selected() {
			c.o.Println(k.String())
		}
	case "fold":
		if len(args) != 1 {
			return fmt.Errorf("%w: fold <row>", errArgs)
		}

		return c.cur.Selection().ToggleMinimize(ctx, selection.ParseKey(args[0]))
	case "minimize":
		return c.cur.Selection().MinimizeSelected(ctx)
	case "restore":
		return c.cur.Selection().RestoreSelected(ctx)
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("%w: set <id> <field=value>...", errArgs)
		}

		set, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		return c.cur.apply(ctx, args[0], set)
	case "move":
		return c.move(ctx, args)
	case "check", "uncheck":
		return c.check(ctx, cmd == "check", args)
	case "stats":
		return c.stats()
	default:
		return fmt.Errorf("%w: %s (type 'help' for commands)", errUnknownCommand, cmd)
	}

	return nil
}

func (c *console) switchTo(ctx context.Context, name string) error {
	if v, ok := c.views[name]; ok {
		c.cur = v

		return nil
	}

	var v view

	switch name {
	case screen.Checklist, screen.Board:
		open := c.a.Checklist
		if name == screen.Board {
			open = c.a.Board
		}

		s, err := open(ctx)
		if err != nil {
			return err
		}

		err = s.Open(ctx)
		if err != nil {
			return err
		}

		v = jobsView{Jobs: s, board: name == screen.Board}
	case screen.Items:
		s, err := c.a.Items(ctx)
		if err != nil {
			return err
		}

		err = s.Open(ctx)
		if err != nil {
			return err
		}

		v = itemsView{ItemTable: s}
	default:
		return fmt.Errorf("unknown screen %q: want %s, %s or %s", name, screen.Checklist, screen.Board, screen.Items)
	}

	c.views[name] = v
	c.cur = v

	return nil
}

func (c *console) filter(ctx context.Context, cmd string, args []string) error {
	f := c.cur.Filter()

	switch cmd {
	case "search":
		f = f.WithSearch(strings.Join(args, " "))
	case "field":
		if len(args) < 1 {
			return fmt.Errorf("%w: field <key> [value]...", errArgs)
		}

		var err error

		f, err = f.WithField(args[0], args[1:]...)
		if err != nil {
			return err
		}
	case "sort":
		if len(args) != 1 {
			return fmt.Errorf("%w: sort <field[:asc|desc]>|default", errArgs)
		}

		if args[0] == "default" {
			f = f.WithSort(nil)

			break
		}

		s, err := query.ParseSort(args[0])
		if err != nil {
			return err
		}

		f = f.WithSort(&s)
	case "clear":
		f = query.FilterState{}
	}

	err := c.cur.SetFilter(ctx, f)
	if err != nil {
		return err
	}

	c.cur.render(c.o)

	return nil
}

func (c *console) click(args []string) error {
	err := rangeArgs(1, 2)(args)
	if err != nil {
		return fmt.Errorf("click <row> [ctrl|shift]: %w", err)
	}

	mod := selection.ModNone

	if len(args) == 2 {
		mod, err = selection.ParseModifier(args[1])
		if err != nil {
			return err
		}
	}

	c.cur.Click(selection.ParseKey(args[0]), mod)

	return nil
}

func (c *console) move(ctx context.Context, args []string) error {
	v, ok := c.cur.(jobsView)
	if !ok || !v.board {
		return errors.New("move works on the board screen")
	}

	err := rangeArgs(2, 3)(args)
	if err != nil {
		return fmt.Errorf("move <job-id> <column> [before-id]: %w", err)
	}

	before := ""
	if len(args) == 3 {
		before = args[2]
	}

	_, err = v.MoveTo(ctx, args[0], args[1], before)
	if err != nil {
		return err
	}

	v.render(c.o)

	return nil
}

func (c *console) check(ctx context.Context, done bool, args []string) error {
	v, ok := c.cur.(jobsView)
	if !ok {
		return errors.New("check works on job screens")
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: check <job-id>/<task-id>", errArgs)
	}

	k := selection.ParseKey(args[0])
	if k.SubID == "" {
		return fmt.Errorf("invalid task %q: want <job-id>/<task-id>", args[0])
	}

	_, err := v.SetTaskDone(ctx, k.EntityID, k.SubID, done)

	return err
}

func (c *console) stats() error {
	samples, err := c.a.metrics.Snapshot()
	if err != nil {
		return err
	}

	for _, s := range samples {
		c.o.Println(s.String())
	}

	return nil
}

func (c *console) printHelp() {
	c.o.Println(`Commands:
  screen <checklist|board|items>   Switch screen
  ls                               Show the current screen
  more                             Load the next page
  search <text>                    Filter by name
  field <key> [value]...           Filter a custom field (no values clears it)
  sort <field[:asc|desc]>|default  Change the sort
  clear                            Clear the filter
  click <row> [ctrl|shift]         Select rows (shift selects a range)
  selected                         List selected rows
  fold <row>                       Toggle one row minimized
  minimize | restore               Minimize or restore the selected rows
  set <id> <field=value>...        Change fields
  move <job-id> <column> [before]  Move a job on the board
  check | uncheck <job>/<task>     Check off a task
  stats                            Show counters
  quit                             Leave

Rows are <id> or <job-id>/<task-id>.`)
}
