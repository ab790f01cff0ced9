package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// IO handles command output. Warnings go to stderr at both the start and the
// end of output so they survive truncation by head or tail.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool

	warnLabel  *color.Color
	errorLabel *color.Color
}

// NewIO creates a new IO instance. Labels are colored only when errOut is a terminal.
func NewIO(out, errOut io.Writer) *IO {
	warnLabel := color.New(color.FgYellow, color.Bold)
	errorLabel := color.New(color.FgRed, color.Bold)

	if !isTerminal(errOut) {
		warnLabel.DisableColor()
		errorLabel.DisableColor()
	}

	return &IO{out: out, errOut: errOut, warnLabel: warnLabel, errorLabel: errorLabel}
}

// Warn records an actionable warning.
//
// Parameters:
//   - issue: what went wrong
//   - action: what the user should do about it
//
// Output to stdout still occurs. Any warning makes Finish return 1.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println writes to stdout. On first call, any collected warnings
// are printed to stderr first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout. On first call, any collected
// warnings are printed to stderr first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Write lets encoders stream to stdout.
func (o *IO) Write(p []byte) (int, error) {
	o.flushWarningsStart()

	return o.out.Write(p)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Error prints err to stderr with the error label.
func (o *IO) Error(err error) {
	_, _ = fmt.Fprintln(o.errOut, o.errorLabel.Sprint("error:"), err)
}

// Finish prints warnings to stderr and returns exit code.
// Returns 1 if any warnings, 0 otherwise.
func (o *IO) Finish() int {
	// If no output happened but we have warnings, print them at "start" position
	o.flushWarningsStart()

	for _, w := range o.warnings {
		o.printWarning(w)
	}

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			o.printWarning(w)
		}

		o.started = true
	}
}

func (o *IO) printWarning(w string) {
	_, _ = fmt.Fprintln(o.errOut, o.warnLabel.Sprint("warning:"), w)
}
