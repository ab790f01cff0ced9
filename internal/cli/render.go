package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/internal/screen"
	"github.com/calvinalkan/opsync/pkg/selection"
)

const moreHint = "(more available, use --all)"

// marker prefixes a row in the console: "*" selected, " " otherwise.
// One-shot commands have no selection and print no marker column.
func marker(sel *selection.Engine, k selection.Key) string {
	if len(sel.Selected()) == 0 {
		return ""
	}

	if sel.IsSelected(k) {
		return "* "
	}

	return "  "
}

func renderChecklist(o *IO, s *screen.Jobs) {
	sel := s.Selection()

	for _, job := range s.Records() {
		k := selection.Key{EntityID: job.ID}

		line := fmt.Sprintf("%s%s [%s] %s", marker(sel, k), job.ID, job.Status, job.Name)

		if sel.IsMinimized(k) {
			o.Println(line, fmt.Sprintf("(minimized, %d tasks)", len(job.Tasks)))

			continue
		}

		o.Println(line)

		for _, task := range job.TasksByDueDate() {
			tk := selection.Key{EntityID: job.ID, SubID: task.ID}
			if sel.IsMinimized(tk) {
				continue
			}

			o.Println(formatTask(marker(sel, tk), task))
		}
	}

	if s.HasMore() {
		o.Println(moreHint)
	}
}

func formatTask(mark string, task model.Task) string {
	check := " "
	if task.Done {
		check = "x"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "  %s[%s] %s %s", mark, check, task.ID, task.Name)

	if task.DueDate != "" {
		fmt.Fprintf(&b, " (due %s)", task.DueDate)
	}

	return b.String()
}

func renderBoard(o *IO, s *screen.Jobs) {
	sel := s.Selection()

	for _, bucket := range s.Buckets() {
		o.Printf("== %s (%d)\n", bucket.Key, len(bucket.Items))

		for _, job := range bucket.Items {
			k := selection.Key{EntityID: job.ID}
			o.Printf("%s%s %s\n", marker(sel, k), job.ID, job.Name)
		}
	}

	if s.HasMore() {
		o.Println(moreHint)
	}
}

func renderItems(o *IO, s *screen.ItemTable) {
	sel := s.Selection()

	tw := tabwriter.NewWriter(o, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSKU\tQTY\tLOCATION\tCATEGORY")

	for _, item := range s.Records() {
		k := selection.Key{EntityID: item.ID}
		if sel.IsMinimized(k) {
			continue
		}

		_, _ = fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t%s\n",
			marker(sel, k), item.ID, item.Name, item.SKU, strconv.Itoa(item.Quantity), item.Location, item.CategoryName)
	}

	_ = tw.Flush()

	if s.HasMore() {
		o.Println(moreHint)
	}
}

// boardColumn is the structured form of one board column.
type boardColumn struct {
	Column string      `json:"column" yaml:"column"`
	Jobs   []model.Job `json:"jobs" yaml:"jobs"`
}

func boardColumns(s *screen.Jobs) []boardColumn {
	buckets := s.Buckets()
	out := make([]boardColumn, 0, len(buckets))

	for _, b := range buckets {
		jobs := b.Items
		if jobs == nil {
			jobs = []model.Job{}
		}

		out = append(out, boardColumn{Column: b.Key, Jobs: jobs})
	}

	return out
}
