package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calvinalkan/opsync/internal/metrics"
	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/kv"
	"github.com/calvinalkan/opsync/pkg/optimistic"
	"github.com/calvinalkan/opsync/pkg/pager"
	"github.com/calvinalkan/opsync/pkg/query"
	"github.com/calvinalkan/opsync/pkg/selection"
)

// Screen names. They key persisted state.
const (
	Checklist = "checklist"
	Board     = "board"
	Items     = "items"
)

// JobBackend is the jobs backend as the job screens use it.
type JobBackend interface {
	pager.Source[model.Job]
	JobRemote(id string, set collection.Fields) optimistic.Remote
	TaskRemote(taskID string, set collection.Fields) optimistic.Remote
}

// ErrListField is returned by [Jobs.Set] for the task and comment lists, which
// change through their own operations.
var ErrListField = errors.New("list field cannot be set directly")

// JobsOptions configures a job screen.
type JobsOptions struct {
	PageSize int
	State    kv.Store
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// BoardField and BoardColumns configure the board screen.
	BoardField   string
	BoardColumns []string
}

// Jobs is a job screen: the checklist or the board.
type Jobs struct {
	*Screen[model.Job]

	backend JobBackend
}

// NewChecklist returns the checklist screen. Every job is a row followed by
// one row per task in due date order.
func NewChecklist(backend JobBackend, opts JobsOptions) *Jobs {
	return newJobs(Checklist, backend, opts, checklistRows)
}

// NewBoard returns the board screen, grouping jobs into columns by opts.BoardField.
func NewBoard(backend JobBackend, opts JobsOptions) *Jobs {
	return newJobs(Board, backend, opts, nil)
}

func newJobs(name string, backend JobBackend, opts JobsOptions, rows func(model.Job) []selection.Key) *Jobs {
	field := opts.BoardField
	if field == "" {
		field = model.JobStatus
	}

	return &Jobs{
		Screen: New(Config[model.Job]{
			Name:        name,
			Source:      backend,
			Translator:  query.NewTranslator(query.Options{Logger: opts.Logger}),
			PageSize:    opts.PageSize,
			State:       opts.State,
			Rows:        rows,
			BucketField: field,
			Columns:     opts.BoardColumns,
			Logger:      opts.Logger,
			Metrics:     opts.Metrics,
		}),
		backend: backend,
	}
}

func checklistRows(job model.Job) []selection.Key {
	rows := []selection.Key{{EntityID: job.ID}}

	for _, task := range job.TasksByDueDate() {
		rows = append(rows, selection.Key{EntityID: job.ID, SubID: task.ID})
	}

	return rows
}

// Set changes job fields optimistically.
func (j *Jobs) Set(ctx context.Context, id string, set collection.Fields) (model.Job, error) {
	for name := range set {
		if name == model.JobTasks || name == model.JobComments ||
			strings.HasPrefix(name, model.JobTasks+collection.FieldSep) {
			return model.Job{}, fmt.Errorf("set %s: %w: %s", id, ErrListField, name)
		}
	}

	return j.Mutate(ctx, id, set, j.backend.JobRemote(id, set))
}

// MoveTo moves a job to column to, in front of before when given.
func (j *Jobs) MoveTo(ctx context.Context, id, to, before string) (model.Job, error) {
	set := collection.Fields{j.cfg.BucketField: to}

	return j.Move(ctx, id, to, before, j.backend.JobRemote(id, set))
}

// SetTaskDone checks or unchecks a task optimistically.
func (j *Jobs) SetTaskDone(ctx context.Context, jobID, taskID string, done bool) (model.Job, error) {
	job, ok := j.Store().Get(jobID)
	if !ok {
		return model.Job{}, fmt.Errorf("set task %s: job %s: %w", taskID, jobID, collection.ErrNotFound)
	}

	if _, ok := job.Task(taskID); !ok {
		return model.Job{}, fmt.Errorf("set task %s: %w", taskID, collection.ErrNotFound)
	}

	return j.Mutate(ctx, jobID, collection.Fields{model.TaskField(taskID, model.TaskDone): done},
		j.backend.TaskRemote(taskID, collection.Fields{model.TaskDone: done}))
}
