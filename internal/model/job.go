package model

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/calvinalkan/opsync/pkg/collection"
)

// Job field names.
const (
	JobID        = "id"
	JobName      = "name"
	JobStatus    = "status"
	JobArchived  = "archived"
	JobCreatedAt = "createdAt"
	JobTasks     = "tasks"
	JobComments  = "comments"
)

// Task attribute names, used in task fields.
const (
	TaskName    = "name"
	TaskDueDate = "dueDate"
	TaskDone    = "done"
)

// Job is a construction job. Custom holds backend-defined fields keyed by custom field id.
type Job struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Status    string            `json:"status,omitempty" yaml:"status,omitempty"`
	Archived  bool              `json:"archived" yaml:"archived"`
	CreatedAt time.Time         `json:"createdAt" yaml:"createdAt"`
	Custom    map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
	Tasks     []Task            `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Comments  []Comment         `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// Task is a checklist entry of a job. DueDate is "YYYY-MM-DD" or empty.
type Task struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	DueDate string `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	Done    bool   `json:"done" yaml:"done"`
}

type Comment struct {
	ID        string    `json:"id" yaml:"id"`
	Author    string    `json:"author" yaml:"author"`
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// EntityID returns the job id.
func (j Job) EntityID() string { return j.ID }

// TaskField names one attribute of one task, e.g. "tasks/t1.done". Edits of
// different tasks touch different fields.
func TaskField(taskID, attr string) string {
	return JobTasks + collection.FieldSep + taskID + "." + attr
}

// TaskFields returns t as task fields.
func TaskFields(t Task) collection.Fields {
	return collection.Fields{
		TaskField(t.ID, TaskName):    t.Name,
		TaskField(t.ID, TaskDueDate): t.DueDate,
		TaskField(t.ID, TaskDone):    t.Done,
	}
}

func parseTaskField(name string) (string, string, bool) {
	rest, ok := strings.CutPrefix(name, JobTasks+collection.FieldSep)
	if !ok {
		return "", "", false
	}

	i := strings.LastIndexByte(rest, '.')
	if i <= 0 {
		return "", "", false
	}

	return rest[:i], rest[i+1:], true
}

func taskAttr(t Task, attr string) (any, bool) {
	switch attr {
	case TaskName:
		return t.Name, true
	case TaskDueDate:
		return t.DueDate, t.DueDate != ""
	case TaskDone:
		return t.Done, true
	}

	return nil, false
}

func withTaskAttr(t Task, attr string, value any) Task {
	switch attr {
	case TaskName:
		t.Name = asString(value)
	case TaskDueDate:
		t.DueDate = asString(value)
	case TaskDone:
		t.Done = asBool(value)
	}

	return t
}

// Field returns a fixed field by name, a task field, or else the custom field
// with that id.
func (j Job) Field(name string) (any, bool) {
	if taskID, attr, ok := parseTaskField(name); ok {
		t, found := j.Task(taskID)
		if !found {
			return nil, false
		}

		return taskAttr(t, attr)
	}

	switch name {
	case JobID:
		return j.ID, true
	case JobName:
		return j.Name, true
	case JobStatus:
		return j.Status, j.Status != ""
	case JobArchived:
		return j.Archived, true
	case JobCreatedAt:
		return formatTime(j.CreatedAt), !j.CreatedAt.IsZero()
	case JobTasks:
		return slices.Clone(j.Tasks), true
	case JobComments:
		return slices.Clone(j.Comments), true
	}

	v, ok := j.Custom[name]

	return v, ok
}

func (j Job) clone() Job {
	j.Custom = maps.Clone(j.Custom)
	j.Tasks = slices.Clone(j.Tasks)
	j.Comments = slices.Clone(j.Comments)

	return j
}

// WithField returns a copy with name set to value. The id cannot be changed.
func (j Job) WithField(name string, value any) Job {
	if taskID, attr, ok := parseTaskField(name); ok {
		t, found := j.Task(taskID)
		if !found {
			return j.clone()
		}

		return j.WithTask(withTaskAttr(t, attr, value))
	}

	out := j.clone()

	switch name {
	case JobID:
	case JobName:
		out.Name = asString(value)
	case JobStatus:
		out.Status = asString(value)
	case JobArchived:
		out.Archived = asBool(value)
	case JobCreatedAt:
		out.CreatedAt = asTime(value)
	case JobTasks:
		tasks, _ := value.([]Task)
		out.Tasks = slices.Clone(tasks)
	case JobComments:
		comments, _ := value.([]Comment)
		out.Comments = slices.Clone(comments)
	default:
		if out.Custom == nil {
			out.Custom = make(map[string]string)
		}

		out.Custom[name] = asString(value)
	}

	return out
}

// WithoutField returns a copy with name reset to its zero value.
func (j Job) WithoutField(name string) Job {
	if taskID, attr, ok := parseTaskField(name); ok {
		t, found := j.Task(taskID)
		if !found {
			return j.clone()
		}

		return j.WithTask(withTaskAttr(t, attr, nil))
	}

	out := j.clone()

	switch name {
	case JobID:
	case JobName:
		out.Name = ""
	case JobStatus:
		out.Status = ""
	case JobArchived:
		out.Archived = false
	case JobCreatedAt:
		out.CreatedAt = time.Time{}
	case JobTasks:
		out.Tasks = nil
	case JobComments:
		out.Comments = nil
	default:
		delete(out.Custom, name)
	}

	return out
}

// Fields returns every set field except the id, as a backend fragment would.
func (j Job) Fields() collection.Fields {
	f := collection.Fields{
		JobName:     j.Name,
		JobArchived: j.Archived,
		JobTasks:    slices.Clone(j.Tasks),
		JobComments: slices.Clone(j.Comments),
	}

	if j.Status != "" {
		f[JobStatus] = j.Status
	}

	if !j.CreatedAt.IsZero() {
		f[JobCreatedAt] = formatTime(j.CreatedAt)
	}

	for id, v := range j.Custom {
		f[id] = v
	}

	return f
}

// Task returns the task with id.
func (j Job) Task(id string) (Task, bool) {
	i := slices.IndexFunc(j.Tasks, func(t Task) bool { return t.ID == id })
	if i < 0 {
		return Task{}, false
	}

	return j.Tasks[i], true
}

// WithTask returns a copy with the task of the same id replaced.
func (j Job) WithTask(t Task) Job {
	out := j.clone()

	for i := range out.Tasks {
		if out.Tasks[i].ID == t.ID {
			out.Tasks[i] = t
		}
	}

	return out
}

// TasksByDueDate returns the tasks in checklist order: by due date, undated
// last, then by name and id.
func (j Job) TasksByDueDate() []Task {
	out := slices.Clone(j.Tasks)

	slices.SortStableFunc(out, func(a, b Task) int {
		switch {
		case a.DueDate == "" && b.DueDate != "":
			return 1
		case a.DueDate != "" && b.DueDate == "":
			return -1
		}

		return cmp.Or(
			cmp.Compare(a.DueDate, b.DueDate),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return out
}
