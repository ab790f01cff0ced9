// Package graph is the client of the job-tracking backend. Requests are
// nested query objects posted to a single endpoint:
//
//	{"jobs": {"$": {"page": "...", "size": 25, "where": ..., "with": ..., "sortBy": ...}, "nodes": {...}}}
//
// and answered as
//
//	{"jobs": {"nodes": [...], "nextPage": "..."}}
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/internal/remote"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/optimistic"
	"github.com/calvinalkan/opsync/pkg/pager"
)

const queryPath = "/query"

// ErrMissingNode is returned when a mutation response lacks the updated node.
var ErrMissingNode = errors.New("response has no node")

// Config configures a [Client].
type Config struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client talks to the job-tracking backend. It implements pager.Source[model.Job].
type Client struct {
	http *remote.Client
}

// New returns a client for the backend at cfg.URL.
func New(cfg Config) (*Client, error) {
	c, err := remote.NewClient(remote.Config{
		BaseURL:    cfg.URL,
		HTTPClient: cfg.HTTPClient,
		Timeout:    cfg.Timeout,
		Logger:     cfg.Logger,
		Name:       "graph",
	})
	if err != nil {
		return nil, fmt.Errorf("graph client: %w", err)
	}

	return &Client{http: c}, nil
}

// selection is the field selection of a job node.
var selection = map[string]any{
	"id":        true,
	"name":      true,
	"status":    true,
	"archived":  true,
	"createdAt": true,
	"customFieldValues": map[string]any{
		"fieldId": true,
		"value":   true,
	},
	"tasks": map[string]any{
		"id":      true,
		"name":    true,
		"dueDate": true,
		"done":    true,
	},
	"comments": map[string]any{
		"id":        true,
		"author":    true,
		"body":      true,
		"createdAt": true,
	},
}

type params struct {
	Page   string `json:"page,omitempty"`
	Size   int    `json:"size"`
	Where  any    `json:"where"`
	With   any    `json:"with,omitempty"`
	SortBy any    `json:"sortBy"`
}

type listRequest struct {
	Jobs struct {
		Params params         `json:"$"`
		Nodes  map[string]any `json:"nodes"`
	} `json:"jobs"`
}

type listResponse struct {
	Jobs struct {
		Nodes    []jobNode `json:"nodes"`
		NextPage string    `json:"nextPage"`
	} `json:"jobs"`
	Errors []gqlError `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

type customValue struct {
	FieldID string          `json:"fieldId"`
	Value   json.RawMessage `json:"value"`
}

type jobNode struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Status            string          `json:"status"`
	Archived          bool            `json:"archived"`
	CreatedAt         time.Time       `json:"createdAt"`
	CustomFieldValues []customValue   `json:"customFieldValues"`
	Tasks             []model.Task    `json:"tasks"`
	Comments          []model.Comment `json:"comments"`
}

func (n jobNode) job() model.Job {
	j := model.Job{
		ID:        n.ID,
		Name:      n.Name,
		Status:    n.Status,
		Archived:  n.Archived,
		CreatedAt: n.CreatedAt,
		Tasks:     n.Tasks,
		Comments:  n.Comments,
	}

	for _, cv := range n.CustomFieldValues {
		if j.Custom == nil {
			j.Custom = make(map[string]string, len(n.CustomFieldValues))
		}

		j.Custom[cv.FieldID] = rawString(cv.Value)
	}

	return j
}

// rawString renders a JSON scalar as a string: strings unquoted, others verbatim.
func rawString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	if string(raw) == "null" {
		return ""
	}

	return string(raw)
}

func errorMessages(body []byte) []string {
	var resp struct {
		Errors []gqlError `json:"errors"`
	}

	if json.Unmarshal(body, &resp) != nil {
		return nil
	}

	msgs := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		msgs = append(msgs, e.Message)
	}

	return msgs
}

func (c *Client) post(ctx context.Context, body any) ([]byte, error) {
	raw, err := c.http.Do(ctx, http.MethodPost, queryPath, nil, body, errorMessages)
	if err != nil {
		return nil, err
	}

	if msgs := errorMessages(raw); len(msgs) > 0 {
		return nil, &remote.APIError{Method: http.MethodPost, URL: queryPath, StatusCode: http.StatusOK, Messages: msgs}
	}

	return raw, nil
}

// Fetch requests one page of jobs.
func (c *Client) Fetch(ctx context.Context, req pager.Request) (pager.Response[model.Job], error) {
	var body listRequest

	body.Jobs.Params = params{
		Page:   req.Cursor,
		Size:   req.Size,
		Where:  req.Fragment.Where,
		SortBy: req.Fragment.SortBy,
	}

	if len(req.Fragment.With) > 0 {
		body.Jobs.Params.With = req.Fragment.With
	}

	body.Jobs.Nodes = selection

	raw, err := c.post(ctx, body)
	if err != nil {
		return pager.Response[model.Job]{}, fmt.Errorf("list jobs: %w", err)
	}

	var resp listResponse

	err = json.Unmarshal(raw, &resp)
	if err != nil {
		return pager.Response[model.Job]{}, fmt.Errorf("decode jobs: %w", err)
	}

	jobs := make([]model.Job, 0, len(resp.Jobs.Nodes))
	for _, n := range resp.Jobs.Nodes {
		jobs = append(jobs, n.job())
	}

	return pager.Response[model.Job]{Items: jobs, Next: resp.Jobs.NextPage}, nil
}

type mutation struct {
	Params struct {
		ID  string            `json:"id"`
		Set collection.Fields `json:"set"`
	} `json:"$"`
	Node map[string]any `json:"job,omitempty"`
	Task map[string]any `json:"task,omitempty"`
}

// UpdateJob sets fields of job id and returns the updated job.
func (c *Client) UpdateJob(ctx context.Context, id string, set collection.Fields) (model.Job, error) {
	var m mutation

	m.Params.ID = id
	m.Params.Set = set
	m.Node = selection

	raw, err := c.post(ctx, map[string]any{"updateJob": m})
	if err != nil {
		return model.Job{}, fmt.Errorf("update job %s: %w", id, err)
	}

	var resp struct {
		UpdateJob struct {
			Job *jobNode `json:"job"`
		} `json:"updateJob"`
	}

	err = json.Unmarshal(raw, &resp)
	if err != nil {
		return model.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}

	if resp.UpdateJob.Job == nil {
		return model.Job{}, fmt.Errorf("update job %s: %w", id, ErrMissingNode)
	}

	return resp.UpdateJob.Job.job(), nil
}

// UpdateTask sets fields of a task and returns the updated task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, set collection.Fields) (model.Task, error) {
	var m mutation

	m.Params.ID = taskID
	m.Params.Set = set
	m.Task = selection["tasks"].(map[string]any)

	raw, err := c.post(ctx, map[string]any{"updateTask": m})
	if err != nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
	}

	var resp struct {
		UpdateTask struct {
			Task *model.Task `json:"task"`
		} `json:"updateTask"`
	}

	err = json.Unmarshal(raw, &resp)
	if err != nil {
		return model.Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}

	if resp.UpdateTask.Task == nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", taskID, ErrMissingNode)
	}

	return *resp.UpdateTask.Task, nil
}

// JobRemote returns the remote call of an optimistic job edit. The
// authoritative fragment is the whole updated job.
func (c *Client) JobRemote(id string, set collection.Fields) optimistic.Remote {
	return func(ctx context.Context) (collection.Fields, error) {
		job, err := c.UpdateJob(ctx, id, set)
		if err != nil {
			return nil, err
		}

		return job.Fields(), nil
	}
}

// TaskRemote returns the remote call of an optimistic task edit. The
// authoritative fragment holds the task fields of the updated task only.
func (c *Client) TaskRemote(taskID string, set collection.Fields) optimistic.Remote {
	return func(ctx context.Context) (collection.Fields, error) {
		task, err := c.UpdateTask(ctx, taskID, set)
		if err != nil {
			return nil, err
		}

		return model.TaskFields(task), nil
	}
}
