package cli_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/calvinalkan/opsync/internal/cli"
	"github.com/calvinalkan/opsync/internal/model"
)

type customValue struct {
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

type jobNode struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Status            string        `json:"status"`
	Archived          bool          `json:"archived"`
	CustomFieldValues []customValue `json:"customFieldValues"`
	Tasks             []model.Task  `json:"tasks"`
}

// fakeGraph is an in-memory job backend speaking the nested query format.
type fakeGraph struct {
	mu     sync.Mutex
	jobs   []jobNode
	reject string
	lists  []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{jobs: []jobNode{
		{ID: "j1", Name: "Roof", Status: "todo", CustomFieldValues: []customValue{{FieldID: "crew", Value: "A"}}, Tasks: []model.Task{
			{ID: "t2", Name: "Tiles", DueDate: "2026-03-02"},
			{ID: "t1", Name: "Scaffold", DueDate: "2026-03-01"},
			{ID: "t3", Name: "Cleanup"},
		}},
		{ID: "j2", Name: "Kitchen", Status: "doing", CustomFieldValues: []customValue{{FieldID: "crew", Value: "A"}}},
		{ID: "j3", Name: "Garage", Status: "todo", CustomFieldValues: []customValue{{FieldID: "crew", Value: "B"}}},
	}}
}

func (f *fakeGraph) setReject(msg string) {
	f.mu.Lock()
	f.reject = msg
	f.mu.Unlock()
}

func (f *fakeGraph) lastList() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lists[len(f.lists)-1]
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]json.RawMessage

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	var resp any

	switch {
	case body["jobs"] != nil:
		resp = f.list(body["jobs"])
	case body["updateJob"] != nil:
		resp = f.updateJob(body["updateJob"])
	case body["updateTask"] != nil:
		resp = f.updateTask(body["updateTask"])
	default:
		resp = map[string]any{"errors": []map[string]string{{"message": "unknown operation"}}}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

type graphArgs struct {
	Params struct {
		Page string         `json:"page"`
		Size int            `json:"size"`
		ID   string         `json:"id"`
		Set  map[string]any `json:"set"`
	} `json:"$"`
}

func (f *fakeGraph) list(raw json.RawMessage) any {
	f.lists = append(f.lists, string(raw))

	var args graphArgs
	_ = json.Unmarshal(raw, &args)

	start, _ := strconv.Atoi(args.Params.Page)
	end := min(start+args.Params.Size, len(f.jobs))

	next := ""
	if end < len(f.jobs) {
		next = strconv.Itoa(end)
	}

	return map[string]any{"jobs": map[string]any{"nodes": f.jobs[start:end], "nextPage": next}}
}

func (f *fakeGraph) rejected() any {
	return map[string]any{"errors": []map[string]string{{"message": f.reject}}}
}

func (f *fakeGraph) updateJob(raw json.RawMessage) any {
	if f.reject != "" {
		return f.rejected()
	}

	var args graphArgs
	_ = json.Unmarshal(raw, &args)

	for i := range f.jobs {
		job := &f.jobs[i]
		if job.ID != args.Params.ID {
			continue
		}

		for field, v := range args.Params.Set {
			value := fmt.Sprint(v)

			switch field {
			case "name":
				job.Name = value
			case "status":
				job.Status = value
			default:
				job.CustomFieldValues = setCustom(job.CustomFieldValues, field, value)
			}
		}

		return map[string]any{"updateJob": map[string]any{"job": job}}
	}

	return map[string]any{"errors": []map[string]string{{"message": "job not found"}}}
}

func setCustom(values []customValue, field, value string) []customValue {
	for i := range values {
		if values[i].FieldID == field {
			values[i].Value = value

			return values
		}
	}

	return append(values, customValue{FieldID: field, Value: value})
}

func (f *fakeGraph) updateTask(raw json.RawMessage) any {
	if f.reject != "" {
		return f.rejected()
	}

	var args graphArgs
	_ = json.Unmarshal(raw, &args)

	for i := range f.jobs {
		for j := range f.jobs[i].Tasks {
			task := &f.jobs[i].Tasks[j]
			if task.ID != args.Params.ID {
				continue
			}

			if done, ok := args.Params.Set["done"].(bool); ok {
				task.Done = done
			}

			return map[string]any{"updateTask": map[string]any{"task": task}}
		}
	}

	return map[string]any{"errors": []map[string]string{{"message": "task not found"}}}
}

// fakeInventory is an in-memory inventory backend with DRF style pagination.
type fakeInventory struct {
	mu       sync.Mutex
	quantity map[string]int
}

func (f *fakeInventory) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /items/", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		_, _ = fmt.Fprintf(w, `{"count":2,"next":null,"previous":null,"results":[
			{"id":1,"name":"Drill","sku":"DR-1","category":7,"quantity":%d,"location":"A1"},
			{"id":2,"name":"Saw","category":7,"quantity":%d,"location":"A2"}]}`,
			f.quantity["1"], f.quantity["2"])
	})

	mux.HandleFunc("GET /categories/{id}/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`+r.PathValue("id")+`,"name":"Power tools"}`)
	})

	mux.HandleFunc("PATCH /items/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var set map[string]any
		_ = json.NewDecoder(r.Body).Decode(&set)

		n, err := strconv.Atoi(fmt.Sprint(set["quantity"]))
		if err != nil || n < 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"quantity":["Ensure this value is greater than or equal to 0."]}`)

			return
		}

		id := r.PathValue("id")
		f.quantity[id] = n

		_, _ = fmt.Fprintf(w, `{"id":%s,"name":"Drill","category":7,"quantity":%d,"location":"A1"}`, id, n)
	})

	return mux
}

// backends starts both fake backends and writes a project config pointing at them.
func backends(t *testing.T) (*cli.CLI, *fakeGraph, *fakeInventory) {
	t.Helper()

	g := newFakeGraph()
	gsrv := httptest.NewServer(g)
	t.Cleanup(gsrv.Close)

	inv := &fakeInventory{quantity: map[string]int{"1": 4, "2": 1}}
	isrv := httptest.NewServer(inv.handler())
	t.Cleanup(isrv.Close)

	c := cli.NewCLI(t)
	c.WriteConfig(fmt.Sprintf(`{
		// test backends
		"graph_url": %q,
		"inventory_url": %q,
		"board_columns": ["todo", "doing", "done"],
	}`, gsrv.URL, isrv.URL))

	return c, g, inv
}
