package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/calvinalkan/opsync/internal/config"
	"github.com/calvinalkan/opsync/internal/metrics"
	"github.com/calvinalkan/opsync/internal/remote/graph"
	"github.com/calvinalkan/opsync/internal/remote/rest"
	"github.com/calvinalkan/opsync/internal/screen"
	"github.com/calvinalkan/opsync/pkg/kv"
)

var (
	errNoGraphURL     = errors.New("graph_url is not configured (set it in " + config.FileName + " or pass --graph-url)")
	errNoInventoryURL = errors.New("inventory_url is not configured (set it in " + config.FileName + " or pass --inventory-url)")
)

// app holds what commands share within one process: configuration, logging,
// metrics, local state and backend clients. State and clients open lazily.
type app struct {
	cfg     config.Config
	in      io.Reader
	logger  *slog.Logger
	metrics *metrics.Metrics

	state kv.Store
	graph *graph.Client
	rest  *rest.Client
}

func newApp(cfg config.Config, in io.Reader, logOut io.Writer) *app {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	return &app{
		cfg:     cfg,
		in:      in,
		logger:  slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})),
		metrics: metrics.New(),
	}
}

func (a *app) httpClient() *http.Client {
	return &http.Client{
		Timeout:   a.cfg.RequestTimeout.Std(),
		Transport: a.metrics.Transport(nil),
	}
}

func (a *app) State(ctx context.Context) (kv.Store, error) {
	if a.state != nil {
		return a.state, nil
	}

	state, err := kv.Open(ctx, a.cfg.StateBackend, a.cfg.StateDirAbs)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	a.state = state

	return state, nil
}

func (a *app) Graph() (*graph.Client, error) {
	if a.graph != nil {
		return a.graph, nil
	}

	if a.cfg.GraphURL == "" {
		return nil, errNoGraphURL
	}

	c, err := graph.New(graph.Config{
		URL:        a.cfg.GraphURL,
		HTTPClient: a.httpClient(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.graph = c

	return c, nil
}

func (a *app) Rest() (*rest.Client, error) {
	if a.rest != nil {
		return a.rest, nil
	}

	if a.cfg.InventoryURL == "" {
		return nil, errNoInventoryURL
	}

	c, err := rest.New(rest.Config{
		URL:        a.cfg.InventoryURL,
		HTTPClient: a.httpClient(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.rest = c

	return c, nil
}

func (a *app) jobsOptions(ctx context.Context) (screen.JobsOptions, error) {
	state, err := a.State(ctx)
	if err != nil {
		return screen.JobsOptions{}, err
	}

	return screen.JobsOptions{
		PageSize:     a.cfg.PageSize,
		State:        state,
		Logger:       a.logger,
		Metrics:      a.metrics,
		BoardField:   a.cfg.BoardField,
		BoardColumns: a.cfg.BoardColumns,
	}, nil
}

// Checklist returns the unopened checklist screen.
func (a *app) Checklist(ctx context.Context) (*screen.Jobs, error) {
	backend, err := a.Graph()
	if err != nil {
		return nil, err
	}

	opts, err := a.jobsOptions(ctx)
	if err != nil {
		return nil, err
	}

	return screen.NewChecklist(backend, opts), nil
}

// Board returns the unopened board screen.
func (a *app) Board(ctx context.Context) (*screen.Jobs, error) {
	backend, err := a.Graph()
	if err != nil {
		return nil, err
	}

	opts, err := a.jobsOptions(ctx)
	if err != nil {
		return nil, err
	}

	return screen.NewBoard(backend, opts), nil
}

// Items returns the unopened items screen.
func (a *app) Items(ctx context.Context) (*screen.ItemTable, error) {
	backend, err := a.Rest()
	if err != nil {
		return nil, err
	}

	state, err := a.State(ctx)
	if err != nil {
		return nil, err
	}

	return screen.NewItems(backend, screen.ItemsOptions{
		PageSize:   a.cfg.PageSize,
		State:      state,
		Translator: rest.ItemTranslator(a.logger),
		Logger:     a.logger,
		Metrics:    a.metrics,
	}), nil
}

func (a *app) Close() error {
	if a == nil || a.state == nil {
		return nil
	}

	err := a.state.Close()
	a.state = nil

	if err != nil {
		return fmt.Errorf("close state: %w", err)
	}

	return nil
}
