package screen

import (
	"context"
	"log/slog"

	"github.com/calvinalkan/opsync/internal/metrics"
	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/kv"
	"github.com/calvinalkan/opsync/pkg/optimistic"
	"github.com/calvinalkan/opsync/pkg/pager"
	"github.com/calvinalkan/opsync/pkg/query"
)

// ItemBackend is the inventory backend as the items screen uses it.
type ItemBackend interface {
	pager.Source[model.Item]
	ItemRemote(itemID string, set collection.Fields) optimistic.Remote
}

// ItemsOptions configures the items screen.
type ItemsOptions struct {
	PageSize   int
	State      kv.Store
	Translator *query.Translator
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// ItemTable is the inventory items table.
type ItemTable struct {
	*Screen[model.Item]

	backend ItemBackend
}

// NewItems returns the items table screen, one row per item.
func NewItems(backend ItemBackend, opts ItemsOptions) *ItemTable {
	return &ItemTable{
		Screen: New(Config[model.Item]{
			Name:       Items,
			Source:     backend,
			Translator: opts.Translator,
			PageSize:   opts.PageSize,
			State:      opts.State,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		}),
		backend: backend,
	}
}

// Set changes item fields optimistically.
func (t *ItemTable) Set(ctx context.Context, id string, set collection.Fields) (model.Item, error) {
	return t.Mutate(ctx, id, set, t.backend.ItemRemote(id, set))
}
