// Package rest is the client of the inventory backend, a conventional REST
// API with page-numbered list endpoints:
//
//	GET {base}/items/?page=2&page_size=25&search=drill&ordering=-updated_at
//	-> {"count": 53, "next": "...?page=3", "previous": "...", "results": [...]}
//
// The page number is used as the pager cursor.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/calvinalkan/opsync/internal/model"
	"github.com/calvinalkan/opsync/internal/remote"
	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/optimistic"
	"github.com/calvinalkan/opsync/pkg/pager"
	"github.com/calvinalkan/opsync/pkg/query"
)

const (
	itemsPath      = "/items/"
	categoriesPath = "/categories/"

	defaultCategoryCacheSize = 256
)

// Config configures a [Client].
type Config struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger

	// Translator renders filters as list parameters. Nil uses [ItemTranslator].
	Translator *query.Translator

	// CategoryCacheSize bounds the category name cache.
	CategoryCacheSize int
}

// ItemTranslator returns the translator for inventory item filters.
func ItemTranslator(logger *slog.Logger) *query.Translator {
	return query.NewTranslator(query.Options{
		NameField:     model.ItemName,
		ArchivedField: model.ItemArchived,
		DefaultSort:   query.Sort{Field: model.ItemUpdatedAt, Order: query.Desc},
		Logger:        logger,
	})
}

// Client talks to the inventory backend. It implements pager.Source[model.Item].
type Client struct {
	http       *remote.Client
	translator *query.Translator
	categories *lru.Cache[string, string]
	logger     *slog.Logger
}

// New returns a client for the backend at cfg.URL.
func New(cfg Config) (*Client, error) {
	c, err := remote.NewClient(remote.Config{
		BaseURL:    cfg.URL,
		HTTPClient: cfg.HTTPClient,
		Timeout:    cfg.Timeout,
		Logger:     cfg.Logger,
		Name:       "rest",
	})
	if err != nil {
		return nil, fmt.Errorf("rest client: %w", err)
	}

	size := cfg.CategoryCacheSize
	if size <= 0 {
		size = defaultCategoryCacheSize
	}

	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("rest client: category cache: %w", err)
	}

	translator := cfg.Translator
	if translator == nil {
		translator = ItemTranslator(cfg.Logger)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{http: c, translator: translator, categories: cache, logger: logger}, nil
}

// id accepts both numeric and string JSON ids.
type id string

func (i *id) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		*i = id(s)

		return nil
	}

	var n json.Number

	err := json.Unmarshal(data, &n)
	if err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}

	*i = id(n.String())

	return nil
}

type itemResource struct {
	ID         id                `json:"id"`
	Name       string            `json:"name"`
	SKU        string            `json:"sku"`
	Category   *id               `json:"category"`
	Quantity   int               `json:"quantity"`
	Location   string            `json:"location"`
	Archived   bool              `json:"archived"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Attributes map[string]string `json:"attributes"`
}

type listPage struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []itemResource `json:"results"`
}

func errorMessages(body []byte) []string {
	var detail struct {
		Detail string `json:"detail"`
	}

	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return []string{detail.Detail}
	}

	var fieldErrs map[string][]string
	if json.Unmarshal(body, &fieldErrs) != nil {
		return nil
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, field := range slices.Sorted(maps.Keys(fieldErrs)) {
		for _, m := range fieldErrs[field] {
			msgs = append(msgs, field+": "+m)
		}
	}

	return msgs
}

func (c *Client) item(ctx context.Context, res itemResource) model.Item {
	it := model.Item{
		ID:         string(res.ID),
		Name:       res.Name,
		SKU:        res.SKU,
		Quantity:   res.Quantity,
		Location:   res.Location,
		Archived:   res.Archived,
		UpdatedAt:  res.UpdatedAt,
		Attributes: res.Attributes,
	}

	if res.Category != nil && *res.Category != "" {
		it.CategoryID = string(*res.Category)

		name, err := c.CategoryName(ctx, it.CategoryID)
		if err != nil {
			c.logger.Warn("category lookup failed", "category", it.CategoryID, "error", err)
		}

		it.CategoryName = name
	}

	return it
}

// Fetch requests one page of items. The cursor is the page number; "" is page 1.
func (c *Client) Fetch(ctx context.Context, req pager.Request) (pager.Response[model.Item], error) {
	page := 1

	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 1 {
			return pager.Response[model.Item]{}, fmt.Errorf("list items: invalid page cursor %q", req.Cursor)
		}

		page = n
	}

	values := c.translator.RESTValues(req.Filter)
	values.Set("page", strconv.Itoa(page))
	values.Set("page_size", strconv.Itoa(req.Size))

	raw, err := c.http.Do(ctx, http.MethodGet, itemsPath, values, nil, errorMessages)
	if err != nil {
		return pager.Response[model.Item]{}, fmt.Errorf("list items: %w", err)
	}

	var lp listPage

	err = json.Unmarshal(raw, &lp)
	if err != nil {
		return pager.Response[model.Item]{}, fmt.Errorf("decode items: %w", err)
	}

	items := make([]model.Item, 0, len(lp.Results))
	for _, res := range lp.Results {
		items = append(items, c.item(ctx, res))
	}

	next := ""
	if lp.Next != nil && *lp.Next != "" {
		next = strconv.Itoa(page + 1)
	}

	return pager.Response[model.Item]{Items: items, Next: next}, nil
}

func itemPath(itemID string) string {
	return itemsPath + url.PathEscape(itemID) + "/"
}

func (c *Client) decodeItem(ctx context.Context, raw []byte) (model.Item, error) {
	var res itemResource

	err := json.Unmarshal(raw, &res)
	if err != nil {
		return model.Item{}, fmt.Errorf("decode item: %w", err)
	}

	return c.item(ctx, res), nil
}

// Get returns item itemID.
func (c *Client) Get(ctx context.Context, itemID string) (model.Item, error) {
	raw, err := c.http.Do(ctx, http.MethodGet, itemPath(itemID), nil, nil, errorMessages)
	if err != nil {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, err)
	}

	return c.decodeItem(ctx, raw)
}

// Patch updates fields of item itemID and returns the stored item.
func (c *Client) Patch(ctx context.Context, itemID string, set collection.Fields) (model.Item, error) {
	raw, err := c.http.Do(ctx, http.MethodPatch, itemPath(itemID), nil, set, errorMessages)
	if err != nil {
		return model.Item{}, fmt.Errorf("patch item %s: %w", itemID, err)
	}

	return c.decodeItem(ctx, raw)
}

// Create posts a new item and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, it model.Item) (model.Item, error) {
	body := it.Fields()
	delete(body, model.ItemCategoryName)
	delete(body, model.ItemUpdatedAt)

	raw, err := c.http.Do(ctx, http.MethodPost, itemsPath, nil, body, errorMessages)
	if err != nil {
		return model.Item{}, fmt.Errorf("create item: %w", err)
	}

	return c.decodeItem(ctx, raw)
}

// Delete removes item itemID. A missing item is not an error.
func (c *Client) Delete(ctx context.Context, itemID string) error {
	_, err := c.http.Do(ctx, http.MethodDelete, itemPath(itemID), nil, nil, errorMessages)

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return nil
	}

	if err != nil {
		return fmt.Errorf("delete item %s: %w", itemID, err)
	}

	return nil
}

// CategoryName resolves a category id, caching the answer.
func (c *Client) CategoryName(ctx context.Context, categoryID string) (string, error) {
	if name, ok := c.categories.Get(categoryID); ok {
		return name, nil
	}

	raw, err := c.http.Do(ctx, http.MethodGet, categoriesPath+url.PathEscape(categoryID)+"/", nil, nil, errorMessages)
	if err != nil {
		return "", fmt.Errorf("get category %s: %w", categoryID, err)
	}

	var cat struct {
		Name string `json:"name"`
	}

	err = json.Unmarshal(raw, &cat)
	if err != nil {
		return "", fmt.Errorf("decode category %s: %w", categoryID, err)
	}

	c.categories.Add(categoryID, cat.Name)

	return cat.Name, nil
}

// ItemRemote returns the remote call of an optimistic item edit.
func (c *Client) ItemRemote(itemID string, set collection.Fields) optimistic.Remote {
	return func(ctx context.Context) (collection.Fields, error) {
		it, err := c.Patch(ctx, itemID, set)
		if err != nil {
			return nil, err
		}

		return it.Fields(), nil
	}
}
