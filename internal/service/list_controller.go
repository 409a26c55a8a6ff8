package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/metrics"
	"github.com/noah-isme/bde-portal/internal/models"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/export"
	"github.com/noah-isme/bde-portal/pkg/jobs"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 6

// ErrSuperseded is returned by a fetch whose response arrived after a newer fetch was issued.
// The response is dropped.
var ErrSuperseded = errors.New("list fetch superseded by a newer request")

// ListAPI is the remote side of a list resource.
type ListAPI[T any] interface {
	Name() string
	List(ctx context.Context, params models.ListParams, pageSize int) (*dto.ListResponse[T], error)
	Create(ctx context.Context, data interface{}) (*T, error)
	Update(ctx context.Context, id string, patch interface{}) (*T, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
}

// ListStatus tracks the last fetch.
type ListStatus string

const (
	StatusIdle    ListStatus = "idle"
	StatusLoading ListStatus = "loading"
	StatusSuccess ListStatus = "success"
	StatusError   ListStatus = "error"
)

// ListConfig configures a ListController.
type ListConfig struct {
	PageSize int
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
}

// ListController holds one page of a remote collection. Mutations are applied locally only
// after the server confirms them; nothing is refetched after a mutation.
type ListController[T models.Identifiable] struct {
	api      ListAPI[T]
	pageSize int
	metrics  *metrics.Recorder
	logger   *zap.Logger

	mu     sync.RWMutex
	items  []T
	total  int
	page   int
	params models.ListParams
	status ListStatus
	errMsg string
	seq    uint64

	pollMu sync.Mutex
	poller *jobs.Poller
}

// NewListController constructs an idle controller.
func NewListController[T models.Identifiable](api ListAPI[T], cfg ListConfig) *ListController[T] {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ListController[T]{
		api:      api,
		pageSize: cfg.PageSize,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(zap.String("resource", api.Name())),
		items:    []T{},
		page:     1,
		params:   models.ListParams{Page: 1},
		status:   StatusIdle,
	}
}

// Fetch loads exactly one page and replaces items and total. A response that arrives after a
// newer Fetch was issued is discarded and ErrSuperseded returned.
func (c *ListController[T]) Fetch(ctx context.Context, params models.ListParams) error {
	params.Search = normalizeSearch(params.Search)
	params.Type = strings.TrimSpace(params.Type)
	if params.Page < 1 {
		params.Page = 1
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.params = params
	c.status = StatusLoading
	c.mu.Unlock()

	res, err := c.api.List(ctx, params, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		c.metrics.RecordDiscarded(c.api.Name())
		c.logger.Debug("discarded stale list response", zap.Uint64("seq", seq), zap.Uint64("latest", c.seq))
		return ErrSuperseded
	}
	if err != nil {
		c.status = StatusError
		c.errMsg = appErrors.UserMessage(err, "Failed to load "+c.label()+".")
		c.logger.Warn("list fetch failed", zap.Int("page", params.Page), zap.Error(err))
		return err
	}
	c.items = res.Results
	c.total = res.Count
	c.page = params.Page
	c.status = StatusSuccess
	c.errMsg = ""
	return nil
}

// Refresh re-issues the last requested params.
func (c *ListController[T]) Refresh(ctx context.Context) error {
	c.mu.RLock()
	params := c.params
	c.mu.RUnlock()
	return c.Fetch(ctx, params)
}

// GoToPage fetches page n, keeping the other params. Pages outside [1, max(totalPages, 1)]
// are ignored.
func (c *ListController[T]) GoToPage(ctx context.Context, n int) error {
	c.mu.RLock()
	last := c.snapshotLocked().TotalPages()
	params := c.params
	c.mu.RUnlock()

	if last < 1 {
		last = 1
	}
	if n < 1 || n > last {
		return nil
	}
	params.Page = n
	return c.Fetch(ctx, params)
}

func (c *ListController[T]) NextPage(ctx context.Context) error {
	return c.GoToPage(ctx, c.CurrentPage()+1)
}

func (c *ListController[T]) PreviousPage(ctx context.Context) error {
	return c.GoToPage(ctx, c.CurrentPage()-1)
}

// Create posts data and prepends the server's copy to the current page.
func (c *ListController[T]) Create(ctx context.Context, data interface{}) (*T, error) {
	item, err := c.api.Create(ctx, data)
	err = confirmed(item, err)
	c.metrics.RecordMutation(c.api.Name(), "create", err)
	if err != nil {
		return nil, c.fail(err, "Failed to create "+c.label()+".")
	}

	c.mu.Lock()
	c.items = append([]T{*item}, c.items...)
	c.total++
	c.errMsg = ""
	c.mu.Unlock()
	return item, nil
}

// Update patches id and replaces the matching item on the current page. Items on other pages
// are not tracked, so an update to one of them leaves local state unchanged.
func (c *ListController[T]) Update(ctx context.Context, id string, patch interface{}) (*T, error) {
	return c.update(ctx, "update", id, patch)
}

// Pin sets the pinned flag of id.
func (c *ListController[T]) Pin(ctx context.Context, id string, pinned bool) (*T, error) {
	return c.update(ctx, "pin", id, dto.PinRequest{IsPinned: pinned})
}

func (c *ListController[T]) update(ctx context.Context, op, id string, patch interface{}) (*T, error) {
	item, err := c.api.Update(ctx, id, patch)
	err = confirmed(item, err)
	c.metrics.RecordMutation(c.api.Name(), op, err)
	if err != nil {
		return nil, c.fail(err, "Failed to update "+c.label()+".")
	}

	c.mu.Lock()
	for i := range c.items {
		if c.items[i].Identity() == id {
			c.items[i] = *item
			break
		}
	}
	c.errMsg = ""
	c.mu.Unlock()
	return item, nil
}

// Delete removes id remotely, then locally. The remote call is made even when id is not on
// the current page.
func (c *ListController[T]) Delete(ctx context.Context, id string) error {
	err := c.api.Delete(ctx, id)
	c.metrics.RecordMutation(c.api.Name(), "delete", err)
	if err != nil {
		return c.fail(err, "Failed to delete "+c.label()+".")
	}
	c.removeLocal(map[string]struct{}{id: {}})
	return nil
}

// BulkDelete removes ids in one request. An empty id list does nothing.
func (c *ListController[T]) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := c.api.BulkDelete(ctx, ids)
	c.metrics.RecordMutation(c.api.Name(), "bulk_delete", err)
	if err != nil {
		return c.fail(err, "Failed to delete "+c.label()+".")
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.removeLocal(set)
	return nil
}

func (c *ListController[T]) removeLocal(ids map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0:0]
	removed := 0
	for _, item := range c.items {
		if _, drop := ids[item.Identity()]; drop {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	c.total -= removed
	if c.total < 0 {
		c.total = 0
	}
	c.errMsg = ""
}

// confirmed rejects a success reply that carries no identifiable item; splicing it in would
// drop the id it replaces.
func confirmed[T models.Identifiable](item *T, err error) error {
	if err != nil {
		return err
	}
	if item == nil || (*item).Identity() == "" {
		return appErrors.Clone(appErrors.ErrInternal, "server returned an item without an id")
	}
	return nil
}

func (c *ListController[T]) fail(err error, fallback string) error {
	msg := appErrors.UserMessage(err, fallback)
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
	c.logger.Warn("list mutation failed", zap.Error(err))
	return err
}

// AutoRefresh polls Refresh every interval until ctx ends or StopAutoRefresh is called.
// Starting again replaces the previous poller.
func (c *ListController[T]) AutoRefresh(ctx context.Context, interval time.Duration) {
	poller := jobs.NewPoller(c.api.Name(), func(ctx context.Context) error {
		if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			return err
		}
		return nil
	}, jobs.PollerConfig{Interval: interval, Logger: c.logger})

	// Held until the new poller runs so a concurrent StopAutoRefresh always sees a started one.
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.poller != nil {
		c.poller.Stop()
	}
	c.poller = poller
	poller.Start(ctx)
}

// StopAutoRefresh stops polling and waits for an in-flight refresh.
func (c *ListController[T]) StopAutoRefresh() {
	c.pollMu.Lock()
	poller := c.poller
	c.poller = nil
	c.pollMu.Unlock()
	if poller != nil {
		poller.Stop()
	}
}

// Snapshot returns a copy of the current page.
func (c *ListController[T]) Snapshot() models.Page[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	page := c.snapshotLocked()
	page.Items = append([]T(nil), c.items...)
	return page
}

func (c *ListController[T]) snapshotLocked() models.Page[T] {
	return models.Page[T]{Items: c.items, TotalCount: c.total, CurrentPage: c.page, PageSize: c.pageSize}
}

func (c *ListController[T]) CurrentPage() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page
}

// Params returns the last requested params.
func (c *ListController[T]) Params() models.ListParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

func (c *ListController[T]) Status() ListStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Err is the message of the last failed operation, cleared by the next success.
func (c *ListController[T]) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

func (c *ListController[T]) label() string {
	return strings.ReplaceAll(c.api.Name(), "_", " ")
}

type exportable interface {
	models.Identifiable
	export.Record
}

// PageDataset builds an export dataset from the controller's current page.
func PageDataset[T exportable](c *ListController[T], title string, headers []string) export.Dataset {
	return export.FromRecords(title, headers, c.Snapshot().Items)
}

func normalizeSearch(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
