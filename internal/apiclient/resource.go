package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/models"
)

// Resource paths exposed by the API.
const (
	PathAnnouncements = "/announcements/"
	PathForumTopics   = "/forum/topics/"
	PathEvents        = "/events/"
)

// Resource is one paginated, filterable, mutable collection.
type Resource[T any] struct {
	c    *Client
	name string
	path string
}

// NewResource binds a collection path such as "/events/". The path must start and end with "/".
func NewResource[T any](c *Client, name, path string) *Resource[T] {
	return &Resource[T]{c: c, name: name, path: path}
}

// Announcements returns the announcements collection.
func Announcements(c *Client) *Resource[models.Announcement] {
	return NewResource[models.Announcement](c, "announcements", PathAnnouncements)
}

// ForumTopics returns the forum topics collection.
func ForumTopics(c *Client) *Resource[models.ForumTopic] {
	return NewResource[models.ForumTopic](c, "forum_topics", PathForumTopics)
}

// Events returns the events collection.
func Events(c *Client) *Resource[models.Event] {
	return NewResource[models.Event](c, "events", PathEvents)
}

// Name is a stable label for logs and metrics.
func (r *Resource[T]) Name() string {
	return r.name
}

// List fetches exactly one page.
func (r *Resource[T]) List(ctx context.Context, params models.ListParams, pageSize int) (*dto.ListResponse[T], error) {
	query := url.Values{}
	page := params.Page
	if page < 1 {
		page = 1
	}
	query.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		query.Set("limit", strconv.Itoa(pageSize))
	}
	if params.Search != "" {
		query.Set("search", params.Search)
	}
	if params.Type != "" {
		query.Set("type", params.Type)
	}
	if params.Sort != "" {
		query.Set("sort", params.Sort)
	}

	var res dto.ListResponse[T]
	if err := r.c.do(ctx, call{method: http.MethodGet, path: r.path, route: r.path, query: query}, &res); err != nil {
		return nil, err
	}
	if res.Results == nil {
		res.Results = []T{}
	}
	return &res, nil
}

// Create posts a new item and returns the server's copy.
func (r *Resource[T]) Create(ctx context.Context, data interface{}) (*T, error) {
	var item T
	if err := r.c.do(ctx, call{method: http.MethodPost, path: r.path, route: r.path, body: data, wantBody: true}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update patches an item and returns the server's copy.
func (r *Resource[T]) Update(ctx context.Context, id string, patch interface{}) (*T, error) {
	var item T
	if err := r.c.do(ctx, call{method: http.MethodPatch, path: r.itemPath(id), route: r.itemRoute(), body: patch, wantBody: true}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Pin toggles the pinned flag.
func (r *Resource[T]) Pin(ctx context.Context, id string, pinned bool) (*T, error) {
	return r.Update(ctx, id, dto.PinRequest{IsPinned: pinned})
}

// Delete removes one item.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, call{method: http.MethodDelete, path: r.itemPath(id), route: r.itemRoute()}, nil)
}

// BulkDelete removes several items through the dedicated endpoint.
func (r *Resource[T]) BulkDelete(ctx context.Context, ids []string) error {
	return r.c.do(ctx, call{
		method: http.MethodPost,
		path:   r.path + "bulk-delete/",
		body:   dto.BulkDeleteRequest{IDs: ids},
	}, nil)
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + url.PathEscape(id) + "/"
}

func (r *Resource[T]) itemRoute() string {
	return r.path + ":id/"
}
