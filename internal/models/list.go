package models

import "time"

// Identifiable items can be matched by id inside a fetched page.
type Identifiable interface {
	Identity() string
}

// ListParams are the query inputs of a list fetch.
type ListParams struct {
	Page   int    `json:"page"`
	Search string `json:"search,omitempty"`
	Type   string `json:"type,omitempty"`
	Sort   string `json:"sort,omitempty"`
}

// Page is one fetched page of a remote list resource.
type Page[T any] struct {
	Items       []T `json:"items"`
	TotalCount  int `json:"total_count"`
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
}

// TotalPages is ceil(TotalCount / PageSize).
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 || p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

func (p Page[T]) HasNext() bool {
	return p.CurrentPage < p.TotalPages()
}

func (p Page[T]) HasPrevious() bool {
	return p.CurrentPage > 1
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
