package dto

// ListResponse is one page of a list resource.
type ListResponse[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count"`
}

// BulkDeleteRequest removes several items in one call.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteResponse reports how many rows the server removed.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// PinRequest toggles the pinned flag.
type PinRequest struct {
	IsPinned bool `json:"is_pinned"`
}

// AnnouncementInput is the create/update payload for announcements.
type AnnouncementInput struct {
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	Type     string `json:"type,omitempty"`
	IsPinned *bool  `json:"is_pinned,omitempty"`
}
