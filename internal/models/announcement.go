package models

import (
	"strconv"
	"time"
)

// AnnouncementType is the filter value sent as `type`.
type AnnouncementType string

const (
	AnnouncementGeneral AnnouncementType = "GENERAL"
	AnnouncementEvent   AnnouncementType = "EVENT"
	AnnouncementUrgent  AnnouncementType = "URGENT"
)

// Announcement is a post on the union's notice board.
type Announcement struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Type      AnnouncementType `json:"type"`
	IsPinned  bool             `json:"is_pinned"`
	Author    string           `json:"author,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// AnnouncementExportHeaders lists export columns in display order.
var AnnouncementExportHeaders = []string{"id", "title", "type", "pinned", "author", "created_at"}

func (a Announcement) Identity() string { return a.ID }

func (a Announcement) ExportRow() map[string]string {
	return map[string]string{
		"id":         a.ID,
		"title":      a.Title,
		"type":       string(a.Type),
		"pinned":     strconv.FormatBool(a.IsPinned),
		"author":     a.Author,
		"created_at": formatTime(a.CreatedAt),
	}
}
