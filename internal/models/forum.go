package models

import (
	"strconv"
	"time"
)

// ForumTopic is a discussion thread preview.
type ForumTopic struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Category     string    `json:"type"`
	Author       string    `json:"author,omitempty"`
	RepliesCount int       `json:"replies_count"`
	IsPinned     bool      `json:"is_pinned"`
	CreatedAt    time.Time `json:"created_at"`
}

var ForumTopicExportHeaders = []string{"id", "title", "category", "replies", "pinned", "created_at"}

func (f ForumTopic) Identity() string { return f.ID }

func (f ForumTopic) ExportRow() map[string]string {
	return map[string]string{
		"id":         f.ID,
		"title":      f.Title,
		"category":   f.Category,
		"replies":    strconv.Itoa(f.RepliesCount),
		"pinned":     strconv.FormatBool(f.IsPinned),
		"created_at": formatTime(f.CreatedAt),
	}
}
