package models

import (
	"strconv"
	"time"
)

// Event is a scheduled union activity.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Type        string    `json:"type"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
	IsPinned    bool      `json:"is_pinned"`
}

var EventExportHeaders = []string{"id", "title", "type", "location", "starts_at", "ends_at", "capacity"}

func (e Event) Identity() string { return e.ID }

func (e Event) ExportRow() map[string]string {
	return map[string]string{
		"id":        e.ID,
		"title":     e.Title,
		"type":      e.Type,
		"location":  e.Location,
		"starts_at": formatTime(e.StartsAt),
		"ends_at":   formatTime(e.EndsAt),
		"capacity":  strconv.Itoa(e.Capacity),
	}
}
