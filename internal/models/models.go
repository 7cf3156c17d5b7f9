package models

import (
	"strconv"
	"strings"
	"time"
)

// Status tracks where a submitted asset is in the review lifecycle
type Status string

const (
	StatusReview   Status = "REVIEW"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Corner is a point in the pixel space of a template image
type Corner struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Area is a quadrilateral region of a template filled by one source image.
// Corners are always ordered top-left, top-right, bottom-right, bottom-left.
type Area struct {
	Index       int    `json:"index" yaml:"index"`
	SourceSlot  int    `json:"source_slot" yaml:"source_slot"`
	TopLeft     Corner `json:"top_left" yaml:"top_left"`
	TopRight    Corner `json:"top_right" yaml:"top_right"`
	BottomRight Corner `json:"bottom_right" yaml:"bottom_right"`
	BottomLeft  Corner `json:"bottom_left" yaml:"bottom_left"`
	Background  bool   `json:"background" yaml:"background"`
}

// Corners returns the area corners in TL, TR, BR, BL order
func (a Area) Corners() [4]Corner {
	return [4]Corner{a.TopLeft, a.TopRight, a.BottomRight, a.BottomLeft}
}

// MessageRef points at a chat message delivered or received by the bot
type MessageRef struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	SenderID  int64  `json:"sender_id,omitempty"`
}

// Author is a chat user who submitted templates or sources
type Author struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (a Author) Key() string { return strconv.FormatInt(a.ID, 10) }

// DisplayName prefers the @username and falls back to the full name
func (a Author) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Key()
	}
	return name
}

// Asset holds the fields shared by every reviewable submission
type Asset struct {
	ID        string      `json:"id"`
	Weight    int         `json:"weight"`
	Status    Status      `json:"status"`
	Message   *MessageRef `json:"message,omitempty"`
	AuthorID  int64       `json:"author_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (a Asset) Key() string { return a.ID }

func (a Asset) GetStatus() Status { return a.Status }

// Template is a background image with the areas sources are warped into
type Template struct {
	Asset
	Areas []Area `json:"areas"`
}

// SourceCount is the number of distinct source images the template consumes
func (t Template) SourceCount() int {
	slots := make(map[int]struct{}, len(t.Areas))
	for _, area := range t.Areas {
		slots[area.SourceSlot] = struct{}{}
	}
	return len(slots)
}

// Source is a user submitted overlay image
type Source struct {
	Asset
	Description string `json:"description"`
}

// Meme records one delivered generation, used for anti-repetition
type Meme struct {
	ID         string      `json:"id"`
	TemplateID string      `json:"template_id"`
	SourceIDs  []string    `json:"source_ids"`
	Message    *MessageRef `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (m Meme) Key() string { return m.ID }
