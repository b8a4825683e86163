package domain

import (
	"encoding/json"
	"time"
)

const (
	SectionCreated = "section-created"
	SectionDeleted = "section-deleted"
	SectionCleared = "section-cleared"
	SectionsPurged = "sections-purged"
	CardCreated    = "card-created"
	CardUpdated    = "card-updated"
	CardDeleted    = "card-deleted"
	CardMoved      = "card-moved"
	CardAssigned   = "card-assigned"
	CardUnassigned = "card-unassigned"
	CommentCreated = "comment-created"
	CommentUpdated = "comment-updated"
	CommentDeleted = "comment-deleted"
)

// Event records a successful board mutation for the activity feed queue.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId"`
	EntityID  string          `json:"entityId"`
	ActorID   string          `json:"actorId"`
	Time      time.Time       `json:"time"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type CardMovedEventData struct {
	ToSectionID string `json:"toSectionId"`
}

type CardAssignmentEventData struct {
	UserID string `json:"userId"`
}
