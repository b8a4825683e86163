package api

import (
	"context"

	"taskboard/domain"
)

// Storage abstracts persistence for handlers. Every mutation returns the
// canonical entity so responses always echo server truth.
type Storage interface {
	FetchBoard(ctx context.Context, projectID string) (domain.Board, error)
	CreateSection(ctx context.Context, projectID, title string) (domain.Section, error)
	DeleteSection(ctx context.Context, projectID, sectionID string) error
	ClearSection(ctx context.Context, projectID, sectionID string) (domain.Section, error)
	DeleteAllSections(ctx context.Context, projectID string) ([]domain.Section, error)
	CreateCard(ctx context.Context, projectID, sectionID string, draft domain.CardDraft) (domain.Card, error)
	UpdateCard(ctx context.Context, projectID string, upd domain.CardUpdate) (domain.Card, error)
	DeleteCard(ctx context.Context, projectID, cardID string) error
	MoveCard(ctx context.Context, projectID, cardID, targetSectionID string) (domain.Card, error)
	AssignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error)
	UnassignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error)
	ListUsers(ctx context.Context) ([]domain.UserLite, error)
	CreateComment(ctx context.Context, projectID, cardID, authorID, text string) (domain.Comment, error)
	UpdateComment(ctx context.Context, projectID, commentID, actorID, text string) (domain.Comment, error)
	DeleteComment(ctx context.Context, projectID, commentID, actorID string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// EventSink receives activity events after successful mutations. Publishing
// is fire-and-forget; implementations must never block the request path.
type EventSink interface {
	Emit(ev domain.Event)
}
