// Package board holds the client-side mirror of one project's board and
// the mutation operations that keep it consistent with the server. Every
// mutation is two-phase: issue the remote call, then merge the server's
// canonical response into local state. Local state is never updated
// optimistically, so a failed call leaves the mirror untouched.
package board

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Remote is the JSON-over-HTTP collaborator the store synchronizes with.
// Implementations return the server's canonical entity on success; the
// store always prefers that echo over its own state.
type Remote interface {
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
	CreateComment(ctx context.Context, projectID, cardID, text string) (domain.Comment, error)
	UpdateComment(ctx context.Context, projectID, commentID, text string) (domain.Comment, error)
	DeleteComment(ctx context.Context, projectID, commentID string) error
	FetchUsers(ctx context.Context) ([]domain.UserLite, error)
}

// Store is the single in-memory representation of the active board. One
// Store is created per selected project and replaced wholesale on a board
// switch. It is not safe for concurrent use: the caller's event loop
// serializes operations, and the last server response to land wins.
type Store struct {
	remote    Remote
	projectID string
	logger    *log.Logger

	board  domain.Board
	loaded bool
}

// NewStore creates a store bound to one project. The board is empty until
// Load runs.
func NewStore(remote Remote, projectID string, logger *log.Logger) *Store {
	if remote == nil {
		panic("board.NewStore: remote is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		remote:    remote,
		projectID: projectID,
		logger:    logger,
		board:     domain.Board{ID: projectID},
	}
}

// ProjectID returns the project this store mirrors.
func (s *Store) ProjectID() string { return s.projectID }

// Loaded reports whether the initial hydration has completed, successfully
// or not. The presentation layer uses this to avoid rendering a default
// skeleton as if it were real data.
func (s *Store) Loaded() bool { return s.loaded }

// Board returns a deep-copied snapshot of the current state. Callers can
// never mutate the store through it.
func (s *Store) Board() domain.Board { return s.board.Clone() }

// Load fetches the full board and replaces local state wholesale. On
// failure the store degrades to an empty board skeleton and still reports
// the error; either way the store counts as loaded afterwards.
func (s *Store) Load(ctx context.Context) error {
	b, err := s.remote.FetchBoard(ctx, s.projectID)
	if err != nil {
		s.logger.WithFields(log.Fields{"project": s.projectID, "error": err.Error()}).Warn("board hydration failed, serving empty skeleton")
		s.board = domain.Board{ID: s.projectID}
		s.loaded = true
		return err
	}
	s.board = b
	s.loaded = true
	return nil
}

// refresh refetches the full board after a mutation whose side effects
// (card relocation, cascaded deletes) happen server-side. Unlike Load it
// keeps the previous state when the refetch fails.
func (s *Store) refresh(ctx context.Context) error {
	b, err := s.remote.FetchBoard(ctx, s.projectID)
	if err != nil {
		s.logger.WithFields(log.Fields{"project": s.projectID, "error": err.Error()}).Error("board refresh failed, local state may be stale")
		return err
	}
	s.board = b
	return nil
}

// AddSection creates a section and appends the server-assigned result.
func (s *Store) AddSection(ctx context.Context, title string) (domain.Section, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Section{}, fmt.Errorf("%w: section title is required", domain.ErrValidation)
	}
	sec, err := s.remote.CreateSection(ctx, s.projectID, title)
	if err != nil {
		return domain.Section{}, err
	}
	s.board.Sections = append(s.board.Sections, sec)
	return sec, nil
}

// DeleteSection removes a deletable section. Its cards are relocated to
// the backlog by the server, so the store refetches the whole board to
// pick up the relocation. The backlog itself is rejected before any
// remote call is issued.
func (s *Store) DeleteSection(ctx context.Context, sectionID string) error {
	sec := s.board.Section(sectionID)
	if sec == nil {
		return fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	if !sec.CanDelete {
		return fmt.Errorf("%w: section %q cannot be deleted", domain.ErrValidation, sec.Title)
	}
	if err := s.remote.DeleteSection(ctx, s.projectID, sectionID); err != nil {
		return err
	}
	return s.refresh(ctx)
}

// ClearSection removes every card in the section, comments included.
func (s *Store) ClearSection(ctx context.Context, sectionID string) error {
	if s.board.Section(sectionID) == nil {
		return fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	if _, err := s.remote.ClearSection(ctx, s.projectID, sectionID); err != nil {
		return err
	}
	return s.refresh(ctx)
}

// DeleteAllSections removes every deletable section; their cards end up in
// the backlog server-side.
func (s *Store) DeleteAllSections(ctx context.Context) error {
	if _, err := s.remote.DeleteAllSections(ctx, s.projectID); err != nil {
		return err
	}
	return s.refresh(ctx)
}

// AddCard creates a card in the target section and appends the server
// echo. The echo's section id, not the requested one, decides where the
// card lands locally.
func (s *Store) AddCard(ctx context.Context, sectionID string, draft domain.CardDraft) (domain.Card, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return domain.Card{}, fmt.Errorf("%w: card title is required", domain.ErrValidation)
	}
	card, err := s.remote.CreateCard(ctx, s.projectID, sectionID, draft)
	if err != nil {
		return domain.Card{}, err
	}
	s.placeCard(ctx, card)
	return card, nil
}

// UpdateCard overwrites a card with the server echo. When the echo names a
// different section the card is re-homed, which makes an update with a new
// section id semantically a move.
func (s *Store) UpdateCard(ctx context.Context, upd domain.CardUpdate) (domain.Card, error) {
	if strings.TrimSpace(upd.Title) == "" {
		return domain.Card{}, fmt.Errorf("%w: card title is required", domain.ErrValidation)
	}
	card, err := s.remote.UpdateCard(ctx, s.projectID, upd)
	if err != nil {
		return domain.Card{}, err
	}
	s.mergeCard(ctx, card)
	return card, nil
}

// DeleteCard removes the card from whichever section currently holds it.
func (s *Store) DeleteCard(ctx context.Context, cardID string) error {
	if err := s.remote.DeleteCard(ctx, s.projectID, cardID); err != nil {
		return err
	}
	s.removeCard(cardID)
	return nil
}

// MoveCard relocates a card to the target section. Moving a card onto the
// section that already holds it, or onto an unknown target, issues no
// remote call and is not an error.
func (s *Store) MoveCard(ctx context.Context, cardID, targetSectionID string) error {
	current := s.board.SectionOf(cardID)
	if current == nil {
		return nil
	}
	if s.board.Section(targetSectionID) == nil {
		return nil
	}
	if current.ID == targetSectionID {
		return nil
	}
	card, err := s.remote.MoveCard(ctx, s.projectID, cardID, targetSectionID)
	if err != nil {
		return err
	}
	s.mergeCard(ctx, card)
	return nil
}

// AssignUser links a user to a card. The card's assignee set is replaced
// with the server-returned list verbatim; the server owns deduplication.
func (s *Store) AssignUser(ctx context.Context, cardID, userID string) error {
	assignees, err := s.remote.AssignUser(ctx, s.projectID, cardID, userID)
	if err != nil {
		return err
	}
	s.setAssignees(cardID, assignees)
	return nil
}

// UnassignUser removes a user from a card, mirroring AssignUser.
func (s *Store) UnassignUser(ctx context.Context, cardID, userID string) error {
	assignees, err := s.remote.UnassignUser(ctx, s.projectID, cardID, userID)
	if err != nil {
		return err
	}
	s.setAssignees(cardID, assignees)
	return nil
}

// AddComment appends the server-created comment, author included, to the
// card's comment sequence.
func (s *Store) AddComment(ctx context.Context, cardID, text string) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, fmt.Errorf("%w: comment text is required", domain.ErrValidation)
	}
	cm, err := s.remote.CreateComment(ctx, s.projectID, cardID, text)
	if err != nil {
		return domain.Comment{}, err
	}
	if card := s.board.Card(cardID); card != nil {
		card.Comments = append(card.Comments, cm)
	}
	return cm, nil
}

// UpdateComment replaces a comment with the server echo. Only the author
// may edit; the server rejects everyone else and the error surfaces
// unchanged.
func (s *Store) UpdateComment(ctx context.Context, commentID, text string) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, fmt.Errorf("%w: comment text is required", domain.ErrValidation)
	}
	cm, err := s.remote.UpdateComment(ctx, s.projectID, commentID, text)
	if err != nil {
		return domain.Comment{}, err
	}
	s.replaceComment(cm)
	return cm, nil
}

// DeleteComment removes a comment after the server accepts the delete.
func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	if err := s.remote.DeleteComment(ctx, s.projectID, commentID); err != nil {
		return err
	}
	s.removeComment(commentID)
	return nil
}

// placeCard appends a card to the section named by its server echo. If
// that section is unknown locally the store resyncs instead of guessing.
func (s *Store) placeCard(ctx context.Context, card domain.Card) {
	sec := s.board.Section(card.SectionID)
	if sec == nil {
		_ = s.refresh(ctx)
		return
	}
	sec.Cards = append(sec.Cards, card)
}

// mergeCard installs a server echo for a card that may have changed
// sections. The current section is found by scanning card sequences, so a
// stale local section id can never leave a duplicate behind.
func (s *Store) mergeCard(ctx context.Context, card domain.Card) {
	current := s.board.SectionOf(card.ID)
	if current != nil && current.ID == card.SectionID {
		for i := range current.Cards {
			if current.Cards[i].ID == card.ID {
				current.Cards[i] = card
				return
			}
		}
	}
	s.removeCard(card.ID)
	s.placeCard(ctx, card)
}

func (s *Store) removeCard(cardID string) {
	for i := range s.board.Sections {
		cards := s.board.Sections[i].Cards
		for j := range cards {
			if cards[j].ID == cardID {
				s.board.Sections[i].Cards = append(cards[:j], cards[j+1:]...)
				return
			}
		}
	}
}

func (s *Store) setAssignees(cardID string, assignees []domain.UserLite) {
	card := s.board.Card(cardID)
	if card == nil {
		return
	}
	card.Assignees = assignees
}

func (s *Store) replaceComment(cm domain.Comment) {
	for i := range s.board.Sections {
		for j := range s.board.Sections[i].Cards {
			comments := s.board.Sections[i].Cards[j].Comments
			for k := range comments {
				if comments[k].ID == cm.ID {
					comments[k] = cm
					return
				}
			}
		}
	}
}

func (s *Store) removeComment(commentID string) {
	for i := range s.board.Sections {
		for j := range s.board.Sections[i].Cards {
			card := &s.board.Sections[i].Cards[j]
			for k := range card.Comments {
				if card.Comments[k].ID == commentID {
					card.Comments = append(card.Comments[:k], card.Comments[k+1:]...)
					return
				}
			}
		}
	}
}
