package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/domain"
)

// Memory is a mutex-guarded in-memory backend used for local development
// and tests. It enforces the same semantics as Tables: the backlog always
// exists and is never deletable, deleting a section relocates its cards to
// the backlog, assignment is a set, and only a comment's author may touch
// it.
type Memory struct {
	mu     sync.Mutex
	boards map[string]*domain.Board
	users  []domain.UserLite
	now    func() time.Time
	newID  func() string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		boards: make(map[string]*domain.Board),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// SeedUsers registers the users returned by ListUsers and resolvable as
// assignees and comment authors.
func (m *Memory) SeedUsers(users []domain.UserLite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, users...)
}

// board returns the project's board, creating it with a backlog section on
// first access. Callers hold the mutex.
func (m *Memory) board(projectID string) *domain.Board {
	b, ok := m.boards[projectID]
	if !ok {
		b = &domain.Board{
			ID: projectID,
			Sections: []domain.Section{
				{ID: m.newID(), Title: domain.BacklogTitle, CanDelete: false, Cards: []domain.Card{}},
			},
		}
		m.boards[projectID] = b
	}
	return b
}

// FetchBoard returns a deep copy of the project's board.
func (m *Memory) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.board(projectID).Clone(), nil
}

// CreateSection appends a new deletable section.
func (m *Memory) CreateSection(ctx context.Context, projectID, title string) (domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	sec := domain.Section{ID: m.newID(), Title: title, CanDelete: true, Cards: []domain.Card{}}
	b.Sections = append(b.Sections, sec)
	return sec, nil
}

// DeleteSection removes a deletable section, relocating its cards to the
// backlog in their current relative order.
func (m *Memory) DeleteSection(ctx context.Context, projectID, sectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	sec := b.Section(sectionID)
	if sec == nil {
		return fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	if !sec.CanDelete {
		return fmt.Errorf("%w: section %q cannot be deleted", domain.ErrValidation, sec.Title)
	}
	backlog := b.Backlog()
	for _, c := range sec.Cards {
		c.SectionID = backlog.ID
		backlog.Cards = append(backlog.Cards, c)
	}
	for i := range b.Sections {
		if b.Sections[i].ID == sectionID {
			b.Sections = append(b.Sections[:i], b.Sections[i+1:]...)
			break
		}
	}
	return nil
}

// ClearSection deletes every card in the section, comments included.
func (m *Memory) ClearSection(ctx context.Context, projectID, sectionID string) (domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	sec := b.Section(sectionID)
	if sec == nil {
		return domain.Section{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	sec.Cards = []domain.Card{}
	out := *sec
	out.Cards = []domain.Card{}
	return out, nil
}

// DeleteAllSections removes every deletable section and returns what
// remains.
func (m *Memory) DeleteAllSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	var relocated []domain.Card
	kept := make([]domain.Section, 0, 1)
	for _, sec := range b.Sections {
		if !sec.CanDelete {
			kept = append(kept, sec)
			continue
		}
		relocated = append(relocated, sec.Cards...)
	}
	b.Sections = kept
	backlog := b.Backlog()
	for _, c := range relocated {
		c.SectionID = backlog.ID
		backlog.Cards = append(backlog.Cards, c)
	}
	snapshot := b.Clone()
	return snapshot.Sections, nil
}

// CreateCard appends a card to the target section.
func (m *Memory) CreateCard(ctx context.Context, projectID, sectionID string, draft domain.CardDraft) (domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	sec := b.Section(sectionID)
	if sec == nil {
		return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	prio, ok := domain.ParsePriority(string(draft.Priority))
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, draft.Priority)
	}
	card := domain.Card{
		ID:          m.newID(),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    prio,
		Executor:    draft.Executor,
		CreatedAt:   m.now(),
		SectionID:   sec.ID,
	}
	sec.Cards = append(sec.Cards, card)
	return card, nil
}

// UpdateCard overwrites a card's fields; a different section id re-homes
// the card with append-on-move ordering.
func (m *Memory) UpdateCard(ctx context.Context, projectID string, upd domain.CardUpdate) (domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	current := b.SectionOf(upd.ID)
	if current == nil {
		return domain.Card{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, upd.ID)
	}
	prio, ok := domain.ParsePriority(string(upd.Priority))
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, upd.Priority)
	}
	card := *b.Card(upd.ID)
	card.Title = upd.Title
	card.Description = upd.Description
	card.Priority = prio
	card.Executor = upd.Executor

	if upd.SectionID == "" || upd.SectionID == current.ID {
		// In-place overwrite keeps the card's position.
		for i := range current.Cards {
			if current.Cards[i].ID == upd.ID {
				current.Cards[i] = card
				break
			}
		}
		return card, nil
	}
	target := b.Section(upd.SectionID)
	if target == nil {
		return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, upd.SectionID)
	}
	card.SectionID = target.ID
	m.removeCardLocked(b, upd.ID)
	target.Cards = append(target.Cards, card)
	return card, nil
}

// DeleteCard removes a card and its comments.
func (m *Memory) DeleteCard(ctx context.Context, projectID, cardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	if b.SectionOf(cardID) == nil {
		return fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	m.removeCardLocked(b, cardID)
	return nil
}

// MoveCard relocates a card, appending it to the destination's sequence.
func (m *Memory) MoveCard(ctx context.Context, projectID, cardID, targetSectionID string) (domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	current := b.SectionOf(cardID)
	if current == nil {
		return domain.Card{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	target := b.Section(targetSectionID)
	if target == nil {
		return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, targetSectionID)
	}
	card := *b.Card(cardID)
	if current.ID == target.ID {
		return card, nil
	}
	card.SectionID = target.ID
	m.removeCardLocked(b, cardID)
	target.Cards = append(target.Cards, card)
	return card, nil
}

// AssignUser adds a user to the card's assignee set. Assigning twice is a
// no-op; the returned list is the deduplicated truth.
func (m *Memory) AssignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	card := b.Card(cardID)
	if card == nil {
		return nil, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	for _, a := range card.Assignees {
		if a.ID == userID {
			return append([]domain.UserLite(nil), card.Assignees...), nil
		}
	}
	card.Assignees = append(card.Assignees, m.userLocked(userID))
	return append([]domain.UserLite(nil), card.Assignees...), nil
}

// UnassignUser removes a user from the card's assignee set.
func (m *Memory) UnassignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	card := b.Card(cardID)
	if card == nil {
		return nil, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	for i, a := range card.Assignees {
		if a.ID == userID {
			card.Assignees = append(card.Assignees[:i], card.Assignees[i+1:]...)
			break
		}
	}
	return append([]domain.UserLite(nil), card.Assignees...), nil
}

// ListUsers returns the seeded user directory.
func (m *Memory) ListUsers(ctx context.Context) ([]domain.UserLite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UserLite(nil), m.users...), nil
}

// CreateComment appends an authored comment to the card.
func (m *Memory) CreateComment(ctx context.Context, projectID, cardID, authorID, text string) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	card := b.Card(cardID)
	if card == nil {
		return domain.Comment{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	author := m.userLocked(authorID)
	cm := domain.Comment{ID: m.newID(), Text: text, CreatedAt: m.now(), Author: &author}
	card.Comments = append(card.Comments, cm)
	return cm, nil
}

// UpdateComment edits a comment's text; only the author may do so.
func (m *Memory) UpdateComment(ctx context.Context, projectID, commentID, actorID, text string) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm := m.findCommentLocked(projectID, commentID)
	if cm == nil {
		return domain.Comment{}, fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
	}
	if cm.Author == nil || cm.Author.ID != actorID {
		return domain.Comment{}, fmt.Errorf("%w: comment %s belongs to another user", domain.ErrForbidden, commentID)
	}
	cm.Text = text
	return *cm, nil
}

// DeleteComment removes a comment; only the author may do so.
func (m *Memory) DeleteComment(ctx context.Context, projectID, commentID, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.board(projectID)
	for i := range b.Sections {
		for j := range b.Sections[i].Cards {
			card := &b.Sections[i].Cards[j]
			for k := range card.Comments {
				if card.Comments[k].ID != commentID {
					continue
				}
				cm := card.Comments[k]
				if cm.Author == nil || cm.Author.ID != actorID {
					return fmt.Errorf("%w: comment %s belongs to another user", domain.ErrForbidden, commentID)
				}
				card.Comments = append(card.Comments[:k], card.Comments[k+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
}

func (m *Memory) removeCardLocked(b *domain.Board, cardID string) {
	for i := range b.Sections {
		cards := b.Sections[i].Cards
		for j := range cards {
			if cards[j].ID == cardID {
				b.Sections[i].Cards = append(cards[:j], cards[j+1:]...)
				return
			}
		}
	}
}

func (m *Memory) findCommentLocked(projectID, commentID string) *domain.Comment {
	b := m.board(projectID)
	for i := range b.Sections {
		for j := range b.Sections[i].Cards {
			card := &b.Sections[i].Cards[j]
			for k := range card.Comments {
				if card.Comments[k].ID == commentID {
					return &card.Comments[k]
				}
			}
		}
	}
	return nil
}

// userLocked resolves a user from the directory, falling back to a bare
// projection when the id is unknown (e.g. a freshly authenticated subject).
func (m *Memory) userLocked(userID string) domain.UserLite {
	for _, u := range m.users {
		if u.ID == userID {
			return u
		}
	}
	return domain.UserLite{ID: userID}
}
