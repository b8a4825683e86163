package storage

import (
	"context"
	"errors"
	"testing"

	"taskboard/domain"
)

func TestMemoryFetchBoardCreatesBacklog(t *testing.T) {
	m := NewMemory()
	b, err := m.FetchBoard(context.Background(), "p1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(b.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(b.Sections))
	}
	if b.Sections[0].Title != domain.BacklogTitle || b.Sections[0].CanDelete {
		t.Fatalf("first section is not a backlog: %+v", b.Sections[0])
	}
}

func TestMemoryProjectsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSection(ctx, "p1", "Doing"); err != nil {
		t.Fatalf("create section: %v", err)
	}
	b2, _ := m.FetchBoard(ctx, "p2")
	if len(b2.Sections) != 1 {
		t.Fatalf("p2 picked up p1's section: %+v", b2.Sections)
	}
}

func TestMemoryDeleteSectionRelocatesCards(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sec, _ := m.CreateSection(ctx, "p1", "Doing")
	c1, _ := m.CreateCard(ctx, "p1", sec.ID, domain.CardDraft{Title: "one"})
	c2, _ := m.CreateCard(ctx, "p1", sec.ID, domain.CardDraft{Title: "two"})

	if err := m.DeleteSection(ctx, "p1", sec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b, _ := m.FetchBoard(ctx, "p1")
	if len(b.Sections) != 1 {
		t.Fatalf("expected only backlog, got %d sections", len(b.Sections))
	}
	backlog := b.Backlog()
	if len(backlog.Cards) != 2 || backlog.Cards[0].ID != c1.ID || backlog.Cards[1].ID != c2.ID {
		t.Fatalf("cards not relocated in order: %+v", backlog.Cards)
	}
	for _, c := range backlog.Cards {
		if c.SectionID != backlog.ID {
			t.Fatalf("relocated card %s keeps stale section id %s", c.ID, c.SectionID)
		}
	}
}

func TestMemoryDeleteBacklogRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	err := m.DeleteSection(ctx, "p1", b.Backlog().ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMemoryClearSectionDropsCardsAndComments(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sec, _ := m.CreateSection(ctx, "p1", "Doing")
	card, _ := m.CreateCard(ctx, "p1", sec.ID, domain.CardDraft{Title: "one"})
	if _, err := m.CreateComment(ctx, "p1", card.ID, "u1", "note"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	emptied, err := m.ClearSection(ctx, "p1", sec.ID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(emptied.Cards) != 0 {
		t.Fatalf("clear echo still has cards: %+v", emptied.Cards)
	}
	b, _ := m.FetchBoard(ctx, "p1")
	if b.Card(card.ID) != nil {
		t.Fatal("cleared card still reachable")
	}
}

func TestMemoryDeleteAllSectionsKeepsBacklog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s1, _ := m.CreateSection(ctx, "p1", "Doing")
	s2, _ := m.CreateSection(ctx, "p1", "Done")
	m.CreateCard(ctx, "p1", s1.ID, domain.CardDraft{Title: "one"})
	m.CreateCard(ctx, "p1", s2.ID, domain.CardDraft{Title: "two"})

	remaining, err := m.DeleteAllSections(ctx, "p1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Title != domain.BacklogTitle {
		t.Fatalf("expected only backlog to remain, got %+v", remaining)
	}
	if len(remaining[0].Cards) != 2 {
		t.Fatalf("expected 2 relocated cards, got %d", len(remaining[0].Cards))
	}
}

func TestMemoryCreateCardValidatesPriority(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	_, err := m.CreateCard(ctx, "p1", b.Backlog().ID, domain.CardDraft{Title: "x", Priority: "urgent"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	card, err := m.CreateCard(ctx, "p1", b.Backlog().ID, domain.CardDraft{Title: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if card.Priority != domain.PriorityNormal {
		t.Fatalf("empty priority should default to normal, got %q", card.Priority)
	}
	if card.CreatedAt.IsZero() {
		t.Fatal("created card missing timestamp")
	}
}

func TestMemoryUpdateCardInPlaceAndRehome(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	backlogID := b.Backlog().ID
	first, _ := m.CreateCard(ctx, "p1", backlogID, domain.CardDraft{Title: "first"})
	m.CreateCard(ctx, "p1", backlogID, domain.CardDraft{Title: "second"})

	// Same-section update keeps position.
	upd := domain.CardUpdate{ID: first.ID, Title: "renamed", Priority: domain.PriorityHigh, SectionID: backlogID}
	if _, err := m.UpdateCard(ctx, "p1", upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	b, _ = m.FetchBoard(ctx, "p1")
	if got := b.Backlog().Cards[0]; got.ID != first.ID || got.Title != "renamed" {
		t.Fatalf("in-place update moved or lost the card: %+v", got)
	}

	// Cross-section update appends to the target.
	sec, _ := m.CreateSection(ctx, "p1", "Doing")
	upd.SectionID = sec.ID
	echoed, err := m.UpdateCard(ctx, "p1", upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if echoed.SectionID != sec.ID {
		t.Fatalf("echo section %q, want %q", echoed.SectionID, sec.ID)
	}
	b, _ = m.FetchBoard(ctx, "p1")
	if got := b.SectionOf(first.ID); got == nil || got.ID != sec.ID {
		t.Fatalf("card not re-homed: %v", got)
	}
}

func TestMemoryMoveCardSameSectionEchoesCard(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	backlogID := b.Backlog().ID
	card, _ := m.CreateCard(ctx, "p1", backlogID, domain.CardDraft{Title: "x"})
	echoed, err := m.MoveCard(ctx, "p1", card.ID, backlogID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if echoed.ID != card.ID || echoed.SectionID != backlogID {
		t.Fatalf("echo %+v", echoed)
	}
}

func TestMemoryAssignUserIsIdempotent(t *testing.T) {
	m := NewMemory()
	m.SeedUsers([]domain.UserLite{{ID: "u1", Name: "Alice", Email: "alice@example.com"}})
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	card, _ := m.CreateCard(ctx, "p1", b.Backlog().ID, domain.CardDraft{Title: "x"})

	for i := 0; i < 2; i++ {
		got, err := m.AssignUser(ctx, "p1", card.ID, "u1")
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if len(got) != 1 || got[0].Name != "Alice" {
			t.Fatalf("assignees %+v", got)
		}
	}
	got, err := m.UnassignUser(ctx, "p1", card.ID, "u1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty assignee list, got %+v", got)
	}
}

func TestMemoryCommentOwnership(t *testing.T) {
	m := NewMemory()
	m.SeedUsers([]domain.UserLite{{ID: "u1", Name: "Alice"}})
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	card, _ := m.CreateCard(ctx, "p1", b.Backlog().ID, domain.CardDraft{Title: "x"})
	cm, err := m.CreateComment(ctx, "p1", card.ID, "u1", "note")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if cm.Author == nil || cm.Author.Name != "Alice" {
		t.Fatalf("author not resolved: %+v", cm.Author)
	}

	if _, err := m.UpdateComment(ctx, "p1", cm.ID, "u2", "hijack"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-author edit, got %v", err)
	}
	if err := m.DeleteComment(ctx, "p1", cm.ID, "u2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-author delete, got %v", err)
	}

	edited, err := m.UpdateComment(ctx, "p1", cm.ID, "u1", "edited")
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Text != "edited" {
		t.Fatalf("text %q", edited.Text)
	}
	if err := m.DeleteComment(ctx, "p1", cm.ID, "u1"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if err := m.DeleteComment(ctx, "p1", cm.ID, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryDeleteCardCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	card, _ := m.CreateCard(ctx, "p1", b.Backlog().ID, domain.CardDraft{Title: "x"})
	cm, _ := m.CreateComment(ctx, "p1", card.ID, "u1", "note")

	if err := m.DeleteCard(ctx, "p1", card.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteCard(ctx, "p1", card.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.UpdateComment(ctx, "p1", cm.ID, "u1", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("comment should vanish with its card, got %v", err)
	}
}

func TestMemoryExclusiveMembership(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b, _ := m.FetchBoard(ctx, "p1")
	backlogID := b.Backlog().ID
	sec, _ := m.CreateSection(ctx, "p1", "Doing")
	card, _ := m.CreateCard(ctx, "p1", backlogID, domain.CardDraft{Title: "x"})

	if _, err := m.MoveCard(ctx, "p1", card.ID, sec.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	b, _ = m.FetchBoard(ctx, "p1")
	count := 0
	for _, s := range b.Sections {
		for _, c := range s.Cards {
			if c.ID == card.ID {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("card appears %d times", count)
	}
}
