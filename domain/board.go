package domain

import "time"

// BacklogTitle is the title of the default section every board carries.
// The backlog is created server-side and can never be deleted.
const BacklogTitle = "Backlog"

// Priority classifies how urgent a card is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a wire-level priority string. An empty string
// defaults to normal.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), true
	case "":
		return PriorityNormal, true
	}
	return "", false
}

// Rank orders priorities ascending: low, normal, high. Unknown values sort
// with normal so that malformed data never panics a sort.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// UserLite is the projection of a user carried on boards: enough to render
// an assignee or comment author, nothing more.
type UserLite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Comment is a single remark on a card. Authorship is set on creation and
// immutable afterwards.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *UserLite `json:"author,omitempty"`
}

// Card is a single work item. It belongs to exactly one section at any
// time; SectionID names that section.
type Card struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Executor    string     `json:"executor,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	SectionID   string     `json:"sectionId"`
	Comments    []Comment  `json:"comments,omitempty"`
	Assignees   []UserLite `json:"assignees,omitempty"`
}

// Section is an ordered bucket of cards. CanDelete is false only for the
// backlog section.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CanDelete bool   `json:"canDelete"`
	Cards     []Card `json:"cards"`
}

// Board is the full state of one project: an ordered sequence of sections.
type Board struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
}

// CardDraft carries the caller-supplied fields for a new card.
type CardDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Executor    string   `json:"executor,omitempty"`
}

// CardUpdate carries the full replacement fields for an existing card.
// SectionID may differ from the card's current section, in which case the
// update doubles as a move.
type CardUpdate struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Executor    string   `json:"executor,omitempty"`
	SectionID   string   `json:"sectionId"`
}

// Section returns the section with the given id, or nil.
func (b *Board) Section(id string) *Section {
	for i := range b.Sections {
		if b.Sections[i].ID == id {
			return &b.Sections[i]
		}
	}
	return nil
}

// SectionOf scans all sections for the one currently holding the card.
// Membership is derived from the card sequences, never from a cached
// section id.
func (b *Board) SectionOf(cardID string) *Section {
	for i := range b.Sections {
		for j := range b.Sections[i].Cards {
			if b.Sections[i].Cards[j].ID == cardID {
				return &b.Sections[i]
			}
		}
	}
	return nil
}

// Card returns the card with the given id wherever it lives, or nil.
func (b *Board) Card(id string) *Card {
	for i := range b.Sections {
		for j := range b.Sections[i].Cards {
			if b.Sections[i].Cards[j].ID == id {
				return &b.Sections[i].Cards[j]
			}
		}
	}
	return nil
}

// Backlog returns the board's non-deletable section, or nil if the board
// has not been hydrated yet.
func (b *Board) Backlog() *Section {
	for i := range b.Sections {
		if !b.Sections[i].CanDelete {
			return &b.Sections[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hold a snapshot without aliasing
// the board's slices.
func (b Board) Clone() Board {
	out := b
	out.Sections = make([]Section, len(b.Sections))
	for i, s := range b.Sections {
		cs := s
		cs.Cards = make([]Card, len(s.Cards))
		for j, c := range s.Cards {
			cs.Cards[j] = c.clone()
		}
		out.Sections[i] = cs
	}
	return out
}

func (c Card) clone() Card {
	out := c
	if c.Comments != nil {
		out.Comments = make([]Comment, len(c.Comments))
		for i, cm := range c.Comments {
			out.Comments[i] = cm
			if cm.Author != nil {
				a := *cm.Author
				out.Comments[i].Author = &a
			}
		}
	}
	if c.Assignees != nil {
		out.Assignees = append([]UserLite(nil), c.Assignees...)
	}
	return out
}
