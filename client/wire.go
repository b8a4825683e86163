package client

import (
	"fmt"
	"time"

	"taskboard/domain"
)

// Wire representations mirror the API's JSON shapes. Timestamps travel as
// ISO-8601 strings and are parsed into time.Time here, at the boundary.

type boardWire struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Sections []sectionWire `json:"sections"`
}

type sectionWire struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CanDelete bool       `json:"canDelete"`
	Cards     []cardWire `json:"cards"`
}

type cardWire struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
	Executor    string            `json:"executor"`
	CreatedAt   string            `json:"createdAt"`
	SectionID   string            `json:"sectionId"`
	Comments    []commentWire     `json:"comments"`
	Assignees   []domain.UserLite `json:"assignees"`
}

type commentWire struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	CreatedAt string           `json:"createdAt"`
	Author    *domain.UserLite `json:"author"`
}

type assigneesWire struct {
	Assignees []domain.UserLite `json:"assignees"`
}

func (w boardWire) toDomain() (domain.Board, error) {
	b := domain.Board{ID: w.ID, Title: w.Title, Sections: make([]domain.Section, 0, len(w.Sections))}
	for _, sw := range w.Sections {
		sec, err := sw.toDomain()
		if err != nil {
			return domain.Board{}, err
		}
		b.Sections = append(b.Sections, sec)
	}
	return b, nil
}

func (w sectionWire) toDomain() (domain.Section, error) {
	sec := domain.Section{ID: w.ID, Title: w.Title, CanDelete: w.CanDelete, Cards: make([]domain.Card, 0, len(w.Cards))}
	for _, cw := range w.Cards {
		card, err := cw.toDomain()
		if err != nil {
			return domain.Section{}, err
		}
		sec.Cards = append(sec.Cards, card)
	}
	return sec, nil
}

func (w cardWire) toDomain() (domain.Card, error) {
	createdAt, err := parseWireTime(w.CreatedAt)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", w.ID, err)
	}
	prio, ok := domain.ParsePriority(w.Priority)
	if !ok {
		return domain.Card{}, fmt.Errorf("card %s: unknown priority %q", w.ID, w.Priority)
	}
	card := domain.Card{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Priority:    prio,
		Executor:    w.Executor,
		CreatedAt:   createdAt,
		SectionID:   w.SectionID,
		Assignees:   w.Assignees,
	}
	if len(w.Comments) > 0 {
		card.Comments = make([]domain.Comment, 0, len(w.Comments))
		for _, cm := range w.Comments {
			dc, err := cm.toDomain()
			if err != nil {
				return domain.Card{}, err
			}
			card.Comments = append(card.Comments, dc)
		}
	}
	return card, nil
}

func (w commentWire) toDomain() (domain.Comment, error) {
	createdAt, err := parseWireTime(w.CreatedAt)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("comment %s: %w", w.ID, err)
	}
	return domain.Comment{ID: w.ID, Text: w.Text, CreatedAt: createdAt, Author: w.Author}, nil
}

func parseWireTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
