// Package storage provides the persistence backends for the board API:
// Azure Table storage for production, an in-memory implementation for
// local development and tests, and a Redis cache wrapper for board reads.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"taskboard/domain"
)

// Tables persists boards in Azure Table storage. Sections, cards and
// comments are partitioned by project id; users live in a single fixed
// partition. Ordering within a sequence is an insertion-order Seq counter,
// never an explicit rank.
type Tables struct {
	sections *aztables.Client
	cards    *aztables.Client
	comments *aztables.Client
	users    *aztables.Client
}

const userPartition = "users"

// NewTables creates a Tables backend from the given connection string.
func NewTables(connStr, sectionsTable, cardsTable, commentsTable, usersTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		sections: svc.NewClient(sectionsTable),
		cards:    svc.NewClient(cardsTable),
		comments: svc.NewClient(commentsTable),
		users:    svc.NewClient(usersTable),
	}, nil
}

type sectionEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	CanDelete bool   `json:"CanDelete"`
	Seq       int64  `json:"Seq"`
}

type cardEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Priority    string `json:"Priority"`
	Executor    string `json:"Executor"`
	SectionID   string `json:"SectionID"`
	CreatedAt   string `json:"CreatedAt"`
	Assignees   string `json:"Assignees"` // JSON-encoded user id list
	Seq         int64  `json:"Seq"`
}

type commentEntity struct {
	aztables.Entity
	CardID    string `json:"CardID"`
	AuthorID  string `json:"AuthorID"`
	Text      string `json:"Text"`
	CreatedAt string `json:"CreatedAt"`
	Seq       int64  `json:"Seq"`
}

type userEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Email string `json:"Email"`
}

var lastSeq int64

// nextSeq returns a strictly increasing insertion-order counter, monotonic
// even when the clock steps backwards.
func nextSeq() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastSeq)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastSeq, last, now) {
			return now
		}
	}
}

// FetchBoard assembles the full board snapshot for a project, creating the
// backlog section on first access.
func (t *Tables) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	sections, err := t.listSections(ctx, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	hasBacklog := false
	for i := range sections {
		if !sections[i].CanDelete {
			hasBacklog = true
			break
		}
	}
	if !hasBacklog {
		// First access, or tampered rows where every section claims to be
		// deletable. Either way the project gets its backlog back.
		backlog, err := t.insertSection(ctx, projectID, domain.BacklogTitle, false)
		if err != nil {
			return domain.Board{}, err
		}
		sections = append(sections, backlog)
	}
	cards, err := t.listCards(ctx, "PartitionKey eq '"+projectID+"'")
	if err != nil {
		return domain.Board{}, err
	}
	comments, err := t.listComments(ctx, "PartitionKey eq '"+projectID+"'")
	if err != nil {
		return domain.Board{}, err
	}
	users, err := t.userDirectory(ctx)
	if err != nil {
		return domain.Board{}, err
	}

	commentsByCard := make(map[string][]domain.Comment)
	for _, ce := range comments {
		cm, err := ce.toDomain(users)
		if err != nil {
			return domain.Board{}, err
		}
		commentsByCard[ce.CardID] = append(commentsByCard[ce.CardID], cm)
	}

	return assembleBoard(projectID, sections, cards, users, commentsByCard)
}

// assembleBoard builds the board snapshot from raw entity rows. Cards whose
// section row no longer exists heal into the backlog; FetchBoard guarantees
// the section list contains one.
func assembleBoard(projectID string, sections []sectionEntity, cards []cardEntity, users map[string]domain.UserLite, commentsByCard map[string][]domain.Comment) (domain.Board, error) {
	board := domain.Board{ID: projectID, Sections: make([]domain.Section, 0, len(sections))}
	for _, se := range sections {
		board.Sections = append(board.Sections, domain.Section{
			ID:        se.RowKey,
			Title:     se.Title,
			CanDelete: se.CanDelete,
			Cards:     []domain.Card{},
		})
	}
	for _, ce := range cards {
		card, err := ce.toDomain(users, commentsByCard[ce.RowKey])
		if err != nil {
			return domain.Board{}, err
		}
		sec := board.Section(card.SectionID)
		if sec == nil {
			// Orphaned membership heals into the backlog.
			sec = board.Backlog()
			if sec == nil {
				return domain.Board{}, fmt.Errorf("project %s has no backlog for orphaned card %s", projectID, card.ID)
			}
			card.SectionID = sec.ID
		}
		sec.Cards = append(sec.Cards, card)
	}
	return board, nil
}

// CreateSection appends a new deletable section.
func (t *Tables) CreateSection(ctx context.Context, projectID, title string) (domain.Section, error) {
	ent, err := t.insertSection(ctx, projectID, title, true)
	if err != nil {
		return domain.Section{}, err
	}
	return domain.Section{ID: ent.RowKey, Title: ent.Title, CanDelete: ent.CanDelete, Cards: []domain.Card{}}, nil
}

// DeleteSection removes a deletable section and relocates its cards to the
// backlog, preserving their relative order.
func (t *Tables) DeleteSection(ctx context.Context, projectID, sectionID string) error {
	sec, err := t.getSection(ctx, projectID, sectionID)
	if err != nil {
		return err
	}
	if sec == nil {
		return fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	if !sec.CanDelete {
		return fmt.Errorf("%w: section %q cannot be deleted", domain.ErrValidation, sec.Title)
	}
	backlog, err := t.backlogSection(ctx, projectID)
	if err != nil {
		return err
	}
	if err := t.relocateCards(ctx, projectID, sectionID, backlog.RowKey); err != nil {
		return err
	}
	_, err = t.sections.DeleteEntity(ctx, projectID, sectionID, nil)
	return err
}

// ClearSection deletes every card in the section along with the cards'
// comments, returning the emptied section.
func (t *Tables) ClearSection(ctx context.Context, projectID, sectionID string) (domain.Section, error) {
	sec, err := t.getSection(ctx, projectID, sectionID)
	if err != nil {
		return domain.Section{}, err
	}
	if sec == nil {
		return domain.Section{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	cards, err := t.listCards(ctx, fmt.Sprintf("PartitionKey eq '%s' and SectionID eq '%s'", projectID, sectionID))
	if err != nil {
		return domain.Section{}, err
	}
	for _, ce := range cards {
		if err := t.deleteCardCascade(ctx, projectID, ce.RowKey); err != nil {
			return domain.Section{}, err
		}
	}
	return domain.Section{ID: sec.RowKey, Title: sec.Title, CanDelete: sec.CanDelete, Cards: []domain.Card{}}, nil
}

// DeleteAllSections removes every deletable section and returns whatever
// remains, normally just the backlog.
func (t *Tables) DeleteAllSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	sections, err := t.listSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, se := range sections {
		if !se.CanDelete {
			continue
		}
		if err := t.DeleteSection(ctx, projectID, se.RowKey); err != nil {
			return nil, err
		}
	}
	board, err := t.FetchBoard(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return board.Sections, nil
}

// CreateCard appends a card to the target section.
func (t *Tables) CreateCard(ctx context.Context, projectID, sectionID string, draft domain.CardDraft) (domain.Card, error) {
	sec, err := t.getSection(ctx, projectID, sectionID)
	if err != nil {
		return domain.Card{}, err
	}
	if sec == nil {
		return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, sectionID)
	}
	prio, ok := domain.ParsePriority(string(draft.Priority))
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, draft.Priority)
	}
	ent := cardEntity{
		Entity:      aztables.Entity{PartitionKey: projectID, RowKey: uuid.NewString()},
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    string(prio),
		Executor:    draft.Executor,
		SectionID:   sectionID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Assignees:   "[]",
		Seq:         nextSeq(),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Card{}, err
	}
	if _, err := t.cards.AddEntity(ctx, payload, nil); err != nil {
		return domain.Card{}, err
	}
	return ent.toDomain(nil, nil)
}

// UpdateCard overwrites a card's fields; a changed section id re-homes the
// card to the end of the destination's sequence.
func (t *Tables) UpdateCard(ctx context.Context, projectID string, upd domain.CardUpdate) (domain.Card, error) {
	ent, err := t.getCard(ctx, projectID, upd.ID)
	if err != nil {
		return domain.Card{}, err
	}
	if ent == nil {
		return domain.Card{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, upd.ID)
	}
	prio, ok := domain.ParsePriority(string(upd.Priority))
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, upd.Priority)
	}
	ent.Title = upd.Title
	ent.Description = upd.Description
	ent.Priority = string(prio)
	ent.Executor = upd.Executor
	if upd.SectionID != "" && upd.SectionID != ent.SectionID {
		target, err := t.getSection(ctx, projectID, upd.SectionID)
		if err != nil {
			return domain.Card{}, err
		}
		if target == nil {
			return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, upd.SectionID)
		}
		ent.SectionID = upd.SectionID
		ent.Seq = nextSeq()
	}
	if err := t.putCard(ctx, *ent); err != nil {
		return domain.Card{}, err
	}
	return t.hydrateCard(ctx, *ent)
}

// DeleteCard removes a card and all of its comments.
func (t *Tables) DeleteCard(ctx context.Context, projectID, cardID string) error {
	ent, err := t.getCard(ctx, projectID, cardID)
	if err != nil {
		return err
	}
	if ent == nil {
		return fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	return t.deleteCardCascade(ctx, projectID, cardID)
}

// MoveCard relocates a card to the target section, appending it to the
// destination order, and returns the card carrying its new section id.
func (t *Tables) MoveCard(ctx context.Context, projectID, cardID, targetSectionID string) (domain.Card, error) {
	ent, err := t.getCard(ctx, projectID, cardID)
	if err != nil {
		return domain.Card{}, err
	}
	if ent == nil {
		return domain.Card{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	if ent.SectionID == targetSectionID {
		return t.hydrateCard(ctx, *ent)
	}
	target, err := t.getSection(ctx, projectID, targetSectionID)
	if err != nil {
		return domain.Card{}, err
	}
	if target == nil {
		return domain.Card{}, fmt.Errorf("%w: section %s", domain.ErrNotFound, targetSectionID)
	}
	ent.SectionID = targetSectionID
	ent.Seq = nextSeq()
	if err := t.putCard(ctx, *ent); err != nil {
		return domain.Card{}, err
	}
	return t.hydrateCard(ctx, *ent)
}

// AssignUser adds a user to the card's assignee set and returns the
// deduplicated list.
func (t *Tables) AssignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	return t.mutateAssignees(ctx, projectID, cardID, func(ids []string) []string {
		for _, id := range ids {
			if id == userID {
				return ids
			}
		}
		return append(ids, userID)
	})
}

// UnassignUser removes a user from the card's assignee set.
func (t *Tables) UnassignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	return t.mutateAssignees(ctx, projectID, cardID, func(ids []string) []string {
		out := ids[:0]
		for _, id := range ids {
			if id != userID {
				out = append(out, id)
			}
		}
		return out
	})
}

// ListUsers returns every known user.
func (t *Tables) ListUsers(ctx context.Context) ([]domain.UserLite, error) {
	users, err := t.userDirectory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserLite, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertUser registers or refreshes a user projection.
func (t *Tables) UpsertUser(ctx context.Context, u domain.UserLite) error {
	ent := userEntity{
		Entity: aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Name:   u.Name,
		Email:  u.Email,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = t.users.UpsertEntity(ctx, payload, nil)
	return err
}

// CreateComment appends an authored comment to the card.
func (t *Tables) CreateComment(ctx context.Context, projectID, cardID, authorID, text string) (domain.Comment, error) {
	card, err := t.getCard(ctx, projectID, cardID)
	if err != nil {
		return domain.Comment{}, err
	}
	if card == nil {
		return domain.Comment{}, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	ent := commentEntity{
		Entity:    aztables.Entity{PartitionKey: projectID, RowKey: uuid.NewString()},
		CardID:    cardID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Seq:       nextSeq(),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := t.comments.AddEntity(ctx, payload, nil); err != nil {
		return domain.Comment{}, err
	}
	users, err := t.userDirectory(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	return ent.toDomain(users)
}

// UpdateComment edits a comment's text; only its author may do so.
func (t *Tables) UpdateComment(ctx context.Context, projectID, commentID, actorID, text string) (domain.Comment, error) {
	ent, err := t.getComment(ctx, projectID, commentID)
	if err != nil {
		return domain.Comment{}, err
	}
	if ent == nil {
		return domain.Comment{}, fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
	}
	if ent.AuthorID != actorID {
		return domain.Comment{}, fmt.Errorf("%w: comment %s belongs to another user", domain.ErrForbidden, commentID)
	}
	ent.Text = text
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Comment{}, err
	}
	et := azcore.ETagAny
	if _, err := t.comments.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.Comment{}, err
	}
	users, err := t.userDirectory(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	return ent.toDomain(users)
}

// DeleteComment removes a comment; only its author may do so.
func (t *Tables) DeleteComment(ctx context.Context, projectID, commentID, actorID string) error {
	ent, err := t.getComment(ctx, projectID, commentID)
	if err != nil {
		return err
	}
	if ent == nil {
		return fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentID)
	}
	if ent.AuthorID != actorID {
		return fmt.Errorf("%w: comment %s belongs to another user", domain.ErrForbidden, commentID)
	}
	_, err = t.comments.DeleteEntity(ctx, projectID, commentID, nil)
	return err
}

func (t *Tables) insertSection(ctx context.Context, projectID, title string, canDelete bool) (sectionEntity, error) {
	ent := sectionEntity{
		Entity:    aztables.Entity{PartitionKey: projectID, RowKey: uuid.NewString()},
		Title:     title,
		CanDelete: canDelete,
		Seq:       nextSeq(),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return sectionEntity{}, err
	}
	if _, err := t.sections.AddEntity(ctx, payload, nil); err != nil {
		return sectionEntity{}, err
	}
	return ent, nil
}

func (t *Tables) relocateCards(ctx context.Context, projectID, fromSectionID, toSectionID string) error {
	cards, err := t.listCards(ctx, fmt.Sprintf("PartitionKey eq '%s' and SectionID eq '%s'", projectID, fromSectionID))
	if err != nil {
		return err
	}
	for _, ce := range cards {
		ce.SectionID = toSectionID
		ce.Seq = nextSeq()
		if err := t.putCard(ctx, ce); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tables) deleteCardCascade(ctx context.Context, projectID, cardID string) error {
	comments, err := t.listComments(ctx, fmt.Sprintf("PartitionKey eq '%s' and CardID eq '%s'", projectID, cardID))
	if err != nil {
		return err
	}
	for _, ce := range comments {
		if _, err := t.comments.DeleteEntity(ctx, projectID, ce.RowKey, nil); err != nil {
			return err
		}
	}
	_, err = t.cards.DeleteEntity(ctx, projectID, cardID, nil)
	return err
}

func (t *Tables) mutateAssignees(ctx context.Context, projectID, cardID string, mutate func([]string) []string) ([]domain.UserLite, error) {
	ent, err := t.getCard(ctx, projectID, cardID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, fmt.Errorf("%w: card %s", domain.ErrNotFound, cardID)
	}
	ids, err := decodeAssignees(ent.Assignees)
	if err != nil {
		return nil, err
	}
	ids = mutate(ids)
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	ent.Assignees = string(encoded)
	if err := t.putCard(ctx, *ent); err != nil {
		return nil, err
	}
	users, err := t.userDirectory(ctx)
	if err != nil {
		return nil, err
	}
	return resolveUsers(ids, users), nil
}

func (t *Tables) putCard(ctx context.Context, ent cardEntity) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = t.cards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (t *Tables) getSection(ctx context.Context, projectID, sectionID string) (*sectionEntity, error) {
	resp, err := t.sections.GetEntity(ctx, projectID, sectionID, nil)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	var ent sectionEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func (t *Tables) getCard(ctx context.Context, projectID, cardID string) (*cardEntity, error) {
	resp, err := t.cards.GetEntity(ctx, projectID, cardID, nil)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	var ent cardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func (t *Tables) getComment(ctx context.Context, projectID, commentID string) (*commentEntity, error) {
	resp, err := t.comments.GetEntity(ctx, projectID, commentID, nil)
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	var ent commentEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func (t *Tables) backlogSection(ctx context.Context, projectID string) (*sectionEntity, error) {
	sections, err := t.listSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		if !sections[i].CanDelete {
			return &sections[i], nil
		}
	}
	backlog, err := t.insertSection(ctx, projectID, domain.BacklogTitle, false)
	if err != nil {
		return nil, err
	}
	return &backlog, nil
}

func (t *Tables) listSections(ctx context.Context, projectID string) ([]sectionEntity, error) {
	filter := "PartitionKey eq '" + projectID + "'"
	pager := t.sections.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out []sectionEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent sectionEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *Tables) listCards(ctx context.Context, filter string) ([]cardEntity, error) {
	pager := t.cards.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out []cardEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *Tables) listComments(ctx context.Context, filter string) ([]commentEntity, error) {
	pager := t.comments.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out []commentEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *Tables) userDirectory(ctx context.Context) (map[string]domain.UserLite, error) {
	filter := "PartitionKey eq '" + userPartition + "'"
	pager := t.users.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := make(map[string]domain.UserLite)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out[ent.RowKey] = domain.UserLite{ID: ent.RowKey, Name: ent.Name, Email: ent.Email}
		}
	}
	return out, nil
}

// hydrateCard fills assignees and comments from storage so mutation echoes
// carry the full canonical card.
func (t *Tables) hydrateCard(ctx context.Context, ent cardEntity) (domain.Card, error) {
	users, err := t.userDirectory(ctx)
	if err != nil {
		return domain.Card{}, err
	}
	comments, err := t.listComments(ctx, fmt.Sprintf("PartitionKey eq '%s' and CardID eq '%s'", ent.PartitionKey, ent.RowKey))
	if err != nil {
		return domain.Card{}, err
	}
	dcs := make([]domain.Comment, 0, len(comments))
	for _, ce := range comments {
		dc, err := ce.toDomain(users)
		if err != nil {
			return domain.Card{}, err
		}
		dcs = append(dcs, dc)
	}
	return ent.toDomain(users, dcs)
}

func (e cardEntity) toDomain(users map[string]domain.UserLite, comments []domain.Comment) (domain.Card, error) {
	createdAt, err := parseStoredTime(e.CreatedAt)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", e.RowKey, err)
	}
	ids, err := decodeAssignees(e.Assignees)
	if err != nil {
		return domain.Card{}, fmt.Errorf("card %s: %w", e.RowKey, err)
	}
	return domain.Card{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Priority:    domain.Priority(e.Priority),
		Executor:    e.Executor,
		CreatedAt:   createdAt,
		SectionID:   e.SectionID,
		Comments:    comments,
		Assignees:   resolveUsers(ids, users),
	}, nil
}

func (e commentEntity) toDomain(users map[string]domain.UserLite) (domain.Comment, error) {
	createdAt, err := parseStoredTime(e.CreatedAt)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("comment %s: %w", e.RowKey, err)
	}
	author := resolveUser(e.AuthorID, users)
	return domain.Comment{ID: e.RowKey, Text: e.Text, CreatedAt: createdAt, Author: &author}, nil
}

func decodeAssignees(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, fmt.Errorf("decode assignees: %w", err)
	}
	return ids, nil
}

func resolveUsers(ids []string, users map[string]domain.UserLite) []domain.UserLite {
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.UserLite, 0, len(ids))
	for _, id := range ids {
		out = append(out, resolveUser(id, users))
	}
	return out
}

func resolveUser(id string, users map[string]domain.UserLite) domain.UserLite {
	if u, ok := users[id]; ok {
		return u
	}
	return domain.UserLite{ID: id}
}

func parseStoredTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func ignoreNotFound(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return nil
	}
	return err
}
