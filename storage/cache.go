package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// backend is the full persistence surface the cache wraps.
type backend interface {
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

// Cache wraps a backend with Redis-backed caching of full board snapshots.
// Every mutation evicts the project's snapshot so the next read rebuilds
// from the backing store. Redis failures degrade to the backend, never to
// a request failure.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	if board, ok := c.loadBoard(ctx, projectID); ok {
		return board, nil
	}
	board, err := c.base.FetchBoard(ctx, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	c.storeBoard(ctx, projectID, board)
	return board, nil
}

func (c *Cache) CreateSection(ctx context.Context, projectID, title string) (domain.Section, error) {
	sec, err := c.base.CreateSection(ctx, projectID, title)
	if err != nil {
		return domain.Section{}, err
	}
	c.evict(ctx, projectID)
	return sec, nil
}

func (c *Cache) DeleteSection(ctx context.Context, projectID, sectionID string) error {
	if err := c.base.DeleteSection(ctx, projectID, sectionID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) ClearSection(ctx context.Context, projectID, sectionID string) (domain.Section, error) {
	sec, err := c.base.ClearSection(ctx, projectID, sectionID)
	if err != nil {
		return domain.Section{}, err
	}
	c.evict(ctx, projectID)
	return sec, nil
}

func (c *Cache) DeleteAllSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	sections, err := c.base.DeleteAllSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, projectID)
	return sections, nil
}

func (c *Cache) CreateCard(ctx context.Context, projectID, sectionID string, draft domain.CardDraft) (domain.Card, error) {
	card, err := c.base.CreateCard(ctx, projectID, sectionID, draft)
	if err != nil {
		return domain.Card{}, err
	}
	c.evict(ctx, projectID)
	return card, nil
}

func (c *Cache) UpdateCard(ctx context.Context, projectID string, upd domain.CardUpdate) (domain.Card, error) {
	card, err := c.base.UpdateCard(ctx, projectID, upd)
	if err != nil {
		return domain.Card{}, err
	}
	c.evict(ctx, projectID)
	return card, nil
}

func (c *Cache) DeleteCard(ctx context.Context, projectID, cardID string) error {
	if err := c.base.DeleteCard(ctx, projectID, cardID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) MoveCard(ctx context.Context, projectID, cardID, targetSectionID string) (domain.Card, error) {
	card, err := c.base.MoveCard(ctx, projectID, cardID, targetSectionID)
	if err != nil {
		return domain.Card{}, err
	}
	c.evict(ctx, projectID)
	return card, nil
}

func (c *Cache) AssignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	assignees, err := c.base.AssignUser(ctx, projectID, cardID, userID)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, projectID)
	return assignees, nil
}

func (c *Cache) UnassignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	assignees, err := c.base.UnassignUser(ctx, projectID, cardID, userID)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, projectID)
	return assignees, nil
}

func (c *Cache) ListUsers(ctx context.Context) ([]domain.UserLite, error) {
	return c.base.ListUsers(ctx)
}

func (c *Cache) CreateComment(ctx context.Context, projectID, cardID, authorID, text string) (domain.Comment, error) {
	cm, err := c.base.CreateComment(ctx, projectID, cardID, authorID, text)
	if err != nil {
		return domain.Comment{}, err
	}
	c.evict(ctx, projectID)
	return cm, nil
}

func (c *Cache) UpdateComment(ctx context.Context, projectID, commentID, actorID, text string) (domain.Comment, error) {
	cm, err := c.base.UpdateComment(ctx, projectID, commentID, actorID, text)
	if err != nil {
		return domain.Comment{}, err
	}
	c.evict(ctx, projectID)
	return cm, nil
}

func (c *Cache) DeleteComment(ctx context.Context, projectID, commentID, actorID string) error {
	if err := c.base.DeleteComment(ctx, projectID, commentID, actorID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) loadBoard(ctx context.Context, projectID string) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		}
		return domain.Board{}, false
	}
	var board domain.Board
	if err := json.Unmarshal(data, &board); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		return domain.Board{}, false
	}
	return board, true
}

func (c *Cache) storeBoard(ctx context.Context, projectID string, board domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(projectID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(projectID)).Result()
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}
