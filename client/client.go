// Package client implements the board.Remote port over the JSON/HTTP
// board API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const maxErrorBody = 4 * 1024

// TokenSource supplies the bearer token attached to every request. A nil
// source sends unauthenticated requests.
type TokenSource func() string

// Client talks to the board API. All timestamps cross the wire as ISO-8601
// strings and are converted to time.Time on receipt.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// New creates a client for the API at baseURL. httpClient may be nil, in
// which case http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client, token TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

// FetchBoard retrieves the full board snapshot for a project.
func (c *Client) FetchBoard(ctx context.Context, projectID string) (domain.Board, error) {
	var w boardWire
	if err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "board"), nil, &w); err != nil {
		return domain.Board{}, err
	}
	return w.toDomain()
}

// CreateSection adds a section and returns the server-assigned entity.
func (c *Client) CreateSection(ctx context.Context, projectID, title string) (domain.Section, error) {
	var w sectionWire
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "sections"), body, &w); err != nil {
		return domain.Section{}, err
	}
	return w.toDomain()
}

// DeleteSection removes a deletable section; its cards relocate to the
// backlog server-side.
func (c *Client) DeleteSection(ctx context.Context, projectID, sectionID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, "sections", sectionID), nil, nil)
}

// ClearSection removes every card in the section and returns it emptied.
func (c *Client) ClearSection(ctx context.Context, projectID, sectionID string) (domain.Section, error) {
	var w sectionWire
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "sections", sectionID, "clear"), nil, &w); err != nil {
		return domain.Section{}, err
	}
	return w.toDomain()
}

// DeleteAllSections removes every deletable section and returns what
// remains, normally just the backlog.
func (c *Client) DeleteAllSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	var ws []sectionWire
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "sections", "delete-all"), nil, &ws); err != nil {
		return nil, err
	}
	out := make([]domain.Section, 0, len(ws))
	for _, w := range ws {
		sec, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}

// CreateCard adds a card to the section and returns the server echo.
func (c *Client) CreateCard(ctx context.Context, projectID, sectionID string, draft domain.CardDraft) (domain.Card, error) {
	var w cardWire
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "sections", sectionID, "cards"), draft, &w); err != nil {
		return domain.Card{}, err
	}
	return w.toDomain()
}

// UpdateCard replaces a card's fields, section membership included.
func (c *Client) UpdateCard(ctx context.Context, projectID string, upd domain.CardUpdate) (domain.Card, error) {
	var w cardWire
	if err := c.do(ctx, http.MethodPut, c.projectPath(projectID, "cards", upd.ID), upd, &w); err != nil {
		return domain.Card{}, err
	}
	return w.toDomain()
}

// DeleteCard removes a card and its comments.
func (c *Client) DeleteCard(ctx context.Context, projectID, cardID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, "cards", cardID), nil, nil)
}

// MoveCard relocates a card and returns the echo carrying its new section.
func (c *Client) MoveCard(ctx context.Context, projectID, cardID, targetSectionID string) (domain.Card, error) {
	var w cardWire
	body := map[string]string{"targetSectionId": targetSectionID}
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "cards", cardID, "move"), body, &w); err != nil {
		return domain.Card{}, err
	}
	return w.toDomain()
}

// AssignUser links a user to a card and returns the authoritative
// assignee list.
func (c *Client) AssignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	var w assigneesWire
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "cards", cardID, "assignees", userID), nil, &w); err != nil {
		return nil, err
	}
	return w.Assignees, nil
}

// UnassignUser removes a user from a card, returning the assignee list.
func (c *Client) UnassignUser(ctx context.Context, projectID, cardID, userID string) ([]domain.UserLite, error) {
	var w assigneesWire
	if err := c.do(ctx, http.MethodDelete, c.projectPath(projectID, "cards", cardID, "assignees", userID), nil, &w); err != nil {
		return nil, err
	}
	return w.Assignees, nil
}

// CreateComment adds a comment to a card; the echo carries the author.
func (c *Client) CreateComment(ctx context.Context, projectID, cardID, text string) (domain.Comment, error) {
	var w commentWire
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "cards", cardID, "comments"), body, &w); err != nil {
		return domain.Comment{}, err
	}
	return w.toDomain()
}

// UpdateComment edits a comment's text. Non-authors get ErrForbidden.
func (c *Client) UpdateComment(ctx context.Context, projectID, commentID, text string) (domain.Comment, error) {
	var w commentWire
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPut, c.projectPath(projectID, "comments", commentID), body, &w); err != nil {
		return domain.Comment{}, err
	}
	return w.toDomain()
}

// DeleteComment removes a comment. Non-authors get ErrForbidden.
func (c *Client) DeleteComment(ctx context.Context, projectID, commentID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, "comments", commentID), nil, nil)
}

// FetchUsers lists all known users.
func (c *Client) FetchUsers(ctx context.Context) ([]domain.UserLite, error) {
	var users []domain.UserLite
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) projectPath(projectID string, parts ...string) string {
	segs := append([]string{"api", "projects", projectID}, parts...)
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	dec := sonic.ConfigStd.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

// statusError folds HTTP failures back into the domain error taxonomy so
// callers can branch with errors.Is regardless of transport.
func statusError(method, path string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(msg))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrValidation, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	default:
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, detail)
	}
}
