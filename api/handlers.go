package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all board API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, events EventSink, logger *log.Logger) {
	if events == nil {
		events = NopSink()
	}

	e.GET("/api/projects/:projectId/board", getBoard(store, auth, logger))
	e.POST("/api/projects/:projectId/sections", postSection(store, auth, events))
	e.POST("/api/projects/:projectId/sections/delete-all", deleteAllSections(store, auth, events))
	e.DELETE("/api/projects/:projectId/sections/:sectionId", deleteSection(store, auth, events))
	e.POST("/api/projects/:projectId/sections/:sectionId/clear", clearSection(store, auth, events))
	e.POST("/api/projects/:projectId/sections/:sectionId/cards", postCard(store, auth, events))
	e.PUT("/api/projects/:projectId/cards/:cardId", putCard(store, auth, events))
	e.DELETE("/api/projects/:projectId/cards/:cardId", deleteCard(store, auth, events))
	e.POST("/api/projects/:projectId/cards/:cardId/move", moveCard(store, auth, events))
	e.POST("/api/projects/:projectId/cards/:cardId/assignees/:userId", assignUser(store, auth, events))
	e.DELETE("/api/projects/:projectId/cards/:cardId/assignees/:userId", unassignUser(store, auth, events))
	e.POST("/api/projects/:projectId/cards/:cardId/comments", postComment(store, auth, events))
	e.PUT("/api/projects/:projectId/comments/:commentId", putComment(store, auth, events))
	e.DELETE("/api/projects/:projectId/comments/:commentId", deleteComment(store, auth, events))
	e.GET("/api/users", getUsers(store, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		projectID := c.Param("projectId")
		metrics.SetProject(projectID)

		fetchStart := time.Now()
		board, fetchErr := store.FetchBoard(ctx, projectID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = respondError(c, fetchErr)
			return err
		}
		cards := 0
		for i := range board.Sections {
			cards += len(board.Sections[i].Cards)
		}
		metrics.SetBoardSize(len(board.Sections), cards)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, board)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postSection(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Title) == "" {
			return c.String(http.StatusBadRequest, "section title is required")
		}
		projectID := c.Param("projectId")
		sec, err := store.CreateSection(c.Request().Context(), projectID, strings.TrimSpace(body.Title))
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.SectionCreated, projectID, sec.ID, userID, nil)
		return c.JSON(http.StatusCreated, sec)
	}
}

func deleteSection(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		sectionID := c.Param("sectionId")
		if err := store.DeleteSection(c.Request().Context(), projectID, sectionID); err != nil {
			return respondError(c, err)
		}
		emit(events, domain.SectionDeleted, projectID, sectionID, userID, nil)
		return c.NoContent(http.StatusNoContent)
	}
}

func clearSection(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		sectionID := c.Param("sectionId")
		sec, err := store.ClearSection(c.Request().Context(), projectID, sectionID)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.SectionCleared, projectID, sectionID, userID, nil)
		return c.JSON(http.StatusOK, sec)
	}
}

func deleteAllSections(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		sections, err := store.DeleteAllSections(c.Request().Context(), projectID)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.SectionsPurged, projectID, "", userID, nil)
		return c.JSON(http.StatusOK, sections)
	}
}

func postCard(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var draft domain.CardDraft
		if err := decodeBody(c, &draft); err != nil {
			return err
		}
		if strings.TrimSpace(draft.Title) == "" {
			return c.String(http.StatusBadRequest, "card title is required")
		}
		projectID := c.Param("projectId")
		card, err := store.CreateCard(c.Request().Context(), projectID, c.Param("sectionId"), draft)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardCreated, projectID, card.ID, userID, nil)
		return c.JSON(http.StatusCreated, card)
	}
}

func putCard(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var upd domain.CardUpdate
		if err := decodeBody(c, &upd); err != nil {
			return err
		}
		upd.ID = c.Param("cardId")
		if strings.TrimSpace(upd.Title) == "" {
			return c.String(http.StatusBadRequest, "card title is required")
		}
		projectID := c.Param("projectId")
		card, err := store.UpdateCard(c.Request().Context(), projectID, upd)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardUpdated, projectID, card.ID, userID, nil)
		return c.JSON(http.StatusOK, card)
	}
}

func deleteCard(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		cardID := c.Param("cardId")
		if err := store.DeleteCard(c.Request().Context(), projectID, cardID); err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardDeleted, projectID, cardID, userID, nil)
		return c.NoContent(http.StatusNoContent)
	}
}

func moveCard(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var body struct {
			TargetSectionID string `json:"targetSectionId"`
		}
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if body.TargetSectionID == "" {
			return c.String(http.StatusBadRequest, "targetSectionId is required")
		}
		projectID := c.Param("projectId")
		cardID := c.Param("cardId")
		card, err := store.MoveCard(c.Request().Context(), projectID, cardID, body.TargetSectionID)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardMoved, projectID, cardID, userID, domain.CardMovedEventData{ToSectionID: card.SectionID})
		return c.JSON(http.StatusOK, card)
	}
}

func assignUser(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		cardID := c.Param("cardId")
		targetUserID := c.Param("userId")
		assignees, err := store.AssignUser(c.Request().Context(), projectID, cardID, targetUserID)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardAssigned, projectID, cardID, actorID, domain.CardAssignmentEventData{UserID: targetUserID})
		return c.JSON(http.StatusOK, assigneesResponse{Assignees: assignees})
	}
}

func unassignUser(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		cardID := c.Param("cardId")
		targetUserID := c.Param("userId")
		assignees, err := store.UnassignUser(c.Request().Context(), projectID, cardID, targetUserID)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CardUnassigned, projectID, cardID, actorID, domain.CardAssignmentEventData{UserID: targetUserID})
		return c.JSON(http.StatusOK, assigneesResponse{Assignees: assignees})
	}
}

func postComment(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Text) == "" {
			return c.String(http.StatusBadRequest, "comment text is required")
		}
		projectID := c.Param("projectId")
		cm, err := store.CreateComment(c.Request().Context(), projectID, c.Param("cardId"), userID, body.Text)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CommentCreated, projectID, cm.ID, userID, nil)
		return c.JSON(http.StatusCreated, cm)
	}
}

func putComment(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Text) == "" {
			return c.String(http.StatusBadRequest, "comment text is required")
		}
		projectID := c.Param("projectId")
		commentID := c.Param("commentId")
		cm, err := store.UpdateComment(c.Request().Context(), projectID, commentID, userID, body.Text)
		if err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CommentUpdated, projectID, commentID, userID, nil)
		return c.JSON(http.StatusOK, cm)
	}
}

func deleteComment(store Storage, auth Authenticator, events EventSink) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return err
		}
		projectID := c.Param("projectId")
		commentID := c.Param("commentId")
		if err := store.DeleteComment(c.Request().Context(), projectID, commentID, userID); err != nil {
			return respondError(c, err)
		}
		emit(events, domain.CommentDeleted, projectID, commentID, userID, nil)
		return c.NoContent(http.StatusNoContent)
	}
}

func getUsers(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := authenticate(c, auth); err != nil {
			return err
		}
		users, err := store.ListUsers(c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, users)
	}
}

type assigneesResponse struct {
	Assignees []domain.UserLite `json:"assignees"`
}

// authenticate resolves the acting user. On failure it returns an HTTP
// error echo renders as a 401, so callers just return it.
func authenticate(c echo.Context, auth Authenticator) (string, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return userID, nil
}

// decodeBody parses a size-limited JSON request body. Unknown fields are
// rejected so typos fail loudly instead of silently dropping data.
func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

// respondError translates the domain error taxonomy into status codes.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return c.String(http.StatusForbidden, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

// emit publishes an activity event, swallowing payload marshal failures;
// activity is best-effort and must never fail a mutation that already
// succeeded.
func emit(events EventSink, eventType, projectID, entityID, actorID string, payload any) {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ProjectID: projectID,
		EntityID:  entityID,
		ActorID:   actorID,
		Time:      time.Now().UTC(),
	}
	if payload != nil {
		data, err := sonic.ConfigStd.Marshal(payload)
		if err == nil {
			ev.Data = data
		}
	}
	events.Emit(ev)
}
