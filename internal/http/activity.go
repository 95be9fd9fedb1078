package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/http/middleware"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	echo "github.com/labstack/echo/v4"
)

// Recorder stores an activity-log entry and fires its observers.
type Recorder interface {
	Record(ctx context.Context, entry *model.ActivityLog) error
}

type actorRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"max=255"`
}

type activityRequest struct {
	ActionType   string          `json:"action_type"    validate:"required,max=191"`
	ContentType  string          `json:"content_type"   validate:"required,max=64"`
	ObjectID     string          `json:"object_id"      validate:"required,max=64"`
	Actor        *actorRequest   `json:"actor"`
	IsOrgaAction bool            `json:"is_orga_action"`
	Data         json.RawMessage `json:"data"`
	Timestamp    *time.Time      `json:"timestamp"`
}

// recordActivityHandler accepts an activity-log entry for the caller's scope.
// Matching subscriptions get their deliveries scheduled before the response.
func recordActivityHandler(rec Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		var req activityRequest
		if err := bind(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if len(req.Data) > 0 && !json.Valid(req.Data) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "data must be valid json"})
		}

		entry := &model.ActivityLog{
			Scope:        scope,
			ActionType:   req.ActionType,
			ContentType:  req.ContentType,
			ObjectID:     req.ObjectID,
			IsOrgaAction: req.IsOrgaAction,
			Data:         req.Data,
		}
		if req.Actor != nil {
			entry.Actor = &model.Actor{Code: req.Actor.Code, Name: req.Actor.Name}
		}
		if req.Timestamp != nil {
			entry.Timestamp = req.Timestamp.UTC()
		}

		if err := rec.Record(c.Request().Context(), entry); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]any{
			"id":          entry.ID,
			"action_type": entry.ActionType,
			"timestamp":   entry.Timestamp,
		})
	}
}

func listTopicsHandler() echo.HandlerFunc {
	type topicView struct {
		Topic string `json:"topic"`
		Label string `json:"label"`
	}
	return func(c echo.Context) error {
		topics := model.Topics()
		out := make([]topicView, 0, len(topics))
		for _, t := range topics {
			out = append(out, topicView{Topic: t.String(), Label: t.Label()})
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
	}
}
