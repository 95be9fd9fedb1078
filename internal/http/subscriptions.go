package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/http/middleware"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/service/subscription"
	echo "github.com/labstack/echo/v4"
)

// SubscriptionService is the admin surface the handlers need.
type SubscriptionService interface {
	Create(ctx context.Context, scope string, in subscription.Input) (*model.Subscription, model.Secret, error)
	Update(ctx context.Context, scope, id string, in subscription.Input) (*model.Subscription, error)
	Get(ctx context.Context, scope, id string) (*model.Subscription, error)
	List(ctx context.Context, scope string, limit, offset int) ([]model.Subscription, error)
	Delete(ctx context.Context, scope, id string) error
	AddSecret(ctx context.Context, scope, id, token string) (model.Secret, error)
	ListSecrets(ctx context.Context, scope, id string) ([]model.Secret, error)
	DeleteSecret(ctx context.Context, scope, id string, secretID int64) error
	ListDeliveries(ctx context.Context, scope, id string, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error)
	FindDeliveries(ctx context.Context, scope string, f repository.DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error)
}

type createSubscriptionRequest struct {
	URL    string   `json:"url"    validate:"required,url,max=2048"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics" validate:"dive,required"`
	Secret string   `json:"secret" validate:"omitempty,min=12"`
}

type updateSubscriptionRequest struct {
	URL    *string  `json:"url"    validate:"omitempty,url,max=2048"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics" validate:"omitempty,dive,required"`
}

type secretRequest struct {
	Secret string `json:"secret" validate:"omitempty,min=12"`
}

type secretView struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"` // masked
	CreatedAt time.Time `json:"created_at"`
}

func maskedSecret(s model.Secret) secretView {
	return secretView{ID: s.ID, Token: s.Masked(), CreatedAt: s.CreatedAt}
}

func createSubscriptionHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		var req createSubscriptionRequest
		if err := bind(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		sub, secret, err := svc.Create(c.Request().Context(), scope, subscription.Input{
			URL:    &req.URL,
			Active: req.Active,
			Topics: req.Topics,
			Secret: req.Secret,
		})
		if err != nil {
			return writeError(c, err)
		}

		// the plain secret is only ever returned here
		return c.JSON(http.StatusCreated, map[string]any{
			"subscription": sub,
			"secret":       secret.Token,
		})
	}
}

func listSubscriptionsHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		limit, offset := page(c)

		subs, err := svc.List(c.Request().Context(), scope, limit, offset)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(subs),
			"results": subs,
		})
	}
}

func getSubscriptionHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		sub, err := svc.Get(c.Request().Context(), scope, c.Param("uuid"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func updateSubscriptionHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		var req updateSubscriptionRequest
		if err := bind(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		sub, err := svc.Update(c.Request().Context(), scope, c.Param("uuid"), subscription.Input{
			URL:    req.URL,
			Active: req.Active,
			Topics: req.Topics,
		})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func deleteSubscriptionHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		if err := svc.Delete(c.Request().Context(), scope, c.Param("uuid")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func addSecretHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		var req secretRequest
		if err := bind(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		secret, err := svc.AddSecret(c.Request().Context(), scope, c.Param("uuid"), req.Secret)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, map[string]any{
			"id":         secret.ID,
			"secret":     secret.Token,
			"created_at": secret.CreatedAt,
		})
	}
}

func listSecretsHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		secrets, err := svc.ListSecrets(c.Request().Context(), scope, c.Param("uuid"))
		if err != nil {
			return writeError(c, err)
		}
		out := make([]secretView, 0, len(secrets))
		for _, s := range secrets {
			out = append(out, maskedSecret(s))
		}
		return c.JSON(http.StatusOK, map[string]any{"count": len(out), "results": out})
	}
}

func deleteSecretHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid secret id"})
		}
		if err := svc.DeleteSecret(c.Request().Context(), scope, c.Param("uuid"), id); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listDeliveriesHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		limit, offset := page(c)

		st, ok := statusParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		recs, err := svc.ListDeliveries(c.Request().Context(), scope, c.Param("uuid"), st, limit, offset)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(recs),
			"results": recs,
		})
	}
}

// findDeliveriesHandler lists the scope's ledger, filtered by delivery_id,
// url or status. Rows of deleted subscriptions are only reachable here.
func findDeliveriesHandler(svc SubscriptionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, ok := middleware.ScopeFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		limit, offset := page(c)

		st, ok := statusParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}
		var detached bool
		if raw := strings.TrimSpace(c.QueryParam("detached")); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid detached flag"})
			}
			detached = v
		}

		f := repository.DeliveryFilter{
			DeliveryID:   strings.TrimSpace(c.QueryParam("delivery_id")),
			URL:          strings.TrimSpace(c.QueryParam("url")),
			Status:       st,
			DetachedOnly: detached,
		}
		recs, err := svc.FindDeliveries(c.Request().Context(), scope, f, limit, offset)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(recs),
			"results": recs,
		})
	}
}

func statusParam(c echo.Context) (model.DeliveryStatus, bool) {
	raw := strings.TrimSpace(c.QueryParam("status"))
	if raw == "" {
		return "", true
	}
	st := model.DeliveryStatus(raw)
	return st, st.Valid()
}
