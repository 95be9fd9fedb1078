package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/service/subscription"
	"github.com/jmehdipour/activitylog-webhook/internal/util"
	echo "github.com/labstack/echo/v4"
)

var validate = validator.New()

// bind decodes the JSON body into dst and runs its validate tags. The
// returned error is safe to show to the caller.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.New("invalid json body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid field %s: %s", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// writeError maps service errors onto status codes.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, subscription.ErrInvalidTopic),
		errors.Is(err, util.ErrInvalidWebhookURL),
		errors.Is(err, model.ErrSecretTooShort):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		c.Logger().Errorf("%s %s failed: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// page reads limit/offset query params; out of range values fall back to defaults.
func page(c echo.Context) (limit, offset int) {
	limit = 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
