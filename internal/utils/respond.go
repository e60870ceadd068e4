package utils

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/handyhub/internal/models"
)

// ErrorStatus maps a domain error kind to its HTTP status.
func ErrorStatus(err error) int {
	switch models.KindOf(err) {
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindExpired:
		return http.StatusGone
	case models.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Fail writes err in the {"success": false, "error": ...} shape. Errors
// without a domain kind are logged and reported as a generic failure.
func Fail(c echo.Context, err error) error {
	status := ErrorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		msg = "internal server error"
	}
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

// UserID returns the caller set by the JWT middleware.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
}
