package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"booking-system/internal/status"
)

// respondError maps the pipeline error taxonomy onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	switch {
	case status.IsValidation(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case status.IsNotFound(err):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case status.IsConflict(err):
		return c.JSON(http.StatusConflict, map[string]string{
			"error": err.Error(),
			"code":  status.ConflictCode(err),
		})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
