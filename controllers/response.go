package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/princinho/userdirectory/dto"
	"github.com/princinho/userdirectory/models"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, dto.Response{
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func respondError(c *gin.Context, status int, message string, err error) {
	body := dto.Response{
		StatusCode: status,
		Message:    message,
	}
	if err != nil {
		body.Error = err.Error()
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

// writeError maps a service error onto the envelope. Unexpected errors are
// recorded on the context but not echoed to the caller.
func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	_ = c.Error(err)
	body := dto.Response{
		StatusCode: status,
		Message:    message,
		Error:      err.Error(),
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	c.JSON(status, body)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, models.ErrAccountDisabled):
		return http.StatusForbidden, "Account disabled"
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, models.ErrEmailExists):
		return http.StatusBadRequest, "Email already exists"
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, models.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid token"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// bindError renders gin binding failures as a short field list.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s is %s", lowerFirst(fe.Field()), fe.Tag()))
		}
		respondError(c, http.StatusBadRequest, "Invalid request", errors.New(strings.Join(parts, ", ")))
		return
	}
	respondError(c, http.StatusBadRequest, "Invalid request", err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
