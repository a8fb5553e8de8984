package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/princinho/userdirectory/dto"
	"github.com/princinho/userdirectory/middleware"
	"github.com/princinho/userdirectory/services"
)

// POST /auth/register
func Register(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			bindError(c, err)
			return
		}

		user, err := svc.Register(c.Request.Context(), body.Email, body.Username, body.Password, body.Role)
		if err != nil {
			writeError(c, err)
			return
		}

		respond(c, http.StatusOK, "User registered successfully", user)
	}
}

// POST /auth/login
func Login(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			bindError(c, err)
			return
		}

		session, err := svc.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			writeError(c, err)
			return
		}

		respond(c, http.StatusOK, "Login successful", dto.LoginResponseDTO{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
			Role:         string(session.Role),
		})
	}
}

// POST /auth/logout
func Logout(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Logout(c.Request.Context(), middleware.AccessToken(c)); err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, "Logged out", nil)
	}
}

// POST /auth/refresh
func Refresh(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RefreshDTO
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			bindError(c, err)
			return
		}
		token := strings.TrimSpace(body.Value())
		if token == "" {
			respondError(c, http.StatusBadRequest, "No token provided", nil)
			return
		}

		session, err := svc.RefreshSession(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			return
		}

		respond(c, http.StatusOK, "Successfully refreshed token", dto.RefreshResponseDTO{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
		})
	}
}
