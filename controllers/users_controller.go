package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/princinho/userdirectory/dto"
	"github.com/princinho/userdirectory/middleware"
	"github.com/princinho/userdirectory/models"
	"github.com/princinho/userdirectory/services"
)

// GET /admin/get-all-users
func GetAllUsers(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context(), middleware.AccessToken(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, "Successful", users)
	}
}

// GET /admin/get-user/:userId
func GetUserByID(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c, svc)
		if !ok {
			return
		}

		user, err := svc.GetUserByID(c.Request.Context(), middleware.AccessToken(c), id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				respondError(c, http.StatusNotFound, fmt.Sprintf("User with ID %d not found", id), nil)
				return
			}
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("User with ID %d found", id), user)
	}
}

// GET /admin/get-user-by-role/:role
func GetUsersByRole(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.Param("role")

		users, err := svc.GetUsersByRole(c.Request.Context(), middleware.AccessToken(c), role)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				respondError(c, http.StatusNotFound, fmt.Sprintf("No users found with role %s", role), nil)
				return
			}
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("Users with role %s found", role), users)
	}
}

// PUT /admin/enable-disable/:userId
func ToggleUserEnabled(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := userIDParam(c, svc)
		if !ok {
			return
		}

		user, err := svc.ToggleUserEnabled(c.Request.Context(), middleware.AccessToken(c), id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				respondError(c, http.StatusNotFound, fmt.Sprintf("User with ID %d not found", id), nil)
				return
			}
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, fmt.Sprintf("User with ID %d status changed", id), user)
	}
}

// GET /alluser/get-profile
func GetProfile(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := svc.GetProfile(c.Request.Context(), middleware.AccessToken(c))
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, "Successful", user)
	}
}

// PUT /alluser/change-password
func ChangeMyPassword(svc *services.DirectoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangePasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			bindError(c, err)
			return
		}

		if err := svc.ChangePassword(c.Request.Context(), middleware.AccessToken(c), body.Password); err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, "Password changed successfully", nil)
	}
}

// userIDParam parses :userId. A malformed id is only reported to a caller who
// may use the route; anyone else gets the 401 or 403 first.
func userIDParam(c *gin.Context, svc *services.DirectoryService) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err == nil && id > 0 {
		return id, true
	}
	if err := svc.AuthorizeAdmin(c.Request.Context(), middleware.AccessToken(c)); err != nil {
		writeError(c, err)
		return 0, false
	}
	respondError(c, http.StatusBadRequest, "Invalid user id", fmt.Errorf("userId must be a positive integer"))
	return 0, false
}
