package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/princinho/userdirectory/middleware"
	"github.com/princinho/userdirectory/services"
)

func RegisterRoutes(r *gin.Engine, svc *services.DirectoryService) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to the User Management API!")
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	r.POST("/auth/register", Register(svc))
	r.POST("/auth/login", Login(svc))
	r.POST("/auth/refresh", Refresh(svc))
	r.POST("/auth/logout", middleware.AuthMiddleware(), Logout(svc))

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	{
		admin.GET("/get-all-users", GetAllUsers(svc))
		admin.GET("/get-user/:userId", GetUserByID(svc))
		admin.GET("/get-user-by-role/:role", GetUsersByRole(svc))
		admin.PUT("/enable-disable/:userId", ToggleUserEnabled(svc))
	}

	alluser := r.Group("/alluser")
	alluser.Use(middleware.AuthMiddleware())
	{
		alluser.GET("/get-profile", GetProfile(svc))
		alluser.PUT("/change-password", ChangeMyPassword(svc))
	}
}
