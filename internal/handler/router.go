package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/noteimport/internal/middleware"
)

type RouterDeps struct {
	Imports        *ImportHandler
	Files          *FileHandler
	JWTSecret      []byte
	UploadCooldown time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/imports", middleware.RateLimit(deps.UploadCooldown), deps.Imports.Upload)
	authGroup.GET("/imports", deps.Imports.List)
	authGroup.GET("/imports/:job_id", deps.Imports.Status)

	api.GET("/files/:key", deps.Files.Get)
}
