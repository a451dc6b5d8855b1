package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (app *application) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// simple logger middleware that uses zap
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.Logger.Sugar().Infow("http", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	})

	r.GET("/healthz", app.healthz)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/signup", app.Handler.SignUp)
		v1.POST("/login", app.Handler.Login)
	}

	protected := v1.Group("/")
	protected.Use(app.AuthMiddleware())
	{
		protected.POST("/posts", app.Handler.CreatePost)
		protected.GET("/posts", app.Handler.ListPosts)
		protected.GET("/posts/:id", app.Handler.GetPost)
		protected.PATCH("/posts/:id", app.Handler.PatchPost)

		protected.GET("/jobs/:id", app.Handler.GetJobStatus)
	}

	return r
}

// healthz pings both shared backends so the probe fails if either the
// record store or the broker is down.
func (app *application) healthz(c *gin.Context) {
	ctx := c.Request.Context()
	if err := app.DB.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database unreachable"})
		return
	}
	if err := app.Redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "broker unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
