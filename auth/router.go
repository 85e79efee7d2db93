package auth

import (
	"net/http"

	"artcache/models"

	"github.com/gin-gonic/gin"
)

// Client is authenticated and possesses the required permissions
type HandlerFunc func(c *gin.Context, client *models.ApiClient)

// Router is a wrapper that adds auth checks + ApiClient pre-loading.
// Callers present either an X-API-Key header or a session cookie
// obtained via /client/login.
type Router struct {
	Base *gin.Engine
}

func (cr *Router) baseExec(c *gin.Context, handler HandlerFunc, required []models.Permission) {
	client := models.FindApiClientByKey(c.GetHeader("X-API-Key"))
	if client.ID == 0 {
		client = LoadSession(c).Client()
	}
	if client.ID == 0 || !client.HasPermissions(required) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access denied"})
		return
	}
	handler(c, &client)
}

func (cr *Router) POST(path string, handler HandlerFunc, required ...models.Permission) {
	cr.Base.POST(path, func(c *gin.Context) {
		cr.baseExec(c, handler, required)
	})
}

func (cr *Router) GET(path string, handler HandlerFunc, required ...models.Permission) {
	cr.Base.GET(path, func(c *gin.Context) {
		cr.baseExec(c, handler, required)
	})
}

func (cr *Router) PUT(path string, handler HandlerFunc, required ...models.Permission) {
	cr.Base.PUT(path, func(c *gin.Context) {
		cr.baseExec(c, handler, required)
	})
}
