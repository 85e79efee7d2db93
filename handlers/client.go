package handlers

import (
	"net/http"

	"artcache/auth"
	"artcache/models"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Key string `json:"key" binding:"required"`
}

// ClientLogin exchanges an API key for a session cookie
func ClientLogin(c *gin.Context) {
	r := LoginRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	client := models.FindApiClientByKey(r.Key)
	if client.ID == 0 {
		c.JSON(http.StatusUnauthorized, NopeResponse)
		return
	}
	auth.LoadSession(c).LoginClient(client.ID)
	c.JSON(http.StatusOK, gin.H{"name": client.Name, "admin": client.Admin})
}

func ClientLogout(c *gin.Context, client *models.ApiClient) {
	auth.LoadSession(c).LogoutClient()
	c.JSON(http.StatusOK, OKResponse)
}
