package auth

import (
	"artcache/db"
	"artcache/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const clientIdKey = "id"

type Session struct {
	sessions.Session
}

func LoadSession(c *gin.Context) *Session {
	return &Session{
		Session: sessions.Default(c),
	}
}

func (s *Session) LoginClient(id uint64) {
	s.Set(clientIdKey, id)
	_ = s.Save()
}

func (s *Session) LogoutClient() {
	s.Delete(clientIdKey)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = s.Save()
}

func (s *Session) Client() (client models.ApiClient) {
	id := s.Get(clientIdKey)
	if id == nil {
		return
	}
	client.ID = id.(uint64)
	if db.Instance.First(&client).Error != nil {
		client.ID = 0
	}
	return
}
