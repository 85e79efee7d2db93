package models

import "artcache/db"

type Permission uint8

const (
	PermissionGenerate Permission = 1
	PermissionAdmin    Permission = 2
)

// ApiClient identifies a caller (the game server, a migration script, an
// admin tool). The Key is presented via X-API-Key or exchanged for a
// session cookie. The Name is also the rate-limiting identity.
type ApiClient struct {
	ID        uint64 `gorm:"primaryKey"`
	CreatedAt int64
	UpdatedAt int64
	Name      string `gorm:"type:varchar(100);not null"`
	Key       string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Admin     bool
}

func (c *ApiClient) HasPermissions(required []Permission) bool {
	for _, p := range required {
		if p == PermissionAdmin && !c.Admin {
			return false
		}
	}
	return true
}

func FindApiClientByKey(key string) (result ApiClient) {
	if key == "" {
		return
	}
	db.Instance.Where("`key`=?", key).Limit(1).Find(&result)
	return
}
