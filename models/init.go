package models

import (
	"artcache/db"
	"artcache/storage"
)

func Init() {
	db.Instance.AutoMigrate(&storage.Bucket{})
	db.Instance.AutoMigrate(&Asset{})
	db.Instance.AutoMigrate(&SceneCacheEntry{})
	db.Instance.AutoMigrate(&ApiClient{})
}
