package models

import (
	"time"

	"artcache/db"

	"gorm.io/gorm"
)

// SceneCacheEntry is a time-boxed pointer to an Asset whose validity is
// contextual (location + time of day + weather) rather than permanent.
// It references the Asset but does not own it.
type SceneCacheEntry struct {
	ID        uint64 `gorm:"primaryKey"`
	CreatedAt int64
	CacheKey  string `gorm:"type:varchar(500);uniqueIndex"`
	AssetID   uint64 `gorm:"index"`
	Asset     Asset  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ExpiresAt int64  `gorm:"index"`
	HitCount  uint64
}

// FindSceneEntry returns the entry for the key if it has not expired and
// its Asset is still live. A zero ID means miss.
func FindSceneEntry(key string, now time.Time) (result SceneCacheEntry) {
	db.Instance.
		Where("cache_key=? AND expires_at>?", key, now.Unix()).
		Limit(1).Find(&result)
	if result.ID == 0 {
		return
	}
	db.Instance.Where("id=? AND deleted=0", result.AssetID).Limit(1).Find(&result.Asset)
	if result.Asset.ID == 0 {
		result = SceneCacheEntry{}
	}
	return
}

// MarkSceneHit bumps the entry's hit counter. Called off the request path.
func MarkSceneHit(entryID uint64) {
	db.Instance.Model(&SceneCacheEntry{}).Where("id=?", entryID).
		Update("hit_count", gorm.Expr("hit_count+1"))
}

// ReplaceSceneEntry installs a fresh entry for the key inside tx,
// displacing any previous (possibly expired) entry for the same key.
func ReplaceSceneEntry(tx *gorm.DB, entry *SceneCacheEntry) error {
	if err := tx.Where("cache_key=?", entry.CacheKey).Delete(&SceneCacheEntry{}).Error; err != nil {
		return err
	}
	return tx.Create(entry).Error
}

// SceneRefCount counts live scene entries pointing at the asset.
func SceneRefCount(assetID uint64) (count int64) {
	db.Instance.Model(&SceneCacheEntry{}).Where("asset_id=?", assetID).Count(&count)
	return
}
