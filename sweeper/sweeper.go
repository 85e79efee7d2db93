// Package sweeper reclaims expired scene-cache entries, purges
// soft-deleted assets past their retention window, and reconciles the
// content directory against the database. Every pass is idempotent and
// safe to run concurrently with live traffic.
package sweeper

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"artcache/config"
	"artcache/db"
	"artcache/models"
	"artcache/storage"

	"gorm.io/gorm"
)

type Report struct {
	ScenesExpired      int64 `json:"scenes_expired"`
	AssetsSoftDeleted  int64 `json:"assets_soft_deleted"`
	AssetsPurged       int64 `json:"assets_purged"`
	BytesReclaimed     int64 `json:"bytes_reclaimed"`
	OrphanFilesRemoved int64 `json:"orphan_files_removed"`
	CorruptRows        int64 `json:"corrupt_rows"`
}

type Sweeper struct {
	// Active reports whether a generation is currently in flight for a
	// cache key; the sweeper keeps clear of those.
	Active func(key string) bool
}

func New(active func(key string) bool) *Sweeper {
	if active == nil {
		active = func(string) bool { return false }
	}
	return &Sweeper{Active: active}
}

// Sweep runs all passes and returns the combined counts.
func (s *Sweeper) Sweep(now time.Time) (report Report) {
	s.SweepScenes(now, &report)
	s.SweepRetention(now, &report)
	s.Reconcile(&report)
	log.Printf("Sweep done: %+v", report)
	return
}

// SweepScenes removes scene-cache entries whose expiry has passed. An
// asset left without any live referent is soft-deleted, unless it is
// Featured (pinned variants survive their scene entries).
func (s *Sweeper) SweepScenes(now time.Time, report *Report) {
	var expired []models.SceneCacheEntry
	if err := db.Instance.Where("expires_at<=?", now.Unix()).Find(&expired).Error; err != nil {
		log.Printf("Scene expiry query failed: %v", err)
		return
	}
	for _, entry := range expired {
		if s.Active(entry.CacheKey) {
			continue
		}
		if err := db.Instance.Delete(&models.SceneCacheEntry{}, entry.ID).Error; err != nil {
			log.Printf("Deleting scene entry %d failed: %v", entry.ID, err)
			continue
		}
		report.ScenesExpired++
		if models.SceneRefCount(entry.AssetID) > 0 {
			continue
		}
		var asset models.Asset
		db.Instance.Where("id=? AND deleted=0 AND featured=0", entry.AssetID).Limit(1).Find(&asset)
		if asset.ID == 0 {
			continue
		}
		if err := models.SoftDelete([]uint64{asset.ID}); err != nil {
			log.Printf("Soft-deleting asset %d failed: %v", asset.ID, err)
			continue
		}
		report.AssetsSoftDeleted++
	}
}

// SweepRetention hard-deletes assets that have been soft-deleted for
// longer than the retention window: the database row goes first, then
// the files, so a crash mid-deletion leaves at worst an orphaned file
// for Reconcile to pick up.
func (s *Sweeper) SweepRetention(now time.Time, report *Report) {
	cutoff := now.Add(-time.Duration(config.RETENTION_DAYS) * 24 * time.Hour).Unix()
	var stale []models.Asset
	if err := db.Instance.Where("deleted=1 AND deleted_at<=?", cutoff).Find(&stale).Error; err != nil {
		log.Printf("Retention query failed: %v", err)
		return
	}
	for _, asset := range stale {
		st := storage.StorageFrom(&storage.Bucket{ID: asset.BucketID})
		if st == nil {
			st = storage.GetDefaultStorage()
		}
		err := db.Instance.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("asset_id=?", asset.ID).Delete(&models.SceneCacheEntry{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Asset{}, asset.ID).Error
		})
		if err != nil {
			log.Printf("Purging asset %d failed: %v", asset.ID, err)
			continue
		}
		report.AssetsPurged++
		for _, path := range []string{asset.GetPath(), asset.GetThumbPath()} {
			if size := st.GetSize(path); size > 0 {
				report.BytesReclaimed += size
			}
			if err := st.Delete(path); err != nil {
				log.Printf("Deleting file %s failed: %v", path, err)
			}
		}
	}
}

// Reconcile walks the content directory of disk buckets: files whose ID
// has no database row are orphans and get removed; rows whose files are
// missing are corruption, logged and soft-deleted.
func (s *Sweeper) Reconcile(report *Report) {
	for _, location := range []string{storage.LocationFull, storage.LocationThumbs} {
		s.reconcileLocation(location, report)
	}
	// Rows without files
	var assets []models.Asset
	if err := db.Instance.Where("deleted=0 AND size>0").Find(&assets).Error; err != nil {
		log.Printf("Reconcile query failed: %v", err)
		return
	}
	for _, asset := range assets {
		st := storage.StorageFrom(&storage.Bucket{ID: asset.BucketID})
		if st == nil || st.GetBucket().IsS3() {
			continue
		}
		if st.GetSize(asset.GetPath()) >= 0 {
			continue
		}
		log.Printf("Asset %d has no backing file at %s, soft-deleting", asset.ID, asset.GetPath())
		if err := models.SoftDelete([]uint64{asset.ID}); err == nil {
			report.CorruptRows++
		}
	}
}

func (s *Sweeper) reconcileLocation(location string, report *Report) {
	st := storage.GetDefaultStorage()
	if st.GetBucket().IsS3() {
		return
	}
	matches, err := filepath.Glob(st.GetFullPath(location) + "/*.jpg")
	if err != nil {
		return
	}
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), ".jpg")
		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		var count int64
		db.Instance.Model(&models.Asset{}).Where("id=?", id).Count(&count)
		if count > 0 {
			continue
		}
		if err := st.Delete(location + "/" + name + ".jpg"); err == nil {
			report.OrphanFilesRemoved++
		}
	}
}

// StartSweeping runs the sweeper on its configured interval. Never
// returns; run it in a goroutine.
func StartSweeping(s *Sweeper) {
	interval := time.Duration(config.SWEEP_INTERVAL_MINUTES) * time.Minute
	for {
		time.Sleep(interval)
		s.Sweep(time.Now())
	}
}
