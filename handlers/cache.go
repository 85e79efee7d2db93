package handlers

import (
	"net/http"
	"time"

	"artcache/db"
	"artcache/models"
	"artcache/storage"

	"github.com/gin-gonic/gin"
)

type BucketSpace struct {
	Name       string `json:"name"`
	TotalSpace uint64 `json:"total_space"`
	FreeSpace  uint64 `json:"free_space"`
}

type CacheStats struct {
	TotalAssets    int64         `json:"total_assets"`
	TotalEntries   int64         `json:"total_entries"`
	ExpiredEntries int64         `json:"expired_entries"`
	Hits           uint64        `json:"hits"`
	Misses         uint64        `json:"misses"`
	HitRate        float64       `json:"hit_rate"`
	InFlight       int           `json:"in_flight"`
	Buckets        []BucketSpace `json:"buckets"`
}

func CacheStatsGet(c *gin.Context, client *models.ApiClient) {
	stats := CacheStats{InFlight: Coordinator.InFlightCount()}
	now := time.Now().Unix()
	db.Instance.Model(&models.Asset{}).Where("deleted=0").Count(&stats.TotalAssets)
	db.Instance.Model(&models.SceneCacheEntry{}).Count(&stats.TotalEntries)
	db.Instance.Model(&models.SceneCacheEntry{}).Where("expires_at<=?", now).Count(&stats.ExpiredEntries)
	stats.Hits, stats.Misses = Coordinator.Counters()
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	// Space is reported per bucket; zeros for S3 (no meaningful notion)
	for _, st := range storage.All() {
		stats.Buckets = append(stats.Buckets, BucketSpace{
			Name:       st.GetBucket().Name,
			TotalSpace: st.GetTotalSpace(),
			FreeSpace:  st.GetFreeSpace(),
		})
	}
	c.JSON(http.StatusOK, stats)
}

type CacheClearRequest struct {
	SubjectType string `json:"subject_type"`
}

// CacheClear drops scene-cache entries explicitly. The referenced assets
// stay; the sweeper decides their fate on its next pass.
func CacheClear(c *gin.Context, client *models.ApiClient) {
	r := CacheClearRequest{}
	_ = c.ShouldBindJSON(&r)
	tx := db.Instance
	if r.SubjectType != "" {
		subjectType, ok := models.ParseSubjectType(r.SubjectType)
		if !ok {
			c.JSON(http.StatusBadRequest, Response{Error: "unknown subject type " + r.SubjectType, Code: "invalid_input"})
			return
		}
		tx = tx.Where("asset_id IN (?)",
			db.Instance.Model(&models.Asset{}).Select("id").Where("subject_type=?", subjectType))
	} else {
		tx = tx.Where("1=1")
	}
	result := tx.Delete(&models.SceneCacheEntry{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": result.RowsAffected})
}

// SweepNow triggers all maintenance passes on demand
func SweepNow(c *gin.Context, client *models.ApiClient) {
	report := Sweep.Sweep(time.Now())
	c.JSON(http.StatusOK, report)
}
