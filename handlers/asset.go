package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"artcache/cache"
	"artcache/db"
	"artcache/generator"
	"artcache/models"
	"artcache/ratelimit"
	"artcache/storage"

	"github.com/gin-gonic/gin"
)

type GenerateRequest struct {
	SubjectType string            `json:"subject_type" binding:"required"`
	SubjectName string            `json:"subject_name" binding:"required"`
	Prompt      string            `json:"prompt" binding:"required"`
	Style       string            `json:"style"`
	Ratio       string            `json:"ratio"`
	Context     map[string]string `json:"context"`
	Regenerate  bool              `json:"regenerate"`
}

type AssetInfo struct {
	ID          uint64 `json:"id"`
	SubjectType string `json:"subject_type"`
	SubjectName string `json:"subject_name"`
	Fingerprint string `json:"fingerprint"`
	Width       uint16 `json:"width"`
	Height      uint16 `json:"height"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Created     int64  `json:"created"`
	LastUsed    int64  `json:"last_used"`
	UseCount    uint64 `json:"use_count"`
	Featured    bool   `json:"featured"`
	Provenance  string `json:"provenance"`
}

func NewAssetInfo(a *models.Asset) AssetInfo {
	return AssetInfo{
		ID:          a.ID,
		SubjectType: a.SubjectType.String(),
		SubjectName: a.SubjectName,
		Fingerprint: a.PromptFingerprint,
		Width:       a.Width,
		Height:      a.Height,
		MimeType:    a.MimeType,
		Size:        a.Size,
		Created:     a.CreatedAt,
		LastUsed:    a.LastUsedAt,
		UseCount:    a.UseCount,
		Featured:    a.Featured,
		Provenance:  a.Provenance,
	}
}

// AssetGenerate is the generate-or-fetch entry point. Cache hits never
// touch the generator; misses go through the single-flight coordinator.
func AssetGenerate(c *gin.Context, client *models.ApiClient) {
	r := GenerateRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	subjectType, ok := models.ParseSubjectType(r.SubjectType)
	if !ok {
		c.JSON(http.StatusBadRequest, Response{Error: "unknown subject type " + r.SubjectType, Code: "invalid_input"})
		return
	}
	class := ratelimit.ClassAsset
	if subjectType == models.SubjectScene {
		class = ratelimit.ClassScene
	}
	if err := Limiter.Check(class, client.Name); err != nil {
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			c.Header("retry-after", strconv.Itoa(int(le.RetryAfter.Seconds())+1))
		}
		c.JSON(http.StatusTooManyRequests, Response{Error: err.Error(), Code: "rate_limited"})
		return
	}
	asset, err := Coordinator.Resolve(c.Request.Context(), cache.Request{
		SubjectType: subjectType,
		SubjectName: r.SubjectName,
		Prompt:      r.Prompt,
		Style:       r.Style,
		Ratio:       r.Ratio,
		Context:     r.Context,
		Regenerate:  r.Regenerate,
	})
	if err != nil {
		writeGenerateError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewAssetInfo(asset))
}

// writeGenerateError maps the classified failure taxonomy onto HTTP. The
// game UI renders a fallback on any of these - the contract is that the
// codes stay distinguishable.
func writeGenerateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, generator.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
	case errors.Is(err, generator.ErrQuotaExceeded):
		c.Header("retry-after", "300")
		c.JSON(http.StatusTooManyRequests, Response{Error: err.Error(), Code: "quota_exceeded"})
	case errors.Is(err, cache.ErrStillGenerating):
		c.Header("retry-after", "10")
		c.JSON(http.StatusServiceUnavailable, Response{Error: err.Error(), Code: "still_generating"})
	case errors.Is(err, generator.ErrCorruptArtifact):
		c.JSON(http.StatusBadGateway, Response{Error: err.Error(), Code: "corrupt_artifact"})
	case generator.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, Response{Error: err.Error(), Code: "transient"})
	default:
		log.Printf("Generation error: %v", err)
		c.JSON(http.StatusInternalServerError, Response{Error: err.Error(), Code: "storage_failure"})
	}
}

type AssetListRequest struct {
	SubjectType string `form:"type"`
	SubjectName string `form:"name"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}

// AssetList is a paginated metadata listing; it never invokes the
// generator.
func AssetList(c *gin.Context, client *models.ApiClient) {
	r := AssetListRequest{}
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 || r.PageSize > 100 {
		r.PageSize = 20
	}
	tx := db.Instance.Model(&models.Asset{}).Where("deleted=0")
	if r.SubjectType != "" {
		subjectType, ok := models.ParseSubjectType(r.SubjectType)
		if !ok {
			c.JSON(http.StatusBadRequest, Response{Error: "unknown subject type " + r.SubjectType, Code: "invalid_input"})
			return
		}
		tx = tx.Where("subject_type=?", subjectType)
	}
	if r.SubjectName != "" {
		tx = tx.Where("subject_name=?", r.SubjectName)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	var assets []models.Asset
	err := tx.Order("created_at DESC, id DESC").
		Offset((r.Page - 1) * r.PageSize).Limit(r.PageSize).
		Find(&assets).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, DBError2Response)
		return
	}
	result := make([]AssetInfo, 0, len(assets))
	for i := range assets {
		result = append(result, NewAssetInfo(&assets[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"assets":    result,
		"total":     total,
		"page":      r.Page,
		"page_size": r.PageSize,
	})
}

type AssetFetchRequest struct {
	ID    uint64 `form:"id" binding:"required"`
	Thumb uint   `form:"thumb"`
}

// AssetFetch serves the stored file bytes (full-size or thumbnail)
func AssetFetch(c *gin.Context, client *models.ApiClient) {
	r := AssetFetchRequest{}
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	var asset models.Asset
	db.Instance.Preload("Bucket").Where("id=? AND deleted=0", r.ID).Limit(1).Find(&asset)
	if asset.ID == 0 {
		c.JSON(http.StatusNotFound, NopeResponse)
		return
	}
	st := storage.StorageFrom(&asset.Bucket)
	if st == nil {
		c.JSON(http.StatusInternalServerError, Response{Error: "no storage for asset", Code: "storage_failure"})
		return
	}
	path := asset.GetPathOrThumb(r.Thumb == 1)
	if err := st.EnsureLocalFile(path); err != nil {
		log.Printf("Cannot materialize %s: %v", path, err)
		c.JSON(http.StatusInternalServerError, Response{Error: "cannot load asset", Code: "storage_failure"})
		return
	}
	// Artifacts are immutable; let clients cache them for a week
	c.Header("cache-control", "private, max-age=604800")
	st.Serve(path, c.Request, c.Writer)
}

type AssetFeatureRequest struct {
	ID uint64 `json:"id" binding:"required"`
}

// AssetFeature pins a preferred variant among assets sharing a subject
func AssetFeature(c *gin.Context, client *models.ApiClient) {
	r := AssetFeatureRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	if err := models.Feature(r.ID); err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}

type AssetDeleteRequest struct {
	IDs []uint64 `json:"ids" binding:"required"`
}

// AssetDelete soft-deletes; rows and files survive until the sweeper's
// retention window elapses.
func AssetDelete(c *gin.Context, client *models.ApiClient) {
	r := AssetDeleteRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	if err := models.SoftDelete(r.IDs); err != nil {
		c.JSON(http.StatusInternalServerError, DBError1Response)
		return
	}
	c.JSON(http.StatusOK, OKResponse)
}
