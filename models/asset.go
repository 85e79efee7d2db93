package models

import (
	"strconv"
	"strings"
	"time"

	"artcache/db"
	"artcache/storage"

	"gorm.io/gorm"
)

type SubjectType uint8

const (
	SubjectOther     SubjectType = 0
	SubjectCharacter SubjectType = 1
	SubjectItem      SubjectType = 2
	SubjectScene     SubjectType = 3
)

const (
	ProvenanceGenerated = "generated"
	ProvenanceMigrated  = "migrated"
)

func ParseSubjectType(s string) (SubjectType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character":
		return SubjectCharacter, true
	case "item":
		return SubjectItem, true
	case "scene":
		return SubjectScene, true
	case "other":
		return SubjectOther, true
	}
	return SubjectOther, false
}

func (t SubjectType) String() string {
	switch t {
	case SubjectCharacter:
		return "character"
	case SubjectItem:
		return "item"
	case SubjectScene:
		return "scene"
	}
	return "other"
}

// Asset is a generated image that has been persisted to a Bucket.
// Rows are created only by a successful pipeline write and are immutable
// afterwards, except for usage telemetry and the Featured/Deleted flags.
type Asset struct {
	ID                uint64      `gorm:"primaryKey"`
	CreatedAt         int64       `gorm:"index:subject_lookup,priority:4"`
	UpdatedAt         int64
	SubjectType       SubjectType `gorm:"index:subject_lookup,priority:1;not null"`
	SubjectName       string      `gorm:"type:varchar(300);index:subject_lookup,priority:2;not null"`
	PromptFingerprint string      `gorm:"type:varchar(130);index"`
	Prompt            string      `gorm:"type:varchar(2000)"`
	Style             string      `gorm:"type:varchar(100)"`
	BucketID          uint64
	Bucket            storage.Bucket `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	FullPath          string         `gorm:"type:varchar(500)"`
	ThumbPath         string         `gorm:"type:varchar(500)"`
	MimeType          string         `gorm:"type:varchar(50)"`
	Width             uint16
	Height            uint16
	ThumbWidth        uint16
	ThumbHeight       uint16
	Size              int64
	ThumbSize         int64
	LastUsedAt        int64
	UseCount          uint64
	Featured          bool
	Deleted           bool `gorm:"index:subject_lookup,priority:3;not null;default 0"`
	DeletedAt         int64 `gorm:"index"`
	Provenance        string `gorm:"type:varchar(20)"`
}

// GetPath returns the bucket-relative path of the full-size artifact,
// e.g. full/42.jpg. Artifacts are always re-encoded to JPEG.
func (a *Asset) GetPath() string {
	return a.GetPathOrThumb(false)
}

func (a *Asset) GetThumbPath() string {
	return a.GetPathOrThumb(true)
}

func (a *Asset) GetPathOrThumb(thumb bool) string {
	if thumb {
		if a.ThumbPath != "" {
			return a.ThumbPath
		}
		return storage.LocationThumbs + "/" + strconv.FormatUint(a.ID, 10) + ".jpg"
	}
	if a.FullPath != "" {
		return a.FullPath
	}
	return storage.LocationFull + "/" + strconv.FormatUint(a.ID, 10) + ".jpg"
}

func (a *Asset) BeforeSave(tx *gorm.DB) (err error) {
	// Restrict the characters in SubjectName
	var name strings.Builder
	for _, c := range a.SubjectName {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			(c == ' ') || (c == '-') || (c == '_') || (c == '\'') {

			name.WriteRune(c)
		} else {
			name.WriteString("_")
		}
	}
	a.SubjectName = name.String()
	return
}

// FindAsset returns the preferred non-deleted Asset for a subject: the
// Featured variant if one is pinned, otherwise the variant matching the
// request's prompt fingerprint. A zero ID means no usable row exists.
func FindAsset(t SubjectType, name, fingerprint string) (result Asset) {
	db.Instance.
		Where("subject_type=? AND subject_name=? AND deleted=0 AND (featured=1 OR prompt_fingerprint=?)", t, name, fingerprint).
		Order("featured DESC, created_at DESC, id DESC").
		Limit(1).Find(&result)
	return
}

// MarkUsed bumps usage telemetry. Called off the request path.
func MarkUsed(assetID uint64) {
	db.Instance.Model(&Asset{}).Where("id=?", assetID).Updates(map[string]interface{}{
		"use_count":    gorm.Expr("use_count+1"),
		"last_used_at": time.Now().Unix(),
	})
}

// Feature pins one variant for its subject and unpins all others
// sharing the same (subject_type, subject_name).
func Feature(assetID uint64) error {
	var asset Asset
	if err := db.Instance.First(&asset, assetID).Error; err != nil {
		return err
	}
	return db.Instance.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Asset{}).
			Where("subject_type=? AND subject_name=?", asset.SubjectType, asset.SubjectName).
			Update("featured", false).Error; err != nil {
			return err
		}
		return tx.Model(&Asset{}).Where("id=?", assetID).Update("featured", true).Error
	})
}

// SoftDelete hides assets from lookups. The rows and their files stay
// around until the sweeper's retention window elapses.
func SoftDelete(assetIDs []uint64) error {
	return db.Instance.Model(&Asset{}).Where("id IN ?", assetIDs).Updates(map[string]interface{}{
		"deleted":    true,
		"deleted_at": time.Now().Unix(),
	}).Error
}
