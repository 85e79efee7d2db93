// Package processing turns raw generator output into durably stored
// artifacts: validate, re-encode, thumbnail, write files and commit the
// metadata row as one unit.
package processing

import (
	"bytes"
	"fmt"
	"log"

	"artcache/config"
	"artcache/db"
	"artcache/generator"
	"artcache/models"
	"artcache/storage"
	"artcache/utils"

	"gorm.io/gorm"
)

type Encoded struct {
	Full        []byte
	Thumb       []byte
	Width       uint16
	Height      uint16
	ThumbWidth  uint16
	ThumbHeight uint16
}

// beforeCommit, when set, runs as the last step inside the persist
// transaction. Used by tests to inject commit failures.
var beforeCommit func() error

// Encode validates the raw image and produces the compressed artifact
// plus its thumbnail. Corrupt or empty payloads are fatal for the
// attempt - there is no point retrying a broken image.
func Encode(raw []byte) (enc Encoded, err error) {
	if len(raw) == 0 {
		return enc, generator.ErrCorruptArtifact
	}
	if len(raw) > config.MAX_IMAGE_BYTES {
		return enc, fmt.Errorf("%w: %d bytes", generator.ErrCorruptArtifact, len(raw))
	}
	var fullBuf bytes.Buffer
	full, err := utils.ReencodeJPEG(0, config.JPEG_QUALITY, bytes.NewReader(raw), &fullBuf)
	if err != nil {
		return enc, fmt.Errorf("%w: %v", generator.ErrCorruptArtifact, err)
	}
	var thumbBuf bytes.Buffer
	thumb, err := utils.CreateThumb(uint(config.THUMB_SIZE), config.JPEG_QUALITY, bytes.NewReader(fullBuf.Bytes()), &thumbBuf)
	if err != nil {
		return enc, fmt.Errorf("%w: %v", generator.ErrCorruptArtifact, err)
	}
	enc.Full = fullBuf.Bytes()
	enc.Thumb = thumbBuf.Bytes()
	enc.Width = full.NewX
	enc.Height = full.NewY
	enc.ThumbWidth = thumb.NewX
	enc.ThumbHeight = thumb.NewY
	return enc, nil
}

// Persist encodes raw bytes and commits the Asset (and optional scene
// entry) together with its files. Storage and database failures get one
// internal retry; corrupt input does not.
func Persist(raw []byte, asset *models.Asset, scene *models.SceneCacheEntry) error {
	enc, err := Encode(raw)
	if err != nil {
		return err
	}
	st := storage.GetDefaultStorage()
	if err = persistOnce(st, enc, asset, scene); err != nil {
		log.Printf("Persist failed for %s %q, retrying once: %v", asset.SubjectType, asset.SubjectName, err)
		err = persistOnce(st, enc, asset, scene)
	}
	return err
}

// persistOnce runs the write transaction. Both files are written before
// the transaction commits; if the commit fails the just-written files
// are deleted again, so the filesystem never holds artifacts referencing
// no database row. A committed row implies both files exist.
func persistOnce(st storage.StorageAPI, enc Encoded, asset *models.Asset, scene *models.SceneCacheEntry) error {
	asset.ID = 0
	asset.BucketID = st.GetBucket().ID
	asset.MimeType = "image/jpeg"
	asset.Width = enc.Width
	asset.Height = enc.Height
	asset.ThumbWidth = enc.ThumbWidth
	asset.ThumbHeight = enc.ThumbHeight
	asset.Size = int64(len(enc.Full))
	asset.ThumbSize = int64(len(enc.Thumb))
	if scene != nil {
		scene.ID = 0
	}

	var written []string
	err := db.Instance.Transaction(func(tx *gorm.DB) error {
		// The row insert assigns the ID the file names derive from; it
		// only becomes visible if the commit below succeeds.
		if err := tx.Create(asset).Error; err != nil {
			return err
		}
		asset.FullPath = asset.GetPathOrThumb(false)
		asset.ThumbPath = asset.GetPathOrThumb(true)
		for _, part := range []struct {
			path string
			data []byte
		}{
			{asset.FullPath, enc.Full},
			{asset.ThumbPath, enc.Thumb},
		} {
			if _, err := st.Save(part.path, bytes.NewReader(part.data)); err != nil {
				return err
			}
			written = append(written, part.path)
			if err := st.UpdateFile(part.path, asset.MimeType); err != nil {
				return err
			}
		}
		if err := tx.Save(asset).Error; err != nil {
			return err
		}
		if scene != nil {
			scene.AssetID = asset.ID
			if err := models.ReplaceSceneEntry(tx, scene); err != nil {
				return err
			}
		}
		if beforeCommit != nil {
			return beforeCommit()
		}
		return nil
	})
	if err != nil {
		// Compensating cleanup
		for _, path := range written {
			if delErr := st.Delete(path); delErr != nil {
				log.Printf("Cleanup of %s failed: %v", path, delErr)
			}
		}
		asset.ID = 0
		asset.FullPath = ""
		asset.ThumbPath = ""
	}
	return err
}
