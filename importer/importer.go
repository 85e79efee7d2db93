// Package importer ingests bulk exports from the legacy client-side
// cache (lost on every page refresh) into the persistent store.
package importer

import (
	"fmt"
	"log"
	"time"

	"artcache/cache"
	"artcache/models"
	"artcache/processing"

	"github.com/google/uuid"
)

// Tuple is one legacy cache record. Data carries the image bytes,
// base64-encoded on the wire.
type Tuple struct {
	SubjectType string            `json:"subject_type" binding:"required"`
	SubjectName string            `json:"subject_name" binding:"required"`
	Prompt      string            `json:"prompt"`
	Style       string            `json:"style"`
	Ratio       string            `json:"ratio"`
	Context     map[string]string `json:"context"`
	Data        []byte            `json:"data"`
}

type Result struct {
	Index   int    `json:"index"`
	AssetID uint64 `json:"asset_id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BatchResult struct {
	BatchID  string   `json:"batch_id"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Results  []Result `json:"results"`
}

// ImportBatch runs every tuple through the pipeline. A failing tuple is
// reported and skipped; it never aborts the rest of the batch. Tuples
// whose subject and fingerprint already have a live asset are skipped,
// so re-importing the same export is harmless.
func ImportBatch(tuples []Tuple) BatchResult {
	batch := BatchResult{
		BatchID: uuid.NewString(),
		Results: make([]Result, 0, len(tuples)),
	}
	log.Printf("Import batch %s: %d tuples", batch.BatchID, len(tuples))
	for i, tuple := range tuples {
		result := importOne(i, tuple)
		switch {
		case result.Error != "":
			batch.Failed++
		case result.Skipped:
			batch.Skipped++
		default:
			batch.Imported++
		}
		batch.Results = append(batch.Results, result)
	}
	log.Printf("Import batch %s done: %d imported, %d skipped, %d failed",
		batch.BatchID, batch.Imported, batch.Skipped, batch.Failed)
	return batch
}

func importOne(index int, tuple Tuple) Result {
	result := Result{Index: index}
	subjectType, ok := models.ParseSubjectType(tuple.SubjectType)
	if !ok {
		result.Error = fmt.Sprintf("unknown subject type %q", tuple.SubjectType)
		return result
	}
	if tuple.SubjectName == "" {
		result.Error = "missing subject name"
		return result
	}
	if len(tuple.Data) == 0 {
		result.Error = "missing image data"
		return result
	}
	fingerprint := cache.Fingerprint(tuple.Prompt, tuple.Style, tuple.Ratio)

	// Idempotent re-import: an equivalent live asset means skip
	existing := models.FindAsset(subjectType, tuple.SubjectName, fingerprint)
	if existing.ID != 0 && existing.PromptFingerprint == fingerprint {
		result.AssetID = existing.ID
		result.Skipped = true
		return result
	}

	asset := &models.Asset{
		SubjectType:       subjectType,
		SubjectName:       tuple.SubjectName,
		PromptFingerprint: fingerprint,
		Prompt:            tuple.Prompt,
		Style:             tuple.Style,
		LastUsedAt:        time.Now().Unix(),
		Provenance:        models.ProvenanceMigrated,
	}
	var scene *models.SceneCacheEntry
	if subjectType == models.SubjectScene {
		scene = &models.SceneCacheEntry{
			CacheKey:  cache.Key(subjectType, tuple.SubjectName, tuple.Context),
			ExpiresAt: time.Now().Add(cache.SceneTTL()).Unix(),
		}
	}
	if err := processing.Persist(tuple.Data, asset, scene); err != nil {
		result.Error = err.Error()
		return result
	}
	result.AssetID = asset.ID
	return result
}
