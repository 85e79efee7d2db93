package importer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"artcache/config"
	"artcache/db"
	"artcache/models"
	"artcache/storage"
)

func setupTest(t *testing.T) {
	t.Helper()
	config.SQLITE_FILE = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_busy_timeout=5000"
	db.Init()
	if sqlDB, err := db.Instance.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	models.Init()
	bucket := storage.Bucket{
		Name:        "test",
		StorageType: storage.StorageTypeFile,
		Path:        t.TempDir(),
	}
	if err := bucket.Create(); err != nil {
		t.Fatal(err)
	}
	storage.Init()
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	img.Set(10, 10, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImportBatch(t *testing.T) {
	setupTest(t)
	data := testImage(t)
	tuples := []Tuple{
		{SubjectType: "character", SubjectName: "Borin Ironfist", Prompt: "a dwarf at a forge", Data: data},
		{SubjectType: "scene", SubjectName: "Emberpeak Entrance", Prompt: "a mountain pass",
			Context: map[string]string{"time_of_day": "dusk"}, Data: data},
	}
	batch := ImportBatch(tuples)
	if batch.BatchID == "" {
		t.Error("no batch ID assigned")
	}
	if batch.Imported != 2 || batch.Skipped != 0 || batch.Failed != 0 {
		t.Fatalf("counts = %d/%d/%d, want 2/0/0", batch.Imported, batch.Skipped, batch.Failed)
	}
	for _, result := range batch.Results {
		if result.AssetID == 0 {
			t.Errorf("tuple %d has no asset ID", result.Index)
		}
		var asset models.Asset
		db.Instance.First(&asset, result.AssetID)
		if asset.Provenance != models.ProvenanceMigrated {
			t.Errorf("tuple %d provenance %q", result.Index, asset.Provenance)
		}
	}
	// The scene tuple must be servable through the scene cache
	entry := models.FindSceneEntry("scene|emberpeak entrance|time_of_day=dusk", time.Now())
	if entry.ID == 0 {
		t.Error("scene tuple produced no cache entry")
	}
}

func TestImportBatchIdempotent(t *testing.T) {
	setupTest(t)
	tuples := []Tuple{
		{SubjectType: "item", SubjectName: "Flametongue", Prompt: "a flaming longsword", Data: testImage(t)},
	}
	first := ImportBatch(tuples)
	if first.Imported != 1 {
		t.Fatalf("first import: %+v", first)
	}
	second := ImportBatch(tuples)
	if second.Skipped != 1 || second.Imported != 0 {
		t.Fatalf("re-import counts = %d imported, %d skipped", second.Imported, second.Skipped)
	}
	if second.Results[0].AssetID != first.Results[0].AssetID {
		t.Errorf("re-import reported a different asset")
	}
	var count int64
	db.Instance.Model(&models.Asset{}).Count(&count)
	if count != 1 {
		t.Errorf("found %d asset rows after re-import, want 1", count)
	}
}

func TestImportBatchIsolatesFailures(t *testing.T) {
	setupTest(t)
	tuples := []Tuple{
		{SubjectType: "dragon", SubjectName: "Smaug", Data: testImage(t)},
		{SubjectType: "item", SubjectName: "", Data: testImage(t)},
		{SubjectType: "item", SubjectName: "Broken Image", Data: []byte("not an image")},
		{SubjectType: "item", SubjectName: "Good Tuple", Prompt: "a shield", Data: testImage(t)},
	}
	batch := ImportBatch(tuples)
	if batch.Failed != 3 || batch.Imported != 1 {
		t.Fatalf("counts = %d imported, %d failed, want 1/3", batch.Imported, batch.Failed)
	}
	for i := 0; i < 3; i++ {
		if batch.Results[i].Error == "" {
			t.Errorf("tuple %d reported no error", i)
		}
	}
	if batch.Results[3].AssetID == 0 {
		t.Error("valid tuple was not imported")
	}
}
