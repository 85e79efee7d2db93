package cache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"artcache/config"
	"artcache/db"
	"artcache/generator"
	"artcache/models"
	"artcache/storage"
)

func setupTest(t *testing.T) {
	t.Helper()
	config.SQLITE_FILE = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared&_busy_timeout=5000"
	db.Init()
	if sqlDB, err := db.Instance.DB(); err == nil {
		// Serialize access - the shared-cache memory DB dislikes
		// concurrent writers
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

func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 16 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// countingGenerator renders what was asked for and counts its calls
func countingGenerator(t *testing.T, calls *atomic.Int64, delay time.Duration) generator.Generator {
	return generator.Func(func(ctx context.Context, req generator.Request) ([]byte, error) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		return testImage(t, req.Width, req.Height), nil
	})
}

func TestSingleFlight(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 50*time.Millisecond))

	req := Request{
		SubjectType: models.SubjectCharacter,
		SubjectName: "Borin Ironfist",
		Prompt:      "a dwarf at a forge",
		Ratio:       "1:1",
	}
	const n = 8
	var wg sync.WaitGroup
	ids := make([]uint64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			asset, err := c.Resolve(context.Background(), req)
			errs[i] = err
			if asset != nil {
				ids[i] = asset.ID
			}
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("generator called %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got asset %d, caller 0 got %d", i, ids[i], ids[0])
		}
	}
	if c.InFlightCount() != 0 {
		t.Errorf("flight registry not drained: %d", c.InFlightCount())
	}
}

func TestFailureFanout(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(generator.Func(func(ctx context.Context, req generator.Request) ([]byte, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil, generator.ErrQuotaExceeded
	}))

	req := Request{
		SubjectType: models.SubjectItem,
		SubjectName: "Flametongue",
		Prompt:      "a flaming longsword",
	}
	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Resolve(context.Background(), req)
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("generator called %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], generator.ErrQuotaExceeded) {
			t.Errorf("caller %d got %v, want quota error", i, errs[i])
		}
	}
	// Failures are never cached
	var count int64
	db.Instance.Model(&models.Asset{}).Count(&count)
	if count != 0 {
		t.Errorf("found %d asset rows after failed generation", count)
	}
}

func TestCacheIdempotence(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 0))

	req := Request{
		SubjectType: models.SubjectCharacter,
		SubjectName: "Borin Ironfist",
		Prompt:      "a dwarf at a forge",
	}
	first, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.UseCount != 1 {
		t.Errorf("first UseCount = %d, want 1", first.UseCount)
	}
	second, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("generator called %d times, want 1", calls.Load())
	}
	if second.ID != first.ID {
		t.Errorf("second lookup returned asset %d, want %d", second.ID, first.ID)
	}
	if second.UseCount != 2 {
		t.Errorf("second UseCount = %d, want 2", second.UseCount)
	}
}

func TestVariantFingerprintGenerates(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 0))

	req := Request{
		SubjectType: models.SubjectCharacter,
		SubjectName: "Borin Ironfist",
		Prompt:      "a dwarf at a forge",
	}
	first, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	req.Prompt = "a dwarf at a forge, battle-scarred"
	variant, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("generator called %d times, want 2", calls.Load())
	}
	if variant.ID == first.ID {
		t.Errorf("variant reused asset %d", first.ID)
	}
	// Pinning the first variant makes it win over fingerprint matching
	if err := models.Feature(first.ID); err != nil {
		t.Fatal(err)
	}
	pinned, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if pinned.ID != first.ID {
		t.Errorf("featured lookup returned %d, want %d", pinned.ID, first.ID)
	}
	if calls.Load() != 2 {
		t.Errorf("featured lookup invoked the generator")
	}
}

func TestSceneScenario(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 0))

	req := Request{
		SubjectType: models.SubjectScene,
		SubjectName: "Emberpeak Entrance",
		Prompt:      "a mountain pass at dusk",
		Ratio:       "16:9",
		Context:     map[string]string{"time_of_day": "dusk"},
	}
	first, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Width != 1024 || first.Height != 576 {
		t.Errorf("dimensions = %dx%d, want 1024x576", first.Width, first.Height)
	}
	if first.UseCount != 1 {
		t.Errorf("UseCount = %d, want 1", first.UseCount)
	}

	second, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || calls.Load() != 1 {
		t.Fatalf("expected a cache hit, got asset %d after %d calls", second.ID, calls.Load())
	}
	if second.UseCount != 2 {
		t.Errorf("UseCount = %d, want 2", second.UseCount)
	}

	// Advance time past the scene TTL
	db.Instance.Model(&models.SceneCacheEntry{}).
		Where("asset_id=?", first.ID).
		Update("expires_at", time.Now().Add(-time.Hour).Unix())

	third, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expired entry did not regenerate, calls=%d", calls.Load())
	}
	if third.ID == first.ID {
		t.Errorf("expired entry served the old asset %d", first.ID)
	}
}

func TestWaiterTimeout(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 300*time.Millisecond))
	c.WaitTimeout = 30 * time.Millisecond

	req := Request{
		SubjectType: models.SubjectItem,
		SubjectName: "Bag of Holding",
		Prompt:      "a worn leather bag",
	}
	_, err := c.Resolve(context.Background(), req)
	if !errors.Is(err, ErrStillGenerating) {
		t.Fatalf("got %v, want still-generating", err)
	}
	// The underlying generation keeps going and lands in the cache
	time.Sleep(400 * time.Millisecond)
	c.WaitTimeout = time.Second
	asset, err := c.Resolve(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if asset.ID == 0 || calls.Load() != 1 {
		t.Errorf("asset %d after %d calls, want cached result of the original call", asset.ID, calls.Load())
	}
}

func TestInvalidInputRejected(t *testing.T) {
	setupTest(t)
	var calls atomic.Int64
	c := New(countingGenerator(t, &calls, 0))

	for _, req := range []Request{
		{SubjectType: models.SubjectItem, SubjectName: "", Prompt: "something"},
		{SubjectType: models.SubjectItem, SubjectName: "Thing", Prompt: "   "},
	} {
		if _, err := c.Resolve(context.Background(), req); !errors.Is(err, generator.ErrInvalidInput) {
			t.Errorf("got %v, want invalid input", err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("invalid requests reached the generator")
	}
}
