package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"artcache/config"
	"artcache/generator"
	"artcache/models"
	"artcache/processing"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrStillGenerating is returned to a waiter whose patience ran out. The
// underlying generation keeps running for the benefit of other waiters.
var ErrStillGenerating = errors.New("generation still in progress")

type Request struct {
	SubjectType models.SubjectType
	SubjectName string
	Prompt      string
	Style       string
	Ratio       string
	Context     map[string]string // scene dimensions, e.g. time_of_day, weather
	Regenerate  bool              // skip the cache and force a new variant
}

// flight tracks a cache key currently being generated. Created by the
// first caller to miss, destroyed the moment the generation resolves.
// The done channel is closed to fan the result out to all waiters.
type flight struct {
	done    chan struct{}
	asset   *models.Asset
	err     error
	started time.Time
}

// Coordinator guarantees at most one outstanding generator call per
// cache key, with every concurrent caller receiving that call's result.
type Coordinator struct {
	gen         generator.Generator
	flights     cmap.ConcurrentMap[string, *flight]
	hits        atomic.Uint64
	misses      atomic.Uint64
	WaitTimeout time.Duration
	// OnAssetCreated fires after a successful commit, before the waiters
	// are released. Used for the event feed.
	OnAssetCreated func(*models.Asset)
}

func New(gen generator.Generator) *Coordinator {
	return &Coordinator{
		gen:         gen,
		flights:     cmap.New[*flight](),
		WaitTimeout: time.Duration(config.WAIT_TIMEOUT_SECONDS) * time.Second,
	}
}

// Resolve returns an existing asset for the request, or ensures exactly
// one generator call happens for its key and returns that call's result.
func (c *Coordinator) Resolve(ctx context.Context, r Request) (*models.Asset, error) {
	r.SubjectName = strings.TrimSpace(r.SubjectName)
	if r.SubjectName == "" || strings.TrimSpace(r.Prompt) == "" {
		return nil, generator.ErrInvalidInput
	}
	key := Key(r.SubjectType, r.SubjectName, r.Context)
	fp := Fingerprint(r.Prompt, r.Style, r.Ratio)
	flightKey := key
	if r.SubjectType != models.SubjectScene {
		// Variants of a permanent subject may generate concurrently;
		// scene keys already encode their full context
		flightKey = key + keySeparator + fp[:16]
	}

	if !r.Regenerate {
		if asset := c.lookup(r, key, fp); asset != nil {
			c.hits.Add(1)
			return asset, nil
		}
	}
	c.misses.Add(1)

	for {
		f := &flight{done: make(chan struct{}), started: time.Now()}
		if c.flights.SetIfAbsent(flightKey, f) {
			go c.generate(flightKey, key, fp, r, f)
			return c.wait(ctx, f)
		}
		existing, ok := c.flights.Get(flightKey)
		if ok {
			return c.wait(ctx, existing)
		}
		// The earlier flight resolved between SetIfAbsent and Get; its
		// result should be in the store by now
		if !r.Regenerate {
			if asset := c.lookup(r, key, fp); asset != nil {
				c.hits.Add(1)
				return asset, nil
			}
		}
	}
}

// Active reports whether a generation is in flight for the cache key.
// The sweeper uses this to keep clear of live keys.
func (c *Coordinator) Active(key string) bool {
	if c.flights.Has(key) {
		return true
	}
	// Permanent-asset flights are keyed with a fingerprint suffix
	for _, k := range c.flights.Keys() {
		if strings.HasPrefix(k, key+keySeparator) {
			return true
		}
	}
	return false
}

func (c *Coordinator) InFlightCount() int {
	return c.flights.Count()
}

// Counters returns the hit/miss tallies since process start.
func (c *Coordinator) Counters() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Coordinator) lookup(r Request, key, fp string) *models.Asset {
	if r.SubjectType == models.SubjectScene {
		entry := models.FindSceneEntry(key, time.Now())
		if entry.ID == 0 {
			return nil
		}
		go func() {
			models.MarkSceneHit(entry.ID)
			models.MarkUsed(entry.AssetID)
		}()
		asset := entry.Asset
		asset.UseCount++
		return &asset
	}
	asset := models.FindAsset(r.SubjectType, r.SubjectName, fp)
	if asset.ID == 0 {
		return nil
	}
	go models.MarkUsed(asset.ID)
	asset.UseCount++
	return &asset
}

func (c *Coordinator) wait(ctx context.Context, f *flight) (*models.Asset, error) {
	timer := time.NewTimer(c.WaitTimeout)
	defer timer.Stop()
	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		return f.asset, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w (started %s ago)", ErrStillGenerating, time.Since(f.started).Round(time.Second))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// generate runs the single upstream call for the flight and persists the
// result. Failures are delivered as-is to every waiter - nobody retries
// on the coordinator's behalf.
func (c *Coordinator) generate(flightKey, key, fp string, r Request, f *flight) {
	defer func() {
		c.flights.Remove(flightKey)
		close(f.done)
	}()

	width, height := Dimensions(r.Ratio)
	// The call gets its own deadline, detached from any single caller:
	// a waiter giving up must not cancel the shared call
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.GENERATE_TIMEOUT_SECONDS)*time.Second)
	defer cancel()
	raw, err := c.gen.Generate(ctx, generator.Request{
		Prompt: r.Prompt,
		Width:  width,
		Height: height,
		Style:  r.Style,
	})
	if err != nil {
		log.Printf("Generation failed for %q: %v", key, err)
		f.err = err
		return
	}

	now := time.Now().Unix()
	asset := &models.Asset{
		SubjectType:       r.SubjectType,
		SubjectName:       r.SubjectName,
		PromptFingerprint: fp,
		Prompt:            r.Prompt,
		Style:             r.Style,
		LastUsedAt:        now,
		UseCount:          1,
		Provenance:        models.ProvenanceGenerated,
	}
	var scene *models.SceneCacheEntry
	if r.SubjectType == models.SubjectScene {
		scene = &models.SceneCacheEntry{
			CacheKey:  key,
			ExpiresAt: time.Now().Add(SceneTTL()).Unix(),
		}
	}
	if err := processing.Persist(raw, asset, scene); err != nil {
		log.Printf("Persisting generated asset for %q failed: %v", key, err)
		f.err = err
		return
	}
	f.asset = asset
	if c.OnAssetCreated != nil {
		c.OnAssetCreated(asset)
	}
}

func SceneTTL() time.Duration {
	return time.Duration(config.SCENE_TTL_DAYS) * 24 * time.Hour
}
