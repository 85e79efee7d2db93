package ratelimit

import (
	"errors"
	"testing"
	"time"

	"artcache/config"
)

func TestCheckBurstThenLimit(t *testing.T) {
	config.ASSET_RATE_PER_MINUTE = 6
	config.RATE_BURST = 3
	l := New()

	for i := 0; i < config.RATE_BURST; i++ {
		if err := l.Check(ClassAsset, "alice"); err != nil {
			t.Fatalf("call %d within burst rejected: %v", i, err)
		}
	}
	err := l.Check(ClassAsset, "alice")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("got %v, want LimitError", err)
	}
	if limitErr.RetryAfter <= 0 || limitErr.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %s", limitErr.RetryAfter)
	}
}

func TestCheckPerClientBuckets(t *testing.T) {
	config.ASSET_RATE_PER_MINUTE = 6
	config.RATE_BURST = 1
	l := New()

	if err := l.Check(ClassAsset, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := l.Check(ClassAsset, "alice"); err == nil {
		t.Fatal("second call for the same client passed")
	}
	// A different client has its own bucket
	if err := l.Check(ClassAsset, "bob"); err != nil {
		t.Errorf("bob throttled by alice's usage: %v", err)
	}
}

func TestCheckPerClassBuckets(t *testing.T) {
	config.ASSET_RATE_PER_MINUTE = 6
	config.SCENE_RATE_PER_MINUTE = 20
	config.RATE_BURST = 1
	l := New()

	if err := l.Check(ClassAsset, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := l.Check(ClassAsset, "alice"); err == nil {
		t.Fatal("asset bucket did not throttle")
	}
	// Scene generation draws from a separate bucket
	if err := l.Check(ClassScene, "alice"); err != nil {
		t.Errorf("scene class throttled by asset usage: %v", err)
	}
}

func TestLimitErrorMessage(t *testing.T) {
	err := &LimitError{RetryAfter: 42 * time.Second}
	if err.Error() != "rate limited, retry after 42s" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
