package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryRegistryRevoke(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	revoked, err := reg.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("fresh token reported revoked")
	}

	if err := reg.Revoke(ctx, "tok-1", time.Hour); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	revoked, err = reg.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("revoked token not reported")
	}
}

func TestMemoryRegistryExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base

	reg := NewMemoryRegistry()
	reg.now = func() time.Time { return current }

	if err := reg.Revoke(ctx, "tok-1", 10*time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	current = base.Add(9 * time.Minute)
	if revoked, _ := reg.IsRevoked(ctx, "tok-1"); !revoked {
		t.Fatal("entry dropped before its ttl")
	}

	current = base.Add(11 * time.Minute)
	if revoked, _ := reg.IsRevoked(ctx, "tok-1"); revoked {
		t.Fatal("entry survived past its ttl")
	}

	// The next write sweeps the dead entry.
	if err := reg.Revoke(ctx, "tok-2", time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	reg.mu.RLock()
	_, stale := reg.entries["tok-1"]
	reg.mu.RUnlock()
	if stale {
		t.Fatal("expired entry not swept on write")
	}
}

func TestMemoryRegistryNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	if err := reg.Revoke(ctx, "tok-1", 0); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := reg.Revoke(ctx, "tok-2", -time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	for _, tok := range []string{"tok-1", "tok-2"} {
		if revoked, _ := reg.IsRevoked(ctx, tok); revoked {
			t.Fatalf("dead token %s recorded", tok)
		}
	}
}

func TestMemoryRegistryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := fmt.Sprintf("tok-%d", i)
			for j := 0; j < 50; j++ {
				if err := reg.Revoke(ctx, tok, time.Hour); err != nil {
					t.Errorf("Revoke failed: %v", err)
					return
				}
				revoked, err := reg.IsRevoked(ctx, tok)
				if err != nil {
					t.Errorf("IsRevoked failed: %v", err)
					return
				}
				if !revoked {
					t.Errorf("token %s lost", tok)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
