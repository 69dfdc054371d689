package cache

import (
	"context"
	"testing"
)

func TestHashIP_Deterministic(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"
	if hashIP(ip) != hashIP(ip) {
		t.Error("Same IP should produce same hash")
	}
}

func TestHashIP_Length(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
	}{
		{"IPv4", "192.168.1.1"},
		{"IPv6 localhost", "::1"},
		{"IPv6 full", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if hash := hashIP(tt.ip); len(hash) != 16 {
				t.Errorf("hashIP(%q) length = %d, want 16", tt.ip, len(hash))
			}
		})
	}
}

func TestHashIP_Different(t *testing.T) {
	t.Parallel()

	if hashIP("10.0.0.1") == hashIP("10.0.0.2") {
		t.Error("Different IPs should produce different hashes")
	}
}

func TestLinkKey(t *testing.T) {
	t.Parallel()

	if got := linkKey("Müller-1"); got != "link:Müller-1" {
		t.Errorf("linkKey = %q", got)
	}
}

func TestLinkCachingDisabled(t *testing.T) {
	t.Parallel()

	// A zero TTL never touches the client.
	c := NewWithClient(nil, WithLinkTTL(0))
	ctx := context.Background()

	if _, err := c.GetLink(ctx, "acme"); err != ErrCacheMiss {
		t.Errorf("GetLink err = %v, want ErrCacheMiss", err)
	}
	if neg, err := c.IsNegativelyCached(ctx, "acme"); err != nil || neg {
		t.Errorf("IsNegativelyCached = %v, %v", neg, err)
	}
	if err := c.SetNegativeCache(ctx, "acme"); err != nil {
		t.Errorf("SetNegativeCache err = %v", err)
	}
}

func TestLocalLimiter_Burst(t *testing.T) {
	t.Parallel()

	l := NewLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.CheckIPRateLimit(ctx, "203.0.113.1", 1, 3)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed: %+v %v", i, res, err)
		}
	}

	res, err := l.CheckIPRateLimit(ctx, "203.0.113.1", 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("request past burst should be limited")
	}
	if res.RetryAfter < 1e9 {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}

	// Other IPs keep their own budget.
	res, _ = l.CheckIPRateLimit(ctx, "203.0.113.2", 1, 3)
	if !res.Allowed {
		t.Error("separate IP should be allowed")
	}
}

func TestLocalLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := NewLocalLimiter()
	for i := 0; i < 100; i++ {
		res, _ := l.CheckIPRateLimit(context.Background(), "203.0.113.1", 0, 1)
		if !res.Allowed {
			t.Fatal("zero rate means unlimited")
		}
	}
}
