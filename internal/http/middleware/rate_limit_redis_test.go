package middleware

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisFixedWindowLimiter) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		m.Close()
	})
	return m, client, NewRedisFixedWindowLimiter(client, "rl_test")
}

func TestRedisFixedWindowLimiterAllowDenyAndFallbackKey(t *testing.T) {
	_, _, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "", 1, time.Second)
	if err != nil {
		t.Fatalf("allow first request: %v", err)
	}
	if !allowed {
		t.Fatal("expected first request to be allowed")
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "", 1, time.Second)
	if err != nil {
		t.Fatalf("allow second request: %v", err)
	}
	if allowed {
		t.Fatal("expected second request denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", retryAfter)
	}

	// The empty key shares the "unknown" bucket.
	allowed, _, err = limiter.Allow(ctx, "unknown", 1, time.Second)
	if err != nil {
		t.Fatalf("allow unknown key: %v", err)
	}
	if allowed {
		t.Fatal("expected empty and unknown keys to share a window")
	}
}

func TestRedisFixedWindowLimiterWindowExpiry(t *testing.T) {
	m, _, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	if allowed, _, err := limiter.Allow(ctx, "k", 1, time.Second); err != nil || !allowed {
		t.Fatalf("first request: allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _ := limiter.Allow(ctx, "k", 1, time.Second); allowed {
		t.Fatal("expected denial inside the window")
	}

	m.FastForward(1100 * time.Millisecond)

	if allowed, _, err := limiter.Allow(ctx, "k", 1, time.Second); err != nil || !allowed {
		t.Fatalf("expected fresh window to allow, allowed=%v err=%v", allowed, err)
	}
}

func TestRedisFixedWindowLimiterBackendAndNilClientErrors(t *testing.T) {
	limiter := NewRedisFixedWindowLimiter(nil, "")
	if _, _, err := limiter.Allow(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected nil client error")
	}

	badClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond, ReadTimeout: 20 * time.Millisecond, WriteTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = badClient.Close() })
	limiter = NewRedisFixedWindowLimiter(badClient, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := limiter.Allow(ctx, "k", 1, time.Second); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestParseRedisInt64Branches(t *testing.T) {
	if v, err := parseRedisInt64(int64(4)); err != nil || v != 4 {
		t.Fatalf("int64 parse mismatch v=%d err=%v", v, err)
	}
	if v, err := parseRedisInt64(int(3)); err != nil || v != 3 {
		t.Fatalf("int parse mismatch v=%d err=%v", v, err)
	}
	if _, err := parseRedisInt64(uint64(math.MaxUint64)); err == nil {
		t.Fatal("expected overflow error for uint64")
	}
	if _, err := parseRedisInt64("1"); err == nil {
		t.Fatal("expected string type error")
	}
	if _, err := parseRedisInt64(errors.New("x")); err == nil {
		t.Fatal("expected unexpected type error")
	}
}

func FuzzParseRedisInt64Robustness(f *testing.F) {
	f.Add(uint8(0), int64(42), uint64(42), "42")
	f.Add(uint8(1), int64(-1), uint64(math.MaxUint64), "bad")
	f.Add(uint8(2), int64(0), uint64(0), "")

	f.Fuzz(func(t *testing.T, kind uint8, si int64, ui uint64, s string) {
		if len(s) > 256 {
			s = s[:256]
		}
		var (
			v       any
			wantErr bool
			wantVal int64
		)
		switch kind % 7 {
		case 0:
			v = si
			wantVal = si
		case 1:
			v = int(si)
			wantVal = int64(int(si))
		case 2:
			v = ui
			if ui > math.MaxInt64 {
				wantErr = true
			} else {
				wantVal = int64(ui)
			}
		case 3:
			v = s
			wantErr = true
		case 4:
			v = errors.New(s)
			wantErr = true
		case 5:
			v = nil
			wantErr = true
		default:
			v = struct{ X string }{X: s}
			wantErr = true
		}

		got, err := parseRedisInt64(v)
		if wantErr {
			if err == nil {
				t.Fatalf("expected error for type %T value %v, got value=%d", v, v, got)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error for type %T value %v: %v", v, v, err)
		}
		if got != wantVal {
			t.Fatalf("value mismatch: got=%d want=%d (type=%T value=%v)", got, wantVal, v, v)
		}
	})
}

func FuzzRedisFixedWindowLimiterAllowKeyFallback(f *testing.F) {
	f.Add("", uint16(1), uint16(1000))
	f.Add("unknown", uint16(2), uint16(500))
	f.Add("🔥-key", uint16(5), uint16(1200))

	f.Fuzz(func(t *testing.T, key string, limit, windowMS uint16) {
		if len(key) > 256 {
			key = key[:256]
		}
		key = strings.TrimSpace(key)

		m := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: m.Addr()})
		t.Cleanup(func() {
			_ = client.Close()
			m.Close()
		})

		limiter := NewRedisFixedWindowLimiter(client, "fuzz_rl")
		boundedLimit := int(limit%20) + 1
		window := time.Duration(int64(windowMS)+1) * time.Millisecond

		ctx := context.Background()
		if _, _, err := limiter.Allow(ctx, key, boundedLimit, window); err != nil {
			t.Fatalf("first allow failed: %v", err)
		}
		allowed, retryAfter, err := limiter.Allow(ctx, key, boundedLimit, window)
		if err != nil {
			t.Fatalf("second allow failed: %v", err)
		}
		if !allowed && retryAfter <= 0 {
			t.Fatalf("denied decision must carry a positive retry-after, got %v", retryAfter)
		}

		if key == "" {
			if err := client.FlushAll(ctx).Err(); err != nil {
				t.Fatalf("flush before empty-key check: %v", err)
			}
			allowedEmpty, _, err := limiter.Allow(ctx, "", 1, window)
			if err != nil {
				t.Fatalf("empty key allow failed: %v", err)
			}
			if !allowedEmpty {
				t.Fatal("first request after flush must be allowed")
			}
			allowedUnknown, _, err := limiter.Allow(ctx, "unknown", 1, window)
			if err != nil {
				t.Fatalf("unknown key allow failed: %v", err)
			}
			if allowedUnknown {
				t.Fatal("empty and unknown keys must share a bucket")
			}
		}
	})
}
