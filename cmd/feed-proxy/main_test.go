package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/feedagg/internal/config"
	"github.com/Sternrassler/feedagg/internal/testutil"
	"github.com/Sternrassler/feedagg/pkg/server"
	"github.com/alicebob/miniredis/v2"
)

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Port:             8080,
		UpstreamURL:      upstreamURL,
		UpstreamPreset:   config.PresetJSONPlaceholder,
		UserAgent:        "feed-proxy-test/1.0",
		HTTPTimeout:      2 * time.Second,
		OwnersEnabled:    true,
		ProfileCacheTTL:  time.Minute,
		ProfileCacheSize: 16,
		LogLevel:         "info",
		ShutdownTimeout:  time.Second,
	}
}

func serve(t *testing.T, deps server.Deps, target string) int {
	t.Helper()
	srv, err := server.New(server.DefaultConfig(":0"), deps)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Code
}

func TestBuildDeps_MemoryCache(t *testing.T) {
	mock := testutil.NewMockUpstream().Seed(10, 1)
	defer mock.Close()

	deps, cleanup, err := buildDeps(context.Background(), testConfig(mock.URL()))
	if err != nil {
		t.Fatalf("buildDeps failed: %v", err)
	}
	defer cleanup()

	if deps.Redis != nil {
		t.Error("Redis client set without FEED_REDIS_URL")
	}

	for i := 0; i < 3; i++ {
		if code := serve(t, deps, "/api/v1/users/1"); code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
	}
	if n := mock.RequestCount(testutil.UserPath(1)); n != 1 {
		t.Errorf("owner requested %d times upstream, want 1 (cached)", n)
	}
}

func TestBuildDeps_RedisCache(t *testing.T) {
	mock := testutil.NewMockUpstream().Seed(10, 1)
	defer mock.Close()
	mr := miniredis.RunT(t)

	cfg := testConfig(mock.URL())
	cfg.RedisURL = mr.Addr()

	deps, cleanup, err := buildDeps(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildDeps failed: %v", err)
	}
	defer cleanup()

	if deps.Redis == nil {
		t.Fatal("Redis client not wired")
	}
	if code := serve(t, deps, "/api/v1/users/1"); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !mr.Exists("feed:owner:1") {
		t.Error("owner not written to redis")
	}
	if code := serve(t, deps, "/ready"); code != http.StatusOK {
		t.Errorf("ready = %d, want 200", code)
	}
}

func TestBuildDeps_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.RedisURL = addr

	if _, _, err := buildDeps(context.Background(), cfg); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}

func TestBuildDeps_InvalidSource(t *testing.T) {
	cfg := testConfig("http://example.com")
	cfg.UserAgent = ""

	if _, _, err := buildDeps(context.Background(), cfg); err == nil {
		t.Error("expected error for missing user agent")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
