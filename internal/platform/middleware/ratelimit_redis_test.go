package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fakeScripter emulates the fixed-window script with an in-memory counter.
type fakeScripter struct {
	counts map[string]int64
	err    error
	keys   []string
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: make(map[string]int64)}
}

func (f *fakeScripter) run(ctx context.Context, keys []string) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.keys = append(f.keys, keys[0])
	f.counts[keys[0]]++
	cmd.SetVal(f.counts[keys[0]])
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(ctx, keys)
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(ctx, keys)
}

func (f *fakeScripter) EvalRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(ctx, keys)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.run(ctx, keys)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceCmd(ctx)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func TestRedisRateLimiter_AllowsThenRejects(t *testing.T) {
	fake := newFakeScripter()
	rl := NewRedisRateLimiter(fake, 2, time.Minute, "test")
	h := rl.Middleware(zerolog.New(os.Stderr), false)(okHandler)
	e := echo.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("expected limit header 2, got %q", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := httptest.NewRecorder()
	err := h(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
	if fake.keys[0] != "test:ip:192.0.2.1" {
		t.Errorf("unexpected redis key %q", fake.keys[0])
	}
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	fake := newFakeScripter()
	fake.err = errors.New("connection refused")
	rl := NewRedisRateLimiter(fake, 1, time.Minute, "")
	e := echo.New()

	open := rl.Middleware(zerolog.Nop(), true)(okHandler)
	if err := open(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())); err != nil {
		t.Errorf("expected fail-open to pass the request, got %v", err)
	}

	closed := rl.Middleware(zerolog.Nop(), false)(okHandler)
	err := closed(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when failing closed, got %v", err)
	}
}

func TestNewRedisRateLimiter_Defaults(t *testing.T) {
	rl := NewRedisRateLimiter(newFakeScripter(), 0, 0, "  ")
	if rl.limit != 60 || rl.window != time.Minute || rl.prefix != "rl" {
		t.Errorf("unexpected defaults: limit=%d window=%s prefix=%q", rl.limit, rl.window, rl.prefix)
	}
}
