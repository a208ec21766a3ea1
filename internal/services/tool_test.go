package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/types"
)

type fakeToolLogRepo struct {
	entries []*types.ToolLog
}

func (f *fakeToolLogRepo) Insert(ctx context.Context, tx *gorm.DB, row *types.ToolLog) error {
	f.entries = append(f.entries, row)
	return nil
}

// fakeToolCache is an in-process stand-in for the Redis-backed cache.
type fakeToolCache struct {
	store  map[string][]byte
	counts map[string]int
}

func newFakeToolCache() *fakeToolCache {
	return &fakeToolCache{store: map[string][]byte{}, counts: map[string]int{}}
}

func (f *fakeToolCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok := f.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeToolCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	f.store[key] = raw
	return nil
}

func (f *fakeToolCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

func (f *fakeToolCache) Close() error { return nil }

func newTestToolService(t *testing.T, cache *fakeToolCache, logRepo *fakeToolLogRepo, endpoint string) *toolService {
	t.Helper()
	svc := &toolService{
		log:             testLogger(t),
		toolLogRepo:     logRepo,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		weatherEndpoint: endpoint,
		weatherAPIKey:   "test-key",
		newsEndpoint:    endpoint,
		newsAPIKey:      "test-key",
		cacheTTL:        time.Minute,
	}
	if cache != nil {
		svc.cache = cache
	}
	return svc
}

func TestExecuteUnsupportedTool(t *testing.T) {
	logRepo := &fakeToolLogRepo{}
	svc := newTestToolService(t, nil, logRepo, "http://unused")

	_, err := svc.Execute(context.Background(), uuid.New(), "calculator", nil)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest || ae.Code != "unsupported_tool" {
		t.Fatalf("expected unsupported_tool 400, got %v", err)
	}
	if len(logRepo.entries) != 1 {
		t.Fatalf("expected failed invocation logged")
	}
	if logRepo.entries[0].Result["error"] == nil {
		t.Fatalf("expected error recorded in tool log")
	}
}

func TestFetchWeather(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Nowhere" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("appid") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("units") != "metric" {
			t.Errorf("expected metric units, got %q", r.URL.Query().Get("units"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "Lisbon",
			"main":    map[string]any{"temp": 21.5},
			"weather": []map[string]any{{"description": "clear sky"}},
		})
	}))
	defer ts.Close()

	logRepo := &fakeToolLogRepo{}
	svc := newTestToolService(t, nil, logRepo, ts.URL)

	result, err := svc.Execute(context.Background(), uuid.New(), ToolKeyWeather, map[string]any{"city": "Lisbon"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["temp_c"] != 21.5 || result["city"] != "Lisbon" || result["description"] != "clear sky" {
		t.Fatalf("unexpected result: %v", result)
	}
	if result["source"] != "openweathermap" {
		t.Fatalf("source = %v", result["source"])
	}
	if len(logRepo.entries) != 1 || logRepo.entries[0].ToolKey != ToolKeyWeather {
		t.Fatalf("expected invocation logged")
	}

	_, err = svc.Execute(context.Background(), uuid.New(), ToolKeyWeather, map[string]any{"city": "Nowhere"})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != "city_not_found" {
		t.Fatalf("expected city_not_found, got %v", err)
	}
}

func TestFetchWeatherRequiresCity(t *testing.T) {
	svc := newTestToolService(t, nil, &fakeToolLogRepo{}, "http://unused")

	_, err := svc.Execute(context.Background(), uuid.New(), ToolKeyWeather, map[string]any{"city": "   "})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != "invalid_city" {
		t.Fatalf("expected invalid_city, got %v", err)
	}
}

func TestFetchNewsCachesResponses(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"articles": []map[string]any{
				{
					"title":       "Go 1.24 released",
					"url":         "https://example.com/go",
					"publishedAt": "2026-08-01T00:00:00Z",
					"source":      map[string]any{"name": "Example"},
				},
			},
		})
	}))
	defer ts.Close()

	cache := newFakeToolCache()
	svc := newTestToolService(t, cache, &fakeToolLogRepo{}, ts.URL)
	userID := uuid.New()
	params := map[string]any{"topic": "  golang   releases ", "page_size": float64(3)}

	first, err := svc.Execute(context.Background(), userID, ToolKeyNews, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first["cached"] != false {
		t.Fatalf("expected fresh result, got %v", first["cached"])
	}
	if first["topic"] != "golang releases" {
		t.Fatalf("expected collapsed topic, got %v", first["topic"])
	}
	articles, ok := first["articles"].([]map[string]any)
	if !ok || len(articles) != 1 || articles[0]["source"] != "Example" {
		t.Fatalf("unexpected articles: %v", first["articles"])
	}

	second, err := svc.Execute(context.Background(), userID, ToolKeyNews, params)
	if err != nil {
		t.Fatalf("Execute cached: %v", err)
	}
	if second["cached"] != true {
		t.Fatalf("expected cache hit, got %v", second["cached"])
	}
	if hits != 1 {
		t.Fatalf("expected one upstream call, got %d", hits)
	}
}

func TestFetchNewsRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"articles": []map[string]any{}})
	}))
	defer ts.Close()

	cache := newFakeToolCache()
	svc := newTestToolService(t, cache, &fakeToolLogRepo{}, ts.URL)
	userID := uuid.New()

	for i := 0; i < newsRateLimit; i++ {
		// Distinct topics so the cache never short-circuits the limiter.
		params := map[string]any{"topic": strings.Repeat("x", i+1)}
		if _, err := svc.Execute(context.Background(), userID, ToolKeyNews, params); err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
	}

	_, err := svc.Execute(context.Background(), userID, ToolKeyNews, map[string]any{"topic": "one too many"})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}

	// A different user still has headroom.
	if _, err := svc.Execute(context.Background(), uuid.New(), ToolKeyNews, map[string]any{"topic": "fresh quota"}); err != nil {
		t.Fatalf("Execute other user: %v", err)
	}
}

func TestSanitizeTopic(t *testing.T) {
	if _, err := sanitizeTopic("   "); err == nil {
		t.Fatalf("expected error for blank topic")
	}
	if _, err := sanitizeTopic(strings.Repeat("a", newsTopicMaxLen+1)); err == nil {
		t.Fatalf("expected error for oversized topic")
	}
	got, err := sanitizeTopic("  machine\t\tlearning   news ")
	if err != nil {
		t.Fatalf("sanitizeTopic: %v", err)
	}
	if got != "machine learning news" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateLanguage(t *testing.T) {
	if got := validateLanguage(""); got != "en" {
		t.Fatalf("default = %q", got)
	}
	if got := validateLanguage("  PT "); got != "pt" {
		t.Fatalf("got %q", got)
	}
}

func TestClampPageSize(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{nil, 5},
		{float64(3), 3},
		{float64(0), 1},
		{float64(99), 10},
		{"7", 7},
		{"junk", 5},
	}
	for _, tc := range cases {
		if got := clampPageSize(tc.in); got != tc.want {
			t.Fatalf("clampPageSize(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
