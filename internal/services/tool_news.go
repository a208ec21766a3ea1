package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const newsTopicMaxLen = 200

func sanitizeTopic(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", toolError(http.StatusBadRequest, "topic_required", "topic is required")
	}
	if len(value) > newsTopicMaxLen {
		return "", toolError(http.StatusBadRequest, "topic_too_long", fmt.Sprintf("topic too long (max %d)", newsTopicMaxLen))
	}
	return strings.Join(strings.Fields(value), " "), nil
}

func validateLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "en"
	}
	return lang
}

func clampPageSize(v any) int {
	n := 5
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			n = parsed
		}
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

func newsCacheKey(topic, language string, pageSize int) string {
	return fmt.Sprintf("tools:news:%s:%s:%d", strings.ToLower(topic), language, pageSize)
}

func newsRateKey(userID uuid.UUID) string {
	return "tools:rate:news:" + userID.String()
}

func (s *toolService) fetchNews(ctx context.Context, userID uuid.UUID, params map[string]any) (map[string]any, error) {
	if s.newsAPIKey == "" {
		return nil, toolError(http.StatusBadRequest, "news_not_configured", "NEWSAPI_KEY not configured")
	}
	topicRaw, _ := params["topic"].(string)
	topic, err := sanitizeTopic(topicRaw)
	if err != nil {
		return nil, err
	}
	langRaw, _ := params["language"].(string)
	language := validateLanguage(langRaw)
	pageSize := clampPageSize(params["page_size"])

	// Rate limit and cache are both best-effort: Redis being down makes
	// tools uncached and unlimited, not broken.
	if s.cache != nil {
		allowed, rlErr := s.cache.Allow(ctx, newsRateKey(userID), newsRateLimit, newsRateWindow)
		if rlErr != nil {
			s.log.Warn("news rate limit check failed, allowing", "error", rlErr)
		} else if !allowed {
			return nil, toolError(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded: max 5 news calls per minute")
		}

		var cached map[string]any
		hit, cacheErr := s.cache.GetJSON(ctx, newsCacheKey(topic, language, pageSize), &cached)
		if cacheErr != nil {
			s.log.Warn("news cache read failed", "error", cacheErr)
		} else if hit {
			cached["cached"] = true
			return cached, nil
		}
	}

	q := url.Values{}
	q.Set("q", topic)
	q.Set("language", language)
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sortBy", "publishedAt")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.newsEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", s.newsAPIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, toolError(http.StatusBadRequest, "news_unreachable", "news service error: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, toolError(http.StatusBadRequest, "news_error", fmt.Sprintf("news service error (http %d)", resp.StatusCode))
	}

	var body struct {
		Articles []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, toolError(http.StatusBadRequest, "news_error", "news service returned malformed response")
	}

	articles := make([]map[string]any, 0, len(body.Articles))
	for _, a := range body.Articles {
		articles = append(articles, map[string]any{
			"title":        a.Title,
			"url":          a.URL,
			"published_at": a.PublishedAt,
			"source":       a.Source.Name,
		})
	}
	result := map[string]any{
		"topic":    topic,
		"language": language,
		"articles": articles,
		"cached":   false,
		"source":   "newsapi",
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, newsCacheKey(topic, language, pageSize), result, s.cacheTTL); err != nil {
			s.log.Warn("news cache write failed", "error", err)
		}
	}
	return result, nil
}
