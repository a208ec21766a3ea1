package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	rediscli "github.com/yungbote/recall-backend/internal/clients/redis"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/repos"
	"github.com/yungbote/recall-backend/internal/types"
)

const (
	ToolKeyWeather = "weather"
	ToolKeyNews    = "news"

	newsRateLimit  = 5
	newsRateWindow = time.Minute
)

type ToolInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolService executes server-side tools on behalf of an authenticated
// user. Results and failures both land in tool_logs (best-effort).
type ToolService interface {
	List() []ToolInfo
	Execute(ctx context.Context, userID uuid.UUID, toolKey string, params map[string]any) (map[string]any, error)
}

type toolService struct {
	log         *logger.Logger
	cache       rediscli.ToolCache
	toolLogRepo repos.ToolLogRepo
	httpClient  *http.Client

	weatherEndpoint string
	weatherAPIKey   string
	newsEndpoint    string
	newsAPIKey      string
	cacheTTL        time.Duration
}

// NewToolService accepts a nil cache: tools then run uncached and
// unlimited rather than failing closed.
func NewToolService(log *logger.Logger, cache rediscli.ToolCache, toolLogRepo repos.ToolLogRepo) ToolService {
	timeoutSec := envutil.Int("TOOL_TIMEOUT_SECONDS", 10)
	return &toolService{
		log:             log.With("service", "ToolService"),
		cache:           cache,
		toolLogRepo:     toolLogRepo,
		httpClient:      &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		weatherEndpoint: envutil.String("OPENWEATHER_ENDPOINT", "https://api.openweathermap.org/data/2.5/weather"),
		weatherAPIKey:   envutil.String("OPENWEATHER_API_KEY", ""),
		newsEndpoint:    envutil.String("NEWSAPI_ENDPOINT", "https://newsapi.org/v2/everything"),
		newsAPIKey:      envutil.String("NEWSAPI_KEY", ""),
		cacheTTL:        time.Duration(envutil.Int("TOOL_CACHE_TTL", 600)) * time.Second,
	}
}

func (s *toolService) List() []ToolInfo {
	return []ToolInfo{
		{Key: ToolKeyWeather, Name: "Weather", Description: "Current weather for a city (OpenWeatherMap)"},
		{Key: ToolKeyNews, Name: "News", Description: "Recent articles for a topic (NewsAPI)"},
	}
}

func (s *toolService) Execute(ctx context.Context, userID uuid.UUID, toolKey string, params map[string]any) (map[string]any, error) {
	var (
		result map[string]any
		err    error
	)
	switch toolKey {
	case ToolKeyWeather:
		result, err = s.fetchWeather(ctx, params)
	case ToolKeyNews:
		result, err = s.fetchNews(ctx, userID, params)
	default:
		err = toolError(http.StatusBadRequest, "unsupported_tool", "unsupported tool_key")
	}

	if err != nil {
		s.logInvocation(ctx, userID, toolKey, params, map[string]any{"error": err.Error()})
		return nil, err
	}
	s.logInvocation(ctx, userID, toolKey, params, result)
	return result, nil
}

func (s *toolService) logInvocation(ctx context.Context, userID uuid.UUID, toolKey string, params, result map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	if result == nil {
		result = map[string]any{}
	}
	err := s.toolLogRepo.Insert(ctx, nil, &types.ToolLog{
		UserID:  &userID,
		ToolKey: toolKey,
		Params:  datatypes.JSONMap(params),
		Result:  datatypes.JSONMap(result),
	})
	if err != nil {
		s.log.Warn("tool log insert failed (non-blocking)", "tool_key", toolKey, "error", err)
	}
}
