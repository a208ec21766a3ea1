package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/yungbote/recall-backend/internal/platform/apierr"
)

func toolError(status int, code, msg string) error {
	return apierr.New(status, code, fmt.Errorf("%s", msg))
}

func (s *toolService) fetchWeather(ctx context.Context, params map[string]any) (map[string]any, error) {
	if s.weatherAPIKey == "" {
		return nil, toolError(http.StatusBadRequest, "weather_not_configured", "OPENWEATHER_API_KEY not configured")
	}
	city, _ := params["city"].(string)
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, toolError(http.StatusBadRequest, "invalid_city", "invalid or missing 'city' parameter")
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", s.weatherAPIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.weatherEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, toolError(http.StatusBadRequest, "weather_unreachable", "weather service error: "+err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, toolError(http.StatusBadRequest, "weather_unauthorized", "invalid OPENWEATHER_API_KEY or unauthorized")
	case resp.StatusCode == http.StatusNotFound:
		return nil, toolError(http.StatusBadRequest, "city_not_found", "city not found")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, toolError(http.StatusBadRequest, "weather_error", fmt.Sprintf("weather service error (http %d)", resp.StatusCode))
	}

	var body struct {
		Name string `json:"name"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, toolError(http.StatusBadRequest, "weather_error", "weather service returned malformed response")
	}

	name := body.Name
	if name == "" {
		name = city
	}
	var description string
	if len(body.Weather) > 0 {
		description = body.Weather[0].Description
	}
	return map[string]any{
		"temp_c":      body.Main.Temp,
		"description": description,
		"city":        name,
		"source":      "openweathermap",
	}, nil
}
