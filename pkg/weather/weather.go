// Package weather wraps the OpenWeatherMap forecast and air pollution APIs.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "http://api.openweathermap.org"

// Forecast is the subset of the forecast response the bot consumes.
type Forecast struct {
	City        string
	Description string
	Temp        float64
	Humidity    int
	RainProb    float64 // percent
}

// Message renders the forecast as a reply.
func (f Forecast) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather for %s:\n", f.City)
	fmt.Fprintf(&b, "Conditions: %s\n", f.Description)
	fmt.Fprintf(&b, "Temperature: %.1f°C\n", f.Temp)
	fmt.Fprintf(&b, "Humidity: %d%%\n", f.Humidity)
	if f.RainProb > 30 {
		fmt.Fprintf(&b, "Chance of rain: %.0f%%\n", f.RainProb)
		b.WriteString("Don't forget an umbrella! ☔")
	}
	return b.String()
}

var aqiLabels = map[int]string{
	1: "good 😊",
	2: "fair 😐",
	3: "unhealthy for sensitive groups 😷",
	4: "unhealthy 🚫",
	5: "very unhealthy ⚠️",
}

// AQILabel maps the 1..5 OpenWeatherMap air quality index to a label.
func AQILabel(aqi int) string {
	if label, ok := aqiLabels[aqi]; ok {
		return label
	}
	return "unknown"
}

// Service calls the weather provider.
type Service struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// New creates a weather Service.
func New(apiKey string) *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the provider endpoint. Used in tests.
func (s *Service) SetBaseURL(u string) { s.baseURL = u }

// Forecast returns the nearest forecast slot for a city.
func (s *Service) Forecast(ctx context.Context, city string) (*Forecast, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", s.apiKey)
	q.Set("units", "metric")

	var resp struct {
		List []struct {
			Main struct {
				Temp     float64 `json:"temp"`
				Humidity int     `json:"humidity"`
			} `json:"main"`
			Weather []struct {
				Description string `json:"description"`
			} `json:"weather"`
			Pop float64 `json:"pop"`
		} `json:"list"`
	}
	if err := s.get(ctx, "/data/2.5/forecast", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, fmt.Errorf("forecast for %s: empty response", city)
	}

	slot := resp.List[0]
	f := &Forecast{
		City:     city,
		Temp:     slot.Main.Temp,
		Humidity: slot.Main.Humidity,
		RainProb: slot.Pop * 100,
	}
	if len(slot.Weather) > 0 {
		f.Description = slot.Weather[0].Description
	}
	return f, nil
}

// AirQuality returns the current air quality index (1..5) at the
// coordinates.
func (s *Service) AirQuality(ctx context.Context, lat, lon float64) (int, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("appid", s.apiKey)

	var resp struct {
		List []struct {
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
		} `json:"list"`
	}
	if err := s.get(ctx, "/data/2.5/air_pollution", q, &resp); err != nil {
		return 0, err
	}
	if len(resp.List) == 0 {
		return 0, fmt.Errorf("air quality: empty response")
	}
	return resp.List[0].Main.AQI, nil
}

func (s *Service) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create weather request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch weather %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather %s status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode weather %s: %w", path, err)
	}
	return nil
}
