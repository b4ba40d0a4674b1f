// Package places wraps the Google Maps Web Service APIs used by the bot:
// geocoding, nearby search, place details, distance matrix and directions.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultBaseURL = "https://maps.googleapis.com"

// Service calls the maps provider.
type Service struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// New creates a places Service.
func New(apiKey string) *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the provider endpoint. Used in tests.
func (s *Service) SetBaseURL(u string) { s.baseURL = u }

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l latLng) String() string { return fmt.Sprintf("%f,%f", l.Lat, l.Lng) }

// SearchRestaurants geocodes the location and returns a reply listing up to
// five nearby restaurants with rating and address.
func (s *Service) SearchRestaurants(ctx context.Context, location, keyword string) (string, error) {
	loc, err := s.geocode(ctx, location)
	if err != nil {
		return "", err
	}

	results, err := s.nearby(ctx, loc, 1000, "restaurant", keyword)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No restaurants found around there.", nil
	}
	if len(results) > 5 {
		results = results[:5]
	}

	var b strings.Builder
	b.WriteString("Restaurants nearby:\n\n")
	for i, r := range results {
		rating := "unrated"
		if r.Rating > 0 {
			rating = fmt.Sprintf("%.1f⭐", r.Rating)
		}
		fmt.Fprintf(&b, "%d. %s\n   Rating: %s\n   Address: %s\n\n", i+1, r.Name, rating, r.Vicinity)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// SearchParking geocodes the location and returns a reply listing up to five
// parking lots with details and driving distance.
func (s *Service) SearchParking(ctx context.Context, location string) (string, error) {
	loc, err := s.geocode(ctx, location)
	if err != nil {
		return "", err
	}

	results, err := s.nearby(ctx, loc, 1000, "parking", "")
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No parking lots found around there.", nil
	}
	if len(results) > 5 {
		results = results[:5]
	}

	var b strings.Builder
	b.WriteString("📍 Parking nearby:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Name)
		if details, err := s.placeDetails(ctx, r.PlaceID); err == nil {
			fmt.Fprintf(&b, "   Address: %s\n   Phone: %s\n   Status: %s\n",
				details.Address, details.Phone, details.OpenLabel())
		}
		if dist, dur, err := s.distance(ctx, loc, r.Location); err == nil {
			fmt.Fprintf(&b, "   Distance: %s (%s by car)\n", dist, dur)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Directions returns driving directions between two addresses as a numbered
// step list.
func (s *Service) Directions(ctx context.Context, origin, destination string) (string, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("mode", "driving")
	q.Set("key", s.apiKey)

	var resp struct {
		Routes []struct {
			Legs []struct {
				Distance struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
				Steps []struct {
					HTMLInstructions string `json:"html_instructions"`
					Distance         struct {
						Text string `json:"text"`
					} `json:"distance"`
				} `json:"steps"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := s.get(ctx, "/maps/api/directions/json", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return "", fmt.Errorf("directions %s -> %s: no route", origin, destination)
	}

	leg := resp.Routes[0].Legs[0]
	var b strings.Builder
	b.WriteString("🚗 Directions:\n\n")
	fmt.Fprintf(&b, "Total distance: %s\n", leg.Distance.Text)
	fmt.Fprintf(&b, "Estimated time: %s\n\nRoute:\n", leg.Duration.Text)
	for i, step := range leg.Steps {
		fmt.Fprintf(&b, "%d. %s\n   (%s)\n", i+1, stripTags(step.HTMLInstructions), step.Distance.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) geocode(ctx context.Context, address string) (latLng, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", s.apiKey)

	var resp struct {
		Results []struct {
			Geometry struct {
				Location latLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := s.get(ctx, "/maps/api/geocode/json", q, &resp); err != nil {
		return latLng{}, err
	}
	if len(resp.Results) == 0 {
		return latLng{}, fmt.Errorf("geocode %q: no results", address)
	}
	return resp.Results[0].Geometry.Location, nil
}

type nearbyResult struct {
	Name     string
	Rating   float64
	Vicinity string
	PlaceID  string
	Location latLng
}

func (s *Service) nearby(ctx context.Context, loc latLng, radius int, placeType, keyword string) ([]nearbyResult, error) {
	q := url.Values{}
	q.Set("location", loc.String())
	q.Set("radius", fmt.Sprintf("%d", radius))
	q.Set("type", placeType)
	q.Set("key", s.apiKey)
	if keyword != "" {
		q.Set("keyword", keyword)
	}

	var resp struct {
		Results []struct {
			Name     string  `json:"name"`
			Rating   float64 `json:"rating"`
			Vicinity string  `json:"vicinity"`
			PlaceID  string  `json:"place_id"`
			Geometry struct {
				Location latLng `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := s.get(ctx, "/maps/api/place/nearbysearch/json", q, &resp); err != nil {
		return nil, err
	}

	out := make([]nearbyResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, nearbyResult{
			Name:     r.Name,
			Rating:   r.Rating,
			Vicinity: r.Vicinity,
			PlaceID:  r.PlaceID,
			Location: r.Geometry.Location,
		})
	}
	return out, nil
}

type placeDetails struct {
	Address string
	Phone   string
	OpenNow *bool
}

func (d placeDetails) OpenLabel() string {
	switch {
	case d.OpenNow == nil:
		return "hours unknown"
	case *d.OpenNow:
		return "open now"
	default:
		return "closed"
	}
}

func (s *Service) placeDetails(ctx context.Context, placeID string) (*placeDetails, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "name,formatted_address,rating,opening_hours,formatted_phone_number")
	q.Set("key", s.apiKey)

	var resp struct {
		Result struct {
			FormattedAddress     string `json:"formatted_address"`
			FormattedPhoneNumber string `json:"formatted_phone_number"`
			OpeningHours         *struct {
				OpenNow bool `json:"open_now"`
			} `json:"opening_hours"`
		} `json:"result"`
	}
	if err := s.get(ctx, "/maps/api/place/details/json", q, &resp); err != nil {
		return nil, err
	}

	d := &placeDetails{
		Address: resp.Result.FormattedAddress,
		Phone:   resp.Result.FormattedPhoneNumber,
	}
	if d.Address == "" {
		d.Address = "unavailable"
	}
	if d.Phone == "" {
		d.Phone = "unavailable"
	}
	if resp.Result.OpeningHours != nil {
		d.OpenNow = &resp.Result.OpeningHours.OpenNow
	}
	return d, nil
}

func (s *Service) distance(ctx context.Context, origin, dest latLng) (string, string, error) {
	q := url.Values{}
	q.Set("origins", origin.String())
	q.Set("destinations", dest.String())
	q.Set("mode", "driving")
	q.Set("key", s.apiKey)

	var resp struct {
		Rows []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance struct {
					Text string `json:"text"`
				} `json:"distance"`
				Duration struct {
					Text string `json:"text"`
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := s.get(ctx, "/maps/api/distancematrix/json", q, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return "", "", fmt.Errorf("distance matrix: empty response")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return "", "", fmt.Errorf("distance matrix status %s", el.Status)
	}
	return el.Distance.Text, el.Duration.Text, nil
}

func (s *Service) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create maps request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch maps %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("maps %s status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode maps %s: %w", path, err)
	}
	return nil
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, " "))
}
