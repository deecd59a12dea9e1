package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/platform/logger"
)

const defaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleOptions configures the Google Geocoding API client.
type GoogleOptions struct {
	BaseURL  string
	APIKey   string
	Language string
	Client   *http.Client
}

// Google reverse geocodes through the Google Geocoding API.
type Google struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
	log      *logger.Logger
}

func NewGoogle(opts GoogleOptions, log *logger.Logger) *Google {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGoogleURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Google{
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		language: opts.Language,
		client:   opts.Client,
		log:      log,
	}
}

func (g *Google) Name() string {
	return "google"
}

func (g *Google) ReverseGeocode(ctx context.Context, c addressor.Coordinate) ([]addressor.GeocodeResult, error) {
	params := url.Values{}
	params.Add("latlng", formatCoord(c.Lat)+","+formatCoord(c.Lng))
	params.Add("key", g.apiKey)
	if g.language != "" {
		params.Add("language", g.language)
	}

	reqURL := fmt.Sprintf("%s?%s", g.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.GeocodeRequest(g.Name(), "reverse", 0, time.Since(start), err)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("upstream api error: %d", resp.StatusCode)
		g.log.GeocodeRequest(g.Name(), "reverse", 0, time.Since(start), err)
		return nil, err
	}

	var payload googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		g.log.Error("failed to decode google geocode payload", "error", err)
		return nil, err
	}

	switch payload.Status {
	case googleStatusOK:
	case googleStatusZeroResults:
		g.log.GeocodeRequest(g.Name(), "reverse", 0, time.Since(start), nil)
		return []addressor.GeocodeResult{}, nil
	default:
		err := fmt.Errorf("google geocode status %s: %s", payload.Status, payload.ErrorMessage)
		g.log.GeocodeRequest(g.Name(), "reverse", 0, time.Since(start), err)
		return nil, err
	}

	results := make([]addressor.GeocodeResult, 0, len(payload.Results))
	for _, raw := range payload.Results {
		results = append(results, convertGoogleResult(raw))
	}
	g.log.GeocodeRequest(g.Name(), "reverse", len(results), time.Since(start), nil)
	return results, nil
}

func convertGoogleResult(raw googleResult) addressor.GeocodeResult {
	result := addressor.GeocodeResult{
		FormattedAddress: raw.FormattedAddress,
		Location:         addressor.Coordinate{Lat: raw.Geometry.Location.Lat, Lng: raw.Geometry.Location.Lng},
		Components:       make([]addressor.AddressComponent, 0, len(raw.AddressComponents)),
	}
	if vp := raw.Geometry.Viewport; vp != nil {
		result.Viewport = &addressor.Bounds{
			SouthWest: addressor.Coordinate{Lat: vp.Southwest.Lat, Lng: vp.Southwest.Lng},
			NorthEast: addressor.Coordinate{Lat: vp.Northeast.Lat, Lng: vp.Northeast.Lng},
		}
	}
	for _, comp := range raw.AddressComponents {
		// only the primary type takes part in field mapping
		if len(comp.Types) == 0 {
			continue
		}
		result.Components = append(result.Components, addressor.AddressComponent{
			Type:      comp.Types[0],
			ShortName: comp.ShortName,
			LongName:  comp.LongName,
		})
	}
	return result
}
