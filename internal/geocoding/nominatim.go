package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/platform/logger"

	"golang.org/x/time/rate"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimOptions configures the OSM Nominatim client.
type NominatimOptions struct {
	BaseURL        string
	UserAgent      string
	Language       string
	CountryCodes   string
	RequestsPerSec float64
	SearchLimit    int
	Client         *http.Client
}

// Nominatim talks to an OSM Nominatim instance. Requests are throttled to
// respect the public instance's usage policy.
type Nominatim struct {
	baseURL      string
	userAgent    string
	language     string
	countryCodes string
	searchLimit  int
	client       *http.Client
	limiter      *rate.Limiter
	log          *logger.Logger
}

func NewNominatim(opts NominatimOptions, log *logger.Logger) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultNominatimURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Addressor/1.0"
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 1
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Nominatim{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		userAgent:    opts.UserAgent,
		language:     opts.Language,
		countryCodes: opts.CountryCodes,
		searchLimit:  opts.SearchLimit,
		client:       opts.Client,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		log:          log,
	}
}

func (n *Nominatim) Name() string {
	return "nominatim"
}

// ReverseGeocode returns at most one result; Nominatim answers "Unable to
// geocode" with a 200 and an error body, which is reported as no results.
func (n *Nominatim) ReverseGeocode(ctx context.Context, c addressor.Coordinate) ([]addressor.GeocodeResult, error) {
	params := url.Values{}
	params.Add("lat", formatCoord(c.Lat))
	params.Add("lon", formatCoord(c.Lng))
	params.Add("format", "jsonv2")
	params.Add("addressdetails", "1")

	start := time.Now()
	var raw nominatimPlace
	if err := n.get(ctx, "/reverse", params, &raw); err != nil {
		n.log.GeocodeRequest(n.Name(), "reverse", 0, time.Since(start), err)
		return nil, err
	}
	if raw.Error != "" {
		n.log.GeocodeRequest(n.Name(), "reverse", 0, time.Since(start), nil)
		return []addressor.GeocodeResult{}, nil
	}

	place, ok := buildPlace(raw)
	if !ok {
		n.log.Warn("nominatim returned unparsable coordinates", "lat", raw.Lat, "lon", raw.Lon)
		return []addressor.GeocodeResult{}, nil
	}
	n.log.GeocodeRequest(n.Name(), "reverse", 1, time.Since(start), nil)
	return []addressor.GeocodeResult{place.Result()}, nil
}

// Search resolves free text to autocomplete candidates.
func (n *Nominatim) Search(ctx context.Context, query string) ([]addressor.Place, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("format", "json")
	params.Add("addressdetails", "1")
	params.Add("limit", strconv.Itoa(n.searchLimit))
	if n.countryCodes != "" {
		params.Add("countrycodes", n.countryCodes)
	}

	start := time.Now()
	var rawResults []nominatimPlace
	if err := n.get(ctx, "/search", params, &rawResults); err != nil {
		n.log.GeocodeRequest(n.Name(), "search", 0, time.Since(start), err)
		return nil, err
	}

	places := make([]addressor.Place, 0, len(rawResults))
	for _, raw := range rawResults {
		place, ok := buildPlace(raw)
		if !ok {
			continue
		}
		places = append(places, place)
	}
	n.log.GeocodeRequest(n.Name(), "search", len(places), time.Since(start), nil)
	return places, nil
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if n.language != "" {
		params.Add("accept-language", n.language)
	}

	reqURL := fmt.Sprintf("%s%s?%s", n.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("nominatim request failed", "error", err)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		n.log.Error("nominatim upstream error", "status", resp.StatusCode)
		return fmt.Errorf("upstream api error: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		n.log.Error("failed to decode nominatim payload", "error", err)
		return err
	}
	return nil
}

func buildPlace(raw nominatimPlace) (addressor.Place, bool) {
	lat, err := strconv.ParseFloat(raw.Lat, 64)
	if err != nil {
		return addressor.Place{}, false
	}
	lon, err := strconv.ParseFloat(raw.Lon, 64)
	if err != nil {
		return addressor.Place{}, false
	}

	return addressor.Place{
		FormattedAddress: raw.DisplayName,
		Components:       buildComponents(raw.Address),
		Geometry: &addressor.Geometry{
			Location: addressor.Coordinate{Lat: lat, Lng: lon},
			Viewport: parseBoundingBox(raw.BoundingBox),
		},
	}, true
}

// buildComponents renames OSM address keys to Google-style component types
// so a single field mapping serves both providers.
func buildComponents(address nominatimAddress) []addressor.AddressComponent {
	components := make([]addressor.AddressComponent, 0, 10)
	add := func(componentType, long, short string) {
		if long == "" {
			return
		}
		if short == "" {
			short = long
		}
		components = append(components, addressor.AddressComponent{Type: componentType, ShortName: short, LongName: long})
	}

	add("street_number", address.HouseNumber, "")
	add("premise", address.HouseName, "")
	add("route", address.Road, "")
	add("neighborhood", firstNonEmpty(address.Neighbourhood, address.Quarter), "")
	add("sublocality_level_1", firstNonEmpty(address.Suburb, address.CityDistrict), "")
	add("locality", pickCity(address), "")
	add("administrative_area_level_1", address.State, "")
	add("country", address.Country, strings.ToUpper(address.CountryCode))
	add("postal_code", address.Postcode, "")

	return components
}

func pickCity(address nominatimAddress) string {
	return firstNonEmpty(address.City, address.Town, address.Village, address.Municipality, address.Hamlet)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseBoundingBox reads Nominatim's [minLat, maxLat, minLon, maxLon].
func parseBoundingBox(box []string) *addressor.Bounds {
	if len(box) != 4 {
		return nil
	}
	values := make([]float64, 4)
	for i, raw := range box {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		values[i] = v
	}
	return &addressor.Bounds{
		SouthWest: addressor.Coordinate{Lat: values[0], Lng: values[2]},
		NorthEast: addressor.Coordinate{Lat: values[1], Lng: values[3]},
	}
}
