// Package geocoding adapts upstream geocoding services to the addressor
// Geocoder contract and layers caching and instrumentation on top.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"addressor_backend/internal/addressor"
	"addressor_backend/platform/config"
	"addressor_backend/platform/logger"
)

// Provider is a named upstream reverse geocoder.
type Provider interface {
	addressor.Geocoder
	Name() string
}

// Searcher resolves free text to autocomplete candidates.
type Searcher interface {
	Search(ctx context.Context, query string) ([]addressor.Place, error)
}

// StackConfig combines the config interfaces the geocoding stack reads.
type StackConfig interface {
	config.GeocoderConfig
	config.CacheConfig
}

// Metrics receives upstream and cache observations.
type Metrics interface {
	Recorder
	CacheRecorder
}

// Stack is the assembled geocoding layer of the service.
type Stack struct {
	// Geocoder serves reverse lookups for resolvers.
	Geocoder Provider
	// Searcher serves free-text lookups for autocomplete.
	Searcher Searcher

	closers []func() error
}

// Close releases the cache connection, if any.
func (s *Stack) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds the configured provider, wraps it with metrics and,
// when a Redis URL and TTL are set, with the shared cache. An unreachable
// Redis disables caching instead of failing startup. metrics may be nil.
func NewFromConfig(ctx context.Context, cfg StackConfig, metrics Metrics, log *logger.Logger) (*Stack, error) {
	if log == nil {
		log = logger.Discard()
	}
	client := &http.Client{Timeout: cfg.GetGeocoderTimeout()}
	nominatim := NewNominatim(nominatimOptions(cfg, client), log)

	var provider Provider
	switch cfg.GetGeocoderProvider() {
	case "google":
		provider = NewGoogle(GoogleOptions{
			BaseURL:  cfg.GetGoogleGeocodeURL(),
			APIKey:   cfg.GetGoogleMapsAPIKey(),
			Language: cfg.GetGeocoderLanguage(),
			Client:   client,
		}, log)
	case "nominatim":
		provider = nominatim
	default:
		return nil, fmt.Errorf("unknown geocoder provider %q", cfg.GetGeocoderProvider())
	}

	stack := &Stack{Searcher: nominatim}

	var recorder Recorder
	var cacheRecorder CacheRecorder
	if metrics != nil {
		recorder = metrics
		cacheRecorder = metrics
	}
	provider = NewInstrumented(provider, recorder)

	if cfg.IsGeocodeCacheEnabled() {
		redisClient, err := NewRedisClient(ctx, cfg.GetRedisURL())
		if err != nil {
			log.Warn("geocode cache disabled", "error", err)
		} else {
			provider = NewCached(provider, redisClient, cfg.GetGeocodeCacheTTL(), cacheRecorder, log)
			stack.closers = append(stack.closers, redisClient.Close)
			log.Info("geocode cache enabled", "ttl", cfg.GetGeocodeCacheTTL().String())
		}
	}

	stack.Geocoder = provider
	log.Info("geocoder ready", "provider", provider.Name())
	return stack, nil
}

func nominatimOptions(cfg config.GeocoderConfig, client *http.Client) NominatimOptions {
	return NominatimOptions{
		BaseURL:        cfg.GetNominatimURL(),
		UserAgent:      cfg.GetGeocoderUserAgent(),
		Language:       cfg.GetGeocoderLanguage(),
		CountryCodes:   cfg.GetGeocoderCountryCodes(),
		RequestsPerSec: cfg.GetGeocoderRPS(),
		Client:         client,
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
