// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// GeocoderConfig provides settings for the upstream geocoding provider.
type GeocoderConfig interface {
	GetGeocoderProvider() string
	GetGoogleMapsAPIKey() string
	GetGoogleGeocodeURL() string
	GetNominatimURL() string
	GetGeocoderUserAgent() string
	GetGeocoderLanguage() string
	GetGeocoderCountryCodes() string
	GetGeocoderRPS() float64
	GetGeocoderTimeout() time.Duration
}

// CacheConfig provides settings for the Redis geocode cache.
type CacheConfig interface {
	GetRedisURL() string
	GetGeocodeCacheTTL() time.Duration
	IsGeocodeCacheEnabled() bool
}

// ResolverConfig provides the map and form defaults of the address resolver.
type ResolverConfig interface {
	GetMapDefaultCenter() (lat, lng float64)
	GetMapFallbackCenter() (lat, lng float64)
	GetMapDefaultZoom() int
	GetMarkerIconURL() string
	GetMarkerAnchor() (x, y int)
	GetFieldMappingFile() string
	GetSearchField() string
}

// SessionConfig provides settings for resolver session lifetime.
type SessionConfig interface {
	GetSessionTTL() time.Duration
	GetSessionSweepInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	RateLimitRPS         float64
	RateLimitBurst       int
	GeocoderProvider     string
	GoogleMapsAPIKey     string
	GoogleGeocodeURL     string
	NominatimURL         string
	GeocoderUserAgent    string
	GeocoderLanguage     string
	GeocoderCountryCodes string
	GeocoderRPS          float64
	GeocoderTimeout      time.Duration
	RedisURL             string
	GeocodeCacheTTL      time.Duration
	MapDefaultLat        float64
	MapDefaultLng        float64
	MapFallbackLat       float64
	MapFallbackLng       float64
	MapDefaultZoom       int
	MarkerIconURL        string
	MarkerAnchorX        int
	MarkerAnchorY        int
	FieldMappingFile     string
	SearchField          string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }
func (c *Config) GetRateLimitRPS() float64 { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int   { return c.RateLimitBurst }

// GeocoderConfig implementation
func (c *Config) GetGeocoderProvider() string       { return c.GeocoderProvider }
func (c *Config) GetGoogleMapsAPIKey() string       { return c.GoogleMapsAPIKey }
func (c *Config) GetGoogleGeocodeURL() string       { return c.GoogleGeocodeURL }
func (c *Config) GetNominatimURL() string           { return c.NominatimURL }
func (c *Config) GetGeocoderUserAgent() string      { return c.GeocoderUserAgent }
func (c *Config) GetGeocoderLanguage() string       { return c.GeocoderLanguage }
func (c *Config) GetGeocoderCountryCodes() string   { return c.GeocoderCountryCodes }
func (c *Config) GetGeocoderRPS() float64           { return c.GeocoderRPS }
func (c *Config) GetGeocoderTimeout() time.Duration { return c.GeocoderTimeout }

// CacheConfig implementation
func (c *Config) GetRedisURL() string               { return c.RedisURL }
func (c *Config) GetGeocodeCacheTTL() time.Duration { return c.GeocodeCacheTTL }
func (c *Config) IsGeocodeCacheEnabled() bool {
	return c.RedisURL != "" && c.GeocodeCacheTTL > 0
}

// ResolverConfig implementation
func (c *Config) GetMapDefaultCenter() (float64, float64)  { return c.MapDefaultLat, c.MapDefaultLng }
func (c *Config) GetMapFallbackCenter() (float64, float64) { return c.MapFallbackLat, c.MapFallbackLng }
func (c *Config) GetMapDefaultZoom() int                   { return c.MapDefaultZoom }
func (c *Config) GetMarkerIconURL() string                 { return c.MarkerIconURL }
func (c *Config) GetMarkerAnchor() (int, int)              { return c.MarkerAnchorX, c.MarkerAnchorY }
func (c *Config) GetFieldMappingFile() string              { return c.FieldMappingFile }
func (c *Config) GetSearchField() string                   { return c.SearchField }

// SessionConfig implementation
func (c *Config) GetSessionTTL() time.Duration           { return c.SessionTTL }
func (c *Config) GetSessionSweepInterval() time.Duration { return c.SessionSweepInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RateLimitRPS:         mustFloat(getEnv("RATE_LIMIT_RPS", "10")),
		RateLimitBurst:       mustInt(getEnv("RATE_LIMIT_BURST", "20")),
		GeocoderProvider:     strings.ToLower(getEnv("GEOCODER_PROVIDER", "nominatim")),
		GoogleMapsAPIKey:     getEnv("GOOGLE_MAPS_API_KEY", ""),
		GoogleGeocodeURL:     getEnv("GOOGLE_GEOCODE_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		NominatimURL:         getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent:    getEnv("GEOCODER_USER_AGENT", "Addressor/1.0"),
		GeocoderLanguage:     getEnv("GEOCODER_LANGUAGE", "cs"),
		GeocoderCountryCodes: getEnv("GEOCODER_COUNTRY_CODES", ""),
		GeocoderRPS:          mustFloat(getEnv("GEOCODER_RPS", "1")),
		GeocoderTimeout:      mustDuration(getEnv("GEOCODER_TIMEOUT", "5s")),
		RedisURL:             getEnv("REDIS_URL", ""),
		GeocodeCacheTTL:      mustDuration(getEnv("GEOCODE_CACHE_TTL", "24h")),
		MapDefaultLat:        mustFloat(getEnv("MAP_DEFAULT_LAT", "50.074805")),
		MapDefaultLng:        mustFloat(getEnv("MAP_DEFAULT_LNG", "14.445703")),
		MapFallbackLat:       mustFloat(getEnv("MAP_FALLBACK_LAT", "52.828079")),
		MapFallbackLng:       mustFloat(getEnv("MAP_FALLBACK_LNG", "156.281629")),
		MapDefaultZoom:       mustInt(getEnv("MAP_DEFAULT_ZOOM", "17")),
		MarkerIconURL:        getEnv("MARKER_ICON_URL", ""),
		MarkerAnchorX:        mustInt(getEnv("MARKER_ANCHOR_X", "24")),
		MarkerAnchorY:        mustInt(getEnv("MARKER_ANCHOR_Y", "24")),
		FieldMappingFile:     getEnv("FIELD_MAPPING_FILE", ""),
		SearchField:          getEnv("SEARCH_FIELD", "search"),
		SessionTTL:           mustDuration(getEnv("SESSION_TTL", "30m")),
		SessionSweepInterval: mustDuration(getEnv("SESSION_SWEEP_INTERVAL", "1m")),
	}

	switch cfg.GeocoderProvider {
	case "google":
		if cfg.GoogleMapsAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is required when GEOCODER_PROVIDER is google")
		}
	case "nominatim":
		if cfg.GeocoderUserAgent == "" {
			return nil, fmt.Errorf("GEOCODER_USER_AGENT is required by the nominatim usage policy")
		}
	default:
		return nil, fmt.Errorf("unknown GEOCODER_PROVIDER %q", cfg.GeocoderProvider)
	}
	if cfg.GeocoderTimeout <= 0 {
		return nil, fmt.Errorf("GEOCODER_TIMEOUT must be a positive duration")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be a positive duration")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
