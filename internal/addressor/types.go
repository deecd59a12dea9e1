// Package addressor keeps a map marker, a free-text search field and a
// structured address form pointing at the same real-world address.
//
// A Resolver reacts to geolocation fixes, autocomplete selections and marker
// drags, asks a Geocoder for the canonical address when it only has a
// coordinate, and writes the result onto the map view and the form through a
// static FieldMapping.
package addressor

import "context"

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a rectangular map region.
type Bounds struct {
	SouthWest Coordinate `json:"southWest"`
	NorthEast Coordinate `json:"northEast"`
}

// Center returns the midpoint of b.
func (b Bounds) Center() Coordinate {
	return Coordinate{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}

// AddressComponent is one semantic part of an address. Type is the
// provider's primary type for the entry.
type AddressComponent struct {
	Type      string `json:"type"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
}

// GeocodeResult is a single reverse geocoding answer.
type GeocodeResult struct {
	FormattedAddress string             `json:"formattedAddress"`
	Components       []AddressComponent `json:"components"`
	Location         Coordinate         `json:"location"`
	Viewport         *Bounds            `json:"viewport,omitempty"`
}

// Geometry locates a place selected from autocomplete.
type Geometry struct {
	Location Coordinate `json:"location"`
	Viewport *Bounds    `json:"viewport,omitempty"`
}

// Place is an autocomplete selection. Geometry is nil when the provider
// could not resolve the typed text to a location.
type Place struct {
	FormattedAddress string             `json:"formattedAddress"`
	Components       []AddressComponent `json:"components,omitempty"`
	Geometry         *Geometry          `json:"geometry,omitempty"`
}

// Result converts a place with geometry into the canonical result shape.
func (p Place) Result() GeocodeResult {
	r := GeocodeResult{
		FormattedAddress: p.FormattedAddress,
		Components:       p.Components,
	}
	if p.Geometry != nil {
		r.Location = p.Geometry.Location
		r.Viewport = p.Geometry.Viewport
	}
	return r
}

// GeolocationFailure describes why the browser produced no position fix.
type GeolocationFailure struct {
	// Unsupported is true when the environment has no geolocation capability.
	Unsupported bool
	// Reason is the browser's error description (permission denied, timeout).
	Reason string
}

// MapView is the map widget the resolver drives.
type MapView interface {
	Center(c Coordinate)
	Pan(c Coordinate)
	SetZoom(zoom int)
	FitBounds(b Bounds)
	SetMarker(c Coordinate, draggable, visible bool)
	OpenInfo(content string)
	CloseInfo()
}

// Geocoder turns a coordinate into zero or more address results, best first.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c Coordinate) ([]GeocodeResult, error)
}

// Notifier shows a blocking, alert-style message to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f.
func (f NotifierFunc) Notify(message string) { f(message) }
