// Package transport holds the request and response shapes of the address
// session API.
package transport

import (
	"addressor_backend/internal/addressor"
	"addressor_backend/internal/sessions/service"
	"addressor_backend/platform/sanitize"
)

// CoordinateRequest is a WGS84 position sent by the browser.
type CoordinateRequest struct {
	Lat *float64 `json:"lat" validate:"required,lat"`
	Lng *float64 `json:"lng" validate:"required,lng"`
}

// Coordinate converts the validated request.
func (r CoordinateRequest) Coordinate() addressor.Coordinate {
	return addressor.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
}

// GeolocationFailureRequest reports why the browser produced no fix.
type GeolocationFailureRequest struct {
	Unsupported bool   `json:"unsupported"`
	Reason      string `json:"reason" validate:"max=200"`
}

// BoundsRequest is a viewport rectangle.
type BoundsRequest struct {
	SouthWest CoordinateRequest `json:"southWest" validate:"required"`
	NorthEast CoordinateRequest `json:"northEast" validate:"required"`
}

// GeometryRequest locates a selected place.
type GeometryRequest struct {
	Location CoordinateRequest `json:"location" validate:"required"`
	Viewport *BoundsRequest    `json:"viewport" validate:"omitempty"`
}

// AddressComponentRequest is one component of a selected place.
type AddressComponentRequest struct {
	Type      string `json:"type" validate:"required,max=64"`
	ShortName string `json:"shortName" validate:"max=200"`
	LongName  string `json:"longName" validate:"max=200"`
}

// PlaceRequest is an autocomplete selection. A missing geometry is valid
// input and is answered with an incomplete place error.
type PlaceRequest struct {
	FormattedAddress string                    `json:"formattedAddress" validate:"max=500"`
	Components       []AddressComponentRequest `json:"components" validate:"omitempty,max=50,dive"`
	Geometry         *GeometryRequest          `json:"geometry" validate:"omitempty"`
}

// Place converts the validated request. Text is stripped of markup since it
// ends up in the info display. A nil component list stays nil so the form is
// only rewritten when the client sent components.
func (r PlaceRequest) Place() addressor.Place {
	place := addressor.Place{FormattedAddress: sanitize.Text(r.FormattedAddress)}
	if r.Components != nil {
		place.Components = make([]addressor.AddressComponent, 0, len(r.Components))
		for _, c := range r.Components {
			place.Components = append(place.Components, addressor.AddressComponent{
				Type:      c.Type,
				ShortName: sanitize.Text(c.ShortName),
				LongName:  sanitize.Text(c.LongName),
			})
		}
	}
	if r.Geometry != nil {
		place.Geometry = &addressor.Geometry{Location: r.Geometry.Location.Coordinate()}
		if vp := r.Geometry.Viewport; vp != nil {
			place.Geometry.Viewport = &addressor.Bounds{
				SouthWest: vp.SouthWest.Coordinate(),
				NorthEast: vp.NorthEast.Coordinate(),
			}
		}
	}
	return place
}

// SearchInteractionResponse reports whether the deferred clear fired.
type SearchInteractionResponse struct {
	Cleared bool          `json:"cleared"`
	State   service.State `json:"state"`
}

// Failure converts the validated request.
func (r GeolocationFailureRequest) Failure() addressor.GeolocationFailure {
	return addressor.GeolocationFailure{Unsupported: r.Unsupported, Reason: sanitize.Text(r.Reason)}
}
