package addressor

import (
	"errors"

	"addressor_backend/platform/apperr"
)

// User-facing failures. Each message is what the notifier displays.
var (
	ErrNoGeocodeResult        = apperr.NotFound("No geocode data.")
	ErrIncompletePlace        = apperr.Validation("This place contains no geometry.")
	ErrUnsupportedGeolocation = apperr.Conflict("Your browser doesn't support geolocation.")
)

// ErrMissingFormField is returned by New when the form lacks a field the
// resolver writes to.
var ErrMissingFormField = apperr.BadRequest("form field missing")

// ErrInvalidFieldMapping is returned by New when a mapping rule targets the
// formatted field or the search field.
var ErrInvalidFieldMapping = apperr.BadRequest("invalid field mapping")

// ErrSuperseded is returned by the geocoding handlers when a newer address
// event arrived while the geocoder was answering. The late answer was
// discarded and nothing was changed or shown.
var ErrSuperseded = errors.New("addressor: request superseded by a newer event")
