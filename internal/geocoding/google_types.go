package geocoding

// googleResponse mirrors the Geocoding API JSON payload.
type googleResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type googleResult struct {
	AddressComponents []googleComponent `json:"address_components"`
	FormattedAddress  string            `json:"formatted_address"`
	Geometry          googleGeometry    `json:"geometry"`
	PlaceID           string            `json:"place_id"`
	Types             []string          `json:"types"`
}

type googleComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type googleGeometry struct {
	Location     googleLatLng  `json:"location"`
	LocationType string        `json:"location_type"`
	Viewport     *googleBounds `json:"viewport,omitempty"`
}

type googleBounds struct {
	Northeast googleLatLng `json:"northeast"`
	Southwest googleLatLng `json:"southwest"`
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const (
	googleStatusOK          = "OK"
	googleStatusZeroResults = "ZERO_RESULTS"
)
