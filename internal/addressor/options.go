package addressor

import "addressor_backend/platform/config"

// Defaults applied to unset Options fields.
var (
	DefaultCenter  = Coordinate{Lat: 50.074805, Lng: 14.445703}
	FallbackCenter = Coordinate{Lat: 52.828079, Lng: 156.281629}
)

const (
	DefaultZoom          = 17
	DefaultSearchField   = "search"
	DefaultSuccessPrefix = "<strong>Gotcha!</strong><br>"
	defaultAnchorOffset  = 24
)

// MarkerIcon styles the draggable address marker.
type MarkerIcon struct {
	URL     string `json:"url,omitempty"`
	AnchorX int    `json:"anchorX"`
	AnchorY int    `json:"anchorY"`
}

// Options configures a Resolver. Nil and zero fields take the package
// defaults; the centers and the icon are pointers so that (0,0) can be set.
type Options struct {
	DefaultCenter  *Coordinate
	FallbackCenter *Coordinate
	DefaultZoom    int
	MarkerIcon     *MarkerIcon
	FieldMapping   FieldMapping
	SearchField    string
	SuccessPrefix  string
}

// WithDefaults returns a copy of o with every unset field filled in.
// The field mapping is always copied.
func (o Options) WithDefaults() Options {
	o.DefaultCenter = coordinateOr(o.DefaultCenter, DefaultCenter)
	o.FallbackCenter = coordinateOr(o.FallbackCenter, FallbackCenter)
	if o.DefaultZoom <= 0 {
		o.DefaultZoom = DefaultZoom
	}
	icon := MarkerIcon{AnchorX: defaultAnchorOffset, AnchorY: defaultAnchorOffset}
	if o.MarkerIcon != nil {
		icon = *o.MarkerIcon
	}
	o.MarkerIcon = &icon
	if len(o.FieldMapping) == 0 {
		o.FieldMapping = DefaultFieldMapping()
	} else {
		o.FieldMapping = o.FieldMapping.Clone()
	}
	if o.SearchField == "" {
		o.SearchField = DefaultSearchField
	}
	if o.SuccessPrefix == "" {
		o.SuccessPrefix = DefaultSuccessPrefix
	}
	return o
}

func coordinateOr(c *Coordinate, fallback Coordinate) *Coordinate {
	if c != nil {
		fallback = *c
	}
	return &fallback
}

// FormFields lists every field a form must provide for these options:
// the search field, the formatted field and each mapped field.
func (o Options) FormFields() []string {
	o = o.WithDefaults()
	fields := []string{o.SearchField, FormattedField}
	return append(fields, o.FieldMapping.Fields()...)
}

// OptionsFromConfig builds resolver options from configuration, loading the
// field mapping override file when one is configured.
func OptionsFromConfig(cfg config.ResolverConfig, val StructValidator) (Options, error) {
	centerLat, centerLng := cfg.GetMapDefaultCenter()
	fallbackLat, fallbackLng := cfg.GetMapFallbackCenter()
	anchorX, anchorY := cfg.GetMarkerAnchor()

	opts := Options{
		DefaultCenter:  &Coordinate{Lat: centerLat, Lng: centerLng},
		FallbackCenter: &Coordinate{Lat: fallbackLat, Lng: fallbackLng},
		DefaultZoom:    cfg.GetMapDefaultZoom(),
		MarkerIcon:     &MarkerIcon{URL: cfg.GetMarkerIconURL(), AnchorX: anchorX, AnchorY: anchorY},
		SearchField:    cfg.GetSearchField(),
	}

	if path := cfg.GetFieldMappingFile(); path != "" {
		searchField := opts.SearchField
		if searchField == "" {
			searchField = DefaultSearchField
		}
		mapping, err := LoadFieldMapping(path, val, searchField)
		if err != nil {
			return Options{}, err
		}
		opts.FieldMapping = mapping
	}
	return opts.WithDefaults(), nil
}
