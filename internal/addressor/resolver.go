package addressor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"addressor_backend/platform/logger"
)

// MarkerState is the last marker placement the resolver asked for.
type MarkerState struct {
	Position  Coordinate `json:"position"`
	Draggable bool       `json:"draggable"`
	Visible   bool       `json:"visible"`
	Icon      MarkerIcon `json:"icon"`
}

// InfoState is the info display attached to the marker.
type InfoState struct {
	Content string `json:"content"`
	Open    bool   `json:"open"`
}

// State is a consistent snapshot of a Resolver.
type State struct {
	Marker     MarkerState    `json:"marker"`
	Info       InfoState      `json:"info"`
	ClearArmed bool           `json:"clearArmed"`
	Result     *GeocodeResult `json:"result,omitempty"`
	// Revision counts form rewrites, including clears.
	Revision uint64 `json:"revision"`
}

// Resolver reconciles the marker, the info display and the address form.
// Its methods may be called from several goroutines; state changes are
// serialized and geocoding runs outside the lock.
type Resolver struct {
	opts     Options
	view     MapView
	geocoder Geocoder
	notifier Notifier
	log      *logger.Logger

	search    Field
	formatted Field
	fields    map[string]Field

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	armed    bool
	marker   MarkerState
	info     InfoState
	current  *GeocodeResult
	revision uint64
}

// New builds a resolver. The field mapping must not target the formatted or
// the search field, and every field the options write to must exist in form,
// otherwise ErrMissingFormField is returned.
func New(opts Options, view MapView, geocoder Geocoder, form FormStore, notifier Notifier, log *logger.Logger) (*Resolver, error) {
	if view == nil || geocoder == nil || form == nil {
		return nil, errors.New("addressor: view, geocoder and form are required")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	if log == nil {
		log = logger.Discard()
	}
	opts = opts.WithDefaults()

	r := &Resolver{
		opts:     opts,
		view:     view,
		geocoder: geocoder,
		notifier: notifier,
		log:      log,
		fields:   make(map[string]Field),
		marker: MarkerState{
			Position: *opts.DefaultCenter,
			Icon:     *opts.MarkerIcon,
		},
	}

	if err := opts.FieldMapping.Validate(nil, opts.SearchField); err != nil {
		return nil, ErrInvalidFieldMapping.WithCause(err)
	}

	var ok bool
	if r.search, ok = form.Field(opts.SearchField); !ok {
		return nil, ErrMissingFormField.WithDetails(opts.SearchField).WithOp(opts.SearchField)
	}
	if r.formatted, ok = form.Field(FormattedField); !ok {
		return nil, ErrMissingFormField.WithDetails(FormattedField).WithOp(FormattedField)
	}
	for _, name := range opts.FieldMapping.Fields() {
		field, ok := form.Field(name)
		if !ok {
			return nil, ErrMissingFormField.WithDetails(name).WithOp(name)
		}
		r.fields[name] = field
	}

	return r, nil
}

// Options returns the effective configuration.
func (r *Resolver) Options() Options {
	return r.opts.WithDefaults()
}

// Init centers the map on the default coordinate and parks the hidden marker there.
func (r *Resolver) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.view.Center(*r.opts.DefaultCenter)
	r.view.SetZoom(r.opts.DefaultZoom)
	r.setMarker(*r.opts.DefaultCenter, false, false)
	r.closeInfo()
}

// HandleGeolocation reacts to a successful position fix.
func (r *Resolver) HandleGeolocation(ctx context.Context, pos Coordinate) error {
	r.mu.Lock()
	seq, gctx := r.begin(ctx)
	r.view.Center(pos)
	r.view.SetZoom(r.opts.DefaultZoom)
	r.setMarker(pos, true, true)
	r.mu.Unlock()

	results, err := r.geocoder.ReverseGeocode(gctx, pos)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finish(seq) {
		r.log.Debug("discarding stale geolocation geocode", "seq", seq)
		return ErrSuperseded
	}
	if err := r.checkResults(ctx, results, err); err != nil {
		return err
	}

	r.openInfo(r.opts.SuccessPrefix + results[0].FormattedAddress)
	r.apply(results[0])
	return nil
}

// HandleGeolocationFailure reacts to a missing position fix. Only an
// unsupported environment is surfaced to the user, and it supersedes any
// geocode still in flight. A denied or timed out request is logged and
// otherwise ignored.
func (r *Resolver) HandleGeolocationFailure(f GeolocationFailure) error {
	if !f.Unsupported {
		r.log.Warn("geolocation failed", "reason", f.Reason)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seq, _ := r.begin(context.Background())
	defer r.finish(seq)

	r.notifier.Notify(ErrUnsupportedGeolocation.Message)
	r.view.Center(*r.opts.FallbackCenter)
	r.view.SetZoom(r.opts.DefaultZoom)
	return ErrUnsupportedGeolocation
}

// HandlePlaceChanged reacts to an autocomplete selection. The form is only
// rewritten when the place carries a component list (an empty list still
// resets the form).
func (r *Resolver) HandlePlaceChanged(ctx context.Context, p Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeInfo()

	if p.Geometry == nil {
		r.notifier.Notify(ErrIncompletePlace.Message)
		return ErrIncompletePlace
	}

	seq, _ := r.begin(ctx)
	defer r.finish(seq)

	loc := p.Geometry.Location
	if p.Geometry.Viewport != nil {
		r.view.FitBounds(*p.Geometry.Viewport)
	} else {
		r.view.Center(loc)
	}
	r.setMarker(loc, true, true)
	r.openInfo(p.FormattedAddress)
	r.armed = true

	if p.Components != nil {
		r.apply(p.Result())
	}
	return nil
}

// HandleMarkerDragStart closes the info display.
func (r *Resolver) HandleMarkerDragStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeInfo()
}

// HandleMarkerDragEnd reverse geocodes the marker's new position. The map
// pans to the marker whatever the geocoder answers. Like HandleGeolocation it
// returns ErrSuperseded when a newer event arrived while geocoding.
func (r *Resolver) HandleMarkerDragEnd(ctx context.Context, pos Coordinate) error {
	r.mu.Lock()
	seq, gctx := r.begin(ctx)
	r.setMarker(pos, r.marker.Draggable, r.marker.Visible)
	r.view.Pan(pos)
	r.mu.Unlock()

	results, err := r.geocoder.ReverseGeocode(gctx, pos)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finish(seq) {
		r.log.Debug("discarding stale drag geocode", "seq", seq)
		return ErrSuperseded
	}
	if err := r.checkResults(ctx, results, err); err != nil {
		return err
	}

	r.openInfo(results[0].FormattedAddress)
	r.apply(results[0])
	return nil
}

// HandleSearchInteraction fires the clear trigger armed by the last place
// selection. It reports whether the form was cleared.
func (r *Resolver) HandleSearchInteraction() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.armed {
		return false
	}
	r.armed = false
	r.reset()
	r.current = nil
	r.revision++
	return true
}

// Apply writes result onto the form after a full reset.
func (r *Resolver) Apply(result GeocodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(result)
}

// Reset clears the search field, the formatted field and every mapped field.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	r.current = nil
	r.revision++
}

// Snapshot returns the current state.
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Inspect calls fn with the current state while holding the resolver's lock.
// The view, notifier and form are only written under that lock, so fn sees
// them consistent with the state. fn must not call back into the resolver.
func (r *Resolver) Inspect(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.snapshot())
}

func (r *Resolver) snapshot() State {
	s := State{
		Marker:     r.marker,
		Info:       r.info,
		ClearArmed: r.armed,
		Revision:   r.revision,
	}
	if r.current != nil {
		cp := *r.current
		cp.Components = append([]AddressComponent(nil), r.current.Components...)
		s.Result = &cp
	}
	return s
}

// Close cancels any geocode request still in flight.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// begin starts a new address event: it supersedes any in-flight request and
// disarms the clear trigger. Callers hold r.mu.
func (r *Resolver) begin(ctx context.Context) (uint64, context.Context) {
	if r.cancel != nil {
		r.cancel()
	}
	r.seq++
	gctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.armed = false
	return r.seq, gctx
}

// finish reports whether seq is still the latest request and releases its
// context. Callers hold r.mu.
func (r *Resolver) finish(seq uint64) bool {
	if seq != r.seq {
		return false
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

func (r *Resolver) checkResults(ctx context.Context, results []GeocodeResult, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || len(results) == 0 {
		if err != nil {
			r.log.Warn("reverse geocode failed", "error", err)
		}
		r.notifier.Notify(ErrNoGeocodeResult.Message)
		if err != nil {
			return ErrNoGeocodeResult.WithCause(fmt.Errorf("reverse geocode: %w", err))
		}
		return ErrNoGeocodeResult
	}
	return nil
}

func (r *Resolver) setMarker(pos Coordinate, draggable, visible bool) {
	r.view.SetMarker(pos, draggable, visible)
	r.marker.Position = pos
	r.marker.Draggable = draggable
	r.marker.Visible = visible
}

func (r *Resolver) openInfo(content string) {
	r.view.OpenInfo(content)
	r.info = InfoState{Content: content, Open: true}
}

func (r *Resolver) closeInfo() {
	r.view.CloseInfo()
	r.info.Open = false
}

func (r *Resolver) reset() {
	r.search.Clear()
	r.formatted.Clear()
	for _, field := range r.fields {
		field.Clear()
	}
}

func (r *Resolver) apply(result GeocodeResult) {
	r.reset()
	r.formatted.Set(result.FormattedAddress)

	for _, component := range result.Components {
		rule, ok := r.opts.FieldMapping.Lookup(component.Type)
		if !ok {
			continue
		}
		value := component.LongName
		if rule.Short {
			value = component.ShortName
		}
		r.fields[rule.Field].Set(value)
	}

	cp := result
	cp.Components = append([]AddressComponent(nil), result.Components...)
	r.current = &cp
	r.revision++
}
