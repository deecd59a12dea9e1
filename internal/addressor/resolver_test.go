package addressor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

type recordingView struct {
	mu    sync.Mutex
	calls []string

	center    Coordinate
	pan       Coordinate
	zoom      int
	fitted    *Bounds
	marker    Coordinate
	draggable bool
	visible   bool
	info      string
	infoOpen  bool
}

func (v *recordingView) record(call string) {
	v.calls = append(v.calls, call)
}

func (v *recordingView) Center(c Coordinate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("center")
	v.center = c
}

func (v *recordingView) Pan(c Coordinate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("pan")
	v.pan = c
}

func (v *recordingView) SetZoom(zoom int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("zoom")
	v.zoom = zoom
}

func (v *recordingView) FitBounds(b Bounds) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("fit")
	v.fitted = &b
}

func (v *recordingView) SetMarker(c Coordinate, draggable, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("marker")
	v.marker, v.draggable, v.visible = c, draggable, visible
}

func (v *recordingView) OpenInfo(content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("info-open")
	v.info, v.infoOpen = content, true
}

func (v *recordingView) CloseInfo() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("info-close")
	v.infoOpen = false
}

func (v *recordingView) callsSnapshot() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

type stubGeocoder struct {
	results []GeocodeResult
	err     error
	calls   int
}

func (g *stubGeocoder) ReverseGeocode(_ context.Context, _ Coordinate) ([]GeocodeResult, error) {
	g.calls++
	return g.results, g.err
}

type notices struct {
	mu       sync.Mutex
	messages []string
}

func (n *notices) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *notices) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fixture struct {
	resolver *Resolver
	view     *recordingView
	geocoder *stubGeocoder
	form     *MemoryForm
	notices  *notices
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		view:     &recordingView{},
		geocoder: &stubGeocoder{},
		form:     NewMemoryForm(opts.FormFields()...),
		notices:  &notices{},
	}
	r, err := New(opts, f.view, f.geocoder, f.form, f.notices, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	f.resolver = r
	return f
}

func pragueResult() GeocodeResult {
	return GeocodeResult{
		FormattedAddress: "Chodská 1, 120 00 Praha 2, Czechia",
		Location:         Coordinate{Lat: 50.0748, Lng: 14.4457},
		Components: []AddressComponent{
			{Type: "street_number", ShortName: "1", LongName: "1"},
			{Type: "route", ShortName: "Chodská", LongName: "Chodská"},
			{Type: "locality", ShortName: "Praha", LongName: "Praha"},
			{Type: "postal_code", ShortName: "120 00", LongName: "120 00"},
			{Type: "country", ShortName: "CZ", LongName: "Czechia"},
		},
	}
}

func brnoResult() GeocodeResult {
	return GeocodeResult{
		FormattedAddress: "Brno, Czechia",
		Location:         Coordinate{Lat: 49.1951, Lng: 16.6068},
		Components: []AddressComponent{
			{Type: "locality", ShortName: "Brno", LongName: "Brno"},
			{Type: "country", ShortName: "CZ", LongName: "Czechia"},
		},
	}
}

func TestNewRejectsFormWithoutMappedField(t *testing.T) {
	form := NewMemoryForm("search", FormattedField, "city")
	_, err := New(Options{}, &recordingView{}, &stubGeocoder{}, form, nil, nil)
	if !errors.Is(err, ErrMissingFormField) {
		t.Fatalf("expected ErrMissingFormField, got %v", err)
	}
}

func TestNewRejectsFormWithoutSearchField(t *testing.T) {
	opts := Options{FieldMapping: FieldMapping{"locality": {Field: "city"}}}
	form := NewMemoryForm(FormattedField, "city")
	_, err := New(opts, &recordingView{}, &stubGeocoder{}, form, nil, nil)
	if !errors.Is(err, ErrMissingFormField) {
		t.Fatalf("expected ErrMissingFormField, got %v", err)
	}
}

func TestResolverCopiesFieldMapping(t *testing.T) {
	mapping := FieldMapping{"locality": {Field: "city"}}
	f := newFixture(t, Options{FieldMapping: mapping})

	mapping["locality"] = FieldRule{Field: "elsewhere"}
	f.resolver.Apply(brnoResult())

	if got := f.form.Value("city"); got != "Brno" {
		t.Fatalf("expected mapping to be fixed at construction, city=%q", got)
	}
}

func TestApplyScenarioFromMappingTable(t *testing.T) {
	opts := Options{FieldMapping: FieldMapping{
		"locality": {Field: "city", Short: false},
		"country":  {Field: "country", Short: true},
	}}
	f := newFixture(t, opts)

	f.resolver.Apply(GeocodeResult{
		FormattedAddress: "Prague, CZ",
		Components: []AddressComponent{
			{Type: "locality", ShortName: "Prague", LongName: "Prague"},
			{Type: "country", ShortName: "CZ", LongName: "Czechia"},
		},
	})

	want := map[string]string{
		"search":       "",
		FormattedField: "Prague, CZ",
		"city":         "Prague",
		"country":      "CZ",
	}
	if got := f.form.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("form = %v, want %v", got, want)
	}
}

func TestApplyMapsEveryDefaultComponentType(t *testing.T) {
	for componentType, rule := range DefaultFieldMapping() {
		t.Run(componentType, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.resolver.Apply(GeocodeResult{
				FormattedAddress: "x",
				Components: []AddressComponent{
					{Type: componentType, ShortName: "short", LongName: "long"},
				},
			})

			want := "long"
			if rule.Short {
				want = "short"
			}
			if got := f.form.Value(rule.Field); got != want {
				t.Fatalf("%s -> %s = %q, want %q", componentType, rule.Field, got, want)
			}
		})
	}
}

func TestApplyIgnoresUnmappedComponent(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(GeocodeResult{
		FormattedAddress: "Somewhere",
		Components: []AddressComponent{
			{Type: "plus_code", ShortName: "9F2P+XX", LongName: "9F2P+XX"},
		},
	})

	for name, value := range f.form.Values() {
		if name == FormattedField {
			continue
		}
		if value != "" {
			t.Fatalf("unmapped component changed field %q to %q", name, value)
		}
	}
}

func TestApplyLastComponentWinsForSharedField(t *testing.T) {
	opts := Options{FieldMapping: FieldMapping{
		"locality":    {Field: "city"},
		"postal_town": {Field: "city"},
	}}
	f := newFixture(t, opts)

	f.resolver.Apply(GeocodeResult{Components: []AddressComponent{
		{Type: "locality", LongName: "First"},
		{Type: "postal_town", LongName: "Second"},
	}})

	if got := f.form.Value("city"); got != "Second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}

func TestApplyResetsFieldsMissingFromNewAddress(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	if f.form.Value("street") == "" {
		t.Fatalf("precondition: street should be populated")
	}

	f.resolver.Apply(brnoResult())

	values := f.form.Values()
	for _, name := range []string{"street", "house_nr", "postal"} {
		if values[name] != "" {
			t.Fatalf("field %q kept stale value %q", name, values[name])
		}
	}
	if values["city"] != "Brno" || values[FormattedField] != "Brno, Czechia" {
		t.Fatalf("unexpected form after second apply: %v", values)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	f.form.Type("search", "chods")

	f.resolver.Reset()
	once := f.form.Values()
	f.resolver.Reset()
	twice := f.form.Values()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("reset not idempotent: %v vs %v", once, twice)
	}
	for name, value := range twice {
		if value != "" {
			t.Fatalf("field %q not cleared: %q", name, value)
		}
	}
}

func TestInitParksHiddenMarkerOnDefaultCenter(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Init()

	if f.view.center != DefaultCenter || f.view.zoom != DefaultZoom {
		t.Fatalf("unexpected initial view center=%v zoom=%d", f.view.center, f.view.zoom)
	}
	state := f.resolver.Snapshot()
	if state.Marker.Visible || state.Marker.Draggable {
		t.Fatalf("initial marker must be hidden and fixed: %+v", state.Marker)
	}
}

func TestHandleGeolocationAppliesFirstResult(t *testing.T) {
	f := newFixture(t, Options{})
	f.geocoder.results = []GeocodeResult{pragueResult(), brnoResult()}
	pos := Coordinate{Lat: 50.07, Lng: 14.44}

	if err := f.resolver.HandleGeolocation(context.Background(), pos); err != nil {
		t.Fatalf("HandleGeolocation returned error: %v", err)
	}

	if f.view.center != pos || f.view.zoom != DefaultZoom {
		t.Fatalf("map not centered on fix: center=%v zoom=%d", f.view.center, f.view.zoom)
	}
	if f.view.marker != pos || !f.view.draggable || !f.view.visible {
		t.Fatalf("marker not moved to fix: %v draggable=%v visible=%v", f.view.marker, f.view.draggable, f.view.visible)
	}
	wantInfo := DefaultSuccessPrefix + pragueResult().FormattedAddress
	if f.view.info != wantInfo || !f.view.infoOpen {
		t.Fatalf("info = %q open=%v, want %q", f.view.info, f.view.infoOpen, wantInfo)
	}
	if got := f.form.Value("street"); got != "Chodská" {
		t.Fatalf("street = %q", got)
	}
	if got := f.form.Value("country"); got != "CZ" {
		t.Fatalf("country = %q", got)
	}
}

func TestHandleGeolocationWithoutResultsKeepsForm(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	before := f.form.Values()

	err := f.resolver.HandleGeolocation(context.Background(), Coordinate{Lat: 1, Lng: 1})
	if !errors.Is(err, ErrNoGeocodeResult) {
		t.Fatalf("expected ErrNoGeocodeResult, got %v", err)
	}
	if !reflect.DeepEqual(before, f.form.Values()) {
		t.Fatalf("form changed on zero results")
	}
	if got := f.notices.list(); len(got) != 1 || got[0] != "No geocode data." {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestHandleGeolocationTreatsProviderErrorAsNoResult(t *testing.T) {
	f := newFixture(t, Options{})
	f.geocoder.err = errors.New("upstream down")

	err := f.resolver.HandleGeolocation(context.Background(), Coordinate{Lat: 1, Lng: 1})
	if !errors.Is(err, ErrNoGeocodeResult) {
		t.Fatalf("expected ErrNoGeocodeResult, got %v", err)
	}
	if len(f.notices.list()) != 1 {
		t.Fatalf("expected a notice for provider failure")
	}
}

func TestHandleGeolocationFailureUnsupportedFallsBack(t *testing.T) {
	fallback := Coordinate{Lat: 10, Lng: 20}
	f := newFixture(t, Options{FallbackCenter: &fallback})

	err := f.resolver.HandleGeolocationFailure(GeolocationFailure{Unsupported: true})
	if !errors.Is(err, ErrUnsupportedGeolocation) {
		t.Fatalf("expected ErrUnsupportedGeolocation, got %v", err)
	}
	if f.view.center != fallback || f.view.zoom != DefaultZoom {
		t.Fatalf("map not moved to fallback: %v zoom=%d", f.view.center, f.view.zoom)
	}
	if got := f.notices.list(); len(got) != 1 || got[0] != ErrUnsupportedGeolocation.Message {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestHandleGeolocationFailureDeniedIsSilent(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.resolver.HandleGeolocationFailure(GeolocationFailure{Reason: "permission denied"}); err != nil {
		t.Fatalf("expected silent failure, got %v", err)
	}
	if len(f.notices.list()) != 0 || len(f.view.callsSnapshot()) != 0 {
		t.Fatalf("denied geolocation must not touch view or notify")
	}
}

func TestHandlePlaceChangedWithoutGeometry(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	before := f.form.Values()
	markerBefore := f.resolver.Snapshot().Marker

	err := f.resolver.HandlePlaceChanged(context.Background(), Place{FormattedAddress: "nowhere"})
	if !errors.Is(err, ErrIncompletePlace) {
		t.Fatalf("expected ErrIncompletePlace, got %v", err)
	}
	if !reflect.DeepEqual(before, f.form.Values()) {
		t.Fatalf("form mutated by incomplete place")
	}
	if f.resolver.Snapshot().Marker != markerBefore {
		t.Fatalf("marker mutated by incomplete place")
	}
	for _, call := range f.view.callsSnapshot() {
		if call == "marker" {
			t.Fatalf("marker moved by incomplete place")
		}
	}
	if got := f.notices.list(); len(got) != 1 || got[0] != "This place contains no geometry." {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestHandlePlaceChangedFitsViewport(t *testing.T) {
	f := newFixture(t, Options{})
	viewport := Bounds{SouthWest: Coordinate{Lat: 50, Lng: 14}, NorthEast: Coordinate{Lat: 50.2, Lng: 14.6}}
	place := Place{
		FormattedAddress: "Praha, Czechia",
		Components:       []AddressComponent{{Type: "locality", LongName: "Praha"}},
		Geometry:         &Geometry{Location: viewport.Center(), Viewport: &viewport},
	}

	if err := f.resolver.HandlePlaceChanged(context.Background(), place); err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}

	calls := f.view.callsSnapshot()
	if calls[0] != "info-close" {
		t.Fatalf("info must be closed first, calls=%v", calls)
	}
	if f.view.fitted == nil || *f.view.fitted != viewport {
		t.Fatalf("viewport not fitted")
	}
	if f.view.zoom != 0 {
		t.Fatalf("zoom must stay untouched, got %d", f.view.zoom)
	}
	if f.view.info != "Praha, Czechia" {
		t.Fatalf("info = %q", f.view.info)
	}
	if f.form.Value("city") != "Praha" || f.form.Value(FormattedField) != "Praha, Czechia" {
		t.Fatalf("form not applied: %v", f.form.Values())
	}
	if !f.resolver.Snapshot().ClearArmed {
		t.Fatalf("clear trigger not armed")
	}
}

func TestHandlePlaceChangedCentersWithoutViewport(t *testing.T) {
	f := newFixture(t, Options{})
	loc := Coordinate{Lat: 49.1, Lng: 16.6}

	err := f.resolver.HandlePlaceChanged(context.Background(), Place{
		FormattedAddress: "Brno",
		Geometry:         &Geometry{Location: loc},
	})
	if err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}
	if f.view.center != loc || f.view.fitted != nil {
		t.Fatalf("expected centering on location, center=%v fitted=%v", f.view.center, f.view.fitted)
	}
}

func TestHandlePlaceChangedWithoutComponentsLeavesForm(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	before := f.form.Values()

	err := f.resolver.HandlePlaceChanged(context.Background(), Place{
		FormattedAddress: "Brno",
		Geometry:         &Geometry{Location: Coordinate{Lat: 49.1, Lng: 16.6}},
	})
	if err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}
	if !reflect.DeepEqual(before, f.form.Values()) {
		t.Fatalf("form must stay untouched without components")
	}
}

func TestSearchInteractionClearsOnceAfterPlace(t *testing.T) {
	f := newFixture(t, Options{})
	place := Place{
		FormattedAddress: "Praha",
		Components:       []AddressComponent{{Type: "locality", LongName: "Praha"}},
		Geometry:         &Geometry{Location: Coordinate{Lat: 50, Lng: 14}},
	}
	if err := f.resolver.HandlePlaceChanged(context.Background(), place); err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}
	geocodeCalls := f.geocoder.calls

	if !f.resolver.HandleSearchInteraction() {
		t.Fatalf("armed trigger did not fire")
	}
	for name, value := range f.form.Values() {
		if value != "" {
			t.Fatalf("field %q not cleared: %q", name, value)
		}
	}
	if f.geocoder.calls != geocodeCalls {
		t.Fatalf("clear must not geocode")
	}

	f.form.Type("search", "brn")
	if f.resolver.HandleSearchInteraction() {
		t.Fatalf("trigger must fire only once")
	}
	if f.form.Value("search") != "brn" {
		t.Fatalf("disarmed interaction must not clear typed text")
	}
}

func TestSearchInteractionDisarmedByNewAddressEvent(t *testing.T) {
	f := newFixture(t, Options{})
	place := Place{
		FormattedAddress: "Praha",
		Components:       []AddressComponent{{Type: "locality", LongName: "Praha"}},
		Geometry:         &Geometry{Location: Coordinate{Lat: 50, Lng: 14}},
	}
	if err := f.resolver.HandlePlaceChanged(context.Background(), place); err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}

	f.geocoder.results = []GeocodeResult{brnoResult()}
	if err := f.resolver.HandleMarkerDragEnd(context.Background(), Coordinate{Lat: 49.2, Lng: 16.6}); err != nil {
		t.Fatalf("HandleMarkerDragEnd returned error: %v", err)
	}

	if f.resolver.HandleSearchInteraction() {
		t.Fatalf("drag end must disarm the clear trigger")
	}
	if f.form.Value("city") != "Brno" {
		t.Fatalf("drag result lost: %v", f.form.Values())
	}
}

func TestHandleMarkerDragEndPansEvenWithoutResults(t *testing.T) {
	f := newFixture(t, Options{})
	f.resolver.Apply(pragueResult())
	before := f.form.Values()
	pos := Coordinate{Lat: 0.5, Lng: -30}

	err := f.resolver.HandleMarkerDragEnd(context.Background(), pos)
	if !errors.Is(err, ErrNoGeocodeResult) {
		t.Fatalf("expected ErrNoGeocodeResult, got %v", err)
	}
	if f.view.pan != pos {
		t.Fatalf("map must pan to marker, got %v", f.view.pan)
	}
	if !reflect.DeepEqual(before, f.form.Values()) {
		t.Fatalf("form changed on zero results")
	}
}

func TestHandleMarkerDragEndShowsPlainAddress(t *testing.T) {
	f := newFixture(t, Options{})
	f.geocoder.results = []GeocodeResult{brnoResult()}

	if err := f.resolver.HandleMarkerDragEnd(context.Background(), brnoResult().Location); err != nil {
		t.Fatalf("HandleMarkerDragEnd returned error: %v", err)
	}
	if f.view.info != "Brno, Czechia" {
		t.Fatalf("info = %q", f.view.info)
	}
	state := f.resolver.Snapshot()
	if state.Result == nil || state.Result.FormattedAddress != "Brno, Czechia" {
		t.Fatalf("snapshot result = %+v", state.Result)
	}
}

func TestHandleMarkerDragStartClosesInfo(t *testing.T) {
	f := newFixture(t, Options{})
	f.geocoder.results = []GeocodeResult{brnoResult()}
	_ = f.resolver.HandleMarkerDragEnd(context.Background(), brnoResult().Location)

	f.resolver.HandleMarkerDragStart()

	if f.view.infoOpen || f.resolver.Snapshot().Info.Open {
		t.Fatalf("info must be closed on drag start")
	}
	if f.geocoder.calls != 1 {
		t.Fatalf("drag start must not geocode")
	}
}

// blockingGeocoder answers each request only when released, so tests can
// complete requests out of order.
type blockingGeocoder struct {
	mu      sync.Mutex
	pending map[Coordinate]chan []GeocodeResult
	started chan Coordinate
}

func newBlockingGeocoder() *blockingGeocoder {
	return &blockingGeocoder{
		pending: make(map[Coordinate]chan []GeocodeResult),
		started: make(chan Coordinate, 4),
	}
}

func (g *blockingGeocoder) ReverseGeocode(ctx context.Context, c Coordinate) ([]GeocodeResult, error) {
	ch := make(chan []GeocodeResult, 1)
	g.mu.Lock()
	g.pending[c] = ch
	g.mu.Unlock()
	g.started <- c

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *blockingGeocoder) release(c Coordinate, res []GeocodeResult) {
	g.mu.Lock()
	ch := g.pending[c]
	g.mu.Unlock()
	ch <- res
}

func TestStaleDragResponseIsDiscarded(t *testing.T) {
	view := &recordingView{}
	geocoder := newBlockingGeocoder()
	form := NewMemoryForm(Options{}.FormFields()...)
	n := &notices{}
	r, err := New(Options{}, view, geocoder, form, n, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	first := Coordinate{Lat: 50.07, Lng: 14.44}
	second := Coordinate{Lat: 49.19, Lng: 16.60}

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.HandleMarkerDragEnd(context.Background(), first) }()
	<-geocoder.started

	secondErr := make(chan error, 1)
	go func() { secondErr <- r.HandleMarkerDragEnd(context.Background(), second) }()
	<-geocoder.started

	geocoder.release(second, []GeocodeResult{brnoResult()})
	if err := <-secondErr; err != nil {
		t.Fatalf("second drag returned error: %v", err)
	}

	// The first request was cancelled when the second began; it must neither
	// notify nor overwrite the newer address.
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the first drag, got %v", err)
	}
	if got := form.Value("city"); got != "Brno" {
		t.Fatalf("city = %q, want Brno", got)
	}
	if got := n.list(); len(got) != 0 {
		t.Fatalf("superseded request must not notify, got %v", got)
	}
	if got := r.Snapshot().Marker.Position; got != second {
		t.Fatalf("marker = %v, want %v", got, second)
	}
}

func TestPlaceSelectionSupersedesInFlightGeolocation(t *testing.T) {
	view := &recordingView{}
	geocoder := newBlockingGeocoder()
	form := NewMemoryForm(Options{}.FormFields()...)
	r, err := New(Options{}, view, geocoder, form, nil, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	fix := Coordinate{Lat: 50.07, Lng: 14.44}
	done := make(chan error, 1)
	go func() { done <- r.HandleGeolocation(context.Background(), fix) }()
	<-geocoder.started

	place := Place{
		FormattedAddress: "Brno, Czechia",
		Components:       brnoResult().Components,
		Geometry:         &Geometry{Location: brnoResult().Location},
	}
	if err := r.HandlePlaceChanged(context.Background(), place); err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the geolocation, got %v", err)
	}
	if got := form.Value(FormattedField); got != "Brno, Czechia" {
		t.Fatalf("formatted = %q", got)
	}
	if !r.Snapshot().ClearArmed {
		t.Fatalf("stale response must not disarm the trigger")
	}
}

func TestCallerCancellationDoesNotNotify(t *testing.T) {
	view := &recordingView{}
	geocoder := newBlockingGeocoder()
	form := NewMemoryForm(Options{}.FormFields()...)
	n := &notices{}
	r, err := New(Options{}, view, geocoder, form, n, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.HandleMarkerDragEnd(ctx, Coordinate{Lat: 1, Lng: 2}) }()
	<-geocoder.started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(n.list()) != 0 {
		t.Fatalf("cancellation must not notify")
	}
}

func TestRevisionCountsFormRewrites(t *testing.T) {
	f := newFixture(t, Options{})
	if rev := f.resolver.Snapshot().Revision; rev != 0 {
		t.Fatalf("fresh resolver revision = %d", rev)
	}

	f.geocoder.results = nil
	_ = f.resolver.HandleMarkerDragEnd(context.Background(), Coordinate{Lat: 1, Lng: 1})
	if rev := f.resolver.Snapshot().Revision; rev != 0 {
		t.Fatalf("failed geocode must not bump revision, got %d", rev)
	}

	f.geocoder.results = []GeocodeResult{pragueResult()}
	if err := f.resolver.HandleMarkerDragEnd(context.Background(), pragueResult().Location); err != nil {
		t.Fatalf("HandleMarkerDragEnd returned error: %v", err)
	}
	f.resolver.Reset()
	if rev := f.resolver.Snapshot().Revision; rev != 2 {
		t.Fatalf("revision = %d, want 2", rev)
	}
}

func TestUnsupportedGeolocationSupersedesInFlightDrag(t *testing.T) {
	view := &recordingView{}
	geocoder := newBlockingGeocoder()
	form := NewMemoryForm(Options{}.FormFields()...)
	n := &notices{}
	r, err := New(Options{}, view, geocoder, form, n, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	drop := Coordinate{Lat: 50.07, Lng: 14.44}
	done := make(chan error, 1)
	go func() { done <- r.HandleMarkerDragEnd(context.Background(), drop) }()
	<-geocoder.started

	if err := r.HandleGeolocationFailure(GeolocationFailure{Unsupported: true}); !errors.Is(err, ErrUnsupportedGeolocation) {
		t.Fatalf("expected ErrUnsupportedGeolocation, got %v", err)
	}

	// The drag's geocode was cancelled and its late outcome must not reach
	// the form.
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded for the drag, got %v", err)
	}
	if got := form.Value(FormattedField); got != "" {
		t.Fatalf("formatted = %q, want empty", got)
	}
	if view.infoOpen {
		t.Fatalf("info must stay closed")
	}
	if got := n.list(); len(got) != 1 || got[0] != ErrUnsupportedGeolocation.Message {
		t.Fatalf("unexpected notices %v", got)
	}
}

func TestUnsupportedGeolocationDisarmsClear(t *testing.T) {
	f := newFixture(t, Options{})
	place := Place{
		FormattedAddress: "Brno, Czechia",
		Geometry:         &Geometry{Location: brnoResult().Location},
	}
	if err := f.resolver.HandlePlaceChanged(context.Background(), place); err != nil {
		t.Fatalf("HandlePlaceChanged returned error: %v", err)
	}

	_ = f.resolver.HandleGeolocationFailure(GeolocationFailure{Unsupported: true})

	if f.resolver.HandleSearchInteraction() {
		t.Fatalf("clear must be disarmed by the fallback")
	}
}

func TestNewRejectsMappingOntoReservedFields(t *testing.T) {
	for _, target := range []string{FormattedField, DefaultSearchField} {
		opts := Options{FieldMapping: FieldMapping{"locality": {Field: target}}}
		form := NewMemoryForm(FormattedField, DefaultSearchField)

		_, err := New(opts, &recordingView{}, &stubGeocoder{}, form, nil, nil)
		if !errors.Is(err, ErrInvalidFieldMapping) {
			t.Fatalf("target %q: expected ErrInvalidFieldMapping, got %v", target, err)
		}
	}
}

func TestZeroCoordinatesCanBeConfigured(t *testing.T) {
	origin := Coordinate{}
	f := newFixture(t, Options{
		DefaultCenter:  &origin,
		FallbackCenter: &origin,
		MarkerIcon:     &MarkerIcon{URL: "/pin.png"},
	})

	f.view.center = Coordinate{Lat: 1, Lng: 1}
	f.view.marker = Coordinate{Lat: 1, Lng: 1}
	f.resolver.Init()
	if f.view.center != origin || f.view.marker != origin {
		t.Fatalf("init must use the configured origin, got center=%v marker=%v", f.view.center, f.view.marker)
	}
	if icon := f.resolver.Snapshot().Marker.Icon; icon != (MarkerIcon{URL: "/pin.png"}) {
		t.Fatalf("zero anchor replaced: %+v", icon)
	}

	f.view.center = Coordinate{Lat: 1, Lng: 1}
	_ = f.resolver.HandleGeolocationFailure(GeolocationFailure{Unsupported: true})
	if f.view.center != origin {
		t.Fatalf("fallback = %v, want origin", f.view.center)
	}
}

func TestInspectSeesFormConsistentWithState(t *testing.T) {
	f := newFixture(t, Options{})
	f.geocoder.results = []GeocodeResult{pragueResult()}
	if err := f.resolver.HandleMarkerDragEnd(context.Background(), pragueResult().Location); err != nil {
		t.Fatalf("HandleMarkerDragEnd returned error: %v", err)
	}

	var formatted string
	var state State
	f.resolver.Inspect(func(s State) {
		state = s
		formatted = f.form.Value(FormattedField)
	})

	if state.Result == nil || state.Result.FormattedAddress != formatted {
		t.Fatalf("form %q does not match state %+v", formatted, state.Result)
	}
}
