package maps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"addressor_backend/internal/addressor"
	apphttp "addressor_backend/internal/http"
	"addressor_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type stubSearcher struct {
	places []addressor.Place
	err    error
	query  string
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]addressor.Place, error) {
	s.query = query
	return s.places, s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(searcher *stubSearcher) *gin.Engine {
	engine := gin.New()
	NewModule(searcher, logger.Discard()).RegisterRoutes(&apphttp.RouterContext{
		Engine: engine,
		V1:     engine.Group("/api/v1"),
	})
	return engine
}

func lookup(engine *gin.Engine, query string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/maps/address-lookup?q="+query, nil))
	return rr
}

func TestLookupReturnsPlaces(t *testing.T) {
	searcher := &stubSearcher{places: []addressor.Place{{
		FormattedAddress: "12, Vinohradská, Praha, Česko",
		Components: []addressor.AddressComponent{
			{Type: "route", LongName: "Vinohradská"},
			{Type: "street_number", LongName: "12"},
			{Type: "postal_code", LongName: "120 00"},
			{Type: "locality", LongName: "Praha"},
		},
		Geometry: &addressor.Geometry{Location: addressor.Coordinate{Lat: 50.07, Lng: 14.44}},
	}}}
	engine := newEngine(searcher)

	rr := lookup(engine, "vinohradska+12")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if searcher.query != "vinohradska 12" {
		t.Fatalf("unexpected query %q", searcher.query)
	}

	var results []AddressSuggestion
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(results) != 1 || results[0].Label != "Vinohradská 12, 120 00 Praha" {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Place.Geometry == nil {
		t.Fatalf("place geometry must be forwarded")
	}
}

func TestLookupRejectsShortQuery(t *testing.T) {
	engine := newEngine(&stubSearcher{})
	if rr := lookup(engine, "ab"); rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestLookupUpstreamFailureIs502(t *testing.T) {
	engine := newEngine(&stubSearcher{err: errors.New("timeout")})
	if rr := lookup(engine, "praha"); rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestBuildLabelFallsBackToDisplayName(t *testing.T) {
	place := addressor.Place{
		FormattedAddress: "Brno, Česko",
		Components:       []addressor.AddressComponent{{Type: "locality", LongName: "Brno"}},
	}
	if got := buildLabel(place); got != "Brno, Česko" {
		t.Fatalf("label = %q", got)
	}
	if got := buildLabel(addressor.Place{Components: place.Components}); got != "Brno" {
		t.Fatalf("label without display name = %q", got)
	}
}
