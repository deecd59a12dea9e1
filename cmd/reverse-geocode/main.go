// Command reverse-geocode resolves one coordinate through the configured
// geocoding stack and prints the address form a resolver would fill in.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/internal/geocoding"
	"addressor_backend/platform/config"
	"addressor_backend/platform/logger"
	"addressor_backend/platform/validator"
)

// nopView drops map updates; only the form matters here.
type nopView struct{}

func (nopView) Center(addressor.Coordinate)                {}
func (nopView) Pan(addressor.Coordinate)                   {}
func (nopView) SetZoom(int)                                {}
func (nopView) FitBounds(addressor.Bounds)                 {}
func (nopView) SetMarker(addressor.Coordinate, bool, bool) {}
func (nopView) OpenInfo(string)                            {}
func (nopView) CloseInfo()                                 {}

type output struct {
	Provider string                   `json:"provider"`
	Query    addressor.Coordinate     `json:"query"`
	Result   *addressor.GeocodeResult `json:"result,omitempty"`
	Form     map[string]string        `json:"form"`
}

func main() {
	lat := flag.Float64("lat", 0, "latitude in degrees")
	lng := flag.Float64("lng", 0, "longitude in degrees")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	val := validator.New()
	pos := addressor.Coordinate{Lat: *lat, Lng: *lng}
	if err := val.Var(pos.Lat, "lat"); err != nil {
		fmt.Fprintln(os.Stderr, "invalid -lat:", *lat)
		os.Exit(2)
	}
	if err := val.Var(pos.Lng, "lng"); err != nil {
		fmt.Fprintln(os.Stderr, "invalid -lng:", *lng)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, val, log, pos); err != nil {
		log.Error("reverse geocode failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, val *validator.Validator, log *logger.Logger, pos addressor.Coordinate) error {
	opts, err := addressor.OptionsFromConfig(cfg, val)
	if err != nil {
		return err
	}

	stack, err := geocoding.NewFromConfig(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = stack.Close()
	}()

	form := addressor.NewMemoryForm(opts.FormFields()...)
	notifier := addressor.NotifierFunc(func(message string) {
		log.Warn("resolver notice", "message", message)
	})
	resolver, err := addressor.New(opts, nopView{}, stack.Geocoder, form, notifier, log)
	if err != nil {
		return err
	}
	defer resolver.Close()

	err = resolver.HandleMarkerDragEnd(ctx, pos)
	if err != nil && !errors.Is(err, addressor.ErrNoGeocodeResult) {
		return err
	}

	out := output{
		Provider: stack.Geocoder.Name(),
		Query:    pos,
		Result:   resolver.Snapshot().Result,
		Form:     form.Values(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
