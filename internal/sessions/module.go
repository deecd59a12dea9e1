// Package sessions hosts address resolvers for browser pages and exposes
// them over HTTP.
package sessions

import (
	"context"

	"addressor_backend/internal/addressor"
	"addressor_backend/internal/events"
	apphttp "addressor_backend/internal/http"
	"addressor_backend/internal/sessions/handler"
	"addressor_backend/internal/sessions/service"
	"addressor_backend/platform/config"
	"addressor_backend/platform/logger"
	"addressor_backend/platform/validator"
)

// Module wires the address session HTTP routes and the idle-session janitor.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

// NewModule creates the sessions module. metrics may be nil.
func NewModule(opts addressor.Options, geocoder addressor.Geocoder, bus events.Bus, metrics service.EventRecorder, cfg config.SessionConfig, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(opts, geocoder, bus, metrics, cfg, log)
	return &Module{
		service: svc,
		handler: handler.New(svc, val, log),
	}
}

func (m *Module) Name() string {
	return "sessions"
}

// Service exposes the underlying session service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Run expires idle sessions until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	return m.service.Run(ctx)
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/address-sessions"))
}

var _ apphttp.Module = (*Module)(nil)
