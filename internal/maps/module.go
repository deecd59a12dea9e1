package maps

import (
	"addressor_backend/internal/geocoding"
	apphttp "addressor_backend/internal/http"
	"addressor_backend/platform/logger"
)

// Module wires the maps address lookup HTTP routes.
type Module struct {
	handler *Handler
}

func NewModule(searcher geocoding.Searcher, log *logger.Logger) *Module {
	svc := NewService(searcher, log)
	h := NewHandler(svc)
	return &Module{handler: h}
}

func (m *Module) Name() string {
	return "maps"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/maps")
	group.GET("/address-lookup", m.handler.LookupAddress)
}

var _ apphttp.Module = (*Module)(nil)
