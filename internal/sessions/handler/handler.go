package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"addressor_backend/internal/sessions/service"
	"addressor_backend/internal/sessions/transport"
	"addressor_backend/platform/httpkit"
	"addressor_backend/platform/logger"
	"addressor_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidSessionID = "invalid session id"
)

// Handler exposes the address session endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	log *logger.Logger
}

func New(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// RegisterRoutes mounts the session routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/:id/stream", h.Stream)
	rg.POST("/:id/geolocation", h.Geolocation)
	rg.POST("/:id/geolocation/failure", h.GeolocationFailure)
	rg.POST("/:id/place", h.PlaceChanged)
	rg.POST("/:id/marker/drag-start", h.MarkerDragStart)
	rg.POST("/:id/marker/drag-end", h.MarkerDragEnd)
	rg.POST("/:id/search/interaction", h.SearchInteraction)
}

func (h *Handler) Create(c *gin.Context) {
	state, err := h.svc.Create(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, state)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	state, err := h.svc.Get(id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, state)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Delete(id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Geolocation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.CoordinateRequest
	if !h.bind(c, &req) {
		return
	}
	state, err := h.svc.Geolocation(c.Request.Context(), id, req.Coordinate())
	h.respond(c, state, err)
}

func (h *Handler) GeolocationFailure(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.GeolocationFailureRequest
	if !h.bind(c, &req) {
		return
	}
	state, err := h.svc.GeolocationFailure(c.Request.Context(), id, req.Failure())
	h.respond(c, state, err)
}

func (h *Handler) PlaceChanged(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.PlaceRequest
	if !h.bind(c, &req) {
		return
	}
	state, err := h.svc.PlaceChanged(c.Request.Context(), id, req.Place())
	h.respond(c, state, err)
}

func (h *Handler) MarkerDragStart(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	state, err := h.svc.MarkerDragStart(c.Request.Context(), id)
	h.respond(c, state, err)
}

func (h *Handler) MarkerDragEnd(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.CoordinateRequest
	if !h.bind(c, &req) {
		return
	}
	state, err := h.svc.MarkerDragEnd(c.Request.Context(), id, req.Coordinate())
	h.respond(c, state, err)
}

func (h *Handler) SearchInteraction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	state, cleared, err := h.svc.SearchInteraction(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SearchInteractionResponse{Cleared: cleared, State: state})
}

// Stream pushes view and state changes as server-sent events until the
// client leaves or the session ends.
func (h *Handler) Stream(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	state, err := h.svc.Get(id)
	if httpkit.HandleError(c, err) {
		return
	}
	events, cancel, err := h.svc.Subscribe(id)
	if httpkit.HandleError(c, err) {
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent(string(service.StreamState), encode(state))
	c.Writer.Flush()

	log := h.log.WithContext(c.Request.Context()).WithSessionID(id.String())
	log.Debug("session stream connected")

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			log.Debug("session stream disconnected")
			return
		case event, ok := <-events:
			if !ok {
				c.SSEvent("closed", `{}`)
				c.Writer.Flush()
				return
			}
			var payload interface{} = event.State
			if event.Type == service.StreamView {
				payload = event.View
			}
			c.SSEvent(string(event.Type), encode(payload))
			c.Writer.Flush()
		}
	}
}

// respond renders a resolver outcome. A request abandoned by its client gets
// no body.
func (h *Handler) respond(c *gin.Context, state service.State, err error) {
	if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
		c.Abort()
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, state)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSessionID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func encode(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
