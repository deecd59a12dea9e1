// Package service hosts address resolvers as per-page sessions.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"addressor_backend/internal/addressor"
	"addressor_backend/internal/events"
	"addressor_backend/platform/apperr"
	"addressor_backend/platform/config"
	"addressor_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = apperr.NotFound("address session not found")

// Resolver event labels used for metrics.
const (
	EventGeolocation        = "geolocation"
	EventGeolocationFailure = "geolocation_failure"
	EventPlaceChanged       = "place_changed"
	EventDragStart          = "drag_start"
	EventDragEnd            = "drag_end"
	EventSearchInteraction  = "search_interaction"
)

// EventRecorder observes handled events and the session count.
type EventRecorder interface {
	ObserveResolverEvent(event, outcome string)
	SetActiveSessions(n int)
}

// Service owns every live session.
type Service struct {
	opts     addressor.Options
	geocoder addressor.Geocoder
	bus      events.Bus
	metrics  EventRecorder
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// New creates the session service. bus and metrics may be nil.
func New(opts addressor.Options, geocoder addressor.Geocoder, bus events.Bus, metrics EventRecorder, cfg config.SessionConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		opts:     opts.WithDefaults(),
		geocoder: geocoder,
		bus:      bus,
		metrics:  metrics,
		ttl:      cfg.GetSessionTTL(),
		sweep:    cfg.GetSessionSweepInterval(),
		now:      time.Now,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create starts a session and initializes its map.
func (s *Service) Create(ctx context.Context) (State, error) {
	id := uuid.New()
	sessionLog := s.log.WithSessionID(id.String())

	session := &Session{
		ID:          id,
		CreatedAt:   s.now(),
		form:        addressor.NewMemoryForm(s.opts.FormFields()...),
		log:         sessionLog,
		subscribers: make(map[chan StreamEvent]struct{}),
	}
	session.view = newViewRecorder(s.opts, func(v ViewState) {
		session.broadcast(StreamEvent{Type: StreamView, View: &v})
	})

	resolver, err := addressor.New(s.opts, session.view, s.geocoder, session.form, session.view, sessionLog)
	if err != nil {
		return State{}, apperr.Internal("failed to start address session").WithCause(err)
	}
	session.resolver = resolver
	resolver.Init()
	session.touch(s.now())

	s.mu.Lock()
	s.sessions[id] = session
	count := len(s.sessions)
	s.mu.Unlock()

	s.setActive(count)
	sessionLog.WithContext(ctx).Info("address session created")
	return session.State(), nil
}

// Get returns the session's current state.
func (s *Service) Get(id uuid.UUID) (State, error) {
	session, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}
	return session.State(), nil
}

// Delete closes the session and its streams.
func (s *Service) Delete(id uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.close()
	s.setActive(count)
	session.log.Info("address session deleted")
	return nil
}

// Subscribe opens a stream of view and state changes for the session.
// The returned cancel func must be called when the subscriber leaves.
func (s *Service) Subscribe(id uuid.UUID) (<-chan StreamEvent, func(), error) {
	session, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := session.subscribe()
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	return ch, cancel, nil
}

// Geolocation handles a position fix from the browser.
func (s *Service) Geolocation(ctx context.Context, id uuid.UUID, pos addressor.Coordinate) (State, error) {
	return s.handle(ctx, id, EventGeolocation, events.TriggerGeolocation, pos, func(session *Session) error {
		return session.resolver.HandleGeolocation(ctx, pos)
	})
}

// GeolocationFailure handles a browser that produced no position fix.
func (s *Service) GeolocationFailure(ctx context.Context, id uuid.UUID, failure addressor.GeolocationFailure) (State, error) {
	return s.handle(ctx, id, EventGeolocationFailure, "", addressor.Coordinate{}, func(session *Session) error {
		return session.resolver.HandleGeolocationFailure(failure)
	})
}

// PlaceChanged handles an autocomplete selection.
func (s *Service) PlaceChanged(ctx context.Context, id uuid.UUID, place addressor.Place) (State, error) {
	var loc addressor.Coordinate
	if place.Geometry != nil {
		loc = place.Geometry.Location
	}
	return s.handle(ctx, id, EventPlaceChanged, events.TriggerPlace, loc, func(session *Session) error {
		return session.resolver.HandlePlaceChanged(ctx, place)
	})
}

// MarkerDragStart handles the start of a marker drag.
func (s *Service) MarkerDragStart(ctx context.Context, id uuid.UUID) (State, error) {
	return s.handle(ctx, id, EventDragStart, "", addressor.Coordinate{}, func(session *Session) error {
		session.resolver.HandleMarkerDragStart()
		return nil
	})
}

// MarkerDragEnd handles the marker being dropped at pos.
func (s *Service) MarkerDragEnd(ctx context.Context, id uuid.UUID, pos addressor.Coordinate) (State, error) {
	return s.handle(ctx, id, EventDragEnd, events.TriggerMarkerDrag, pos, func(session *Session) error {
		return session.resolver.HandleMarkerDragEnd(ctx, pos)
	})
}

// SearchInteraction handles focus or a keystroke in the search field. The
// returned bool reports whether the armed clear fired.
func (s *Service) SearchInteraction(ctx context.Context, id uuid.UUID) (State, bool, error) {
	var cleared bool
	state, err := s.handle(ctx, id, EventSearchInteraction, "", addressor.Coordinate{}, func(session *Session) error {
		cleared = session.resolver.HandleSearchInteraction()
		if cleared {
			s.publish(ctx, events.AddressFormCleared{BaseEvent: events.NewBaseEvent(), SessionID: session.ID})
		}
		return nil
	})
	return state, cleared, err
}

// handle runs one resolver event and turns its outcome into state, metrics
// and domain events. Resolver errors carry the resulting state as details.
// A request superseded by a newer event answers with the current state and
// leaves publishing to the newer event.
func (s *Service) handle(ctx context.Context, id uuid.UUID, event, trigger string, pos addressor.Coordinate, fn func(*Session) error) (State, error) {
	session, err := s.lookup(id)
	if err != nil {
		return State{}, err
	}
	session.touch(s.now())
	session.view.clearNotice()

	before := session.resolver.Snapshot().Revision
	err = fn(session)
	state := session.State()
	s.observe(event, outcomeOf(err))

	if errors.Is(err, addressor.ErrSuperseded) {
		session.log.WithContext(ctx).Debug("address event superseded", "event", event)
		return state, nil
	}
	session.broadcast(StreamEvent{Type: StreamState, State: &state})

	switch {
	case err == nil:
		if trigger != "" && state.Resolver.Revision != before && state.Resolver.Result != nil {
			s.publish(ctx, events.AddressResolved{
				BaseEvent:        events.NewBaseEvent(),
				SessionID:        session.ID,
				Trigger:          trigger,
				FormattedAddress: state.Resolver.Result.FormattedAddress,
				Lat:              state.Resolver.Marker.Position.Lat,
				Lng:              state.Resolver.Marker.Position.Lng,
				Fields:           state.Form,
			})
		}
		return state, nil
	case errors.Is(err, addressor.ErrNoGeocodeResult):
		s.publish(ctx, events.AddressResolutionFailed{
			BaseEvent: events.NewBaseEvent(),
			SessionID: session.ID,
			Trigger:   trigger,
			Lat:       pos.Lat,
			Lng:       pos.Lng,
			Reason:    err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return state, err
	}

	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return state, domainErr.WithDetails(state)
	}
	return state, err
}

func (s *Service) lookup(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Sweep closes sessions idle for longer than the TTL. Sessions with an open
// stream are kept. It returns the number of expired sessions.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	expired := make([]*Session, 0)
	for id, session := range s.sessions {
		if session.subscriberCount() > 0 {
			continue
		}
		if now.Sub(session.idleSince()) > s.ttl {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, session := range expired {
		session.close()
		session.log.Debug("address session expired")
	}
	if len(expired) > 0 {
		s.setActive(count)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (s *Service) Run(ctx context.Context) error {
	interval := s.sweep
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				s.log.Info("expired idle address sessions", "count", n)
			}
		}
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
	s.setActive(0)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func (s *Service) observe(event, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveResolverEvent(event, outcome)
	}
}

func (s *Service) setActive(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(n)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, addressor.ErrSuperseded):
		return "superseded"
	case errors.Is(err, addressor.ErrNoGeocodeResult):
		return "no_result"
	case errors.Is(err, addressor.ErrIncompletePlace):
		return "incomplete_place"
	case errors.Is(err, addressor.ErrUnsupportedGeolocation):
		return "unsupported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
