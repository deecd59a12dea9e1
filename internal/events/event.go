// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"addressor_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Address Session Domain Events
// =============================================================================

// Trigger names the resolver event that produced an address.
const (
	TriggerGeolocation = "geolocation"
	TriggerPlace       = "place"
	TriggerMarkerDrag  = "marker_drag"
)

// AddressResolved is published when a session's form was rewritten with a
// canonical address.
type AddressResolved struct {
	BaseEvent
	SessionID        uuid.UUID         `json:"sessionId"`
	Trigger          string            `json:"trigger"`
	FormattedAddress string            `json:"formattedAddress"`
	Lat              float64           `json:"lat"`
	Lng              float64           `json:"lng"`
	Fields           map[string]string `json:"fields"`
}

func (e AddressResolved) EventName() string { return "address.resolved" }

// AddressResolutionFailed is published when reverse geocoding produced no
// usable address for a session.
type AddressResolutionFailed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	Trigger   string    `json:"trigger"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Reason    string    `json:"reason"`
}

func (e AddressResolutionFailed) EventName() string { return "address.resolution_failed" }

// AddressFormCleared is published when the deferred clear after a place
// selection fired.
type AddressFormCleared struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
}

func (e AddressFormCleared) EventName() string { return "address.form_cleared" }
