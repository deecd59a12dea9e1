package maps

import "addressor_backend/internal/addressor"

// LookupRequest represents the query parameters from the frontend.
type LookupRequest struct {
	Query string `form:"q" binding:"required,min=3,max=200"`
}

// AddressSuggestion is one autocomplete candidate. Place is shaped like a
// place selection so the client can post it back unchanged.
type AddressSuggestion struct {
	Label string          `json:"label"`
	Place addressor.Place `json:"place"`
}
