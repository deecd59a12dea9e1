package maps

import (
	"context"
	"strings"

	"addressor_backend/internal/addressor"
	"addressor_backend/internal/geocoding"
	"addressor_backend/platform/apperr"
	"addressor_backend/platform/logger"
)

var errLookupUnavailable = apperr.Unavailable("address lookup service unavailable")

type Service struct {
	searcher geocoding.Searcher
	log      *logger.Logger
}

func NewService(searcher geocoding.Searcher, log *logger.Logger) *Service {
	return &Service{
		searcher: searcher,
		log:      log,
	}
}

func (s *Service) SearchAddress(ctx context.Context, query string) ([]AddressSuggestion, error) {
	places, err := s.searcher.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		s.log.WithContext(ctx).Warn("address lookup failed", "error", err)
		return nil, errLookupUnavailable.WithCause(err)
	}

	results := make([]AddressSuggestion, 0, len(places))
	for _, place := range places {
		results = append(results, AddressSuggestion{
			Label: buildLabel(place),
			Place: place,
		})
	}
	return results, nil
}

// buildLabel prefers "street number, postcode city" and falls back to the
// provider's display name.
func buildLabel(place addressor.Place) string {
	parts := make(map[string]string, len(place.Components))
	for _, c := range place.Components {
		parts[c.Type] = c.LongName
	}

	streetLine := strings.TrimSpace(parts["route"] + " " + parts["street_number"])
	cityLine := strings.TrimSpace(parts["postal_code"] + " " + parts["locality"])

	switch {
	case streetLine != "" && cityLine != "":
		return streetLine + ", " + cityLine
	case streetLine != "":
		return streetLine
	case place.FormattedAddress != "":
		return place.FormattedAddress
	default:
		return cityLine
	}
}
