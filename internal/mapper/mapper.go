// Package mapper turns the provider's cheap-price envelope into ordered domain flights.
package mapper

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjstillabower/flight-deals-service/internal/client"
	"github.com/kjstillabower/flight-deals-service/internal/models"
)

// Envelope is the decoded /v1/prices/cheap response.
// Data is keyed by destination code, then by an opaque per-listing key.
type Envelope struct {
	Success bool                          `json:"success"`
	Data    map[string]map[string]Listing `json:"data"`
	Error   string                        `json:"error"`
}

// Listing is one provider price record. Price keeps the JSON number literal so no
// precision is lost on the way to decimal.
type Listing struct {
	Price        json.Number `json:"price"`
	Airline      string      `json:"airline"`
	FlightNumber json.Number `json:"flight_number"`
	DepartureAt  string      `json:"departure_at"`
	ReturnAt     *string     `json:"return_at"`
	ExpiresAt    string      `json:"expires_at"`
}

// requiredListingFields must be present and non-null in every listing.
var requiredListingFields = []string{"price", "airline", "flight_number", "departure_at", "expires_at"}

// UnmarshalJSON rejects listings missing a required field.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, name := range requiredListingFields {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return fmt.Errorf("listing: missing required field %q", name)
		}
	}
	type plain Listing
	return json.Unmarshal(data, (*plain)(l))
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	time.RFC3339,
}

// Decode parses a raw provider body. Malformed input yields a *client.DecodingError.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &client.DecodingError{Err: err}
	}
	return env, nil
}

// Mapper converts envelopes to flights. now supplies the departure instant for
// listings whose departure_at cannot be parsed.
type Mapper struct {
	now func() time.Time
}

// New returns a Mapper using the wall clock.
func New() *Mapper {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Mapper using now for the departure fallback.
func NewWithClock(now func() time.Time) *Mapper {
	return &Mapper{now: now}
}

type keyedFlight struct {
	flight     models.Flight
	listingKey string
}

// Map flattens env into flights sorted by ascending price. Equal prices are ordered by
// destination then listing key, so the result never depends on map iteration order.
// An unsuccessful envelope or one without data maps to an empty, non-nil slice.
// A listing whose price is not a number fails the whole envelope with a *client.DecodingError.
//
// origin and currency are expected normalized; they are copied onto every flight.
func (m *Mapper) Map(origin, currency string, env Envelope) ([]models.Flight, error) {
	if !env.Success || env.Data == nil {
		return []models.Flight{}, nil
	}

	keyed := make([]keyedFlight, 0, len(env.Data))
	for destination, listings := range env.Data {
		for listingKey, l := range listings {
			price, err := decimal.NewFromString(l.Price.String())
			if err != nil {
				return nil, &client.DecodingError{Err: fmt.Errorf("listing %s/%s: price %q: %w", destination, listingKey, l.Price, err)}
			}
			departure, ok := parseTimestamp(l.DepartureAt)
			if !ok {
				departure = m.now()
			}
			var returnDate *time.Time
			if l.ReturnAt != nil {
				if t, ok := parseTimestamp(*l.ReturnAt); ok {
					returnDate = &t
				}
			}
			keyed = append(keyed, keyedFlight{
				listingKey: listingKey,
				flight: models.Flight{
					ID:            flightID(origin, destination, l.FlightNumber.String(), l.DepartureAt),
					AirlineCode:   l.Airline,
					Origin:        origin,
					Destination:   destination,
					DepartureDate: departure,
					ReturnDate:    returnDate,
					Price:         price,
					Currency:      currency,
				},
			})
		}
	}

	slices.SortStableFunc(keyed, func(a, b keyedFlight) int {
		if c := a.flight.Price.Cmp(b.flight.Price); c != 0 {
			return c
		}
		if c := strings.Compare(a.flight.Destination, b.flight.Destination); c != 0 {
			return c
		}
		return strings.Compare(a.listingKey, b.listingKey)
	})

	flights := make([]models.Flight, len(keyed))
	for i, k := range keyed {
		flights[i] = k.flight
	}
	return flights, nil
}

// flightID is unique per distinct provider record without relying on provider IDs.
func flightID(origin, destination, flightNumber, departureRaw string) string {
	return strings.Join([]string{origin, destination, flightNumber, departureRaw}, "-")
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
