package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/models"
)

const keyPrefix = "deals:"

// remoteEntry is the JSON payload stored by remote backends. Prices encode as strings,
// so the decimal value survives the round trip exactly.
type remoteEntry struct {
	StoredAt time.Time       `json:"storedAt"`
	Flights  []models.Flight `json:"flights"`
}

func encodeEntry(flights []models.Flight, storedAt time.Time) ([]byte, error) {
	if flights == nil {
		flights = []models.Flight{}
	}
	raw, err := json.Marshal(remoteEntry{StoredAt: storedAt, Flights: flights})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return raw, nil
}

func decodeEntry(raw []byte) ([]models.Flight, error) {
	var e remoteEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.Flights == nil {
		e.Flights = []models.Flight{}
	}
	return e.Flights, nil
}
