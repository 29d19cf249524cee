package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Flight is a single cheap-price listing. Values are never mutated after mapping.
type Flight struct {
	ID            string          `json:"id"`
	AirlineCode   string          `json:"airlineCode"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	DepartureDate time.Time       `json:"departureDate"`
	ReturnDate    *time.Time      `json:"returnDate,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
}

// Query holds the parameters of a deals lookup. An empty Destination means
// no destination filter; a nil Date means any departure date.
type Query struct {
	Origin      string
	Destination string
	Currency    string
	Date        *time.Time
}
