package service

import (
	"strings"
	"time"

	"github.com/kjstillabower/flight-deals-service/internal/client"
	"github.com/kjstillabower/flight-deals-service/internal/models"
)

const dateKeyLayout = "2006-01-02"

// CacheKey identifies a distinct deals query after normalization. Queries differing only
// in letter case, or in an absent vs empty destination, share a key.
type CacheKey struct {
	Origin      string
	Destination string // client.NoDestination when unfiltered
	Currency    string
	Date        string // YYYY-MM-DD in UTC, or "" for any date
}

// String renders the key for backends that need a flat string.
func (k CacheKey) String() string {
	return k.Origin + "|" + k.Destination + "|" + k.Currency + "|" + k.Date
}

// normalizedQuery is a Query with every field in the form sent to the provider.
type normalizedQuery struct {
	origin      string
	destination string
	currency    string
	filter      string // destination post-filter; "" keeps every row
	date        *time.Time
}

func normalizeQuery(q models.Query) normalizedQuery {
	n := normalizedQuery{
		origin:      normalizeCode(q.Origin),
		destination: client.NoDestination,
		currency:    normalizeCode(q.Currency),
		date:        q.Date,
	}
	if d := normalizeCode(q.Destination); d != "" {
		n.destination = d
		n.filter = d
	}
	return n
}

func (n normalizedQuery) key() CacheKey {
	k := CacheKey{
		Origin:      n.origin,
		Destination: n.destination,
		Currency:    n.currency,
	}
	if n.date != nil {
		k.Date = n.date.UTC().Format(dateKeyLayout)
	}
	return k
}

// KeyFor returns the cache key a query normalizes to.
func KeyFor(q models.Query) CacheKey {
	return normalizeQuery(q).key()
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
