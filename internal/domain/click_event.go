// Package domain holds the click event record and the destination
// allow-list it is validated against.
package domain

import (
	"errors"
	"time"
)

// ErrInvalidLinkURL is returned when a submitted link URL is missing or not
// on the destination allow-list. It is checked before any persistence.
var ErrInvalidLinkURL = errors.New("Invalid Link URL Provided")

// ClickEvent is one tracked outbound click. Records are append-only: once
// stored they are never updated or deleted.
type ClickEvent struct {
	ID        int64     `json:"id"`
	LinkURL   string    `json:"linkUrl"`
	ClickedAt time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

// Destinations is the fixed allow-list of exactly two outbound URLs.
// Anything else is rejected with ErrInvalidLinkURL.
type Destinations struct {
	Amazon  string
	Walmart string
}

// Valid reports whether url exactly equals one of the two allowed
// destinations. No normalization is applied.
func (d Destinations) Valid(url string) bool {
	return url == d.Amazon || url == d.Walmart
}

// Validate returns ErrInvalidLinkURL unless url is allow-listed.
func (d Destinations) Validate(url string) error {
	if !d.Valid(url) {
		return ErrInvalidLinkURL
	}
	return nil
}

// NameOf returns the stats key for an allow-listed URL ("amazon" or
// "walmart"), or empty string for anything else.
func (d Destinations) NameOf(url string) string {
	switch url {
	case d.Amazon:
		return "amazon"
	case d.Walmart:
		return "walmart"
	}
	return ""
}

// Stats is the aggregate click count snapshot served by the stats endpoint
// and carried by statsUpdate broadcasts. Total always equals Amazon plus
// Walmart at the moment of the read.
type Stats struct {
	Amazon  int64 `json:"amazon"`
	Walmart int64 `json:"walmart"`
	Total   int64 `json:"total"`
}
