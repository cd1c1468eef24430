package models

import (
	"math"
	"time"
)

// GeoPoint is a WGS84 coordinate. Field order follows GeoJSON convention
// (longitude first) because that is how the document store indexes points.
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance to other in kilometers
// (haversine formula).
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(other.Latitude - p.Latitude)
	dLon := toRad(other.Longitude - p.Longitude)
	lat1 := toRad(p.Latitude)
	lat2 := toRad(other.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Capacity is a shop's admission budget. CurrentQueue is mutated exclusively
// through the capacity ledger; everything else reads it as a snapshot.
type Capacity struct {
	MaxQueue       int `json:"maxQueue"`
	CurrentQueue   int `json:"currentQueue"`
	ProcessingRate int `json:"processingRate"` // jobs per hour
}

const (
	DefaultMaxQueue       = 10
	DefaultProcessingRate = 10
)

// HasFreeSlot reports whether an admission could currently succeed. This is
// an optimistic read; the ledger performs the authoritative conditional check.
func (c Capacity) HasFreeSlot() bool {
	return c.CurrentQueue < c.MaxQueue
}

// Pricing is the per-page base rate card used for cost estimation.
type Pricing struct {
	ColorPerPage float64 `json:"basePerPageColor"`
	MonoPerPage  float64 `json:"basePerPageMono"`
}

// Services flags what a shop can do beyond plain printing.
type Services struct {
	ColorPrinting bool `json:"colorPrinting"`
	Binding       bool `json:"binding"`
	Laminating    bool `json:"laminating"`
}

// Shop is a registered print shop.
type Shop struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Location  GeoPoint  `json:"location"`
	Address   string    `json:"address,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	Capacity  Capacity  `json:"capacity"`
	Pricing   Pricing   `json:"pricing"`
	Services  Services  `json:"services"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApplyDefaults fills zero-valued capacity fields with the platform defaults.
// Called once at registration so stored records are always fully specified.
func (s *Shop) ApplyDefaults() {
	if s.Capacity.MaxQueue == 0 {
		s.Capacity.MaxQueue = DefaultMaxQueue
	}
	if s.Capacity.ProcessingRate == 0 {
		s.Capacity.ProcessingRate = DefaultProcessingRate
	}
}
