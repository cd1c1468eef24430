package models

import (
	"math"
	"time"

	shopmodels "printhub/internal/shop/models"
	dErrors "printhub/pkg/domain-errors"
)

// PrintJobSpec describes what to print. It is immutable once an order has
// been created from it.
type PrintJobSpec struct {
	Pages       int    `json:"pages"`
	Color       bool   `json:"color"`
	DoubleSided bool   `json:"doubleSided"`
	Copies      int    `json:"copies"`
	PaperSize   string `json:"paperSize"`
	PaperType   string `json:"paperType"`
}

// Validate checks the spec against the minimum the platform accepts.
func (s PrintJobSpec) Validate() error {
	if s.Pages < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "pages must be at least 1")
	}
	if s.Copies < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "copies must be at least 1")
	}
	if s.PaperSize == "" {
		return dErrors.New(dErrors.CodeBadRequest, "paperSize is required")
	}
	if s.PaperType == "" {
		return dErrors.New(dErrors.CodeBadRequest, "paperType is required")
	}
	return nil
}

// Cost prices the job against a shop's rate card. Zero-valued pricing falls
// back to the platform base rates so unpriced shops still get estimates.
func (s PrintJobSpec) Cost(pricing shopmodels.Pricing) float64 {
	perPage := pricing.MonoPerPage
	if s.Color {
		perPage = pricing.ColorPerPage
		if perPage == 0 {
			perPage = 2
		}
	} else if perPage == 0 {
		perPage = 1
	}

	if s.DoubleSided {
		perPage *= 0.9
	}
	if s.PaperType == "premium" {
		perPage *= 1.5
	}
	if s.PaperSize != "A4" {
		perPage *= 1.2
	}
	return round2(perPage * float64(s.Pages) * float64(s.Copies))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Order is a print job admitted against a shop. It is never deleted; terminal
// states stamp it instead. Version counts accepted mutations (creation is 1)
// and doubles as the lifecycle event sequence for the order.
type Order struct {
	ID          string       `json:"id"`
	RequesterID string       `json:"requesterId"`
	ShopID      string       `json:"shopId"`
	Status      Status       `json:"status"`
	PrintConfig PrintJobSpec `json:"printConfig"`
	TotalCost   float64      `json:"totalCost"`
	Version     int64        `json:"version"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
