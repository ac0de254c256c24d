package model

import (
	"time"

	"github.com/google/uuid"
)

// ProductStatus describes the publication state of an activity.
type ProductStatus string

const (
	ProductDraft       ProductStatus = "DRAFT"
	ProductPublished   ProductStatus = "PUBLISHED"
	ProductUnpublished ProductStatus = "UNPUBLISHED"
)

// Product represents a bookable children's activity in the catalogue.
// Stock is only ever decremented by a successful reservation and incremented
// by a cancellation or refund-completion release; it never goes negative.
type Product struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Title       string        `json:"title" db:"title"`
	Description string        `json:"description" db:"description"`
	PriceCents  int64         `json:"priceCents" db:"price_cents"`
	Stock       int           `json:"stock" db:"stock"`
	Status      ProductStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`
}

// CreateProductRequest is the payload for creating a catalogue entry.
type CreateProductRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Stock       int    `json:"stock"`
}
