// Package provider defines the external capability interfaces the
// conversation engine consumes, and their HTTP client implementations.
// Providers encapsulate retries and polling; the engine sees one synchronous
// call with a single success/failure outcome.
package provider

import (
	"context"
	"errors"

	"github.com/veluna/stylebot/internal/domain"
)

var (
	// ErrAnalysis is returned when the vision provider cannot read the image
	// or is unavailable.
	ErrAnalysis = errors.New("skin-tone analysis failed")

	// ErrSearch is returned when the shopping search provider fails.
	ErrSearch = errors.New("product search failed")

	// ErrComposition is returned when garment compositing fails or times out.
	ErrComposition = errors.New("garment composition failed")

	// ErrDelivery is returned when an outbound message cannot be delivered.
	ErrDelivery = errors.New("message delivery failed")
)

// VisionAnalyzer classifies a skin tone from a selfie.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imageRef string) (*domain.ToneAnalysis, error)
}

// ProductSearch finds products matching a color query within a budget.
type ProductSearch interface {
	Search(ctx context.Context, query string, budget domain.BudgetRange) ([]domain.Product, error)
}

// GarmentCompositor synthesizes a try-on image from a full-body photo and a
// garment description. Composition may take multiple seconds; the call
// blocks until the job completes or fails.
type GarmentCompositor interface {
	Compose(ctx context.Context, bodyImageRef, garmentDescription string) (string, error)
}

// MessageDispatcher delivers a message to a WhatsApp address.
type MessageDispatcher interface {
	Send(ctx context.Context, address, text, mediaRef string) error
}
