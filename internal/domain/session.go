package domain

import (
	"encoding/json"
	"time"
)

// State is the current position of a session in the conversation flow.
type State string

const (
	StateWelcome                State = "WELCOME"
	StateAwaitingPhoto          State = "AWAITING_PHOTO"
	StateAwaitingTryOnPhoto     State = "AWAITING_TRYON_PHOTO"
	StateAwaitingBudget         State = "AWAITING_BUDGET"
	StateAwaitingClothingChoice State = "AWAITING_CLOTHING_CHOICE"
	StateShowingTryOnResult     State = "SHOWING_TRYON_RESULT"
	StateShowingProducts        State = "SHOWING_PRODUCTS"
	StateEnded                  State = "ENDED"
)

// Valid reports whether s is a declared state.
func (s State) Valid() bool {
	switch s {
	case StateWelcome, StateAwaitingPhoto, StateAwaitingTryOnPhoto,
		StateAwaitingBudget, StateAwaitingClothingChoice,
		StateShowingTryOnResult, StateShowingProducts, StateEnded:
		return true
	}
	return false
}

// Session is the single active conversation for a user. Context carries
// state-scoped transient values; fields written by one state are meaningful
// only while the session is in a state that expects them.
type Session struct {
	ID              string          `json:"id"`
	UserAddress     string          `json:"user_address"`
	State           State           `json:"state"`
	Context         json.RawMessage `json:"context,omitempty"`
	LastInteraction time.Time       `json:"last_interaction"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BudgetContext is written when a skin-tone analysis completes and read while
// the session awaits a budget choice.
type BudgetContext struct {
	AnalyzedImageRef  string   `json:"analyzed_image_ref,omitempty"`
	RecommendedColors []string `json:"recommended_colors,omitempty"`
}

// TryOnContext holds the stored full-body photo across the try-on loop so a
// retry reuses it instead of re-requesting the photo.
type TryOnContext struct {
	BodyImageRef string `json:"body_image_ref,omitempty"`
}

// ProductsContext caches the last product list shown to the user.
type ProductsContext struct {
	Products []Product `json:"products,omitempty"`
}

// BudgetContext decodes the session context as a BudgetContext. It returns
// false when the session is not in a state that writes one, or when the
// stored payload does not carry the expected fields; stale context from a
// foreign state reads as absent.
func (s *Session) BudgetContext() (BudgetContext, bool) {
	var c BudgetContext
	if s.State != StateAwaitingBudget || len(s.Context) == 0 {
		return c, false
	}
	if err := json.Unmarshal(s.Context, &c); err != nil || c.AnalyzedImageRef == "" {
		return BudgetContext{}, false
	}
	return c, true
}

// TryOnContext decodes the session context as a TryOnContext. Valid in the
// clothing-choice and try-on-result states, which share the body photo.
func (s *Session) TryOnContext() (TryOnContext, bool) {
	var c TryOnContext
	if s.State != StateAwaitingClothingChoice && s.State != StateShowingTryOnResult {
		return c, false
	}
	if len(s.Context) == 0 {
		return c, false
	}
	if err := json.Unmarshal(s.Context, &c); err != nil || c.BodyImageRef == "" {
		return TryOnContext{}, false
	}
	return c, true
}

// ProductsContext decodes the session context as a ProductsContext.
func (s *Session) ProductsContext() (ProductsContext, bool) {
	var c ProductsContext
	if s.State != StateShowingProducts || len(s.Context) == 0 {
		return c, false
	}
	if err := json.Unmarshal(s.Context, &c); err != nil || len(c.Products) == 0 {
		return ProductsContext{}, false
	}
	return c, true
}
