// Package domain contains core domain types for the stylist bot.
package domain

import (
	"time"
)

// Tier is a subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// User represents a registered WhatsApp user and their usage counters.
type User struct {
	Address       string    `json:"address"` // stable WhatsApp channel address
	DisplayName   string    `json:"display_name"`
	Tier          Tier      `json:"tier"`
	SkinTone      string    `json:"skin_tone,omitempty"`
	Undertone     string    `json:"undertone,omitempty"`
	AnalysisCount int       `json:"analysis_count"`
	TryOnCount    int       `json:"try_on_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasSkinTone returns true if a skin-tone analysis has been recorded.
func (u *User) HasSkinTone() bool {
	return u.SkinTone != ""
}

// IsPremium returns true for users on the premium tier.
func (u *User) IsPremium() bool {
	return u.Tier == TierPremium
}
