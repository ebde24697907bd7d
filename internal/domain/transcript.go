package domain

import (
	"time"
)

// Direction tells which side of the conversation produced an entry.
type Direction string

const (
	DirectionUser   Direction = "user"
	DirectionSystem Direction = "system"
)

// Transcript entry kinds. Kind tags what a system reply carried so the
// dashboard can aggregate without parsing message bodies.
const (
	KindText        = "text"
	KindWelcome     = "welcome"
	KindProductList = "product_list"
	KindTryOnResult = "tryon_result"
)

// TranscriptEntry is one recorded conversational turn. Entries are
// append-only; Seq is assigned by the store and is monotonic per session.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Direction Direction `json:"direction"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	MediaRef  string    `json:"media_ref,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}
