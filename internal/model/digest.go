package model

import (
	"time"

	"github.com/google/uuid"
)

// DigestItem is one rendered line of a digest.
type DigestItem struct {
	Kind      string    `json:"kind"`
	EntityID  int64     `json:"entity_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Digest is the composed content for one user. ItemCount counts everything
// pending in the window; Items holds at most the configured maximum.
type Digest struct {
	UserID    uuid.UUID    `json:"user_id"`
	Tier      Tier         `json:"tier"`
	Title     string       `json:"title"`
	Heading   string       `json:"heading"`
	Subject   string       `json:"subject"`
	HTML      string       `json:"html"`
	Items     []DigestItem `json:"items"`
	ItemCount int          `json:"item_count"`
	Since     time.Time    `json:"since"`
}

// Message is what the dispatcher puts on the wire.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SentCopy is the audit artifact kept for a dispatched digest.
type SentCopy struct {
	ID      uuid.UUID `json:"id"`
	CycleID uuid.UUID `json:"cycle_id"`
	Digest  *Digest   `json:"digest"`
	Message *Message  `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}
